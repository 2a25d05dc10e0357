package alert

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/goleak"
)

func newTestDispatcher(timeout time.Duration) (*Dispatcher, *resultRecorder) {
	rec := &resultRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(timeout, logger, rec.observe), rec
}

type resultRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *resultRecorder) observe(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *resultRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.results...)
}

func TestSendPostsDiscordPayload(t *testing.T) {
	defer goleak.VerifyNone(t)

	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %q", r.Header.Get("Content-Type"))
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		received <- payload["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	dispatcher, rec := newTestDispatcher(time.Second)
	dispatcher.Send(server.URL, "Attention Required: something broke")
	dispatcher.Close()

	select {
	case got := <-received:
		if got != "Attention Required: something broke" {
			t.Fatalf("unexpected content %q", got)
		}
	default:
		t.Fatal("expected webhook to receive the alert")
	}
	if results := rec.snapshot(); len(results) != 1 || results[0] != ResultDelivered {
		t.Fatalf("expected one delivered result, got %v", results)
	}
}

func TestSendSwallowsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dispatcher, rec := newTestDispatcher(time.Second)
	dispatcher.Send(server.URL, "boom")
	dispatcher.Send("http://127.0.0.1:1/unreachable", "boom")
	dispatcher.Close()

	results := rec.snapshot()
	if len(results) != 2 {
		t.Fatalf("expected two results, got %v", results)
	}
	for _, result := range results {
		if result != ResultFailed {
			t.Fatalf("expected failed results, got %v", results)
		}
	}
}

func TestSendTimesOutSlowWebhooks(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	dispatcher, rec := newTestDispatcher(50 * time.Millisecond)
	start := time.Now()
	dispatcher.Send(server.URL, "slow")
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("expected Send to return immediately, took %s", elapsed)
	}
	dispatcher.Close()

	if results := rec.snapshot(); len(results) != 1 || results[0] != ResultFailed {
		t.Fatalf("expected timeout to be recorded as failure, got %v", results)
	}
}

func TestSendIgnoresEmptyURLAndClosedDispatcher(t *testing.T) {
	defer goleak.VerifyNone(t)

	dispatcher, rec := newTestDispatcher(time.Second)
	dispatcher.Send("  ", "ignored")
	dispatcher.Close()
	dispatcher.Send("https://discord.com/api/webhooks/1/abc", "dropped")

	if results := rec.snapshot(); len(results) != 0 {
		t.Fatalf("expected no deliveries, got %v", results)
	}
}

func TestIsValidWebhookURL(t *testing.T) {
	tests := map[string]bool{
		"https://discord.com/api/webhooks/123/abc": true,
		" https://discord.com/api/webhooks/1/x ":   true,
		"https://example.com/api/webhooks/123/abc": false,
		"http://discord.com/api/webhooks/123/abc":  false,
		"":                                         false,
	}
	for raw, want := range tests {
		if got := IsValidWebhookURL(raw); got != want {
			t.Fatalf("IsValidWebhookURL(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestPostTruncatesLongContent(t *testing.T) {
	defer goleak.VerifyNone(t)

	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		received <- payload["content"]
	}))
	defer server.Close()

	dispatcher, _ := newTestDispatcher(time.Second)
	dispatcher.Send(server.URL, strings.Repeat("a", 5000))
	dispatcher.Close()

	got := <-received
	if len(got) != maxContentLength || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncated content of %d chars, got %d", maxContentLength, len(got))
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{name: "short", content: "héllo", want: 5},
		{name: "exact limit", content: strings.Repeat("é", maxContentLength), want: maxContentLength},
		{name: "multi-byte over limit", content: strings.Repeat("é", maxContentLength+1), want: maxContentLength},
		{name: "emoji over limit", content: strings.Repeat("🚨", 3000), want: maxContentLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.content, maxContentLength)
			if !utf8.ValidString(got) {
				t.Fatal("expected valid UTF-8 after truncation")
			}
			if n := utf8.RuneCountInString(got); n != tt.want {
				t.Fatalf("expected %d characters, got %d", tt.want, n)
			}
		})
	}
}
