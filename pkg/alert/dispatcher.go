/**
 * @description
 * Fire-and-forget delivery of operational alerts to a guild's Discord webhook.
 * Each delivery runs detached from the request that raised it with its own timeout;
 * failures are logged and dropped.
 */
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// WebhookPrefix is the only URL prefix accepted for alert webhooks.
const WebhookPrefix = "https://discord.com/api/webhooks/"

// maxContentLength is Discord's message content limit.
const maxContentLength = 2000

// Result labels passed to the outcome observer.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
)

// Dispatcher posts alerts in the background.
type Dispatcher struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	observe    func(result string)

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a dispatcher bounding each delivery by timeout.
func NewDispatcher(timeout time.Duration, logger *slog.Logger, observe func(result string)) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if observe == nil {
		observe = func(string) {}
	}
	return &Dispatcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		timeout: timeout,
		logger:  logger,
		observe: observe,
	}
}

// IsValidWebhookURL reports whether raw looks like a Discord webhook URL.
func IsValidWebhookURL(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), WebhookPrefix)
}

// Send schedules delivery of content to webhookURL and returns immediately.
// Empty URLs are ignored.
func (d *Dispatcher) Send(webhookURL, content string) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("alert dispatcher closed; dropping alert")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("alert delivery panicked", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.post(ctx, webhookURL, content); err != nil {
			d.observe(ResultFailed)
			d.logger.Error("failed to post alert to webhook", "error", err)
			return
		}
		d.observe(ResultDelivered)
		d.logger.Info("alert posted to webhook")
	}()
}

// Close stops accepting alerts and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
	d.httpClient.CloseIdleConnections()
}

func (d *Dispatcher) post(ctx context.Context, webhookURL, content string) error {
	content = truncate(content, maxContentLength)

	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// truncate limits content to limit characters, marking the cut with an ellipsis.
func truncate(content string, limit int) string {
	if utf8.RuneCountInString(content) <= limit {
		return content
	}
	runes := []rune(content)
	return string(runes[:limit-3]) + "..."
}
