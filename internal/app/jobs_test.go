package app

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

type guildListerStub struct {
	ids       []string
	confirmed map[string]bool
	err       error
}

func (s guildListerStub) GuildIDs() []string { return s.ids }

func (s guildListerStub) IsMember(ctx context.Context, guildID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.confirmed[guildID], nil
}

type codeCheckerStub struct {
	deployed map[common.Address]bool
	err      error
	calls    int
}

func (s *codeCheckerStub) HasCode(ctx context.Context, address common.Address) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.deployed[address], nil
}

type jobMetricsStub struct {
	configured int
	deleted    int
}

func (m *jobMetricsStub) SetConfiguredGuilds(n int) { m.configured = n }
func (m *jobMetricsStub) AddDeletedConfigs(n int)   { m.deleted += n }

func configForGuild(guildID, tokenAddress string) *domain.ServerConfig {
	cfg := testConfig()
	cfg.ID = "cfg-" + guildID
	cfg.GuildID = guildID
	cfg.TokenAddress = tokenAddress
	return cfg
}

func TestReconcileStaleConfigs_DeletesConfigsOfLeftGuilds(t *testing.T) {
	configs := newConfigStoreStub(
		configForGuild("g1", "0x1000000000000000000000000000000000000001"),
		configForGuild("g2", "0x1000000000000000000000000000000000000001"),
		configForGuild("g3", "0x1000000000000000000000000000000000000001"),
	)
	metrics := &jobMetricsStub{}
	jobs := NewJobs(configs, guildListerStub{ids: []string{"g1", "g3"}}, &codeCheckerStub{}, &alertStub{}, metrics, testLogger())

	jobs.ReconcileStaleConfigs()

	sort.Strings(configs.deleted)
	if len(configs.deleted) != 1 || configs.deleted[0] != "g2" {
		t.Fatalf("expected only g2 to be deleted, got %v", configs.deleted)
	}
	if metrics.configured != 2 || metrics.deleted != 1 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

func TestReconcileStaleConfigs_KeepsConfigsOfUnavailableGuilds(t *testing.T) {
	tests := []struct {
		name   string
		guilds guildListerStub
	}{
		{
			name:   "still a member",
			guilds: guildListerStub{ids: []string{"g1"}, confirmed: map[string]bool{"g2": true}},
		},
		{
			name:   "membership lookup fails",
			guilds: guildListerStub{ids: []string{"g1"}, err: errors.New("discord: 502 bad gateway")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configs := newConfigStoreStub(
				configForGuild("g1", "0x1000000000000000000000000000000000000001"),
				configForGuild("g2", "0x1000000000000000000000000000000000000001"),
			)
			metrics := &jobMetricsStub{}
			jobs := NewJobs(configs, tt.guilds, &codeCheckerStub{}, &alertStub{}, metrics, testLogger())

			jobs.ReconcileStaleConfigs()

			if len(configs.deleted) != 0 {
				t.Fatalf("expected g2 config to survive, got deletions %v", configs.deleted)
			}
			if metrics.configured != 2 || metrics.deleted != 0 {
				t.Fatalf("unexpected metrics %+v", metrics)
			}
		})
	}
}

func TestReconcileStaleConfigs_SkipsWhenBotReportsNoGuilds(t *testing.T) {
	configs := newConfigStoreStub(configForGuild("g1", "0x1000000000000000000000000000000000000001"))
	jobs := NewJobs(configs, guildListerStub{}, &codeCheckerStub{}, &alertStub{}, nil, testLogger())

	jobs.ReconcileStaleConfigs()

	if len(configs.deleted) != 0 {
		t.Fatalf("expected no deletions before the gateway is ready, got %v", configs.deleted)
	}
}

func TestReconcileStaleConfigs_ListFailure(t *testing.T) {
	configs := newConfigStoreStub()
	configs.listErr = errors.New("db down")
	jobs := NewJobs(configs, guildListerStub{ids: []string{"g1"}}, &codeCheckerStub{}, &alertStub{}, nil, testLogger())

	jobs.ReconcileStaleConfigs()

	if len(configs.deleted) != 0 {
		t.Fatal("expected no deletions when listing fails")
	}
}

func TestAuditGateContracts_AlertsMissingContracts(t *testing.T) {
	deployed := common.HexToAddress("0x1000000000000000000000000000000000000001")
	configs := newConfigStoreStub(
		configForGuild("g1", deployed.Hex()),
		configForGuild("g2", "0x2000000000000000000000000000000000000002"),
		configForGuild("g3", "not-an-address"),
	)
	checker := &codeCheckerStub{deployed: map[common.Address]bool{deployed: true}}
	alerts := &alertStub{}
	jobs := NewJobs(configs, guildListerStub{}, checker, alerts, nil, testLogger())

	jobs.AuditGateContracts()

	if checker.calls != 2 {
		t.Fatalf("expected two code reads, got %d", checker.calls)
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("expected one alert, got %v", alerts.alerts)
	}
}

func TestAuditGateContracts_ReadFailuresAreNotAlerted(t *testing.T) {
	configs := newConfigStoreStub(configForGuild("g1", "0x1000000000000000000000000000000000000001"))
	alerts := &alertStub{}
	jobs := NewJobs(configs, guildListerStub{}, &codeCheckerStub{err: errors.New("rpc timeout")}, alerts, nil, testLogger())

	jobs.AuditGateContracts()

	if len(alerts.alerts) != 0 {
		t.Fatalf("expected read failures to be logged only, got %v", alerts.alerts)
	}
}
