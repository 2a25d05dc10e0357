/**
 * @description
 * Scheduled maintenance jobs.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const jobTimeout = 5 * time.Minute

// GuildLister reports the guilds the bot is currently a member of. GuildIDs reads the
// gateway cache; IsMember asks the platform directly.
type GuildLister interface {
	GuildIDs() []string
	IsMember(ctx context.Context, guildID string) (bool, error)
}

// CodeChecker reports whether a contract is deployed at an address.
type CodeChecker interface {
	HasCode(ctx context.Context, address common.Address) (bool, error)
}

// JobMetrics records job results.
type JobMetrics interface {
	SetConfiguredGuilds(n int)
	AddDeletedConfigs(n int)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	configs ConfigStore
	guilds  GuildLister
	code    CodeChecker
	alerts  AlertSink
	metrics JobMetrics
	logger  *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(configs ConfigStore, guilds GuildLister, code CodeChecker, alerts AlertSink, metrics JobMetrics, logger *slog.Logger) *Jobs {
	return &Jobs{
		configs: configs,
		guilds:  guilds,
		code:    code,
		alerts:  alerts,
		metrics: metrics,
		logger:  logger,
	}
}

// ReconcileStaleConfigs deletes configs of guilds the bot has left while it was offline.
func (j *Jobs) ReconcileStaleConfigs() {
	j.logger.Info("starting stale config reconciliation job")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	current := j.guilds.GuildIDs()
	if len(current) == 0 {
		j.logger.Warn("bot reports no guilds; skipping reconciliation")
		return
	}
	member := make(map[string]bool, len(current))
	for _, id := range current {
		member[id] = true
	}

	configs, err := j.configs.List(ctx)
	if err != nil {
		j.logger.Error("failed to list server configs", "error", err)
		return
	}

	deleted := 0
	for _, cfg := range configs {
		if member[cfg.GuildID] {
			continue
		}
		stillMember, err := j.guilds.IsMember(ctx, cfg.GuildID)
		if err != nil {
			j.logger.Warn("could not confirm guild removal; keeping config", "guild_id", cfg.GuildID, "error", err)
			continue
		}
		if stillMember {
			j.logger.Info("guild missing from gateway cache but bot is still a member", "guild_id", cfg.GuildID)
			continue
		}
		if _, err := j.configs.DeleteByGuildID(ctx, cfg.GuildID); err != nil {
			j.logger.Error("failed to delete stale server config", "guild_id", cfg.GuildID, "error", err)
			continue
		}
		deleted++
		j.logger.Info("deleted stale server config", "guild_id", cfg.GuildID)
	}

	if j.metrics != nil {
		j.metrics.SetConfiguredGuilds(len(configs) - deleted)
		j.metrics.AddDeletedConfigs(deleted)
	}
	j.logger.Info("stale config reconciliation job finished", "configs", len(configs), "deleted", deleted)
}

// AuditGateContracts alerts guilds whose configured token address has no contract code.
func (j *Jobs) AuditGateContracts() {
	j.logger.Info("starting gate contract audit job")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	configs, err := j.configs.List(ctx)
	if err != nil {
		j.logger.Error("failed to list server configs", "error", err)
		return
	}

	flagged := 0
	for _, cfg := range configs {
		if !common.IsHexAddress(cfg.TokenAddress) {
			continue
		}
		ok, err := j.code.HasCode(ctx, common.HexToAddress(cfg.TokenAddress))
		if err != nil {
			j.logger.Warn("failed to read contract code", "guild_id", cfg.GuildID, "token_address", cfg.TokenAddress, "error", err)
			continue
		}
		if ok {
			continue
		}
		flagged++
		j.logger.Warn("no contract deployed at configured token address", "guild_id", cfg.GuildID, "token_address", cfg.TokenAddress)
		if j.alerts != nil && cfg.HasWebhook() {
			j.alerts.Send(cfg.WebhookURL, fmt.Sprintf("Attention Required: No contract found at configured token address `%s`. Verifications will fail until it is updated with `/set-serverconfig`.", cfg.TokenAddress))
		}
	}

	j.logger.Info("gate contract audit job finished", "configs", len(configs), "flagged", flagged)
}
