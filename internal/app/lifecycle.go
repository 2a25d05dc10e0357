/**
 * @description
 * Guild lifecycle reactions: welcome messages, gate channel help, config cleanup and
 * command deployment alerts.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/store"
)

// GatePlatform is the subset of the chat platform used for lifecycle messages.
type GatePlatform interface {
	SendChannelMessage(ctx context.Context, channelID, content string) error
	ChannelExists(ctx context.Context, channelID string) (bool, error)
}

var supportedCommands = []string{
	"/" + CommandPing,
	"/" + CommandVerify,
	"/" + CommandSetServerConfig,
	"/" + CommandGetServerConfig,
}

// Lifecycle reacts to guild and member events.
type Lifecycle struct {
	configs  ConfigStore
	platform GatePlatform
	alerts   AlertSink
	logger   *slog.Logger
}

// NewLifecycle creates a lifecycle handler.
func NewLifecycle(configs ConfigStore, platform GatePlatform, alerts AlertSink, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{configs: configs, platform: platform, alerts: alerts, logger: logger}
}

// GuildRemoved deletes the config of a guild the bot was removed from.
func (l *Lifecycle) GuildRemoved(ctx context.Context, guildID string) error {
	deleted, err := l.configs.DeleteByGuildID(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to delete server config: %w", err)
	}
	l.logger.Info("bot removed from guild", "guild_id", guildID, "config_deleted", deleted)
	return nil
}

// MemberJoined greets a new member in the gate channel of a configured guild.
func (l *Lifecycle) MemberJoined(ctx context.Context, guildID, memberID string) error {
	cfg, err := l.configs.GetByGuildID(ctx, guildID)
	if err != nil {
		if errors.Is(err, store.ErrConfigNotFound) {
			l.logger.Warn("server not configured; skipping welcome message", "guild_id", guildID)
			return nil
		}
		return fmt.Errorf("failed to load server config: %w", err)
	}

	exists, err := l.platform.ChannelExists(ctx, cfg.StartChannelID)
	if err != nil {
		return fmt.Errorf("failed to look up start channel: %w", err)
	}
	if !exists {
		l.logger.Warn("configured start channel not found", "guild_id", guildID, "channel_id", cfg.StartChannelID)
		if l.alerts != nil && cfg.HasWebhook() {
			l.alerts.Send(cfg.WebhookURL, fmt.Sprintf("Attention Required: Configured start channel <#%s> not found for welcome messages!", cfg.StartChannelID))
		}
		return nil
	}

	return l.platform.SendChannelMessage(ctx, cfg.StartChannelID, WelcomeMessage(memberID))
}

// GateChannelReply returns the help text for a message posted in the gate channel.
// ok is false when the message needs no reply.
func (l *Lifecycle) GateChannelReply(ctx context.Context, guildID, channelID string) (reply string, ok bool, err error) {
	cfg, err := l.configs.GetByGuildID(ctx, guildID)
	if err != nil {
		if errors.Is(err, store.ErrConfigNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load server config: %w", err)
	}
	if channelID != cfg.StartChannelID {
		return "", false, nil
	}
	return "I don't know what you mean. I can only respond to the following commands: " + strings.Join(supportedCommands, ", "), true, nil
}

// CommandsDeployFailed reports a failed command registration to the guild's webhook.
func (l *Lifecycle) CommandsDeployFailed(ctx context.Context, guildID, guildName string, deployErr error) {
	l.logger.Error("failed to deploy commands", "guild_id", guildID, "error", deployErr)

	cfg, err := l.configs.GetByGuildID(ctx, guildID)
	if err != nil {
		return
	}
	if l.alerts != nil && cfg.HasWebhook() {
		l.alerts.Send(cfg.WebhookURL, fmt.Sprintf("Attention Required: Failed to deploy commands on guild %s: %v", guildName, deployErr))
	}
}

// WelcomeMessage is posted in the gate channel when a member joins.
func WelcomeMessage(memberID string) string {
	return fmt.Sprintf("Welcome, <@%s>. We hope you brought pizza! Please type `/verify` command to verify your wallet and get access to our exclusive channels and perks!", memberID)
}
