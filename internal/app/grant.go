/**
 * @description
 * Grant applier. Turns an eligibility decision into a role grant and a notification in
 * the guild's gate channel. Chat platform failures are returned to the caller as
 * operational errors; they never reverse a verification that already succeeded.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/domain"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/walletsig"
)

// ChatPlatform is the subset of the chat platform the grant step needs.
type ChatPlatform interface {
	MemberHasRole(ctx context.Context, guildID, memberID, roleID string) (bool, error)
	AddMemberRole(ctx context.Context, guildID, memberID, roleID string) error
	SendChannelMessage(ctx context.Context, channelID, content string) error
}

// GrantResult describes what the grant step changed.
type GrantResult struct {
	RoleGranted     bool
	RoleAlreadyHeld bool
	Notified        bool
}

// GrantApplier applies verification outcomes on the chat platform.
type GrantApplier struct {
	platform ChatPlatform
	logger   *slog.Logger
}

// NewGrantApplier creates a grant applier.
func NewGrantApplier(platform ChatPlatform, logger *slog.Logger) *GrantApplier {
	return &GrantApplier{platform: platform, logger: logger}
}

// Apply ensures an eligible member holds the configured role and posts the outcome to the
// gate channel. An ineligible member only receives the notification.
func (g *GrantApplier) Apply(ctx context.Context, cfg *domain.ServerConfig, memberID, walletAddress string, eligible bool) (GrantResult, error) {
	var result GrantResult
	logger := g.logger.With("guild_id", cfg.GuildID, "member_id", memberID)

	if !eligible {
		if err := g.platform.SendChannelMessage(ctx, cfg.StartChannelID, ineligibleMessage(cfg, memberID, walletAddress)); err != nil {
			return result, fmt.Errorf("failed to post ineligible notification: %w", err)
		}
		result.Notified = true
		logger.Info("member verified but below threshold", "minimum_balance", cfg.MinimumBalance)
		return result, nil
	}

	held, err := g.platform.MemberHasRole(ctx, cfg.GuildID, memberID, cfg.RoleID)
	if err != nil {
		// Role add is add-if-absent on the platform side, so a failed lookup can still proceed.
		logger.Warn("failed to read member roles; adding role anyway", "error", err)
	}

	if held {
		result.RoleAlreadyHeld = true
	} else if err := g.platform.AddMemberRole(ctx, cfg.GuildID, memberID, cfg.RoleID); err != nil {
		return result, fmt.Errorf("failed to add role %s: %w", cfg.RoleID, err)
	}
	result.RoleGranted = true

	if err := g.platform.SendChannelMessage(ctx, cfg.StartChannelID, successMessage(cfg, memberID, walletAddress)); err != nil {
		return result, errors.Join(errors.New("role granted but success notification failed"), err)
	}
	result.Notified = true

	logger.Info("member verified and granted role", "role_id", cfg.RoleID, "already_held", result.RoleAlreadyHeld)
	return result, nil
}

func successMessage(cfg *domain.ServerConfig, memberID, walletAddress string) string {
	return fmt.Sprintf(
		"Hey <@%s>, your wallet address %s has been verified and you have been given <@&%s> role. You can now access the gated channels.",
		memberID, walletsig.Truncate(walletAddress), cfg.RoleID,
	)
}

func ineligibleMessage(cfg *domain.ServerConfig, memberID, walletAddress string) string {
	return fmt.Sprintf(
		"Hey <@%s>, your wallet address %s has been verified. but, you do not have the required balance of tokens in your wallet. Please make sure you have at least %d tokens of the token at address `%s` in your wallet.",
		memberID, walletsig.Truncate(walletAddress), cfg.MinimumBalance, cfg.TokenAddress,
	)
}
