/**
 * @description
 * Slash command handling. The gateway layer translates interactions into these calls and
 * renders the returned Reply; every reply is ephemeral.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/domain"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/store"
	"github.com/Salmandabbakuti/xenea-discord-bot/pkg/alert"
	"github.com/ethereum/go-ethereum/common"
)

const (
	CommandPing            = "ping"
	CommandVerify          = "verify"
	CommandSetServerConfig = "set-serverconfig"
	CommandGetServerConfig = "get-serverconfig"
)

const (
	msgNotConfigured     = "Server not configured. Ask server admin to configure the server with `/set-serverconfig` command"
	msgUnknownCommand    = "Unknown command"
	msgInvalidAddress    = "Invalid token address"
	msgInvalidWebhook    = "Invalid discord webhook URL. It should start with `" + alert.WebhookPrefix + "`"
	msgInvalidMinimum    = "Minimum balance must be zero or a positive whole number"
	msgNotAuthorized     = "You are not authorized to configure the server."
	msgMissingConfigArgs = "Token address, minimum balance, start channel and role are required"
)

// ConfigStore defines the config operations used by commands, lifecycle events and jobs.
type ConfigStore interface {
	GetByGuildID(ctx context.Context, guildID string) (*domain.ServerConfig, error)
	Upsert(ctx context.Context, guildID string, input domain.ServerConfigInput) (*domain.ServerConfig, error)
	DeleteByGuildID(ctx context.Context, guildID string) (bool, error)
	List(ctx context.Context) ([]domain.ServerConfig, error)
}

// TokenIssuer mints authorization tokens.
type TokenIssuer interface {
	Issue(guildID, memberID, configRef string) (string, error)
}

// Invoker identifies who ran a command and where.
type Invoker struct {
	GuildID string
	UserID  string
	OwnerID string
}

// IsOwner reports whether the invoker owns the guild.
func (i Invoker) IsOwner() bool {
	return i.UserID != "" && i.UserID == i.OwnerID
}

// Link is a link button attached to a reply.
type Link struct {
	Label string
	URL   string
}

// Reply is the content of an ephemeral command response.
type Reply struct {
	Content string
	Links   []Link
}

// Commands implements the bot's slash commands.
type Commands struct {
	configs     ConfigStore
	tokens      TokenIssuer
	appURL      string
	explorerURL string
	logger      *slog.Logger
}

// NewCommands creates the command service. explorerURL is a format string taking the token address.
func NewCommands(configs ConfigStore, tokens TokenIssuer, appURL, explorerURL string, logger *slog.Logger) *Commands {
	return &Commands{
		configs:     configs,
		tokens:      tokens,
		appURL:      strings.TrimRight(appURL, "/"),
		explorerURL: explorerURL,
		logger:      logger,
	}
}

// Ping answers /ping.
func (c *Commands) Ping() Reply {
	return Reply{Content: "pong!"}
}

// Unknown answers any command the bot does not implement.
func (c *Commands) Unknown() Reply {
	return Reply{Content: msgUnknownCommand}
}

// Verify answers /verify with a link carrying a fresh authorization token.
func (c *Commands) Verify(ctx context.Context, inv Invoker) (Reply, error) {
	cfg, err := c.configs.GetByGuildID(ctx, inv.GuildID)
	if err != nil {
		if errors.Is(err, store.ErrConfigNotFound) {
			return Reply{Content: msgNotConfigured}, nil
		}
		return Reply{}, fmt.Errorf("failed to load server config: %w", err)
	}

	raw, err := c.tokens.Issue(inv.GuildID, inv.UserID, cfg.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to issue token: %w", err)
	}

	steps := []string{
		"Please Click on Verify with Wallet to verify your wallet address.",
		fmt.Sprintf("Make sure you have at least %d tokens of the token at address `%s` in your wallet.", cfg.MinimumBalance, cfg.TokenAddress),
		"Once verified, you'll be automatically assigned the gated role which will give you access to our exclusive channels and perks!",
	}
	content := "Hello there! Welcome to the server!\n\n" +
		strings.Join(steps, "\n") +
		"\n\nIf you have any questions or encounter any issues, please don't hesitate to reach out to us. Good luck and have fun!"

	c.logger.Info("issued verification token", "guild_id", inv.GuildID, "member_id", inv.UserID)
	return Reply{
		Content: content,
		Links: []Link{
			{Label: "Verify with Wallet", URL: c.appURL + "/verify?token=" + url.QueryEscape(raw)},
			{Label: "View Token on Explorer", URL: fmt.Sprintf(c.explorerURL, cfg.TokenAddress)},
		},
	}, nil
}

// SetServerConfig answers /set-serverconfig. Validation failures are replies, not errors.
func (c *Commands) SetServerConfig(ctx context.Context, inv Invoker, input domain.ServerConfigInput) (Reply, error) {
	input.TokenAddress = strings.TrimSpace(input.TokenAddress)
	input.WebhookURL = strings.TrimSpace(input.WebhookURL)

	if input.StartChannelID == "" || input.RoleID == "" {
		return Reply{Content: msgMissingConfigArgs}, nil
	}
	if !common.IsHexAddress(input.TokenAddress) {
		return Reply{Content: msgInvalidAddress}, nil
	}
	if input.WebhookURL != "" && !alert.IsValidWebhookURL(input.WebhookURL) {
		return Reply{Content: msgInvalidWebhook}, nil
	}
	if input.MinimumBalance < 0 {
		return Reply{Content: msgInvalidMinimum}, nil
	}
	if !inv.IsOwner() {
		return Reply{Content: msgNotAuthorized}, nil
	}

	input.TokenAddress = common.HexToAddress(input.TokenAddress).Hex()

	cfg, err := c.configs.Upsert(ctx, inv.GuildID, input)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to save server config: %w", err)
	}
	c.logger.Info("server config saved", "guild_id", inv.GuildID, "token_address", cfg.TokenAddress, "minimum_balance", cfg.MinimumBalance)

	content := "Server configured successfully. Here are the settings:\n\n" +
		settingsLines(cfg, inv) +
		"\n\nServer members can now use `/verify` command to verify their wallet and get gated role which gives access to exclusive channels and perks!"
	return Reply{Content: content}, nil
}

// GetServerConfig answers /get-serverconfig.
func (c *Commands) GetServerConfig(ctx context.Context, inv Invoker) (Reply, error) {
	cfg, err := c.configs.GetByGuildID(ctx, inv.GuildID)
	if err != nil {
		if errors.Is(err, store.ErrConfigNotFound) {
			return Reply{Content: msgNotConfigured}, nil
		}
		return Reply{}, fmt.Errorf("failed to load server config: %w", err)
	}
	return Reply{Content: "Here are the server's current configuration settings:\n\n" + settingsLines(cfg, inv)}, nil
}

// settingsLines renders a config. The webhook URL is a secret shown only to the owner.
func settingsLines(cfg *domain.ServerConfig, inv Invoker) string {
	lines := []string{
		"Token Address: " + cfg.TokenAddress,
		fmt.Sprintf("Minimum Balance: %d", cfg.MinimumBalance),
		fmt.Sprintf("Start Channel: <#%s>", cfg.StartChannelID),
		fmt.Sprintf("Role: <@&%s>", cfg.RoleID),
	}
	if inv.IsOwner() && cfg.HasWebhook() {
		lines = append(lines, fmt.Sprintf("Webhook URL: ||%s||", cfg.WebhookURL))
	}
	return strings.Join(lines, "\n")
}
