/**
 * @description
 * Domain models for per-guild verification settings.
 */
package domain

import "time"

// ServerConfig holds the token-gating rules of a single Discord guild.
// There is at most one config per GuildID; a guild without one is unconfigured.
type ServerConfig struct {
	ID             string    `json:"id"`
	GuildID        string    `json:"guild_id"`
	TokenAddress   string    `json:"token_address"`
	MinimumBalance int64     `json:"minimum_balance"`
	StartChannelID string    `json:"start_channel_id"`
	RoleID         string    `json:"role_id"`
	WebhookURL     string    `json:"webhook_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasWebhook reports whether operational alerts can be delivered for this guild.
func (c *ServerConfig) HasWebhook() bool {
	return c != nil && c.WebhookURL != ""
}

// ServerConfigInput carries the fields an owner may set with /set-serverconfig.
type ServerConfigInput struct {
	TokenAddress   string
	MinimumBalance int64
	StartChannelID string
	RoleID         string
	WebhookURL     string
}
