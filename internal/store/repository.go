/**
 * @description
 * Data access layer for per-guild server configs.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrConfigNotFound = errors.New("server config not found")

const schema = `
	CREATE TABLE IF NOT EXISTS server_configs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		guild_id TEXT NOT NULL UNIQUE,
		token_address TEXT NOT NULL,
		minimum_balance BIGINT NOT NULL CHECK (minimum_balance >= 0),
		start_channel_id TEXT NOT NULL,
		role_id TEXT NOT NULL,
		webhook_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

const configColumns = `id, guild_id, token_address, minimum_balance, start_channel_id, role_id,
		       webhook_url, created_at, updated_at`

// Repository handles database operations for server configs.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the server_configs table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// GetByGuildID returns the config of a guild or ErrConfigNotFound.
func (r *Repository) GetByGuildID(ctx context.Context, guildID string) (*domain.ServerConfig, error) {
	query := `SELECT ` + configColumns + ` FROM server_configs WHERE guild_id = $1`
	cfg, err := scanConfig(r.db.QueryRow(ctx, query, guildID))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Upsert creates or replaces the config of a guild.
func (r *Repository) Upsert(ctx context.Context, guildID string, input domain.ServerConfigInput) (*domain.ServerConfig, error) {
	query := `
		INSERT INTO server_configs (
			guild_id,
			token_address,
			minimum_balance,
			start_channel_id,
			role_id,
			webhook_url
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (guild_id) DO UPDATE SET
			token_address = EXCLUDED.token_address,
			minimum_balance = EXCLUDED.minimum_balance,
			start_channel_id = EXCLUDED.start_channel_id,
			role_id = EXCLUDED.role_id,
			webhook_url = EXCLUDED.webhook_url,
			updated_at = NOW()
		RETURNING ` + configColumns
	return scanConfig(r.db.QueryRow(ctx, query,
		guildID,
		input.TokenAddress,
		input.MinimumBalance,
		input.StartChannelID,
		input.RoleID,
		input.WebhookURL,
	))
}

// DeleteByGuildID removes the config of a guild. Deleting a missing config is not an error.
func (r *Repository) DeleteByGuildID(ctx context.Context, guildID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM server_configs WHERE guild_id = $1`, guildID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// List returns every stored config ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]domain.ServerConfig, error) {
	rows, err := r.db.Query(ctx, `SELECT `+configColumns+` FROM server_configs ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []domain.ServerConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return configs, nil
}

func scanConfig(row pgx.Row) (*domain.ServerConfig, error) {
	var cfg domain.ServerConfig
	err := row.Scan(
		&cfg.ID,
		&cfg.GuildID,
		&cfg.TokenAddress,
		&cfg.MinimumBalance,
		&cfg.StartChannelID,
		&cfg.RoleID,
		&cfg.WebhookURL,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}
