package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/bot"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/config"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/store"
	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the server config table if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromContext(cmd.Context())
			logger := commonRun(cfg)

			dbpool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer dbpool.Close()

			if err := store.NewRepository(dbpool).EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
			logger.Info("schema is up to date")
			return nil
		},
	}
}

func commandsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Manage slash commands",
	}

	var guildIDs []string
	deploy := &cobra.Command{
		Use:   "deploy",
		Short: "Overwrite the slash commands of one or more guilds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromContext(cmd.Context())
			logger := commonRun(cfg)

			session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
			if err != nil {
				return fmt.Errorf("failed to create discord session: %w", err)
			}
			b := bot.New(session, cfg.DiscordApplicationID, nil, nil, logger)

			var failed int
			for _, guildID := range guildIDs {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				err := b.DeployCommands(ctx, guildID)
				cancel()
				if err != nil {
					logger.Error("failed to deploy commands", "guild_id", guildID, "error", err)
					failed++
					continue
				}
				logger.Info("deployed commands", "guild_id", guildID)
			}
			if failed > 0 {
				return fmt.Errorf("command deployment failed for %d of %d guilds", failed, len(guildIDs))
			}
			return nil
		},
	}
	deploy.Flags().StringSliceVar(&guildIDs, "guild", nil, "guild ID to deploy to (repeatable)")
	_ = deploy.MarkFlagRequired("guild")

	cmd.AddCommand(deploy)
	return cmd
}

// openPool connects to Postgres with the pool settings shared by every subcommand.
func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL must be configured")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to stay compatible with transaction poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	slog.Info("database connection established")
	return dbpool, nil
}
