/**
 * @description
 * Entry point for xeneaguard, the token-gated Discord verification service.
 * Subcommands share a JSON slog logger and the configuration loaded before they run.
 *
 * @dependencies
 * - github.com/spf13/cobra: command line parsing.
 * - github.com/joho/godotenv: loads a local .env file into the process environment.
 * - go.uber.org/automaxprocs: aligns GOMAXPROCS with the container CPU quota.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

const programName = "xeneaguard"

type configKey struct{}

var (
	globalFlags = struct {
		debug bool
	}{}
	configDir string
)

func slogPrintf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), "component", programName)
}

func commonRun(cfg config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if globalFlags.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: globalFlags.debug,
		Level:     level,
	}))
	slog.SetDefault(logger)

	if _, err := maxprocs.Set(maxprocs.Logger(slogPrintf)); err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}
	return logger
}

func configFromContext(ctx context.Context) config.Config {
	cfg, _ := ctx.Value(configKey{}).(config.Config)
	return cfg
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Token-gated role verification for Discord communities",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configDir, "config", ".", "directory containing an optional .env file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal in deployed environments.
		_ = godotenv.Load(filepath.Join(configDir, ".env"))

		cfg, err := config.LoadConfig(configDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(context.WithValue(ctx, configKey{}, cfg))
		return nil
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(commandsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
