package config

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_JWTSecretRequiredOnlyForServe(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "JWT_SECRET")
	unsetEnvWithCleanup(t, "TOKEN_SECRET")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("expected admin commands to load config without a secret, got %v", err)
	}
	if err := cfg.ValidateServe(); !errors.Is(err, ErrMissingJWTSecret) {
		t.Fatalf("expected ErrMissingJWTSecret, got %v", err)
	}

	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	if err := cfg.ValidateServe(); err != nil {
		t.Fatalf("expected a configured secret to validate, got %v", err)
	}
}

func TestLoadConfig_UsesTokenSecretAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "JWT_SECRET")
	setEnvWithCleanup(t, "TOKEN_SECRET", "alias-secret-alias-secret-alias-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWTSecret != "alias-secret-alias-secret-alias-secret" {
		t.Fatalf("expected JWT secret from alias env var, got %q", cfg.JWTSecret)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "0123456789abcdef0123456789abcdef")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "VERIFY_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "RPC_CALL_TIMEOUT_SECONDS")
	unsetEnvWithCleanup(t, "EXPLORER_TOKEN_URL")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "3000" {
		t.Fatalf("expected default port 3000, got %q", cfg.ServerPort)
	}
	if cfg.VerifyRateLimitPerMinute != 10 {
		t.Fatalf("expected default rate limit 10, got %d", cfg.VerifyRateLimitPerMinute)
	}
	if cfg.RPCCallTimeout() != 10*time.Second {
		t.Fatalf("expected default rpc timeout 10s, got %s", cfg.RPCCallTimeout())
	}
	if cfg.ExplorerTokenURL != "https://testnet.crossvaluescan.com/token/%s" {
		t.Fatalf("unexpected explorer url %q", cfg.ExplorerTokenURL)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "0123456789abcdef0123456789abcdef")
	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_TrimsAppURLAndFixesExplorerTemplate(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "0123456789abcdef0123456789abcdef")
	setEnvWithCleanup(t, "APP_URL", " https://gate.example.org/ ")
	setEnvWithCleanup(t, "EXPLORER_TOKEN_URL", "https://explorer.example.org/token/")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AppURL != "https://gate.example.org" {
		t.Fatalf("expected trimmed app url, got %q", cfg.AppURL)
	}
	if cfg.ExplorerTokenURL != "https://explorer.example.org/token/%s" {
		t.Fatalf("expected placeholder to be appended, got %q", cfg.ExplorerTokenURL)
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://a.example , ,https://b.example", LogLevel: "DEBUG"}

	origins := cfg.AllowedOrigins()
	if len(origins) != 2 || origins[0] != "https://a.example" || origins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", origins)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.SlogLevel())
	}
	if (Config{LogLevel: "nonsense"}).SlogLevel() != slog.LevelInfo {
		t.Fatal("expected unknown log level to fall back to info")
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
