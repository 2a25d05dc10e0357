/**
 * @description
 * Configuration management for the gate service. Values are read from environment
 * variables through Viper, with an optional .env file in the given path.
 *
 * @dependencies
 * - github.com/spf13/viper: environment binding and defaults.
 */
package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	DiscordBotToken           string `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordApplicationID      string `mapstructure:"DISCORD_BOT_APPLICATION_ID"`
	RPCURL                    string `mapstructure:"RPC_URL"`
	AppURL                    string `mapstructure:"APP_URL"`
	JWTSecret                 string `mapstructure:"JWT_SECRET"`
	LogLevel                  string `mapstructure:"LOG_LEVEL"`
	RPCCallTimeoutSeconds     int    `mapstructure:"RPC_CALL_TIMEOUT_SECONDS"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	VerifyRateLimitPerMinute  int    `mapstructure:"VERIFY_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	VerificationEventExchange string `mapstructure:"VERIFICATION_EVENTS_EXCHANGE"`
	ExplorerTokenURL          string `mapstructure:"EXPLORER_TOKEN_URL"`
	ReconcileJobSchedule      string `mapstructure:"RECONCILE_JOB_SCHEDULE"`
	ContractAuditSchedule     string `mapstructure:"CONTRACT_AUDIT_SCHEDULE"`
	AlertTimeoutSeconds       int    `mapstructure:"ALERT_TIMEOUT_SECONDS"`
	CORSAllowedOrigins        string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	TrustProxyHeaders         bool   `mapstructure:"TRUST_PROXY_HEADERS"`
}

// ErrMissingJWTSecret is returned when no token signing secret is configured.
var ErrMissingJWTSecret = errors.New("JWT_SECRET (or TOKEN_SECRET) must be configured")

// LoadConfig reads configuration from environment variables and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "3000")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("RPC_CALL_TIMEOUT_SECONDS", 10)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "xeneaguard:rate_limit")
	viper.SetDefault("VERIFY_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("VERIFICATION_EVENTS_EXCHANGE", "verification_events")
	viper.SetDefault("EXPLORER_TOKEN_URL", "https://testnet.crossvaluescan.com/token/%s")
	viper.SetDefault("RECONCILE_JOB_SCHEDULE", "@every 1h")
	viper.SetDefault("CONTRACT_AUDIT_SCHEDULE", "@every 6h")
	viper.SetDefault("ALERT_TIMEOUT_SECONDS", 10)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "https://*,http://*")
	viper.SetDefault("TRUST_PROXY_HEADERS", false)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("DISCORD_BOT_TOKEN")
	_ = viper.BindEnv("DISCORD_BOT_APPLICATION_ID")
	_ = viper.BindEnv("RPC_URL")
	_ = viper.BindEnv("APP_URL")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "TOKEN_SECRET")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("RPC_CALL_TIMEOUT_SECONDS")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("VERIFY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("VERIFICATION_EVENTS_EXCHANGE")
	_ = viper.BindEnv("EXPLORER_TOKEN_URL")
	_ = viper.BindEnv("RECONCILE_JOB_SCHEDULE")
	_ = viper.BindEnv("CONTRACT_AUDIT_SCHEDULE")
	_ = viper.BindEnv("ALERT_TIMEOUT_SECONDS")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("TRUST_PROXY_HEADERS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "error", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)

	config.AppURL = strings.TrimSuffix(strings.TrimSpace(config.AppURL), "/")
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "xeneaguard:rate_limit"
	}
	if config.RPCCallTimeoutSeconds <= 0 {
		config.RPCCallTimeoutSeconds = 10
	}
	if config.AlertTimeoutSeconds <= 0 {
		config.AlertTimeoutSeconds = 10
	}
	if config.VerifyRateLimitPerMinute < 0 {
		config.VerifyRateLimitPerMinute = 0
	}
	if !strings.Contains(config.ExplorerTokenURL, "%s") {
		slog.Warn("EXPLORER_TOKEN_URL has no %s placeholder; appending the token address", "value", config.ExplorerTokenURL)
		config.ExplorerTokenURL = strings.TrimSuffix(config.ExplorerTokenURL, "/") + "/%s"
	}

	return
}

// ValidateServe checks the settings only the serving process needs.
func (c Config) ValidateServe() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < 32 {
		slog.Warn("JWT_SECRET is shorter than 32 bytes; use a longer random secret in production")
	}
	return nil
}

// RPCCallTimeout is the bound applied to each individual contract call.
func (c Config) RPCCallTimeout() time.Duration {
	return time.Duration(c.RPCCallTimeoutSeconds) * time.Second
}

// AlertTimeout is the bound applied to each alert webhook delivery.
func (c Config) AlertTimeout() time.Duration {
	return time.Duration(c.AlertTimeoutSeconds) * time.Second
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS into its comma separated entries.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
