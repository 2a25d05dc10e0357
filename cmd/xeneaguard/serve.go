package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/api"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/app"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/balance"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/bot"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/config"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/metrics"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/store"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/token"
	"github.com/Salmandabbakuti/xenea-discord-bot/pkg/alert"
	"github.com/Salmandabbakuti/xenea-discord-bot/pkg/chainclient"
	"github.com/Salmandabbakuti/xenea-discord-bot/pkg/discordplatform"
	"github.com/Salmandabbakuti/xenea-discord-bot/pkg/rabbitmq"
	"github.com/Salmandabbakuti/xenea-discord-bot/web"
	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot, the verification API and the maintenance jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromContext(cmd.Context())
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			logger := commonRun(cfg)
			return serveRun(cmd.Context(), cfg, logger)
		},
	}
}

func serveRun(parent context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting "+programName, "port", cfg.ServerPort)

	dbpool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	repository := store.NewRepository(dbpool)
	if err := repository.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	serviceMetrics := metrics.New(registry)

	chain, err := chainclient.Dial(ctx, cfg.RPCURL, cfg.RPCCallTimeout())
	if err != nil {
		return err
	}
	defer chain.Close()
	logger.Info("rpc connected", "chain_id", chain.ChainIDValue().String())

	codec, err := token.NewCodec(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}

	alerts := alert.NewDispatcher(cfg.AlertTimeout(), logger, serviceMetrics.ObserveAlert)
	defer alerts.Close()

	publisher := eventPublisher(cfg, logger)
	defer publisher.Close()

	session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	platform := discordplatform.New(session)
	platform.TrackAvailability()

	classifier := balance.NewClassifier(chain, cfg.RPCCallTimeout(), logger,
		balance.WithObserver(func(kind balance.Kind) { serviceMetrics.ObserveBalanceLookup(string(kind)) }),
	)
	verifier := app.NewVerifier(app.VerifierDeps{
		Tokens:    codec,
		Configs:   repository,
		Reader:    classifier,
		Grants:    app.NewGrantApplier(platform, logger),
		Alerts:    alerts,
		Publisher: publisher,
		Exchange:  cfg.VerificationEventExchange,
		Observer:  serviceMetrics,
		Logger:    logger,
		Timeout:   3 * cfg.RPCCallTimeout(),
	})

	commands := app.NewCommands(repository, codec, cfg.AppURL, cfg.ExplorerTokenURL, logger)
	lifecycle := app.NewLifecycle(repository, platform, alerts, logger)
	discordBot := bot.New(session, cfg.DiscordApplicationID, commands, lifecycle, logger)
	discordBot.Register()
	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	defer session.Close()
	logger.Info("discord gateway connected")

	jobs := app.NewJobs(repository, platform, chain, alerts, serviceMetrics, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
		logger.Info("scheduler stopped")
	}()

	primary, closeRedis := redisRateLimiter(ctx, cfg, logger)
	defer closeRedis()
	fallback := api.NewMemoryRateLimiter(cfg.VerifyRateLimitPerMinute, time.Minute)

	router := api.NewRouter(api.NewHandler(verifier, logger), api.RouterOptions{
		AllowedOrigins:    cfg.AllowedOrigins(),
		RateLimit:         api.RateLimitMiddleware(primary, fallback, logger),
		Gatherer:          registry,
		Assets:            web.Assets,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped unexpectedly: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown started")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func eventPublisher(cfg config.Config, logger *slog.Logger) rabbitmq.Publisher {
	if cfg.RabbitMQURL == "" {
		logger.Info("RABBITMQ_URL not set; verification events disabled")
		return &rabbitmq.EventProducerFallback{Logger: logger}
	}
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
		return &rabbitmq.EventProducerFallback{Logger: logger}
	}
	logger.Info("rabbitmq producer connected")
	return producer
}

// redisRateLimiter returns nil when Redis is not configured or unreachable; the in-memory
// limiter then handles every request.
func redisRateLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) (api.RateLimiter, func()) {
	noop := func() {}
	if cfg.VerifyRateLimitPerMinute <= 0 {
		logger.Warn("verify rate limiting disabled", "env", "VERIFY_RATE_LIMIT_PER_MINUTE")
		return nil, noop
	}
	if cfg.RedisURL == "" {
		logger.Info("redis url missing; using in-memory rate limiting", "env", "REDIS_URL")
		return nil, noop
	}

	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; using in-memory rate limiting", "error", err)
		return nil, noop
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; using in-memory rate limiting", "error", err)
		client.Close()
		return nil, noop
	}
	logger.Info("redis connected")

	limiter := api.NewRedisRateLimiter(client, cfg.RedisRateLimitPrefix, cfg.VerifyRateLimitPerMinute, time.Minute)
	return limiter, func() { client.Close() }
}
