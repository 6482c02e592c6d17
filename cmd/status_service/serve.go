package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/config"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/database"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/eventbus"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/idempotency"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/logger"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/messagebroker"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/app"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/middleware"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/realtime"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/repository/memory"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/repository/postgres"
	transporthttp "github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and realtime hub",
	Long: `Start the status service.

The server will:
  - open the configured StatusStore (postgres or memory)
  - attach the realtime hub to status.notification
  - consume dlr.status.<provider> from NATS when APP_NATS_URL is set
  - deduplicate webhook retries in Redis when APP_REDIS_ADDR is set

It runs until SIGINT or SIGTERM, then drains within APP_SHUTDOWN_TIMEOUT.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("migrate", false, "apply the PostgreSQL schema before serving")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Status service starting...", "port", cfg.HTTPPort, "store", cfg.StoreDriver, "version", version)

	mainCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthChecks := make(map[string]transporthttp.HealthCheck)

	migrateFirst, _ := cmd.Flags().GetBool("migrate")
	repo, closeRepo, err := openRepository(mainCtx, cfg, appLogger, migrateFirst, healthChecks)
	if err != nil {
		return err
	}
	defer closeRepo()

	bus := eventbus.New(eventbus.Options{
		QueueSize:      cfg.BusQueueSize,
		EnqueueTimeout: cfg.BusEnqueueTimeout,
		HandlerTimeout: cfg.BusHandlerTimeout,
	}, appLogger)

	hub := realtime.NewHub(realtime.Options{SendTimeout: cfg.RealtimeSendTimeout}, appLogger)
	if _, err := hub.Attach(bus); err != nil {
		return fmt.Errorf("failed to attach realtime hub: %w", err)
	}

	service := app.NewStatusService(repo, bus, appLogger)

	var idemMW func(http.Handler) http.Handler
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		idemStore := idempotency.NewStore(rdb, cfg.IdempotencyTTL, serviceName)
		idemMW = idempotency.Middleware(idemStore, "statuses", middleware.CallerID, appLogger)
		healthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		appLogger.Info("Webhook idempotency enabled", "redis_addr", cfg.RedisAddr, "ttl", cfg.IdempotencyTTL)
	} else {
		appLogger.Info("REDIS_ADDR not configured, webhook idempotency disabled.")
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	var consumerSub messagebroker.Drainable
	if cfg.NATSUrl != "" {
		natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSUrl, err)
		}
		defer natsClient.Close()
		healthChecks["nats"] = natsClient.Ping

		forwarder := app.NewNotificationForwarder(natsClient, cfg.NATSNotificationSubject, appLogger)
		if _, err := forwarder.Attach(bus); err != nil {
			return fmt.Errorf("failed to attach notification forwarder: %w", err)
		}
		consumer := app.NewStatusConsumer(service, appLogger)
		sub, err := consumer.Start(groupCtx, natsClient, cfg.NATSDLRSubject, cfg.NATSDLRQueueGroup)
		if err != nil {
			return fmt.Errorf("failed to start provider status consumer: %w", err)
		}
		consumerSub = sub
	} else {
		appLogger.Info("NATS_URL not configured, NATS ingestion and forwarding disabled.")
	}

	router := transporthttp.NewRouter(transporthttp.RouterConfig{
		Statuses: transporthttp.NewStatusHandler(service, validator.New(validator.WithRequiredStructEnabled()), appLogger),
		Realtime: transporthttp.NewRealtimeHandler(hub, realtime.WebSocketOptions{
			AllowedOrigins: cfg.RealtimeAllowedOrigins,
			PingInterval:   cfg.RealtimePingInterval,
		}, appLogger),
		Verifier:       middleware.NewTokenVerifier(cfg.JWTAccessSecret),
		AdminRole:      cfg.AdminRole,
		Idempotency:    idemMW,
		RequestTimeout: cfg.HTTPRequestTimeout,
		HealthChecks:   healthChecks,
		Logger:         appLogger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Realtime streams never end on their own; close them once listeners stop.
	httpServer.RegisterOnShutdown(hub.Close)

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown of HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		appLogger.Info("HTTP server has been shut down gracefully.")
		return nil
	})

	appLogger.Info("Service is ready and running.")
	groupErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// groupCtx is done, so the consumer is draining. Its in-flight AddStatus
	// calls still publish, so the bus stays open until the drain ends.
	if consumerSub != nil {
		if err := messagebroker.WaitDrained(drainCtx, consumerSub); err != nil {
			appLogger.Warn("Provider status subscription did not drain before timeout", "error", err)
		}
	}

	// Deliver what is already queued (NATS forwarding included) before the
	// deferred connection closes run.
	if err := bus.Close(drainCtx); err != nil {
		appLogger.Warn("Event bus did not drain before timeout", "error", err)
	}

	if groupErr != nil && !errors.Is(groupErr, context.Canceled) {
		appLogger.Error("Service group encountered an error", "error", groupErr)
		return groupErr
	}
	appLogger.Info("Service shutdown complete.")
	return nil
}

// openRepository builds the configured StatusStore and registers its health
// check. The returned func releases its resources.
func openRepository(ctx context.Context, cfg *config.Config, log *slog.Logger, migrateFirst bool, checks map[string]transporthttp.HealthCheck) (app.StatusRepository, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("Using in-memory status store; records are lost on restart.")
		return memory.NewStatusRepository(), func() {}, nil
	case "postgres":
		pool, err := database.NewDBPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if migrateFirst {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("failed to apply schema: %w", err)
			}
			log.Info("PostgreSQL schema applied")
		}
		checks["postgres"] = pool.Ping
		log.Info("Successfully connected to PostgreSQL database")
		return postgres.NewPgStatusRepository(pool, log), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
