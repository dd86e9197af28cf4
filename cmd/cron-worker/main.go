package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/eventrentals-backend/api"
	"github.com/angelmondragon/eventrentals-backend/internal/cron"
	"github.com/angelmondragon/eventrentals-backend/internal/engine"
	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	"github.com/angelmondragon/eventrentals-backend/pkg/db"
	"github.com/angelmondragon/eventrentals-backend/pkg/instance"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
	"github.com/angelmondragon/eventrentals-backend/pkg/metrics"
	"github.com/angelmondragon/eventrentals-backend/pkg/migrate"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox"
	"github.com/angelmondragon/eventrentals-backend/pkg/redis"
)

const lockKeyName = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	reg := metrics.NewRegistry()
	if err := metrics.RegisterDBStats(reg, dbClient, "eventrentals"); err != nil {
		logg.Warn(logg.WithField(context.Background(), "error", err.Error()), "db pool metrics disabled")
	}
	outboxRepo := outbox.NewRepository(dbClient.DB())
	eng, err := engine.New(engine.Params{
		DB:       dbClient.DB(),
		TxRunner: dbClient,
		Outbox:   outbox.NewService(outboxRepo, logg),
		Policy:   engine.PolicyFrom(cfg.Engine),
		Logger:   logg,
		Metrics:  metrics.NewEngineMetrics(reg),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build engine", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:  logg,
		Expirer: eng.Reservations,
		TTL:     cfg.Engine.PendingTTL,
	})
	requireJob(logg, "reservation expiry", err)

	driftJob, err := cron.NewLedgerDriftJob(cron.LedgerDriftJobParams{
		Logger:     logg,
		Reconciler: eng.Inventory,
	})
	requireJob(logg, "ledger drift", err)

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Outbox:       outboxRepo,
		DLQ:          outbox.NewDLQRepository(dbClient.DB()),
		Retention:    cfg.Outbox.Retention,
		DLQRetention: cfg.Outbox.DLQRetention,
		MinAttempts:  cfg.Outbox.MaxAttempts,
	})
	requireJob(logg, "outbox retention", err)

	metricsCollector := metrics.NewCronJobMetrics(reg)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(fmt.Sprintf(lockKeyName, envOrLocal(cfg.App.Env))), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(expiryJob, driftJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metricsCollector,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	if cfg.App.MetricsAddr != "" {
		go func() {
			if err := api.Serve(ctx, api.NewServer(cfg.App.MetricsAddr, metrics.Handler(reg)), logg); err != nil {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func requireJob(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), fmt.Sprintf("failed to build %s job", name), err)
	os.Exit(1)
}

func envOrLocal(env string) string {
	if env == "" {
		return config.AppEnvLocal
	}
	return env
}
