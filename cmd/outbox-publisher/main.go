package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/eventrentals-backend/api"
	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	"github.com/angelmondragon/eventrentals-backend/pkg/db"
	"github.com/angelmondragon/eventrentals-backend/pkg/instance"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
	"github.com/angelmondragon/eventrentals-backend/pkg/metrics"
	"github.com/angelmondragon/eventrentals-backend/pkg/migrate"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox/registry"
	"github.com/angelmondragon/eventrentals-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(logg, context.Background(), "failed to load config", err)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fatal(logg, ctx, "failed to bootstrap database", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	dlqRepo := outbox.NewDLQRepository(dbClient.DB())

	// `outbox-publisher dlq ...` inspects or requeues dead-lettered events
	// without starting the publish loop.
	if len(os.Args) > 1 && os.Args[1] == "dlq" {
		if err := runDLQ(ctx, dbClient, dlqRepo, os.Args[2:], os.Stdout); err != nil {
			fatal(logg, ctx, "dlq command failed", err)
		}
		return
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		fatal(logg, ctx, "failed to run dev migrations", err)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		fatal(logg, ctx, "failed to bootstrap pubsub", err)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		fatal(logg, ctx, "failed to build event registry", err)
	}

	reg := metrics.NewRegistry()
	if err := metrics.RegisterDBStats(reg, dbClient, "eventrentals"); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "db pool metrics disabled")
	}
	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Broker:     pubsubClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   eventRegistry,
		Publishers: gcpPublisherFactory(pubsubClient),
		DLQ:        dlqRepo,
		Metrics:    metrics.NewOutboxMetrics(reg),
		Instance:   instance.GetID(),
	})
	if err != nil {
		fatal(logg, ctx, "failed to create outbox publisher", err)
	}

	if cfg.App.MetricsAddr != "" {
		go func() {
			if err := api.Serve(ctx, api.NewServer(cfg.App.MetricsAddr, metrics.Handler(reg)), logg); err != nil {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
	}

	logg.Info(logg.WithField(ctx, "topics", eventRegistry.Topics()), "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fatal(logg, ctx, "outbox publisher stopped unexpectedly", err)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func fatal(logg *logger.Logger, ctx context.Context, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
