package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/eventrentals-backend/api"
	"github.com/angelmondragon/eventrentals-backend/api/routes"
	"github.com/angelmondragon/eventrentals-backend/internal/engine"
	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	"github.com/angelmondragon/eventrentals-backend/pkg/db"
	"github.com/angelmondragon/eventrentals-backend/pkg/env"
	"github.com/angelmondragon/eventrentals-backend/pkg/instance"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
	"github.com/angelmondragon/eventrentals-backend/pkg/metrics"
	"github.com/angelmondragon/eventrentals-backend/pkg/migrate"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox"
	"github.com/angelmondragon/eventrentals-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := metrics.NewRegistry()
	if err := metrics.RegisterDBStats(registry, dbClient, "eventrentals"); err != nil {
		logg.Warn(logg.WithField(context.Background(), "error", err.Error()), "db pool metrics disabled")
	}
	eng, err := engine.New(engine.Params{
		DB:       dbClient.DB(),
		TxRunner: dbClient,
		Outbox:   outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Policy:   engine.PolicyFrom(cfg.Engine),
		Logger:   logg,
		Metrics:  metrics.NewEngineMetrics(registry),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build engine", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	handler := routes.NewRouter(routes.Deps{
		Config:       cfg,
		Logger:       logg,
		DB:           dbClient,
		Redis:        redisClient,
		Store:        redisClient,
		Metrics:      registry,
		Inventory:    eng.Inventory,
		Availability: eng.Availability,
		Reservations: eng.Reservations,
		Calendar:     eng.Calendar,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	if err := api.Serve(ctx, api.NewServer(addr, handler), logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
