package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	"github.com/angelmondragon/eventrentals-backend/pkg/db"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
	"github.com/angelmondragon/eventrentals-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the migrations embedded in the binary")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on files only and need no config.
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		if *name == "" {
			exit("missing -name for create", nil)
		}
		path, err := migrate.CreateSQLMigration(target, *name, time.Now())
		if err != nil {
			exit("failed to create migration", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateFS(migrate.Source(*dir)); err != nil {
			exit("migration validation failed", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if cfg.DB.IsSQLite() {
		if *cmd != "up" {
			exit(fmt.Sprintf("-cmd=%s is not supported on sqlite; only up", *cmd), nil)
		}
		if err := migrate.AutoMigrateModels(ctx, logg, dbClient); err != nil {
			exit("sqlite migrate failed", err)
		}
		return
	}

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)
	runner, err := migrate.NewRunner(sqlDB, migrate.Source(*dir))
	requireResource(ctx, logg, "goose provider", err)

	switch *cmd {
	case "up":
		applied, err := runner.Up(ctx)
		if err != nil {
			exit("goose up failed", err)
		}
		logg.Info(logg.WithField(ctx, "applied", applied), "migrations applied")
	case "down":
		if err := runner.Down(ctx); err != nil {
			exit("goose down failed", err)
		}
	case "status":
		lines, err := runner.Status(ctx)
		if err != nil {
			exit("goose status failed", err)
		}
		for _, line := range lines {
			state := "pending"
			if line.Applied {
				state = "applied"
			}
			fmt.Printf("%d\t%-8s\t%s\n", line.Version, state, line.Path)
		}
	case "version":
		if *version == "" {
			exit("missing -version for version command", nil)
		}
		if err := runner.MigrateTo(ctx, *version); err != nil {
			exit("goose version migrate failed", err)
		}
	default:
		exit("unknown -cmd value: "+*cmd, nil)
	}
}

func exit(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
