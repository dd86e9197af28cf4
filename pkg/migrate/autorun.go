package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	"github.com/angelmondragon/eventrentals-backend/pkg/db"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
)

// MaybeRunDev executes migrations automatically when the app is running in dev mode and
// the feature flag is enabled. sqlite databases are always brought up to date
// from the models since goose migrations target Postgres.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg.DB.IsSQLite() {
		return AutoMigrateModels(ctx, logg, client)
	}
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": "embedded"})
	runner, err := NewRunner(sqlDB, Embedded())
	if err != nil {
		return err
	}
	applied, err := runner.Up(ctx)
	if err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	ctx = logg.WithField(ctx, "applied", applied)
	logg.Info(ctx, "Goose migrations completed")
	return nil
}

// AutoMigrateModels creates or updates every table from the gorm models.
func AutoMigrateModels(ctx context.Context, logg *logger.Logger, client *db.Client) error {
	if client == nil {
		return fmt.Errorf("db client is required")
	}
	if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "dialect", client.Dialect()), "model schema migrated")
	}
	return nil
}
