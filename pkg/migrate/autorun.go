package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/cartwatch/pkg/config"
	"github.com/angelmondragon/cartwatch/pkg/db"
	"github.com/angelmondragon/cartwatch/pkg/logger"
)

// MaybeRun applies pending migrations at startup when auto-migrate is enabled.
func MaybeRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.DB.AutoMigrate {
		return nil
	}

	sqlDB, err := client.SQLDB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": client.Driver()})
	logg.Info(ctx, "running goose migrations")

	results, err := Up(ctx, sqlDB, client.Driver())
	if err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	ctx = logg.WithField(ctx, "applied", len(results))
	logg.Info(ctx, "goose migrations completed")
	return nil
}
