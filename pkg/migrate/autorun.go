package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup when running in dev
// with BIDDART_AUTO_MIGRATE enabled. Other environments run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	// The SQL migrations are Postgres dialect; sqlite demos get the schema from the models.
	if strings.HasPrefix(strings.ToLower(cfg.DB.Driver), "sqlite") {
		logg.Info(ctx, "auto-migrating models for sqlite")
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite auto-migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, Source(), "", logg)
	if err != nil {
		return err
	}
	logg.Info(ctx, "running embedded migrations (dev auto-run)")
	if err := runner.Up(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "migrations completed")
	return nil
}
