package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Models lists every table the services read or write.
func Models() []any {
	return []any{
		&models.CartItem{},
		&models.OrderMaterialization{},
		&models.OrderRecord{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// MaybeRunDev migrates the schema at startup in dev when AutoMigrate is set.
// SQLite is migrated from the models since the SQL files target Postgres.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	if cfg.FeatureFlags.UseSQLite {
		logg.Info(logg.WithField(ctx, "path", cfg.DB.SQLitePath), "auto-migrating sqlite schema")
		if err := client.DB().WithContext(ctx).AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("sqlite auto-migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, Migrations(), logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "applying embedded migrations")
	return runner.Up(ctx)
}
