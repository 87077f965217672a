package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/persistence/migrations"
)

// RunMigrations applies the embedded goose migrations against the configured database.
func RunMigrations(ctx context.Context, pg *Postgres, logger *zap.Logger) error {
	if pg == nil || pg.Pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil
	}

	sqlDB, err := sql.Open("pgx", pg.Pool.Config().ConnString())
	if err != nil {
		return fmt.Errorf("open sql db for migrations: %w", err)
	}
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("migration %d (%s): %w", r.Source.Version, r.Source.Path, r.Error)
		}
		logger.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.Duration("duration", r.Duration),
		)
	}

	logger.Info("migrations up to date", zap.Int("applied", len(results)))
	return nil
}
