package repository

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the schema at databaseURL up to date. databaseURL must be
// in postgres:// URL form.
func Migrate(databaseURL string, logger *slog.Logger) error {
    source, err := iofs.New(migrationsFS, "migrations")
    if err != nil {
        return fmt.Errorf("open migrations: %w", err)
    }

    m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
    if err != nil {
        return fmt.Errorf("create migrator: %w", err)
    }
    defer m.Close()

    version, dirty, err := m.Version()
    if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
        return fmt.Errorf("read schema version: %w", err)
    }
    if dirty {
        logger.Warn("schema is dirty, forcing version", "version", version)
        if err := m.Force(int(version)); err != nil {
            return fmt.Errorf("force version %d: %w", version, err)
        }
    }

    if err := m.Up(); err != nil {
        if errors.Is(err, migrate.ErrNoChange) {
            logger.Info("schema up to date", "version", version)
            return nil
        }
        return fmt.Errorf("apply migrations: %w", err)
    }

    version, _, _ = m.Version()
    logger.Info("schema migrated", "version", version)
    return nil
}
