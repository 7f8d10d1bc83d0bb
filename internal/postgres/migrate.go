package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/paylinks/pricechange/internal/config"
	"github.com/paylinks/pricechange/internal/logger"
)

// RunMigrations applies every pending up migration from the configured source
func RunMigrations(db *DB, cfg *config.PostgresConfig, log *logger.Logger) error {
	m, err := newMigrator(db, cfg)
	if err != nil {
		return err
	}

	log.Infow("running database migrations", "source", cfg.GetMigrationsURL())

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("database schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	log.Infow("database migrations applied", "version", version, "dirty", dirty)
	return nil
}

// RollbackMigrations reverts the given number of migrations
func RollbackMigrations(db *DB, cfg *config.PostgresConfig, steps int, log *logger.Logger) error {
	m, err := newMigrator(db, cfg)
	if err != nil {
		return err
	}

	log.Infow("rolling back database migrations", "steps", steps)

	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

func newMigrator(db *DB, cfg *config.PostgresConfig) (*migrate.Migrate, error) {
	driver, err := migratepg.WithInstance(db.DB.DB, &migratepg.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.GetMigrationsURL(), cfg.DBName, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}
