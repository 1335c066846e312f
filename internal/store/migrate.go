package store

import (
	"embed"
	"errors"
	"fmt"

	migrate "github.com/golang-migrate/migrate/v4"
	// Registers the postgres database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"receivables/pkg/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Models lists every table the store manages, in dependency order.
var Models = []interface{}{
	&models.Invoice{},
	&models.Payment{},
	&models.PaymentMatch{},
	&models.SyncRun{},
}

// RunMigrations applies the embedded SQL migrations to a postgres database.
// It returns the schema version after the run.
func RunMigrations(dsn string) (uint, error) {
	const op = "RunMigrations"

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("%s: failed to open embedded migrations: %w", op, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, ToURLDSN(NormalizeDSN(dsn)))
	if err != nil {
		return 0, fmt.Errorf("%s: failed to create migrator: %w", op, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("%s: failed to apply migrations: %w", op, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("%s: failed to read schema version: %w", op, err)
	}
	if dirty {
		return version, fmt.Errorf("%s: schema version %d is dirty", op, version)
	}
	return version, nil
}

// AutoMigrate creates or updates the tables from the gorm models.
func (s *Store) AutoMigrate() error {
	for _, m := range Models {
		if err := s.db.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return nil
}
