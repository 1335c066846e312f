// Package store persists invoices, payments, payment matches and sync runs
// with gorm. SQLite serves development and tests, PostgreSQL production.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"receivables/internal/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config describes how to reach the database.
type Config struct {
	Driver string
	DSN    string

	// Debug logs every statement.
	Debug bool

	// Migrations applies the embedded SQL migrations (postgres only) instead
	// of gorm's AutoMigrate.
	Migrations bool

	ConnectRetries int
	RetryDelay     time.Duration
}

// Store wraps a gorm handle. A Store obtained from Transaction is bound to
// that transaction.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open connects, retrying while the database comes up, and migrates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	const op = "Open"
	log := logger.WithComponent("store")

	dialector, dsn, err := dialectorFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = 1
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	var db *gorm.DB
	for attempt := 1; attempt <= retries; attempt++ {
		db, err = gorm.Open(dialector, gormConfig(log, cfg.Debug))
		if err == nil {
			err = db.WithContext(ctx).Exec("SELECT 1").Error
		}
		if err == nil {
			break
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", retries).
			Msg("Database connection failed, retrying")
		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect database after %d attempts: %w", op, retries, err)
	}

	log.Info().
		Str("driver", cfg.Driver).
		Str("dsn", MaskDSN(dsn)).
		Msg("Database connected")

	s := &Store{db: db, log: log}

	if cfg.Migrations && cfg.Driver == DriverPostgres {
		version, err := RunMigrations(dsn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info().Uint("schema_version", version).Msg("SQL migrations applied")
	} else if err := s.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

// New wraps an existing gorm handle without migrating.
func New(db *gorm.DB) *Store {
	return &Store{db: db, log: logger.WithComponent("store")}
}

// OpenSQLite opens an sqlite database with the store's gorm settings and
// migrates it. Tests use it with in-memory DSNs.
func OpenSQLite(dsn string) (*Store, error) {
	log := logger.WithComponent("store")
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(log, false))
	if err != nil {
		return nil, fmt.Errorf("OpenSQLite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("OpenSQLite: %w", err)
	}
	// one connection keeps a shared in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("OpenSQLite: %w", err)
	}
	return s, nil
}

func dialectorFor(cfg Config) (gorm.Dialector, string, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		dsn := sqliteDSN(cfg.DSN)
		return sqlite.Open(dsn), dsn, nil
	case DriverPostgres:
		dsn := NormalizeDSN(cfg.DSN)
		if dsn == "" {
			return nil, "", fmt.Errorf("DATABASE_DSN is empty")
		}
		return postgres.Open(dsn), dsn, nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func gormConfig(log zerolog.Logger, debug bool) *gorm.Config {
	return &gorm.Config{
		Logger:         NewGormLogger(log, debug),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside a database transaction. fn must use the Store
// it is given, not the outer one.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, log: s.log})
	})
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
