package db

import (
	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/liamcoop/classifier/migrations"
)

// NewMigrator builds a migrator over the embedded migrations for the
// connection's driver. Closing the returned migrator also closes db.
func NewMigrator(db *sqlx.DB) (*migrate.Migrate, error) {
	var (
		dir    string
		driver database.Driver
		err    error
	)

	switch db.DriverName() {
	case "sqlite3":
		dir = "sqlite"
		driver, err = sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	case "postgres":
		dir = "postgres"
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
	default:
		return nil, errors.Newf("unsupported database driver: %s", db.DriverName())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s migration driver", db.DriverName())
	}

	fsys := migrations.SqliteMigrations
	if dir == "postgres" {
		fsys = migrations.PostgresMigrations
	}
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open embedded migrations")
	}

	m, err := migrate.NewWithInstance("iofs", src, db.DriverName(), driver)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create migration instance")
	}
	return m, nil
}

// MigrateUp applies all pending migrations. It is a no-op when the schema is
// current.
func MigrateUp(db *sqlx.DB) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared pool.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "failed to run migrations")
	}
	return nil
}
