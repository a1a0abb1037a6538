package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// RunMigrations brings the schema of the database at dsn up to date.
func RunMigrations(driver Driver, dsn string) error {
	m, err := newMigrate(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(driver Driver, dsn string, steps int) error {
	m, err := newMigrate(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version and whether the last
// run left the schema dirty.
func SchemaVersion(driver Driver, dsn string) (uint, bool, error) {
	m, err := newMigrate(driver, dsn)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// newMigrate opens a separate connection for migrations so that closing the
// migrate instance never closes the store's pool.
func newMigrate(driver Driver, dsn string) (*migrate.Migrate, error) {
	db, err := sql.Open(driver.sqlDriverName(), driver.dataSource(dsn))
	if err != nil {
		return nil, fmt.Errorf("open migration database: %w", err)
	}

	var (
		dbDriver database.Driver
		name     string
	)
	switch driver {
	case DriverPostgres:
		dbDriver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
		name = "pgx5"
	default:
		dbDriver, err = sqlite.WithInstance(db, &sqlite.Config{})
		name = "sqlite"
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create %s migration driver: %w", name, err)
	}

	sub, err := fs.Sub(migrationsFS, "migrations/"+string(driver))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, name, dbDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}
