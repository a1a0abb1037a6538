// Package storage is the relational transaction store. It runs on SQLite for
// single-node installs and on PostgreSQL for shared deployments; both use the
// same queries, written with ? placeholders and rebound for PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"fintrack/internal/log"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrWalletMismatch = errors.New("wallet belongs to another user or account context")
	ErrInvalidFilter  = errors.New("invalid listing filter")
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

func ParseDriver(s string) (Driver, error) {
	switch Driver(strings.ToLower(s)) {
	case DriverSQLite:
		return DriverSQLite, nil
	case DriverPostgres, "postgresql", "pgx":
		return DriverPostgres, nil
	}
	return "", fmt.Errorf("unknown storage driver %q", s)
}

func (d Driver) sqlDriverName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

// dataSource adds the pragmas every SQLite connection needs.
func (d Driver) dataSource(dsn string) string {
	if d != DriverSQLite || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return "file:" + dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

type Store struct {
	db     *sql.DB
	driver Driver
	now    func() time.Time
	newID  func() string

	// afterInsert runs between the transaction insert and the balance update.
	// Only tests set it, through SetAfterInsert.
	afterInsert func() error
}

// Open connects to the database, applies pending migrations and returns a
// ready store. For SQLite dsn is a file path.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	if driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(driver.sqlDriverName(), driver.dataSource(dsn))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer at a time; the pool would otherwise hit SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(driver, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Store opened",
		log.FieldComponent, log.ComponentStorage,
		"driver", string(driver))

	return &Store{
		db:     db,
		driver: driver,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Driver() Driver { return s.driver }

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn inside a database transaction, rolling back on any error.
func (s *Store) inTx(ctx context.Context, fn func(q queryer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed",
				log.FieldComponent, log.ComponentStorage,
				log.FieldError, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
