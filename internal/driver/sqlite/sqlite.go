// Package sqlite provides the SQLite dialect, backed by the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/refinery-db/refinery/internal/driver"
	"github.com/refinery-db/refinery/internal/history"
)

// Dialect is the SQLite rendering of the driver capabilities.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		SupportsDDLTransactions: true,
		SupportsLock:            true,
		MultiStatement:          false,
	}
}

func (Dialect) EnsureHistoryTableSQL(table string, wideVersions bool) string {
	return history.EnsureTableSQL(table, wideVersions)
}

// Lock is a no-op: SQLite's cross-process exclusion comes from opening the
// database with _txlock=exclusive (see Open), which makes every transaction
// of the run a BEGIN EXCLUSIVE.
func (Dialect) Lock(_ context.Context, _ driver.Session) error { return nil }

func (Dialect) Unlock(_ context.Context, _ driver.Session) error { return nil }

// Open opens a SQLite database for migrating. Transactions begin exclusively
// so concurrent runs against the same file serialize, and the pool is capped
// at one connection since a run owns its connection anyway.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_txlock=exclusive&_pragma=busy_timeout(10000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrConnectionFailed, err)
	}

	db.SetMaxOpenConns(1)

	return db, nil
}

// Connect opens the database and pins a migration connection on it.
func Connect(ctx context.Context, path string, opts ...driver.SQLConnOption) (*driver.SQLConn, *sql.DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, nil, err
	}

	conn, err := driver.NewSQLConn(ctx, db, Dialect{}, opts...)
	if err != nil {
		_ = db.Close()

		return nil, nil, err
	}

	return conn, db, nil
}
