// Package mysql provides the MySQL dialect, backed by go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" database/sql driver

	"github.com/refinery-db/refinery/internal/driver"
	"github.com/refinery-db/refinery/internal/history"
)

// lockName identifies the advisory lock taken around a run; GET_LOCK names
// are server-global.
const lockName = "refinery_schema_history_lock"

// lockTimeoutSeconds bounds how long a run waits for a concurrent run to
// finish before giving up.
const lockTimeoutSeconds = 30

// Dialect is the MySQL rendering of the driver capabilities. MySQL commits
// implicitly around most DDL, so a failed grouped run may leave the schema
// in an intermediate state.
type Dialect struct{}

func (Dialect) Name() string { return "mysql" }

func (Dialect) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		SupportsDDLTransactions: false,
		SupportsLock:            true,
		MultiStatement:          false,
	}
}

func (Dialect) EnsureHistoryTableSQL(table string, wideVersions bool) string {
	return history.EnsureTableSQL(table, wideVersions)
}

func (Dialect) Lock(ctx context.Context, s driver.Session) error {
	var acquired sql.NullInt64

	err := s.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", lockName, lockTimeoutSeconds).
		Scan(&acquired)
	if err != nil {
		return fmt.Errorf("executing GET_LOCK: %w", err)
	}

	if !acquired.Valid || acquired.Int64 != 1 {
		return driver.ErrLockNotAcquired
	}

	return nil
}

func (Dialect) Unlock(ctx context.Context, s driver.Session) error {
	if _, err := s.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", lockName); err != nil {
		return fmt.Errorf("executing RELEASE_LOCK: %w", err)
	}

	return nil
}

// Open opens a MySQL database from a go-sql-driver DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrConnectionFailed, err)
	}

	return db, nil
}

// Connect opens the database and pins a migration connection on it.
func Connect(ctx context.Context, dsn string, opts ...driver.SQLConnOption) (*driver.SQLConn, *sql.DB, error) {
	db, err := Open(dsn)
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
