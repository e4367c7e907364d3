// Package mssql provides the SQL Server dialect, backed by
// microsoft/go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" database/sql driver

	"github.com/refinery-db/refinery/internal/driver"
	"github.com/refinery-db/refinery/internal/history"
)

const lockResource = "refinery_schema_history_lock"

const lockTimeoutMillis = 30000

// Dialect is the SQL Server rendering of the driver capabilities. Some DDL
// cannot be rolled back, so the executor treats the backend as unable to
// undo schema changes.
type Dialect struct{}

func (Dialect) Name() string { return "mssql" }

func (Dialect) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		SupportsDDLTransactions: false,
		SupportsLock:            true,
		MultiStatement:          false,
	}
}

// EnsureHistoryTableSQL probes sys.tables: SQL Server has no
// CREATE TABLE IF NOT EXISTS.
func (Dialect) EnsureHistoryTableSQL(table string, wideVersions bool) string {
	return fmt.Sprintf(`IF NOT EXISTS (SELECT 1 FROM sys.tables WHERE name = N'%s')
BEGIN
    CREATE TABLE %s (
        version %s PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        applied_on VARCHAR(255) NOT NULL,
        checksum VARCHAR(255) NOT NULL
    );
END`, table, table, history.VersionColumnType(wideVersions))
}

// Lock takes a session-owned applock so it survives across the run's
// transactions and releases even if the session dies.
func (Dialect) Lock(ctx context.Context, s driver.Session) error {
	query := fmt.Sprintf(`DECLARE @result INT;
EXEC @result = sp_getapplock @Resource = '%s', @LockMode = 'Exclusive', @LockOwner = 'Session', @LockTimeout = %d;
SELECT @result;`, lockResource, lockTimeoutMillis)

	var result int64

	if err := s.QueryRowContext(ctx, query).Scan(&result); err != nil {
		return fmt.Errorf("executing sp_getapplock: %w", err)
	}

	// sp_getapplock returns >= 0 on success.
	if result < 0 {
		return driver.ErrLockNotAcquired
	}

	return nil
}

func (Dialect) Unlock(ctx context.Context, s driver.Session) error {
	query := fmt.Sprintf(
		"EXEC sp_releaseapplock @Resource = '%s', @LockOwner = 'Session'", lockResource)

	if _, err := s.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("executing sp_releaseapplock: %w", err)
	}

	return nil
}

// Open opens a SQL Server database from a sqlserver:// URL.
func Open(url string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrConnectionFailed, err)
	}

	return db, nil
}

// Connect opens the database and pins a migration connection on it.
func Connect(ctx context.Context, url string, opts ...driver.SQLConnOption) (*driver.SQLConn, *sql.DB, error) {
	db, err := Open(url)
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
