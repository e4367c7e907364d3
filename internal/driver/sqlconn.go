package driver

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/refinery-db/refinery/internal/history"
)

// Session is the subset of database/sql methods a dialect's lock
// implementation needs. Both *sql.Conn and *sql.Tx satisfy it.
type Session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect captures the per-backend details of a database/sql driver.
type Dialect interface {
	Name() string
	Capabilities() Capabilities

	// EnsureHistoryTableSQL returns idempotent DDL for the history table.
	EnsureHistoryTableSQL(table string, wideVersions bool) string

	// Lock and Unlock implement the backend's advisory lock against the
	// run's dedicated session. Only called when SupportsLock is true.
	Lock(ctx context.Context, s Session) error
	Unlock(ctx context.Context, s Session) error
}

// SQLConn adapts a database/sql database to the Conn capability interface.
// It pins one connection from the pool for the whole run, so session-scoped
// locks and manual transactions stay on the same backend session.
type SQLConn struct {
	conn    *sql.Conn
	dialect Dialect
	wide    bool
	tx      *sql.Tx
}

// SQLConnOption configures NewSQLConn.
type SQLConnOption func(*SQLConn)

// WithWideVersions widens the history version column to 64 bits.
func WithWideVersions() SQLConnOption {
	return func(c *SQLConn) { c.wide = true }
}

// NewSQLConn pins a connection from db and wraps it for the given dialect.
// The caller owns db; Close releases only the pinned connection.
func NewSQLConn(ctx context.Context, db *sql.DB, dialect Dialect, opts ...SQLConnOption) (*SQLConn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &SQLConn{conn: conn, dialect: dialect}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Close returns the pinned connection to its pool.
func (c *SQLConn) Close() error {
	return c.conn.Close()
}

func (c *SQLConn) Capabilities() Capabilities {
	return c.dialect.Capabilities()
}

// session routes statements through the open transaction when one is active.
func (c *SQLConn) session() Session {
	if c.tx != nil {
		return c.tx
	}

	return c.conn
}

func (c *SQLConn) Execute(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.session().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing statement: %w", err)
		}
	}

	return nil
}

func (c *SQLConn) QueryHistory(ctx context.Context, table string) ([]history.Record, error) {
	var rows *sql.Rows

	var err error

	if c.tx != nil {
		rows, err = c.tx.QueryContext(ctx, history.SelectSQL(table))
	} else {
		rows, err = c.conn.QueryContext(ctx, history.SelectSQL(table))
	}

	if err != nil {
		return nil, fmt.Errorf("querying history table %s: %w", table, err)
	}
	defer rows.Close()

	var records []history.Record

	for rows.Next() {
		var (
			version                   int64
			name, appliedOn, checksum string
		)

		if err := rows.Scan(&version, &name, &appliedOn, &checksum); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}

		rec, err := history.ParseRow(version, name, appliedOn, checksum)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history rows: %w", err)
	}

	return records, nil
}

func (c *SQLConn) EnsureHistoryTable(ctx context.Context, table string) error {
	ddl := c.dialect.EnsureHistoryTableSQL(table, c.wide)

	if _, err := c.session().ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating history table %s: %w", table, err)
	}

	return nil
}

func (c *SQLConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return ErrTransactionActive
	}

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	c.tx = tx

	return nil
}

func (c *SQLConn) Commit(_ context.Context) error {
	if c.tx == nil {
		return ErrNoTransaction
	}

	err := c.tx.Commit()
	c.tx = nil

	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (c *SQLConn) Rollback(_ context.Context) error {
	if c.tx == nil {
		return ErrNoTransaction
	}

	err := c.tx.Rollback()
	c.tx = nil

	if err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}

	return nil
}

func (c *SQLConn) Lock(ctx context.Context) error {
	if !c.dialect.Capabilities().SupportsLock {
		return nil
	}

	return c.dialect.Lock(ctx, c.conn)
}

func (c *SQLConn) Unlock(ctx context.Context) error {
	if !c.dialect.Capabilities().SupportsLock {
		return nil
	}

	return c.dialect.Unlock(ctx, c.conn)
}
