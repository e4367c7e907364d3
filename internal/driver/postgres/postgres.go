// Package postgres provides the native PostgreSQL driver on top of pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refinery-db/refinery/internal/driver"
	"github.com/refinery-db/refinery/internal/history"
)

const defaultMaxConns = 5

// Conn drives migrations over a pgx connection pool. The advisory lock rides
// on its own pooled connection so it outlives the run's transactions.
type Conn struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
	lock *lockHandle
	wide bool
}

// Option configures Connect.
type Option func(*Conn)

// WithWideVersions widens the history version column to 64 bits.
func WithWideVersions() Option {
	return func(c *Conn) { c.wide = true }
}

// Connect creates a pgx pool for the given database URL, with a conservative
// connection limit, and verifies connectivity.
func Connect(ctx context.Context, databaseURL string, opts ...Option) (*Conn, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrConnectionFailed, err)
	}

	poolCfg.MaxConns = defaultMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrConnectionFailed, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("%w: %w", driver.ErrConnectionFailed, err)
	}

	c := &Conn{pool: pool}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Close releases the pool. The advisory lock, if still held, goes with it.
func (c *Conn) Close() {
	c.pool.Close()
}

func (c *Conn) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		SupportsDDLTransactions: true,
		SupportsLock:            true,
		// pgx sends argument-free Exec through the simple protocol, which
		// accepts several statements in one string.
		MultiStatement: true,
	}
}

func (c *Conn) Execute(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		var err error

		if c.tx != nil {
			_, err = c.tx.Exec(ctx, stmt)
		} else {
			_, err = c.pool.Exec(ctx, stmt)
		}

		if err != nil {
			return fmt.Errorf("executing statement: %w", err)
		}
	}

	return nil
}

func (c *Conn) QueryHistory(ctx context.Context, table string) ([]history.Record, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if c.tx != nil {
		rows, err = c.tx.Query(ctx, history.SelectSQL(table))
	} else {
		rows, err = c.pool.Query(ctx, history.SelectSQL(table))
	}

	if err != nil {
		return nil, fmt.Errorf("querying history table %s: %w", table, err)
	}
	defer rows.Close()

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Record, error) {
		var (
			version                   int64
			name, appliedOn, checksum string
		)

		if scanErr := row.Scan(&version, &name, &appliedOn, &checksum); scanErr != nil {
			return history.Record{}, fmt.Errorf("scanning history row: %w", scanErr)
		}

		return history.ParseRow(version, name, appliedOn, checksum)
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (c *Conn) EnsureHistoryTable(ctx context.Context, table string) error {
	if err := c.Execute(ctx, []string{history.EnsureTableSQL(table, c.wide)}); err != nil {
		return fmt.Errorf("creating history table %s: %w", table, err)
	}

	return nil
}

func (c *Conn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return driver.ErrTransactionActive
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	c.tx = tx

	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return driver.ErrNoTransaction
	}

	err := c.tx.Commit(ctx)
	c.tx = nil

	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return driver.ErrNoTransaction
	}

	err := c.tx.Rollback(ctx)
	c.tx = nil

	if err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}

	return nil
}

func (c *Conn) Lock(ctx context.Context) error {
	if c.lock != nil {
		return nil
	}

	lock, err := tryAcquireLock(ctx, c.pool)
	if err != nil {
		return err
	}

	c.lock = lock

	return nil
}

func (c *Conn) Unlock(ctx context.Context) error {
	err := c.lock.release(ctx)
	c.lock = nil

	return err
}
