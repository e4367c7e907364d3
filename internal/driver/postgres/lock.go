package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refinery-db/refinery/internal/driver"
)

// migrationLockID is the advisory lock identifier used to prevent concurrent
// migration runs against the same database.
const migrationLockID int64 = 4036779113689521181

// lockHandle wraps a dedicated pooled connection holding a session-level
// advisory lock. The lock lives as long as the connection, so the connection
// stays out of the pool until release.
type lockHandle struct {
	conn *pgxpool.Conn
}

// tryAcquireLock attempts to take the session-level advisory lock, returning
// driver.ErrLockNotAcquired when another process holds it.
func tryAcquireLock(ctx context.Context, pool *pgxpool.Pool) (*lockHandle, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for advisory lock: %w", err)
	}

	var acquired bool

	err = conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", migrationLockID).Scan(&acquired)
	if err != nil {
		conn.Release()

		return nil, fmt.Errorf("executing pg_try_advisory_lock: %w", err)
	}

	if !acquired {
		conn.Release()

		return nil, driver.ErrLockNotAcquired
	}

	return &lockHandle{conn: conn}, nil
}

// release unlocks and returns the connection to the pool. Safe to call on a
// nil or already-released handle.
func (h *lockHandle) release(ctx context.Context) error {
	if h == nil || h.conn == nil {
		return nil
	}

	_, err := h.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)
	h.conn.Release()
	h.conn = nil

	if err != nil {
		return fmt.Errorf("releasing advisory lock: %w", err)
	}

	return nil
}
