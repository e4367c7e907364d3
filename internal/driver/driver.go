// Package driver defines the capability surface the migration executor
// demands of a database backend, and a generic implementation over
// database/sql parameterized by a per-backend dialect.
package driver

import (
	"context"

	"github.com/refinery-db/refinery/internal/history"
)

// Capabilities describes what a backend can do; the executor adapts its
// transactional discipline to these flags.
type Capabilities struct {
	// SupportsDDLTransactions is false for backends (MySQL, MSSQL) that
	// cannot roll back schema changes; grouped runs on such backends may
	// leave intermediate state on failure.
	SupportsDDLTransactions bool

	// SupportsLock is false when the backend has no advisory locking;
	// cross-process safety then degrades to best effort.
	SupportsLock bool

	// MultiStatement is true when Execute accepts several statements in one
	// string; otherwise the executor splits migration scripts first.
	MultiStatement bool
}

// Conn is a single database connection owned exclusively by one migration
// run. Every method takes a context and is a cancellation point; a
// cancellation between Begin and Commit must be answered with Rollback
// before the run returns.
type Conn interface {
	// Execute runs the given statements in order, inside the open
	// transaction if one is active.
	Execute(ctx context.Context, stmts []string) error

	// QueryHistory returns all rows of the history table ordered by version.
	QueryHistory(ctx context.Context, table string) ([]history.Record, error)

	// EnsureHistoryTable idempotently creates the history table.
	EnsureHistoryTable(ctx context.Context, table string) error

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Lock and Unlock bracket the run with the backend's advisory lock.
	// Both are no-ops when Capabilities().SupportsLock is false.
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error

	Capabilities() Capabilities
}

// NoTransactionDetector is implemented by drivers that can recognize
// statements which must not run inside a transaction block, beyond the
// explicit marker in the migration file.
type NoTransactionDetector interface {
	RequiresNoTransaction(sql string) bool
}
