// Package executor applies a migration plan to a database under a
// transactional discipline, keeping the schema history table in step with
// every unit of work.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/refinery-db/refinery/internal/driver"
	"github.com/refinery-db/refinery/internal/history"
	"github.com/refinery-db/refinery/internal/migration"
	"github.com/refinery-db/refinery/internal/planner"
	"github.com/refinery-db/refinery/internal/sqlsplit"
)

// Progress status constants reported via ProgressEvent.
const (
	StatusStarting  = "starting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusFaked     = "faked"
)

// ProgressEvent is emitted for each migration processed.
type ProgressEvent struct {
	Migration *migration.Migration
	Status    string
	Duration  time.Duration
	Error     error
}

// Runner plans and applies migrations over any driver connection.
type Runner struct {
	migrations []migration.Migration
	target     migration.Target
	policy     planner.Policy
	grouped    bool
	table      string
	logger     *slog.Logger
	onProgress func(ProgressEvent)
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithTarget bounds the run; the default is Latest.
func WithTarget(t migration.Target) Option {
	return func(r *Runner) { r.target = t }
}

// WithGrouped wraps the whole plan in a single transaction.
func WithGrouped(grouped bool) Option {
	return func(r *Runner) { r.grouped = grouped }
}

// WithAbortDivergent controls whether a checksum or name mismatch on an
// applied version fails the run. Defaults to true.
func WithAbortDivergent(abort bool) Option {
	return func(r *Runner) { r.policy.AbortDivergent = abort }
}

// WithAbortMissing controls whether an unapplied versioned migration below
// the last applied version fails the run. Defaults to true.
func WithAbortMissing(abort bool) Option {
	return func(r *Runner) { r.policy.AbortMissing = abort }
}

// WithTableName overrides the history table name for this run.
func WithTableName(table string) Option {
	return func(r *Runner) { r.table = table }
}

// WithLogger sets the logger for planner diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithProgressCallback sets a function called for each migration processed.
func WithProgressCallback(fn func(ProgressEvent)) Option {
	return func(r *Runner) { r.onProgress = fn }
}

// WithClock overrides the applied_on timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner over the authored migration set.
func NewRunner(migrations []migration.Migration, opts ...Option) *Runner {
	r := &Runner{
		migrations: migrations,
		target:     migration.Latest(),
		policy:     planner.DefaultPolicy(),
		table:      history.DefaultTableName,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run is RunContext for blocking callers.
func (r *Runner) Run(conn driver.Conn) (*Report, error) {
	return r.RunContext(context.Background(), conn)
}

// RunContext plans and applies migrations: take the advisory lock, ensure
// the history table, diff authored against applied, then execute the plan.
// The returned report lists what was committed, also when execution fails
// partway; a lock or planning failure returns a nil report.
func (r *Runner) RunContext(ctx context.Context, conn driver.Conn) (*Report, error) {
	caps := conn.Capabilities()

	if caps.SupportsLock {
		if err := conn.Lock(ctx); err != nil {
			return nil, fmt.Errorf("acquiring migration lock: %w", err)
		}

		defer func() {
			if err := conn.Unlock(ctx); err != nil {
				r.logger.Warn("releasing migration lock", "error", err)
			}
		}()
	}

	plan, err := r.plan(ctx, conn)
	if err != nil {
		return nil, err
	}

	if len(plan) == 0 {
		r.logger.Info("no migrations to apply")

		return &Report{}, nil
	}

	if r.grouped && !caps.SupportsDDLTransactions {
		r.logger.Warn("backend cannot roll back DDL; a failed grouped run may leave the schema in an intermediate state")
	}

	if r.grouped {
		return r.applyGrouped(ctx, conn, plan)
	}

	return r.applyEach(ctx, conn, plan)
}

// plan loads the applied history and validates the authored set against it.
func (r *Runner) plan(ctx context.Context, conn driver.Conn) ([]migration.Migration, error) {
	if err := conn.EnsureHistoryTable(ctx, r.table); err != nil {
		return nil, err
	}

	applied, err := conn.QueryHistory(ctx, r.table)
	if err != nil {
		return nil, err
	}

	plan, diags, err := planner.Plan(r.migrations, applied, r.target, r.policy)

	for _, d := range diags {
		r.logger.Warn(d.Message, "version", d.Version)
	}

	return plan, err
}

// GetApplied returns the history rows, ordered by version.
func (r *Runner) GetApplied(ctx context.Context, conn driver.Conn) ([]history.Record, error) {
	if err := conn.EnsureHistoryTable(ctx, r.table); err != nil {
		return nil, err
	}

	return conn.QueryHistory(ctx, r.table)
}

// GetLastApplied returns the highest-versioned history row, or nil when no
// migration has been applied.
func (r *Runner) GetLastApplied(ctx context.Context, conn driver.Conn) (*history.Record, error) {
	applied, err := r.GetApplied(ctx, conn)
	if err != nil || len(applied) == 0 {
		return nil, err
	}

	return &applied[len(applied)-1], nil
}

// Pending returns the plan without executing it.
func (r *Runner) Pending(ctx context.Context, conn driver.Conn) ([]migration.Migration, error) {
	return r.plan(ctx, conn)
}

// applyEach runs every migration in its own transaction. A failure aborts
// the run at the current unit; prior units stay committed and are reported.
func (r *Runner) applyEach(ctx context.Context, conn driver.Conn, plan []migration.Migration) (*Report, error) {
	report := &Report{}

	for _, m := range plan {
		r.fireProgress(ProgressEvent{Migration: &m, Status: StatusStarting})

		start := time.Now()
		appliedAt := r.now()

		err := r.applyOne(ctx, conn, m, appliedAt)
		duration := time.Since(start)

		if err != nil {
			r.fireProgress(ProgressEvent{Migration: &m, Status: StatusFailed, Duration: duration, Error: err})

			return report, &Error{
				Report: report,
				Err:    fmt.Errorf("applying migration %s: %w", m, err),
			}
		}

		applied := m
		applied.AppliedOn = &appliedAt
		report.applied = append(report.applied, applied)

		r.fireProgress(ProgressEvent{Migration: &m, Status: r.doneStatus(), Duration: duration})
	}

	return report, nil
}

// applyOne executes a single unit of work: the migration's statements and
// its history insert, committed together.
func (r *Runner) applyOne(ctx context.Context, conn driver.Conn, m migration.Migration, appliedAt time.Time) error {
	insert := history.InsertSQL(r.table, history.FromMigration(m, appliedAt))

	if r.target.IsFake() {
		return conn.Execute(ctx, []string{insert})
	}

	if r.noTransaction(conn, m) {
		// The backend refuses these statements inside a transaction block;
		// a mid-migration failure can leave a partial migration, and the
		// history insert then never happens.
		if err := r.executeMigration(ctx, conn, m); err != nil {
			return err
		}

		return conn.Execute(ctx, []string{insert})
	}

	if err := conn.Begin(ctx); err != nil {
		return err
	}

	if err := r.executeMigration(ctx, conn, m); err != nil {
		return rollbackOn(ctx, conn, err)
	}

	if err := conn.Execute(ctx, []string{insert}); err != nil {
		return rollbackOn(ctx, conn, fmt.Errorf("recording migration: %w", err))
	}

	return conn.Commit(ctx)
}

// applyGrouped runs the whole plan inside one transaction; a failure rolls
// back everything, leaving the history table untouched.
func (r *Runner) applyGrouped(ctx context.Context, conn driver.Conn, plan []migration.Migration) (*Report, error) {
	if err := conn.Begin(ctx); err != nil {
		return &Report{}, &Error{Report: &Report{}, Err: err}
	}

	report := &Report{}

	for _, m := range plan {
		r.fireProgress(ProgressEvent{Migration: &m, Status: StatusStarting})

		start := time.Now()
		appliedAt := r.now()

		err := r.applyInGroup(ctx, conn, m, appliedAt)
		duration := time.Since(start)

		if err != nil {
			r.fireProgress(ProgressEvent{Migration: &m, Status: StatusFailed, Duration: duration, Error: err})

			err = fmt.Errorf("applying migration %s: %w", m, err)
			if rbErr := conn.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("%w; rollback failed: %w", err, rbErr)
			}

			return &Report{}, &Error{Report: &Report{}, Err: err}
		}

		applied := m
		applied.AppliedOn = &appliedAt
		report.applied = append(report.applied, applied)

		r.fireProgress(ProgressEvent{Migration: &m, Status: r.doneStatus(), Duration: duration})
	}

	if err := conn.Commit(ctx); err != nil {
		return &Report{}, &Error{Report: &Report{}, Err: err}
	}

	return report, nil
}

func (r *Runner) applyInGroup(ctx context.Context, conn driver.Conn, m migration.Migration, appliedAt time.Time) error {
	if !r.target.IsFake() {
		if r.noTransaction(conn, m) {
			r.logger.Warn("migration requests no transaction but runs inside the grouped transaction",
				"migration", m.String())
		}

		if err := r.executeMigration(ctx, conn, m); err != nil {
			return err
		}
	}

	return conn.Execute(ctx, []string{history.InsertSQL(r.table, history.FromMigration(m, appliedAt))})
}

// executeMigration runs the migration's statements one at a time so a
// failure can name the offending statement. Backends accepting
// multi-statement execution get the script unsplit.
func (r *Runner) executeMigration(ctx context.Context, conn driver.Conn, m migration.Migration) error {
	stmts := []string{m.SQL}
	if !conn.Capabilities().MultiStatement {
		stmts = sqlsplit.Statements(m.SQL)
	}

	for i, stmt := range stmts {
		if err := conn.Execute(ctx, []string{stmt}); err != nil {
			return &SQLError{Version: m.Version, StmtIndex: i, Err: err}
		}
	}

	return nil
}

func (r *Runner) noTransaction(conn driver.Conn, m migration.Migration) bool {
	if m.NoTransaction {
		return true
	}

	detector, ok := conn.(driver.NoTransactionDetector)

	return ok && detector.RequiresNoTransaction(m.SQL)
}

func (r *Runner) doneStatus() string {
	if r.target.IsFake() {
		return StatusFaked
	}

	return StatusCompleted
}

func (r *Runner) fireProgress(event ProgressEvent) {
	if r.onProgress != nil {
		r.onProgress(event)
	}
}

// rollbackOn rolls back the open transaction and returns err, folding in a
// rollback failure if one happens.
func rollbackOn(ctx context.Context, conn driver.Conn, err error) error {
	if rbErr := conn.Rollback(ctx); rbErr != nil {
		return fmt.Errorf("%w; rollback failed: %w", err, rbErr)
	}

	return err
}
