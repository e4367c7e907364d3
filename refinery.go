// Package refinery applies versioned SQL schema migrations to a relational
// database, recording each applied migration in a schema history table with
// a content checksum so drift, gaps and repeats are detected before anything
// executes.
//
// Migrations are files named (V|U){version}__{name}.sql. They can be loaded
// from a directory at run time or compiled into the binary:
//
//	//go:embed migrations/*.sql
//	var migrationFS embed.FS
//
//	migrations, err := refinery.Load(migrationFS)
//	...
//	conn, cleanup, err := refinery.ConnectPostgres(ctx, databaseURL)
//	...
//	defer cleanup()
//
//	report, err := refinery.NewRunner(migrations).RunContext(ctx, conn)
//
// Undo is out of scope: correcting an applied migration means authoring a
// new forward migration.
package refinery

import (
	"io/fs"
	"log/slog"
	"time"

	"github.com/refinery-db/refinery/internal/driver"
	"github.com/refinery-db/refinery/internal/executor"
	"github.com/refinery-db/refinery/internal/history"
	"github.com/refinery-db/refinery/internal/migration"
)

// Migration is a single unit of schema change.
type Migration = migration.Migration

// Kind distinguishes versioned from unversioned migrations.
type Kind = migration.Kind

// Migration kinds.
const (
	Versioned   = migration.Versioned
	Unversioned = migration.Unversioned
)

// Target bounds a migration run.
type Target = migration.Target

// Latest applies every pending migration.
func Latest() Target { return migration.Latest() }

// Version applies pending migrations up to and including v.
func Version(v int64) Target { return migration.Version(v) }

// Fake records pending migrations in the history table without executing
// their SQL.
func Fake() Target { return migration.Fake() }

// FakeVersion is Fake bounded to versions up to and including v.
func FakeVersion(v int64) Target { return migration.FakeVersion(v) }

// Record is one row of the schema history table.
type Record = history.Record

// DefaultTableName is the history table used when none is configured.
const DefaultTableName = history.DefaultTableName

// Conn is the database capability a run needs; see the Connect functions.
type Conn = driver.Conn

// Capabilities describes what a backend supports.
type Capabilities = driver.Capabilities

// Runner plans and applies migrations.
type Runner = executor.Runner

// Report lists the migrations committed during a run.
type Report = executor.Report

// Error wraps a run failure together with the partial report.
type Error = executor.Error

// SQLError reports a statement the backend rejected.
type SQLError = executor.SQLError

// ProgressEvent is emitted for each migration processed.
type ProgressEvent = executor.ProgressEvent

// RunOption configures a Runner.
type RunOption = executor.Option

// NewRunner creates a Runner over the authored migration set.
func NewRunner(migrations []Migration, opts ...RunOption) *Runner {
	return executor.NewRunner(migrations, opts...)
}

// WithTarget bounds the run; the default is Latest.
func WithTarget(t Target) RunOption { return executor.WithTarget(t) }

// WithGrouped wraps the whole plan in a single transaction.
func WithGrouped(grouped bool) RunOption { return executor.WithGrouped(grouped) }

// WithAbortDivergent controls whether a checksum or name mismatch on an
// applied version fails the run. Defaults to true.
func WithAbortDivergent(abort bool) RunOption { return executor.WithAbortDivergent(abort) }

// WithAbortMissing controls whether an unapplied versioned migration below
// the last applied version fails the run. Defaults to true.
func WithAbortMissing(abort bool) RunOption { return executor.WithAbortMissing(abort) }

// WithTableName overrides the history table name for the run.
func WithTableName(table string) RunOption { return executor.WithTableName(table) }

// WithLogger sets the logger for run diagnostics.
func WithLogger(logger *slog.Logger) RunOption { return executor.WithLogger(logger) }

// WithProgressCallback sets a function called for each migration processed.
func WithProgressCallback(fn func(ProgressEvent)) RunOption {
	return executor.WithProgressCallback(fn)
}

// WithClock overrides the applied_on timestamp source.
func WithClock(now func() time.Time) RunOption { return executor.WithClock(now) }

// LoadOption configures Load and LoadFromDir.
type LoadOption = migration.LoadOption

// WithWideVersions lifts the migration version bound from 32 to 64 bits.
func WithWideVersions() LoadOption { return migration.WithWideVersions() }

// WithLoadLogger sets the logger used to report files skipped during
// discovery.
func WithLoadLogger(logger *slog.Logger) LoadOption { return migration.WithLogger(logger) }

// Load discovers migrations in any filesystem: os.DirFS for a runtime
// directory, or an embed.FS for migrations compiled into the binary.
func Load(fsys fs.FS, opts ...LoadOption) ([]Migration, error) {
	return migration.Load(fsys, opts...)
}

// LoadFromDir is Load over a directory of the host filesystem.
func LoadFromDir(dir string, opts ...LoadOption) ([]Migration, error) {
	return migration.LoadFromDir(dir, opts...)
}

// Unapplied builds a single authored migration from a file name and its SQL.
func Unapplied(filename, sql string) (Migration, error) {
	return migration.Unapplied(filename, sql)
}
