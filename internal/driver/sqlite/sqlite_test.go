package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-db/refinery/internal/driver/sqlite"
	"github.com/refinery-db/refinery/internal/executor"
	"github.com/refinery-db/refinery/internal/history"
	"github.com/refinery-db/refinery/internal/migration"
	"github.com/refinery-db/refinery/internal/planner"
)

func mustUnapplied(t *testing.T, filename, sqlText string) migration.Migration {
	t.Helper()

	m, err := migration.Unapplied(filename, sqlText)
	require.NoError(t, err)

	return m
}

// run applies the given migrations against the database file and releases
// the pinned connection afterwards so assertions can query directly.
func run(t *testing.T, path string, set []migration.Migration, opts ...executor.Option) (*executor.Report, error) {
	t.Helper()

	ctx := context.Background()

	conn, db, err := sqlite.Connect(ctx, path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	report, runErr := executor.NewRunner(set, opts...).RunContext(ctx, conn)

	require.NoError(t, conn.Close())

	return report, runErr
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func queryHistory(t *testing.T, db *sql.DB) []history.Record {
	t.Helper()

	rows, err := db.Query(history.SelectSQL(history.DefaultTableName))
	require.NoError(t, err)

	defer rows.Close()

	var records []history.Record

	for rows.Next() {
		var (
			version                   int64
			name, appliedOn, checksum string
		)

		require.NoError(t, rows.Scan(&version, &name, &appliedOn, &checksum))

		rec, err := history.ParseRow(version, name, appliedOn, checksum)
		require.NoError(t, err)

		records = append(records, rec)
	}

	require.NoError(t, rows.Err())

	return records
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()

	var count int

	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).
		Scan(&count)
	require.NoError(t, err)

	return count > 0
}

func TestBootstrap(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")

	set := []migration.Migration{
		mustUnapplied(t, "V1__init.sql", "CREATE TABLE t(x INT);"),
		mustUnapplied(t, "V2__add.sql", "ALTER TABLE t ADD y INT;"),
	}

	report, err := run(t, path, set)
	require.NoError(t, err)
	require.Len(t, report.Applied(), 2)

	db := openDB(t, path)

	records := queryHistory(t, db)
	require.Len(t, records, 2)
	assert.Equal(t, "init", records[0].Name)
	assert.Equal(t, set[0].Checksum, records[0].Checksum)
	assert.Equal(t, "add", records[1].Name)
	assert.Equal(t, set[1].Checksum, records[1].Checksum)

	// Both migrations took effect: t has columns x and y.
	_, err = db.Exec("INSERT INTO t (x, y) VALUES (1, 2)")
	require.NoError(t, err)
}

func TestRerunIsNoop(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")

	set := []migration.Migration{
		mustUnapplied(t, "V1__init.sql", "CREATE TABLE t(x INT);"),
	}

	report, err := run(t, path, set)
	require.NoError(t, err)
	require.Len(t, report.Applied(), 1)

	rerun, err := run(t, path, set)
	require.NoError(t, err)
	assert.Empty(t, rerun.Applied())
}

func TestTargetVersionThenLatest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")

	set := []migration.Migration{
		mustUnapplied(t, "V1__one.sql", "CREATE TABLE a(x INT);"),
		mustUnapplied(t, "V2__two.sql", "CREATE TABLE b(x INT);"),
		mustUnapplied(t, "V3__three.sql", "CREATE TABLE c(x INT);"),
	}

	report, err := run(t, path, set, executor.WithTarget(migration.Version(2)))
	require.NoError(t, err)
	require.Len(t, report.Applied(), 2)

	db := openDB(t, path)
	assert.True(t, tableExists(t, db, "b"))
	assert.False(t, tableExists(t, db, "c"))

	rerun, err := run(t, path, set)
	require.NoError(t, err)
	require.Len(t, rerun.Applied(), 1)
	assert.Equal(t, "V3__three", rerun.Applied()[0].String())
}

func TestDivergenceDetected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")

	_, err := run(t, path, []migration.Migration{
		mustUnapplied(t, "V1__init.sql", "CREATE TABLE t(x INT);"),
	})
	require.NoError(t, err)

	// Same version and name, different content.
	_, err = run(t, path, []migration.Migration{
		mustUnapplied(t, "V1__init.sql", "CREATE TABLE t(x BIGINT);"),
	})
	require.ErrorIs(t, err, planner.ErrDivergent)

	db := openDB(t, path)
	assert.Len(t, queryHistory(t, db), 1, "no history writes on a planning failure")
}

func TestGroupedFailureRollsBackEverything(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")

	set := []migration.Migration{
		mustUnapplied(t, "V1__ok.sql", "CREATE TABLE a(x INT);"),
		mustUnapplied(t, "V2__bad.sql", "THIS IS NOT SQL;"),
	}

	_, err := run(t, path, set, executor.WithGrouped(true))
	require.Error(t, err)

	var runErr *executor.Error

	require.ErrorAs(t, err, &runErr)
	assert.Empty(t, runErr.Report.Applied())

	db := openDB(t, path)
	assert.Empty(t, queryHistory(t, db), "grouped failure leaves no history rows")
	assert.False(t, tableExists(t, db, "a"), "DDL rolled back with the group")
}

func TestPerMigrationFailureKeepsPriorUnits(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")

	set := []migration.Migration{
		mustUnapplied(t, "V1__ok.sql", "CREATE TABLE a(x INT);"),
		mustUnapplied(t, "V2__bad.sql", "THIS IS NOT SQL;"),
	}

	_, err := run(t, path, set)
	require.Error(t, err)

	var runErr *executor.Error

	require.ErrorAs(t, err, &runErr)
	require.Len(t, runErr.Report.Applied(), 1)

	db := openDB(t, path)
	require.Len(t, queryHistory(t, db), 1)
	assert.True(t, tableExists(t, db, "a"), "the committed unit survives")
}

func TestFakeRecordsWithoutExecuting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")

	set := []migration.Migration{
		mustUnapplied(t, "V1__init.sql", "THIS IS NOT SQL;"),
	}

	report, err := run(t, path, set, executor.WithTarget(migration.Fake()))
	require.NoError(t, err)
	require.Len(t, report.Applied(), 1)

	db := openDB(t, path)

	records := queryHistory(t, db)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].Version)

	var tables int

	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name != ?",
		history.DefaultTableName).Scan(&tables))
	assert.Zero(t, tables, "schema unchanged beyond the history table")
}

func TestMultiStatementScriptWithLiterals(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")

	script := "CREATE TABLE words (w TEXT);\n" +
		"INSERT INTO words VALUES ('semi;colon');\n" +
		"-- a comment; with a semicolon\n" +
		"INSERT INTO words VALUES ('it''s fine');"

	_, err := run(t, path, []migration.Migration{
		mustUnapplied(t, "V1__words.sql", script),
	})
	require.NoError(t, err)

	db := openDB(t, path)

	var count int

	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM words").Scan(&count))
	assert.Equal(t, 2, count)

	var word string

	require.NoError(t, db.QueryRow("SELECT w FROM words WHERE w LIKE '%;%'").Scan(&word))
	assert.Equal(t, "semi;colon", word)
}

func TestCustomTableName(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")

	set := []migration.Migration{
		mustUnapplied(t, "V1__init.sql", "CREATE TABLE t(x INT);"),
	}

	_, err := run(t, path, set, executor.WithTableName("custom_history"))
	require.NoError(t, err)

	db := openDB(t, path)
	assert.True(t, tableExists(t, db, "custom_history"))
	assert.False(t, tableExists(t, db, history.DefaultTableName))
}
