package history_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-db/refinery/internal/history"
	"github.com/refinery-db/refinery/internal/migration"
)

func TestEnsureTableSQL(t *testing.T) {
	t.Parallel()

	ddl := history.EnsureTableSQL("refinery_schema_history", false)

	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS refinery_schema_history")
	assert.Contains(t, ddl, "version INTEGER PRIMARY KEY")
	assert.Contains(t, ddl, "name VARCHAR(255) NOT NULL")
	assert.Contains(t, ddl, "applied_on VARCHAR(255) NOT NULL")
	assert.Contains(t, ddl, "checksum VARCHAR(255) NOT NULL")

	wide := history.EnsureTableSQL("custom_history", true)
	assert.Contains(t, wide, "CREATE TABLE IF NOT EXISTS custom_history")
	assert.Contains(t, wide, "version BIGINT PRIMARY KEY")
}

func TestSelectSQL(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"SELECT version, name, applied_on, checksum FROM custom ORDER BY version ASC",
		history.SelectSQL("custom"))
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	rec := history.Record{
		Version:   7,
		Name:      "add_cars_table",
		AppliedOn: time.Date(2026, 8, 5, 14, 30, 9, 0, time.UTC),
		Checksum:  18446744073709551615,
	}

	assert.Equal(t,
		"INSERT INTO refinery_schema_history (version, name, applied_on, checksum) "+
			"VALUES (7, 'add_cars_table', '2026-08-05T14:30:09', '18446744073709551615')",
		history.InsertSQL("refinery_schema_history", rec))
}

func TestInsertSQLConvertsToUTC(t *testing.T) {
	t.Parallel()

	est := time.FixedZone("EST", -5*3600)
	rec := history.Record{
		Version:   1,
		Name:      "initial",
		AppliedOn: time.Date(2026, 8, 5, 9, 0, 0, 0, est),
		Checksum:  1,
	}

	assert.Contains(t, history.InsertSQL("h", rec), "'2026-08-05T14:00:00'")
}

func TestParseRowRoundTrip(t *testing.T) {
	t.Parallel()

	rec, err := history.ParseRow(3, "add_brand", "2026-08-05T14:30:09", "12345678901234567890")
	require.NoError(t, err)

	assert.Equal(t, int64(3), rec.Version)
	assert.Equal(t, "add_brand", rec.Name)
	assert.Equal(t, time.Date(2026, 8, 5, 14, 30, 9, 0, time.UTC), rec.AppliedOn)
	assert.Equal(t, uint64(12345678901234567890), rec.Checksum)
}

func TestParseRowRejectsForeignRows(t *testing.T) {
	t.Parallel()

	_, err := history.ParseRow(1, "initial", "05/08/2026", "42")
	assert.ErrorIs(t, err, history.ErrIntegrity)

	_, err = history.ParseRow(1, "initial", "2026-08-05T14:30:09", "not-a-number")
	assert.ErrorIs(t, err, history.ErrIntegrity)

	_, err = history.ParseRow(1, "initial", "2026-08-05T14:30:09", "-1")
	assert.ErrorIs(t, err, history.ErrIntegrity)
}

func TestFromMigrationTruncatesToSecond(t *testing.T) {
	t.Parallel()

	m, err := migration.Unapplied("V1__initial.sql", "SELECT 1;")
	require.NoError(t, err)

	appliedOn := time.Date(2026, 8, 5, 14, 30, 9, 987654321, time.UTC)
	rec := history.FromMigration(m, appliedOn)

	assert.Equal(t, time.Date(2026, 8, 5, 14, 30, 9, 0, time.UTC), rec.AppliedOn)
	assert.Equal(t, m.Checksum, rec.Checksum)
}

func TestRecordAsMigration(t *testing.T) {
	t.Parallel()

	appliedOn := time.Date(2026, 8, 5, 14, 30, 9, 0, time.UTC)
	rec := history.Record{Version: 2, Name: "add_cars_table", AppliedOn: appliedOn, Checksum: 99}

	m := rec.AsMigration()

	assert.Equal(t, migration.Versioned, m.Kind)
	assert.Equal(t, int64(2), m.Version)
	require.NotNil(t, m.AppliedOn)
	assert.Equal(t, appliedOn, *m.AppliedOn)
	assert.Equal(t, "V2__add_cars_table", m.String())
}
