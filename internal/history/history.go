// Package history reads and writes the schema history table, one row per
// applied migration. It only builds SQL fragments and converts row values;
// transactions around them are owned by the executor, so every fragment is
// safe to run inside a transaction that also executes user migrations.
package history

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/refinery-db/refinery/internal/migration"
)

// DefaultTableName is the history table used when none is configured.
const DefaultTableName = "refinery_schema_history"

// TimeLayout is how applied_on timestamps are stored: ISO-8601 seconds
// precision, UTC, no timezone suffix.
const TimeLayout = "2006-01-02T15:04:05"

// Record is one row of the history table.
type Record struct {
	Version   int64
	Name      string
	AppliedOn time.Time
	Checksum  uint64
}

// FromMigration builds the record for a migration applied at the given time.
func FromMigration(m migration.Migration, appliedOn time.Time) Record {
	return Record{
		Version:   m.Version,
		Name:      m.Name,
		AppliedOn: appliedOn.UTC().Truncate(time.Second),
		Checksum:  m.Checksum,
	}
}

// AsMigration converts a history row back into an applied migration value.
func (r Record) AsMigration() migration.Migration {
	return migration.Applied(r.Version, r.Name, r.AppliedOn, r.Checksum)
}

func (r Record) String() string {
	return fmt.Sprintf("V%d__%s", r.Version, r.Name)
}

// EnsureTableSQL returns idempotent DDL creating the history table. The
// version column widens to 64-bit when wideVersions is set.
func EnsureTableSQL(table string, wideVersions bool) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    version %s PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_on VARCHAR(255) NOT NULL,
    checksum VARCHAR(255) NOT NULL
)`, table, VersionColumnType(wideVersions))
}

// VersionColumnType is the SQL type of the version column.
func VersionColumnType(wideVersions bool) string {
	if wideVersions {
		return "BIGINT"
	}

	return "INTEGER"
}

// SelectSQL returns the query for all history rows ordered by version.
func SelectSQL(table string) string {
	return fmt.Sprintf(
		"SELECT version, name, applied_on, checksum FROM %s ORDER BY version ASC", table)
}

// InsertSQL returns a literal INSERT for the record. Values are inlined
// rather than bound so the statement can travel through the same batch
// execution path as migration SQL. Names come from the migration filename
// grammar and contain no quoting hazards; the remaining values are generated.
func InsertSQL(table string, r Record) string {
	return fmt.Sprintf(
		"INSERT INTO %s (version, name, applied_on, checksum) VALUES (%d, '%s', '%s', '%s')",
		table,
		r.Version,
		strings.ReplaceAll(r.Name, "'", "''"),
		r.AppliedOn.UTC().Format(TimeLayout),
		strconv.FormatUint(r.Checksum, 10),
	)
}

// ParseRow converts raw column values read from the history table into a
// Record. Unparseable values mean the table does not hold what this tool
// wrote and cannot be reconciled.
func ParseRow(version int64, name, appliedOn, checksum string) (Record, error) {
	ts, err := time.Parse(TimeLayout, appliedOn)
	if err != nil {
		return Record{}, fmt.Errorf("%w: applied_on %q for version %d: %v",
			ErrIntegrity, appliedOn, version, err)
	}

	sum, err := strconv.ParseUint(checksum, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: checksum %q for version %d: %v",
			ErrIntegrity, checksum, version, err)
	}

	return Record{Version: version, Name: name, AppliedOn: ts.UTC(), Checksum: sum}, nil
}
