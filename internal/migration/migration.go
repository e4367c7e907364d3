package migration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/refinery-db/refinery/internal/siphash"
)

// Kind distinguishes how a migration participates in ordering checks.
type Kind int

const (
	// Versioned migrations (prefix V) must be applied in monotonically
	// increasing order; gaps below the applied high-water mark are reported.
	Versioned Kind = iota
	// Unversioned migrations (prefix U) may be authored out of order and are
	// applied after all versioned ones.
	Unversioned
)

func (k Kind) String() string {
	if k == Unversioned {
		return "U"
	}

	return "V"
}

// NoTransactionMarker, placed on the first line of a migration file, requests
// execution outside the unit transaction. Needed for statements like
// CREATE INDEX CONCURRENTLY that refuse to run in a transaction block.
const NoTransactionMarker = "-- refinery:no-transaction"

// namePattern matches migration file names:
//
//	V{version}__{name}.sql   (versioned)
//	U{version}__{name}.sql   (unversioned)
//
// The extension is optional so embedded sources can register migrations under
// bare names.
var namePattern = regexp.MustCompile( //nolint:gochecknoglobals // compiled once
	`^([VU])(\d+)__([A-Za-z0-9_]+)(?:\.([A-Za-z0-9]+))?$`,
)

// Migration is a single unit of schema change, either authored (SQL present,
// AppliedOn nil) or reconstructed from the schema history table (AppliedOn
// set, SQL empty).
type Migration struct {
	Version       int64
	Name          string
	Kind          Kind
	SQL           string
	Checksum      uint64
	AppliedOn     *time.Time
	NoTransaction bool
}

// Unapplied parses filename into kind, version and name, and builds an
// authored migration over sql. Versions are bounded to 32 bits; use
// UnappliedWide for 64-bit versions.
func Unapplied(filename, sql string) (Migration, error) {
	return unapplied(filename, sql, math.MaxInt32)
}

// UnappliedWide is Unapplied with the version width extended to 64-bit signed.
func UnappliedWide(filename, sql string) (Migration, error) {
	return unapplied(filename, sql, math.MaxInt64)
}

func unapplied(filename, sql string, maxVersion int64) (Migration, error) {
	matches := namePattern.FindStringSubmatch(filename)
	if matches == nil {
		return Migration{}, fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}

	kind := Versioned
	if matches[1] == "U" {
		kind = Unversioned
	}

	version, err := strconv.ParseInt(matches[2], 10, 64)
	if err != nil || version > maxVersion {
		return Migration{}, fmt.Errorf("%w: %q", ErrInvalidVersion, matches[2])
	}

	name := matches[3]

	return Migration{
		Version:       version,
		Name:          name,
		Kind:          kind,
		SQL:           sql,
		Checksum:      checksum(version, name, sql),
		NoTransaction: hasNoTransactionMarker(sql),
	}, nil
}

// Applied reconstructs a migration from a schema history row. History rows do
// not record the kind, so applied migrations are always versioned.
func Applied(version int64, name string, appliedOn time.Time, sum uint64) Migration {
	return Migration{
		Version:   version,
		Name:      name,
		Kind:      Versioned,
		Checksum:  sum,
		AppliedOn: &appliedOn,
	}
}

// checksum is SipHash-1-3 with a zero key over the decimal version, name and
// raw SQL bytes, concatenated without separators. The value identifies the
// migration for drift detection and must stay byte-stable across builds.
func checksum(version int64, name, sql string) uint64 {
	var b strings.Builder

	b.Grow(len(name) + len(sql) + 20)
	b.WriteString(strconv.FormatInt(version, 10))
	b.WriteString(name)
	b.WriteString(sql)

	return siphash.Sum13(0, 0, []byte(b.String()))
}

func hasNoTransactionMarker(sql string) bool {
	first, _, _ := strings.Cut(strings.TrimLeft(sql, " \t\r\n"), "\n")

	return strings.TrimSpace(first) == NoTransactionMarker
}

// ChecksumString renders the checksum the way the history table stores it,
// as decimal digits of the unsigned 64-bit value.
func (m Migration) ChecksumString() string {
	return strconv.FormatUint(m.Checksum, 10)
}

// Equal reports whether two migrations agree on version, name and checksum.
// It is the identity used for divergence detection.
func (m Migration) Equal(other Migration) bool {
	return m.Version == other.Version && m.Name == other.Name && m.Checksum == other.Checksum
}

func (m Migration) String() string {
	return fmt.Sprintf("%s%d__%s", m.Kind, m.Version, m.Name)
}

// Compare orders migrations by (kind rank, version): all versioned
// migrations precede all unversioned ones.
func Compare(a, b Migration) int {
	if a.Kind != b.Kind {
		if a.Kind == Versioned {
			return -1
		}

		return 1
	}

	switch {
	case a.Version < b.Version:
		return -1
	case a.Version > b.Version:
		return 1
	default:
		return 0
	}
}
