package migration_test

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-db/refinery/internal/migration"
)

func TestUnapplied(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		filename    string
		sql         string
		wantErr     error
		wantKind    migration.Kind
		wantVersion int64
		wantName    string
	}{
		{
			name:        "versioned with extension",
			filename:    "V1__initial.sql",
			sql:         "CREATE TABLE cars (id INTEGER PRIMARY KEY);",
			wantKind:    migration.Versioned,
			wantVersion: 1,
			wantName:    "initial",
		},
		{
			name:        "unversioned",
			filename:    "U10__merge_out_of_order.sql",
			sql:         "ALTER TABLE cars ADD year INTEGER;",
			wantKind:    migration.Unversioned,
			wantVersion: 10,
			wantName:    "merge_out_of_order",
		},
		{
			name:        "no extension accepted for embedded sources",
			filename:    "V3__add_brand_to_cars_table",
			sql:         "ALTER TABLE cars ADD brand TEXT;",
			wantKind:    migration.Versioned,
			wantVersion: 3,
			wantName:    "add_brand_to_cars_table",
		},
		{
			name:        "version zero accepted",
			filename:    "V0__bootstrap.sql",
			sql:         "CREATE TABLE t (x INT);",
			wantKind:    migration.Versioned,
			wantVersion: 0,
			wantName:    "bootstrap",
		},
		{
			name:     "missing separator",
			filename: "V1_initial.sql",
			wantErr:  migration.ErrInvalidName,
		},
		{
			name:     "missing prefix",
			filename: "1__initial.sql",
			wantErr:  migration.ErrInvalidName,
		},
		{
			name:     "name with dashes",
			filename: "V1__add-brand.sql",
			wantErr:  migration.ErrInvalidName,
		},
		{
			name:     "version overflows 32 bits",
			filename: "V20240504090343__add_year.sql",
			wantErr:  migration.ErrInvalidVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := migration.Unapplied(tt.filename, tt.sql)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, m.Kind)
			assert.Equal(t, tt.wantVersion, m.Version)
			assert.Equal(t, tt.wantName, m.Name)
			assert.Equal(t, tt.sql, m.SQL)
			assert.Nil(t, m.AppliedOn)
			assert.NotZero(t, m.Checksum)
		})
	}
}

func TestUnappliedWide(t *testing.T) {
	t.Parallel()

	m, err := migration.UnappliedWide("V20240504090343__add_year_to_motos_table.sql", "ALTER TABLE motos ADD year INTEGER;")
	require.NoError(t, err)
	assert.Equal(t, int64(20240504090343), m.Version)
}

func TestChecksumStability(t *testing.T) {
	t.Parallel()

	sql := "CREATE TABLE cars (id INTEGER PRIMARY KEY);\n"

	a, err := migration.Unapplied("V1__initial.sql", sql)
	require.NoError(t, err)

	b, err := migration.Unapplied("V1__initial.sql", sql)
	require.NoError(t, err)

	assert.Equal(t, a.Checksum, b.Checksum, "byte-identical inputs must hash identically")
}

func TestChecksumComponents(t *testing.T) {
	t.Parallel()

	base, err := migration.Unapplied("V1__initial.sql", "SELECT 1;")
	require.NoError(t, err)

	otherSQL, err := migration.Unapplied("V1__initial.sql", "SELECT 2;")
	require.NoError(t, err)

	otherName, err := migration.Unapplied("V1__first.sql", "SELECT 1;")
	require.NoError(t, err)

	otherVersion, err := migration.Unapplied("V2__initial.sql", "SELECT 1;")
	require.NoError(t, err)

	trailing, err := migration.Unapplied("V1__initial.sql", "SELECT 1;\n")
	require.NoError(t, err)

	assert.NotEqual(t, base.Checksum, otherSQL.Checksum)
	assert.NotEqual(t, base.Checksum, otherName.Checksum)
	assert.NotEqual(t, base.Checksum, otherVersion.Checksum)
	assert.NotEqual(t, base.Checksum, trailing.Checksum, "trailing whitespace is part of the hashed content")

	// The extension is not part of the identity.
	bare, err := migration.Unapplied("V1__initial", "SELECT 1;")
	require.NoError(t, err)
	assert.Equal(t, base.Checksum, bare.Checksum)
}

func TestNoTransactionMarker(t *testing.T) {
	t.Parallel()

	marked, err := migration.Unapplied("V1__add_index.sql",
		"-- refinery:no-transaction\nCREATE INDEX CONCURRENTLY idx_cars_brand ON cars (brand);")
	require.NoError(t, err)
	assert.True(t, marked.NoTransaction)

	plain, err := migration.Unapplied("V1__add_index.sql",
		"CREATE INDEX idx_cars_brand ON cars (brand);")
	require.NoError(t, err)
	assert.False(t, plain.NoTransaction)
}

func TestString(t *testing.T) {
	t.Parallel()

	m, err := migration.Unapplied("V2__add_cars_table.sql", "CREATE TABLE cars (id INT);")
	require.NoError(t, err)
	assert.Equal(t, "V2__add_cars_table", m.String())

	u, err := migration.Unapplied("U0__merge.sql", "SELECT 1;")
	require.NoError(t, err)
	assert.Equal(t, "U0__merge", u.String())
}

func TestApplied(t *testing.T) {
	t.Parallel()

	appliedOn := time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC)
	m := migration.Applied(3, "add_brand", appliedOn, 42)

	assert.Equal(t, migration.Versioned, m.Kind)
	require.NotNil(t, m.AppliedOn)
	assert.Equal(t, appliedOn, *m.AppliedOn)
	assert.Equal(t, "42", m.ChecksumString())
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a, err := migration.Unapplied("V1__initial.sql", "SELECT 1;")
	require.NoError(t, err)

	same := migration.Applied(1, "initial", time.Now(), a.Checksum)
	renamed := migration.Applied(1, "renamed", time.Now(), a.Checksum)
	drifted := migration.Applied(1, "initial", time.Now(), a.Checksum+1)

	assert.True(t, a.Equal(same))
	assert.False(t, a.Equal(renamed))
	assert.False(t, a.Equal(drifted))
}

func TestCompareOrdersVersionedBeforeUnversioned(t *testing.T) {
	t.Parallel()

	mustParse := func(name string) migration.Migration {
		m, err := migration.Unapplied(name, "SELECT 1;")
		require.NoError(t, err)

		return m
	}

	set := []migration.Migration{
		mustParse("U11__second_merge.sql"),
		mustParse("V2__add.sql"),
		mustParse("U10__merge.sql"),
		mustParse("V1__initial.sql"),
	}

	slices.SortFunc(set, migration.Compare)

	var order []string
	for _, m := range set {
		order = append(order, m.String())
	}

	assert.Equal(t, []string{"V1__initial", "V2__add", "U10__merge", "U11__second_merge"}, order)
}
