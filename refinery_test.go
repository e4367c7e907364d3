package refinery_test

import (
	"context"
	"embed"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-db/refinery"
)

//go:embed testdata/migrations
var migrationFS embed.FS

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	migrations, err := refinery.Load(migrationFS)
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, "V1__initial", migrations[0].String())
	assert.Equal(t, "V2__add_brand_to_cars_table", migrations[1].String())
	assert.Equal(t, "U20__seed_cars", migrations[2].String())

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")

	conn, cleanup, err := refinery.ConnectSQLite(ctx, path)
	require.NoError(t, err)

	report, err := refinery.NewRunner(migrations).RunContext(ctx, conn)
	require.NoError(t, err)
	assert.Len(t, report.Applied(), 3)

	cleanup()

	// A second run over the same database plans nothing.
	conn, cleanup, err = refinery.ConnectSQLite(ctx, path)
	require.NoError(t, err)

	defer cleanup()

	rerun, err := refinery.NewRunner(migrations).RunContext(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, rerun.Applied())
}

// Directory-loaded and embedded migrations must agree on identity, so a
// binary built from the same sources can take over a database migrated from
// the filesystem.
func TestDirectoryAndEmbeddedProducersAgree(t *testing.T) {
	t.Parallel()

	embedded, err := refinery.Load(migrationFS)
	require.NoError(t, err)

	dir := t.TempDir()

	names := []string{
		"V1__initial.sql",
		"V2__add_brand_to_cars_table.sql",
		"U20__seed_cars.sql",
	}

	for _, name := range names {
		data, err := migrationFS.ReadFile("testdata/migrations/" + name)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}

	loaded, err := refinery.LoadFromDir(dir)
	require.NoError(t, err)
	require.Len(t, loaded, len(embedded))

	for i := range embedded {
		assert.Equal(t, embedded[i].Version, loaded[i].Version)
		assert.Equal(t, embedded[i].Name, loaded[i].Name)
		assert.Equal(t, embedded[i].Checksum, loaded[i].Checksum)
	}
}

func TestTargetConstructors(t *testing.T) {
	t.Parallel()

	assert.False(t, refinery.Latest().IsFake())
	assert.True(t, refinery.Fake().IsFake())

	limit, bounded := refinery.Version(3).Limit()
	assert.True(t, bounded)
	assert.Equal(t, int64(3), limit)

	limit, bounded = refinery.FakeVersion(2).Limit()
	assert.True(t, bounded)
	assert.Equal(t, int64(2), limit)
	assert.True(t, refinery.FakeVersion(2).IsFake())
}

func TestUnapplied(t *testing.T) {
	t.Parallel()

	m, err := refinery.Unapplied("V7__create_users.sql", "CREATE TABLE users (id INT);")
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.Version)
	assert.Equal(t, refinery.Versioned, m.Kind)
}
