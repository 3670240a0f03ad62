package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool connects to MAILTRIAGE_TEST_DATABASE_URL inside a throwaway schema
// and skips the test when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("MAILTRIAGE_TEST_DATABASE_URL")
	if dbURL == "" || testing.Short() {
		t.Skip("MAILTRIAGE_TEST_DATABASE_URL not set; skipping integration test")
	}

	ctx := context.Background()
	schema := "mt_test_" + uuid.NewString()[:8]

	admin, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(dbURL)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		admin.Close()
	})
	return pool
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with .sql suffix", input: "001_test.sql", expected: "001_test"},
		{name: "with .SQL suffix", input: "002_test.SQL", expected: "002_test"},
		{name: "without suffix", input: "003_test", expected: "003_test"},
		{name: "empty string", input: "", expected: ""},
		{name: "just .sql", input: ".sql", expected: ".sql"},
		{name: "mixed case .Sql", input: "004_test.Sql", expected: "004_test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeVersion(tt.input))
		})
	}
}

func TestFindMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"003_create_posts.sql":     {Data: []byte("-- test")},
		"001_create_users.sql":     {Data: []byte("-- test")},
		"002_add_email_column.SQL": {Data: []byte("-- test")},
		"README.md":                {Data: []byte("ignored")},
		"old/004_nested.sql":       {Data: []byte("-- nested dirs are ignored")},
	}

	migrations, err := FindMigrations(fsys)
	require.NoError(t, err)

	versions := make([]string, len(migrations))
	for i, m := range migrations {
		versions[i] = m.Version
	}
	assert.Equal(t, []string{"001_create_users", "002_add_email_column", "003_create_posts"}, versions)
	assert.Equal(t, "002_add_email_column.SQL", migrations[1].Name)
}

func TestFindMigrations_Empty(t *testing.T) {
	migrations, err := FindMigrations(fstest.MapFS{})
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestUpToTarget(t *testing.T) {
	migrations := []Migration{{Version: "001_a"}, {Version: "002_b"}, {Version: "003_c"}}

	got, err := upToTarget(migrations, "002_b")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = upToTarget(migrations, "003_c.sql")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = upToTarget(migrations, "")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = upToTarget(migrations, "999_missing")
	assert.ErrorContains(t, err, "target version 999_missing not found")
}

func TestBuildStatus(t *testing.T) {
	at := time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC)
	migrations := []Migration{
		{Version: "001_analyses", Name: "001_analyses.sql"},
		{Version: "002_indexes", Name: "002_indexes.sql"},
	}
	applied := map[string]time.Time{
		"001_analyses": at,
		"000_legacy":   at,
	}

	status := buildStatus(migrations, applied)

	require.Len(t, status.Applied, 1)
	assert.Equal(t, "001_analyses", status.Applied[0].Version)
	assert.Equal(t, at, *status.Applied[0].AppliedAt)

	require.Len(t, status.Pending, 1)
	assert.Equal(t, "002_indexes", status.Pending[0].Version)
	assert.Nil(t, status.Pending[0].AppliedAt)

	require.Len(t, status.Drift, 1)
	assert.Equal(t, "000_legacy.sql", status.Drift[0].Name)
}

func TestNilPool(t *testing.T) {
	ctx := context.Background()
	fsys := fstest.MapFS{}

	_, err := RunMigrations(ctx, nil, fsys)
	assert.EqualError(t, err, "pool is nil")

	_, err = RunMigrationsToTarget(ctx, nil, fsys, "001")
	assert.EqualError(t, err, "pool is nil")

	_, err = GetMigrationStatus(ctx, nil, fsys)
	assert.EqualError(t, err, "pool is nil")

	_, err = PendingMigrations(ctx, nil, fsys)
	assert.EqualError(t, err, "pool is nil")
}

func TestRunMigrations_Live(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"001_create_table.sql":   {Data: []byte("CREATE TABLE t001 (id INT);")},
		"002_add_column.sql":     {Data: []byte("ALTER TABLE t001 ADD COLUMN name TEXT;")},
		"003_create_another.sql": {Data: []byte("CREATE TABLE t003 (id INT);")},
	}

	result, err := RunMigrationsToTarget(ctx, pool, fsys, "002_add_column")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_table", "002_add_column"}, result.Applied)

	pending, err := PendingMigrations(ctx, pool, fsys)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "003_create_another", pending[0].Version)

	result, err = RunMigrations(ctx, pool, fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"003_create_another"}, result.Applied)
	assert.Equal(t, []string{"001_create_table", "002_add_column"}, result.Skipped)

	status, err := GetMigrationStatus(ctx, pool, fsys)
	require.NoError(t, err)
	assert.Len(t, status.Applied, 3)
	assert.Empty(t, status.Pending)
	assert.Empty(t, status.Drift)
}

func TestRunMigrations_FailureStops(t *testing.T) {
	pool := testPool(t)

	fsys := fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE ok (id INT);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE broken (;")},
		"003_never.sql":  {Data: []byte("CREATE TABLE never (id INT);")},
	}

	result, err := RunMigrations(context.Background(), pool, fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 002_broken failed")
	assert.Equal(t, []string{"001_ok"}, result.Applied)
}
