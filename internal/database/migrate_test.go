package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected int64
		wantErr  bool
	}{
		{"padded prefix", "migrations/000003_price.up.sql", 3, false},
		{"unpadded prefix", "42_analysis.up.sql", 42, false},
		{"no separator", "schema.up.sql", 0, true},
		{"non numeric prefix", "abc_schema.up.sql", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := migrationVersion(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, version)
		})
	}
}

func TestSQLStatements(t *testing.T) {
	script := `-- reference tables

CREATE TABLE market.strategy (
    id   BIGINT PRIMARY KEY,
    name TEXT NOT NULL
);

-- seed rows
INSERT INTO market.interval_code (id, seconds) VALUES (1, 60);

-- trailing comment only
`

	stmts := sqlStatements(script)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE market.strategy")
	assert.Contains(t, stmts[1], "INSERT INTO market.interval_code")
}

func TestSQLStatementsEmptyScript(t *testing.T) {
	assert.Empty(t, sqlStatements("-- nothing here\n"))
	assert.Empty(t, sqlStatements(""))
}

func TestPendingMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_schema.up.sql",
		"000002_reference.up.sql",
		"000003_price.up.sql",
		"000002_reference.down.sql",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
	}

	pending, err := pendingMigrations(dir, 1)
	require.NoError(t, err)
	require.Len(t, pending, 2, "down scripts and applied versions are excluded")
	assert.Equal(t, int64(2), pending[0].version)
	assert.Equal(t, int64(3), pending[1].version)
}

func TestPendingMigrationsEmptyDir(t *testing.T) {
	_, err := pendingMigrations(t.TempDir(), 0)
	assert.Error(t, err)
}

func TestMigrationsDirIsFound(t *testing.T) {
	dir, err := MigrationsDir()
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, "migrations", filepath.Base(dir))
}
