package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// migration is one pending *.up.sql script
type migration struct {
	version int64
	path    string
}

// ApplyMigrations executes every pending *.up.sql script from dir in version
// order and records the latest applied version in schema_migrations, using
// the same single-row table layout as the migrate CLI. Returns the number of
// scripts applied.
//
// Statements are split on semicolons and executed one at a time outside any
// enclosing transaction: the timescaledb extension refuses to install inside
// a transaction block. Scripts must not contain semicolons inside literals.
func (db *DB) ApplyMigrations(ctx context.Context, dir string) (int, error) {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT  NOT NULL PRIMARY KEY,
			dirty   BOOLEAN NOT NULL DEFAULT false
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int64
	err = db.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("failed to read current migration version: %w", err)
	}

	pending, err := pendingMigrations(dir, current)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range pending {
		script, err := os.ReadFile(m.path)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", m.path, err)
		}

		for _, stmt := range sqlStatements(string(script)) {
			if _, err := db.pool.Exec(ctx, stmt); err != nil {
				return applied, fmt.Errorf("migration %s failed: %w", filepath.Base(m.path), err)
			}
		}

		if _, err := db.pool.Exec(ctx, "DELETE FROM schema_migrations"); err != nil {
			return applied, fmt.Errorf("failed to clear migration version: %w", err)
		}
		if _, err := db.pool.Exec(ctx, "INSERT INTO schema_migrations (version, dirty) VALUES ($1, false)", m.version); err != nil {
			return applied, fmt.Errorf("failed to record migration version: %w", err)
		}
		applied++
	}

	return applied, nil
}

// pendingMigrations lists the up scripts in dir with versions above current
func pendingMigrations(dir string, current int64) ([]migration, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations in %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no migrations found in %s", dir)
	}

	var pending []migration
	for _, path := range paths {
		version, err := migrationVersion(path)
		if err != nil {
			return nil, err
		}
		if version > current {
			pending = append(pending, migration{version: version, path: path})
		}
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })
	return pending, nil
}

// migrationVersion parses the numeric prefix of a migration filename
func migrationVersion(path string) (int64, error) {
	base := filepath.Base(path)
	idx := strings.IndexByte(base, '_')
	if idx <= 0 {
		return 0, fmt.Errorf("migration %s has no version prefix", base)
	}

	version, err := strconv.ParseInt(base[:idx], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("migration %s has a non-numeric version prefix: %w", base, err)
	}
	return version, nil
}

// sqlStatements splits a migration script into its individual statements,
// dropping chunks that hold nothing but comments and whitespace
func sqlStatements(script string) []string {
	var stmts []string
	for _, chunk := range strings.Split(script, ";") {
		if !hasStatement(chunk) {
			continue
		}
		stmts = append(stmts, strings.TrimSpace(chunk))
	}
	return stmts
}

// hasStatement reports whether a chunk contains anything beyond line comments
func hasStatement(chunk string) bool {
	for _, line := range strings.Split(chunk, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		return true
	}
	return false
}
