package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDatabaseEnv names the environment variable carrying the DSN of a
// disposable database for integration tests
const TestDatabaseEnv = "ELPIS_TEST_DATABASE_URL"

// SetupTestDB connects to the integration test database, skipping the test
// when no DSN is configured
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv(TestDatabaseEnv)
	if dsn == "" {
		t.Skipf("set %s to run database integration tests", TestDatabaseEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := NewDBFromDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to create test database connection: %v", err)
	}

	verifyCtx, verifyCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer verifyCancel()

	if err := db.Ping(verifyCtx); err != nil {
		t.Fatalf("failed to ping test database: %v", err)
	}

	return db
}

// TeardownTestDB closes the database connection cleanly
func TeardownTestDB(t *testing.T, db *DB) {
	t.Helper()
	db.Close()
}

// MigrationsDir locates the repository migrations directory by walking up
// from the working directory, which for test binaries is the package dir
func MigrationsDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("migrations directory not found above %s", dir)
		}
		dir = parent
	}
}

// MigrateTestDB applies all pending migrations to the test database
func MigrateTestDB(t *testing.T, db *DB) {
	t.Helper()

	dir, err := MigrationsDir()
	if err != nil {
		t.Fatalf("failed to locate migrations: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := db.ApplyMigrations(ctx, dir); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
}
