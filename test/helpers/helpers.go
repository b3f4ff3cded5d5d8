// Package helpers provides shared fixtures and seeding utilities for the
// integration and e2e suites.
package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Polymerase3/elpis-v2/internal/database"
	"github.com/Polymerase3/elpis-v2/internal/models"
	"github.com/Polymerase3/elpis-v2/internal/repository"
	"github.com/Polymerase3/elpis-v2/internal/service"
)

var uicCounter atomic.Int64

// NewEngine builds the repository and ingestion stack on a test database.
// The logger is quiet so batch rollbacks do not flood the test output.
func NewEngine(t *testing.T, db *database.DB) (*service.IngestionEngine, *repository.Repositories) {
	t.Helper()

	repos, err := repository.NewRepositories(db)
	require.NoError(t, err, "failed to create repositories")

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	resolver := service.NewRefResolver(repos.Instrument, repos.Strategy, time.Minute)
	return service.NewIngestionEngine(db, repos, resolver, log), repos
}

// UniqueUIC returns a venue code that does not collide across tests or runs.
// The shared test database is not truncated between suites.
func UniqueUIC() int64 {
	return time.Now().UnixNano()%1_000_000_000 + uicCounter.Add(1)*1_000_000_000
}

// SeedInstrument registers one FX spot instrument and returns the stored row
// with its generated id.
func SeedInstrument(t *testing.T, ctx context.Context, engine *service.IngestionEngine, repos *repository.Repositories, symbol string) *models.Instrument {
	t.Helper()

	uic := UniqueUIC()
	_, err := engine.IngestInstruments(ctx, []*models.Instrument{{
		UIC:       uic,
		AssetType: models.AssetFxSpot,
		Symbol:    symbol,
		Currency:  "USD",
	}})
	require.NoError(t, err, "failed to seed instrument %s", symbol)

	instrument, err := repos.Instrument.GetByKey(ctx, uic, models.AssetFxSpot)
	require.NoError(t, err, "seeded instrument %s not found", symbol)
	return instrument
}

// SeedStrategy registers one strategy and returns the stored row.
func SeedStrategy(t *testing.T, ctx context.Context, engine *service.IngestionEngine, repos *repository.Repositories, name string) *models.Strategy {
	t.Helper()

	_, err := engine.IngestStrategies(ctx, []*models.Strategy{{
		Name: name,
		Type: models.DirectionBoth,
	}})
	require.NoError(t, err, "failed to seed strategy %s", name)

	strategy, err := repos.Strategy.GetByName(ctx, name)
	require.NoError(t, err, "seeded strategy %s not found", name)
	return strategy
}

// SamplePriceBars builds n hourly close-only bars starting at start.
func SamplePriceBars(instrumentID int64, start time.Time, n int) []*models.PriceBar {
	bars := make([]*models.PriceBar, n)
	for i := 0; i < n; i++ {
		closeAsk := 1.09 + float64(i)*0.0001
		closeBid := closeAsk - 0.0002
		bars[i] = &models.PriceBar{
			InstrumentID:  instrumentID,
			IntervalID:    models.Interval1h,
			TimePrice:     start.Add(time.Duration(i) * time.Hour),
			PriceCloseAsk: &closeAsk,
			PriceCloseBid: &closeBid,
		}
	}
	return bars
}

// WriteSpoolFile drops one payload into <spoolDir>/<kind>/<name>.
func WriteSpoolFile(t *testing.T, spoolDir, kind, name string, payload []byte) string {
	t.Helper()

	dir := filepath.Join(spoolDir, kind)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, payload, 0o644))
	return path
}

// LoadFixture loads test data from a JSON fixture file.
func LoadFixture(t *testing.T, filename string, target interface{}) {
	t.Helper()

	fixturePath := filepath.Join("fixtures", filename)
	data, err := os.ReadFile(fixturePath)
	require.NoError(t, err, "failed to read fixture file: %s", filename)

	err = json.Unmarshal(data, target)
	require.NoError(t, err, "failed to unmarshal fixture: %s", filename)
}

// UniqueName appends a nanosecond suffix so reference rows from earlier runs
// never collide on unique constraints.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// WaitForCondition waits for a condition to become true or times out.
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	require.Fail(t, "condition not met within timeout", message)
}

// CreateTestContext creates a context with a timeout for testing.
func CreateTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	return ctx
}

// GetEnvOrDefault returns environment variable value or a default.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SkipIfShort skips test if running in short mode.
func SkipIfShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}
}
