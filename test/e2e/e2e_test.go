//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polymerase3/elpis-v2/internal/config"
	"github.com/Polymerase3/elpis-v2/internal/database"
	"github.com/Polymerase3/elpis-v2/internal/feed"
	"github.com/Polymerase3/elpis-v2/internal/health"
	"github.com/Polymerase3/elpis-v2/internal/models"
	"github.com/Polymerase3/elpis-v2/internal/scheduler"
	"github.com/Polymerase3/elpis-v2/test/helpers"
)

const (
	skipE2E        = "Skipping E2E test in short mode"
	healthTestPort = 18099
)

func newDecimal(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func marshalBatch(t *testing.T, batch interface{}) []byte {
	t.Helper()

	payload, err := json.Marshal(batch)
	require.NoError(t, err)
	return payload
}

// validAnalysis builds one complete backtest run for the given instrument and
// strategy, with two parameters and a three-point equity curve.
func validAnalysis(instrumentID, strategyID int64) *models.AnalysisWithChildren {
	trades := 12
	return &models.AnalysisWithChildren{
		Analysis: models.Analysis{
			InstrumentID:  instrumentID,
			StrategyID:    strategyID,
			IntervalID:    models.Interval1d,
			DateFrom:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			DateTo:        time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
			PositionSize:  newDecimal("1000"),
			Leverage:      newDecimal("2"),
			Commission:    newDecimal("0.0008"),
			StopLoss:      newDecimal("0.05"),
			TotalReturn:   newDecimal("0.134"),
			MaxDrawdown:   newDecimal("0.062"),
			SharpeRatio:   newDecimal("1.21"),
			WinRate:       newDecimal("0.57"),
			NumberTrades:  &trades,
			AverageProfit: newDecimal("3.19"),
			ProfitFactor:  newDecimal("1.65"),
		},
		Parameters: []models.Parameter{
			{Name: "window", Value: decimal.RequireFromString("20")},
			{Name: "threshold", Value: decimal.RequireFromString("1.5")},
		},
		Results: []models.Result{
			{Timepoint: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), PortfolioValue: decimal.RequireFromString("1010.50")},
			{Timepoint: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), PortfolioValue: decimal.RequireFromString("1042.80")},
			{Timepoint: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), PortfolioValue: decimal.RequireFromString("1098.10")},
		},
	}
}

// startMockVenue serves the streaming endpoint: it reads the subscription
// request, answers with one chart update carrying the requested reference id
// and holds the connection open until the client disconnects.
func startMockVenue(t *testing.T, start time.Time, bars int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub struct {
			ReferenceID string `json:"ReferenceId"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}

		rows := make([]map[string]interface{}, bars)
		for i := range rows {
			closeAsk := 1.2 + float64(i)*0.001
			rows[i] = map[string]interface{}{
				"Time":     start.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
				"CloseAsk": closeAsk,
				"CloseBid": closeAsk - 0.0002,
				"Volume":   float64(1000 + i),
			}
		}
		_ = conn.WriteJSON(map[string]interface{}{
			"ReferenceId": sub.ReferenceID,
			"Data":        rows,
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

// TestCompleteWorkflow validates the full pipeline against one real
// TimescaleDB instance: reference and market batches through the spool,
// live bars from a mock venue through the collector, and the readiness
// endpoint on top of both.
func TestCompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip(skipE2E)
	}

	ctx := context.Background()

	// Setup database
	db := database.SetupTestDB(t)
	defer database.TeardownTestDB(t, db)
	database.MigrateTestDB(t, db)

	engine, repos := helpers.NewEngine(t, db)

	quiet := logrus.New()
	quiet.SetLevel(logrus.ErrorLevel)

	spoolRoot := t.TempDir()
	ingestCfg := &config.IngestConfig{
		SpoolDir:           filepath.Join(spoolRoot, "spool"),
		ProcessedDir:       filepath.Join(spoolRoot, "processed"),
		FailedDir:          filepath.Join(spoolRoot, "failed"),
		Schedule:           "@every 1h",
		ResolverTTLSeconds: 600,
	}
	spool := scheduler.NewScheduler(engine, ingestCfg, quiet)

	// Reference data lands first, keyed by uic and name
	uic := helpers.UniqueUIC()
	symbol := helpers.UniqueName("E2EUSD")
	strategyName := helpers.UniqueName("e2e-momentum")

	instrumentsPayload := marshalBatch(t, []*models.Instrument{
		{
			UIC:         uic,
			AssetType:   models.AssetFxSpot,
			Symbol:      symbol,
			Currency:    "USD",
			Exchange:    "SBFX",
			Description: "workflow test pair",
		},
		{
			UIC:       helpers.UniqueUIC(),
			AssetType: models.AssetStock,
			Symbol:    helpers.UniqueName("E2EEQ"),
			Currency:  "USD",
		},
	})
	helpers.WriteSpoolFile(t, ingestCfg.SpoolDir, scheduler.KindInstruments, "instruments.json", instrumentsPayload)

	strategiesPayload := marshalBatch(t, []*models.Strategy{{
		Name:        strategyName,
		Description: "workflow validation strategy",
		Type:        models.DirectionBoth,
	}})
	helpers.WriteSpoolFile(t, ingestCfg.SpoolDir, scheduler.KindStrategies, "strategies.json", strategiesPayload)

	require.NoError(t, spool.ScanOnce(ctx))

	stats := spool.Stats()
	assert.Equal(t, int64(2), stats.FilesProcessed)
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Zero(t, stats.FilesQuarantined)

	instrument, err := repos.Instrument.GetByKey(ctx, uic, models.AssetFxSpot)
	require.NoError(t, err)
	strategyRow, err := repos.Strategy.GetByName(ctx, strategyName)
	require.NoError(t, err)

	// Market data follows, carrying the generated ids
	barStart := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	pricesPayload := marshalBatch(t, helpers.SamplePriceBars(instrument.ID, barStart, 6))
	helpers.WriteSpoolFile(t, ingestCfg.SpoolDir, scheduler.KindPrices, "bars.json", pricesPayload)

	analysesPayload := marshalBatch(t, []*models.AnalysisWithChildren{
		validAnalysis(instrument.ID, strategyRow.ID),
	})
	helpers.WriteSpoolFile(t, ingestCfg.SpoolDir, scheduler.KindAnalyses, "analyses.json", analysesPayload)

	require.NoError(t, spool.ScanOnce(ctx))

	stats = spool.Stats()
	assert.Equal(t, int64(4), stats.FilesProcessed)
	assert.Equal(t, int64(10), stats.RecordsWritten, "bars and the analysis row count, children do not")

	count, err := repos.Price.CountRange(ctx, instrument.ID, models.Interval1h, barStart, barStart.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)

	var analysisID int64
	err = db.GetPool().QueryRow(ctx,
		`SELECT id FROM market.analysis WHERE instrument_id = $1 AND strategy_id = $2`,
		instrument.ID, strategyRow.ID).Scan(&analysisID)
	require.NoError(t, err)

	params, err := repos.Analysis.GetParameters(ctx, analysisID)
	require.NoError(t, err)
	assert.Len(t, params, 2)

	results, err := repos.Analysis.GetResults(ctx, analysisID)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	// Every file moved out of the spool into processed/
	remaining, err := filepath.Glob(filepath.Join(ingestCfg.SpoolDir, "*", "*.json"))
	require.NoError(t, err)
	assert.Empty(t, remaining, "spool should be drained")

	processed, err := filepath.Glob(filepath.Join(ingestCfg.ProcessedDir, "*", "*.json"))
	require.NoError(t, err)
	assert.Len(t, processed, 4)

	// One scan with mixed outcomes: a duplicate strategy name is skipped but
	// the file still counts as processed, a corrupt file is quarantined
	helpers.WriteSpoolFile(t, ingestCfg.SpoolDir, scheduler.KindStrategies, "dup.json", strategiesPayload)
	helpers.WriteSpoolFile(t, ingestCfg.SpoolDir, scheduler.KindPrices, "corrupt.json", []byte(`{"instrument_id": [not json`))

	require.NoError(t, spool.ScanOnce(ctx))

	stats = spool.Stats()
	assert.Equal(t, int64(5), stats.FilesProcessed)
	assert.Equal(t, int64(1), stats.FilesQuarantined)
	assert.Equal(t, int64(10), stats.RecordsWritten, "skipped duplicate writes nothing")

	failed, err := filepath.Glob(filepath.Join(ingestCfg.FailedDir, scheduler.KindPrices, "*.json"))
	require.NoError(t, err)
	assert.Len(t, failed, 1)

	strategyRow, err = repos.Strategy.GetByName(ctx, strategyName)
	require.NoError(t, err)
	assert.Equal(t, "workflow validation strategy", strategyRow.Description, "first write wins on name conflict")

	// Quarantined files stay out of the spool and are never retried
	require.NoError(t, spool.ScanOnce(ctx))
	assert.Equal(t, int64(1), spool.Stats().FilesQuarantined)

	// Live bars stream from the mock venue through the collector
	streamStart := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	venue := startMockVenue(t, streamStart, 3)
	defer venue.Close()

	saxoCfg := &config.SaxoConfig{
		APIURL:     "http://localhost:1",
		StreamURL:  "ws" + strings.TrimPrefix(venue.URL, "http"),
		Token:      "e2e-token",
		AccountKey: "e2e-acc",
	}
	feedCfg := &config.FeedConfig{
		BufferSize:           2,
		FlushIntervalSeconds: 1,
		ReconnectMinSeconds:  1,
		ReconnectMaxSeconds:  2,
	}

	stream := feed.NewStreamClient(saxoCfg, feedCfg, quiet)
	collector := feed.NewCollector(stream, engine, feedCfg, quiet)

	require.NoError(t, collector.Start([]feed.Subscription{{
		ReferenceID:  fmt.Sprintf("bars-%s-1h", strings.ToLower(instrument.Symbol)),
		InstrumentID: instrument.ID,
		UIC:          instrument.UIC,
		AssetType:    instrument.AssetType,
		Interval:     models.Interval1h,
	}}))
	defer collector.Stop()

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	require.NoError(t, stream.Connect(streamCtx))

	helpers.WaitForCondition(t, 10*time.Second, func() bool {
		n, err := repos.Price.CountRange(ctx, instrument.ID, models.Interval1h, streamStart, streamStart.Add(3*time.Hour))
		return err == nil && n == 3
	}, "streamed bars should reach the database")

	collectorStats := collector.Stats()
	assert.Equal(t, int64(1), collectorStats.MessagesProcessed)
	assert.Equal(t, int64(3), collectorStats.BarsStored)
	assert.Zero(t, collectorStats.BarsDropped)

	// Readiness reflects the live database and the connected feed
	healthServer := health.NewServer(health.Config{
		ServiceName: "elpis-feed-e2e",
		Version:     "e2e",
		Port:        healthTestPort,
		Logger:      quiet,
		DB:          db,
		Feed:        stream,
	})
	require.NoError(t, healthServer.Start(streamCtx))
	defer healthServer.Shutdown()
	healthServer.SetReady(true)

	readyURL := fmt.Sprintf("http://127.0.0.1:%d/ready", healthTestPort)
	helpers.WaitForCondition(t, 5*time.Second, func() bool {
		resp, err := http.Get(readyURL)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, "readiness endpoint should come up")

	resp, err := http.Get(readyURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	var ready health.ReadyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "ok", ready.Checks["database"])
	assert.Equal(t, "connected", ready.Checks["feed"])
}
