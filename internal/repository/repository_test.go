package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Polymerase3/elpis-v2/internal/database"
	"github.com/Polymerase3/elpis-v2/internal/models"
)

func TestTagRecordStampsPosition(t *testing.T) {
	refErr := models.NewReferenceError(-1, "instrument_id", "42")
	tagged := tagRecord(error(refErr), 7)

	var got *models.ReferenceError
	if !errors.As(tagged, &got) {
		t.Fatalf("expected ReferenceError, got %T", tagged)
	}
	if got.Record != 7 {
		t.Errorf("Record = %d, want 7", got.Record)
	}
}

func TestTagRecordLeavesPlainErrors(t *testing.T) {
	plain := errors.New("broken pipe")
	if tagRecord(plain, 3) != plain {
		t.Error("plain errors should pass through untouched")
	}
	if tagRecord(nil, 3) != nil {
		t.Error("nil should stay nil")
	}
}

func TestNewRepositoriesRequiresDB(t *testing.T) {
	if _, err := NewRepositories(nil); err == nil {
		t.Error("expected error for nil database")
	}
}

// The tests below need a migrated TimescaleDB and skip themselves otherwise.

func TestInstrumentUpsertFirstWriteWins(t *testing.T) {
	db := database.SetupTestDB(t)
	defer database.TeardownTestDB(t, db)

	repos, err := NewRepositories(db)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	uic := time.Now().UnixNano() % 1_000_000_000
	first := &models.Instrument{
		Description: "Euro vs US Dollar",
		UIC:         uic,
		AssetType:   models.AssetFxSpot,
		Symbol:      "EURUSD",
		Currency:    "USD",
		Exchange:    "SBFX",
	}

	err = db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		inserted, err := repos.Instrument.UpsertBatch(ctx, tx, []*models.Instrument{first})
		if err != nil {
			return err
		}
		if inserted != 1 {
			t.Errorf("inserted = %d, want 1", inserted)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	// Same key, different payload: must be silently dropped.
	dupe := &models.Instrument{
		Description: "should never be stored",
		UIC:         uic,
		AssetType:   models.AssetFxSpot,
		Symbol:      "CHANGED",
		Currency:    "EUR",
		Exchange:    "OTHER",
	}

	err = db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		inserted, err := repos.Instrument.UpsertBatch(ctx, tx, []*models.Instrument{dupe})
		if err != nil {
			return err
		}
		if inserted != 0 {
			t.Errorf("duplicate insert count = %d, want 0", inserted)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("duplicate insert failed: %v", err)
	}

	stored, err := repos.Instrument.GetByKey(ctx, uic, models.AssetFxSpot)
	if err != nil {
		t.Fatalf("failed to get instrument: %v", err)
	}
	if stored.Symbol != "EURUSD" {
		t.Errorf("symbol = %q, want first write EURUSD", stored.Symbol)
	}

	if _, err := repos.Instrument.DeleteByKeys(ctx, []models.InstrumentKey{{UIC: uic, AssetType: models.AssetFxSpot}}); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
}

func TestPriceUpsertOverwritesOHLCVOnly(t *testing.T) {
	db := database.SetupTestDB(t)
	defer database.TeardownTestDB(t, db)

	repos, err := NewRepositories(db)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	uic := time.Now().UnixNano() % 1_000_000_000
	instr := &models.Instrument{UIC: uic, AssetType: models.AssetStock, Symbol: "TEST", Currency: "USD"}
	err = db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := repos.Instrument.UpsertBatch(ctx, tx, []*models.Instrument{instr})
		return err
	})
	if err != nil {
		t.Fatalf("failed to insert instrument: %v", err)
	}
	stored, err := repos.Instrument.GetByKey(ctx, uic, models.AssetStock)
	if err != nil {
		t.Fatalf("failed to resolve instrument: %v", err)
	}
	defer func() {
		_, _ = repos.Instrument.DeleteByKeys(ctx, []models.InstrumentKey{instr.Key()})
	}()

	f := func(v float64) *float64 { return &v }
	ts := time.Date(2025, 4, 13, 12, 0, 0, 0, time.UTC)

	bar := &models.PriceBar{
		InstrumentID: stored.ID,
		IntervalID:   models.Interval1h,
		TimePrice:    ts,
		PriceOpen:    f(123.45),
		PriceHigh:    f(125.00),
		PriceLow:     f(122.10),
		PriceClose:   f(124.80),
		PriceOpenAsk: f(123.50),
		PriceOpenBid: f(123.40),
		Volume:       f(25000),
	}

	err = db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := repos.Price.UpsertBatch(ctx, tx, []*models.PriceBar{bar})
		return err
	})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	// Re-ingest the same key with new close and new quotes. Only the trade
	// columns and volume may change.
	second := *bar
	second.PriceClose = f(999.99)
	second.PriceOpenAsk = f(200.00)
	second.PriceOpenBid = f(199.00)
	second.Volume = f(31000)

	err = db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := repos.Price.UpsertBatch(ctx, tx, []*models.PriceBar{&second})
		return err
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	bars, err := repos.Price.GetRange(ctx, stored.ID, models.Interval1h, ts, ts)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("row count = %d, want 1", len(bars))
	}
	got := bars[0]
	if got.PriceClose == nil || *got.PriceClose != 999.99 {
		t.Errorf("price_close = %v, want 999.99", got.PriceClose)
	}
	if got.Volume == nil || *got.Volume != 31000 {
		t.Errorf("volume = %v, want 31000", got.Volume)
	}
	if got.PriceOpenAsk == nil || *got.PriceOpenAsk != 123.50 {
		t.Errorf("price_open_ask = %v, want first write 123.50", got.PriceOpenAsk)
	}
	if got.PriceOpenBid == nil || *got.PriceOpenBid != 123.40 {
		t.Errorf("price_open_bid = %v, want first write 123.40", got.PriceOpenBid)
	}

	if _, err := repos.Price.DeleteRange(ctx, stored.ID, models.Interval1h, ts, ts); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
}

func TestAnalysisInsertFansOutChildren(t *testing.T) {
	db := database.SetupTestDB(t)
	defer database.TeardownTestDB(t, db)

	repos, err := NewRepositories(db)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	uic := time.Now().UnixNano() % 1_000_000_000
	instr := &models.Instrument{UIC: uic, AssetType: models.AssetStock, Symbol: "ANLZ", Currency: "USD"}
	strat := &models.Strategy{Name: "itest-sma-cross", Type: models.DirectionBullish}

	err = db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := repos.Instrument.UpsertBatch(ctx, tx, []*models.Instrument{instr}); err != nil {
			return err
		}
		_, err := repos.Strategy.InsertBatch(ctx, tx, []*models.Strategy{strat})
		return err
	})
	if err != nil {
		t.Fatalf("failed to insert reference rows: %v", err)
	}

	storedInstr, err := repos.Instrument.GetByKey(ctx, uic, models.AssetStock)
	if err != nil {
		t.Fatalf("failed to resolve instrument: %v", err)
	}
	storedStrat, err := repos.Strategy.GetByName(ctx, "itest-sma-cross")
	if err != nil {
		t.Fatalf("failed to resolve strategy: %v", err)
	}
	defer func() {
		_, _ = repos.Instrument.DeleteByKeys(ctx, []models.InstrumentKey{instr.Key()})
	}()

	dec := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}
	trades := 12

	analysis := &models.Analysis{
		InstrumentID:  storedInstr.ID,
		StrategyID:    storedStrat.ID,
		IntervalID:    models.Interval1d,
		DateFrom:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		PositionSize:  dec("1000"),
		Leverage:      dec("1"),
		Commission:    dec("0.001"),
		StopLoss:      dec("0.05"),
		TotalReturn:   dec("0.12"),
		MaxDrawdown:   dec("0.04"),
		SharpeRatio:   dec("1.3"),
		WinRate:       dec("0.55"),
		NumberTrades:  &trades,
		AverageProfit: dec("10.5"),
		ProfitFactor:  dec("1.7"),
	}

	var analysisID int64
	err = db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		id, err := repos.Analysis.InsertWithTx(ctx, tx, analysis)
		if err != nil {
			return err
		}
		analysisID = id

		params := []*models.Parameter{
			{AnalysisID: id, StrategyID: storedStrat.ID, Name: "fast", Value: decimal.RequireFromString("12")},
			{AnalysisID: id, StrategyID: storedStrat.ID, Name: "slow", Value: decimal.RequireFromString("26")},
		}
		if err := repos.Analysis.InsertParametersWithTx(ctx, tx, params); err != nil {
			return err
		}

		results := []*models.Result{
			{AnalysisID: id, Timepoint: analysis.DateFrom, PortfolioValue: decimal.RequireFromString("10000")},
			{AnalysisID: id, Timepoint: analysis.DateFrom.AddDate(0, 0, 1), PortfolioValue: decimal.RequireFromString("10050")},
			{AnalysisID: id, Timepoint: analysis.DateFrom.AddDate(0, 0, 2), PortfolioValue: decimal.RequireFromString("10125")},
		}
		return repos.Analysis.InsertResultsWithTx(ctx, tx, results)
	})
	if err != nil {
		t.Fatalf("analysis insert failed: %v", err)
	}
	if analysisID <= 0 {
		t.Fatalf("generated id = %d, want positive", analysisID)
	}

	params, err := repos.Analysis.GetParameters(ctx, analysisID)
	if err != nil {
		t.Fatalf("failed to get parameters: %v", err)
	}
	if len(params) != 2 {
		t.Errorf("parameter rows = %d, want 2", len(params))
	}

	results, err := repos.Analysis.GetResults(ctx, analysisID)
	if err != nil {
		t.Fatalf("failed to get results: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("result rows = %d, want 3", len(results))
	}

	// Cascade: deleting the analysis must take the children with it.
	if err := repos.Analysis.Delete(ctx, analysisID); err != nil {
		t.Fatalf("failed to delete analysis: %v", err)
	}
	leftover, err := repos.Analysis.GetResults(ctx, analysisID)
	if err != nil {
		t.Fatalf("failed to re-query results: %v", err)
	}
	if len(leftover) != 0 {
		t.Errorf("result rows after cascade = %d, want 0", len(leftover))
	}
}
