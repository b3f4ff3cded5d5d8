package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Polymerase3/elpis-v2/internal/database"
	"github.com/Polymerase3/elpis-v2/internal/models"
)

const errScanPrice = "failed to scan price bar: %w"

const priceColumns = `instrument_id, interval_id, time_price,
		price_open, price_high, price_low, price_close, price_interest,
		price_open_ask, price_open_bid, price_high_ask, price_high_bid,
		price_low_ask, price_low_bid, price_close_ask, price_close_bid,
		volume`

// The conflict clause deliberately rewrites only the trade OHLC columns and
// volume. Open interest and the ask/bid extension columns keep their
// first-write values on re-ingest.
const upsertPriceQuery = `
	INSERT INTO market.price (` + priceColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (instrument_id, interval_id, time_price) DO UPDATE SET
		price_open  = EXCLUDED.price_open,
		price_high  = EXCLUDED.price_high,
		price_low   = EXCLUDED.price_low,
		price_close = EXCLUDED.price_close,
		volume      = EXCLUDED.volume
`

// PostgresPriceRepository implements PriceRepository for PostgreSQL
type PostgresPriceRepository struct {
	db *database.DB
}

// NewPostgresPriceRepository creates a new price repository
func NewPostgresPriceRepository(db *database.DB) PriceRepository {
	return &PostgresPriceRepository{db: db}
}

// UpsertBatch writes price bars with last-write-wins semantics on the
// (instrument_id, interval_id, time_price) key. All rows are pipelined in a
// single prepared batch on the caller's transaction; the returned count
// covers inserted and updated rows alike.
func (r *PostgresPriceRepository) UpsertBatch(ctx context.Context, tx pgx.Tx, bars []*models.PriceBar) (int64, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, bar := range bars {
		batch.Queue(upsertPriceQuery,
			bar.InstrumentID, int16(bar.IntervalID), bar.TimePrice,
			bar.PriceOpen, bar.PriceHigh, bar.PriceLow, bar.PriceClose, bar.PriceInterest,
			bar.PriceOpenAsk, bar.PriceOpenBid, bar.PriceHighAsk, bar.PriceHighBid,
			bar.PriceLowAsk, bar.PriceLowBid, bar.PriceCloseAsk, bar.PriceCloseBid,
			bar.Volume,
		)
	}

	var written int64
	br := tx.SendBatch(ctx, batch)
	var execErr error
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			execErr = tagRecord(database.MapError(err), i)
			break
		}
		written += tag.RowsAffected()
	}
	if closeErr := br.Close(); execErr == nil && closeErr != nil {
		execErr = fmt.Errorf("failed to close price batch: %w", closeErr)
	}
	if execErr != nil {
		return 0, execErr
	}

	return written, nil
}

// GetRange retrieves price bars for one instrument and interval within a time range
func (r *PostgresPriceRepository) GetRange(ctx context.Context, instrumentID int64, interval models.IntervalCode, start, end time.Time) ([]*models.PriceBar, error) {
	query := `
		SELECT ` + priceColumns + `
		FROM market.price
		WHERE instrument_id = $1 AND interval_id = $2 AND time_price >= $3 AND time_price <= $4
		ORDER BY time_price ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, instrumentID, int16(interval), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query price range: %w", err)
	}
	defer rows.Close()

	var bars []*models.PriceBar
	for rows.Next() {
		bar := &models.PriceBar{}
		err := rows.Scan(
			&bar.InstrumentID, &bar.IntervalID, &bar.TimePrice,
			&bar.PriceOpen, &bar.PriceHigh, &bar.PriceLow, &bar.PriceClose, &bar.PriceInterest,
			&bar.PriceOpenAsk, &bar.PriceOpenBid, &bar.PriceHighAsk, &bar.PriceHighBid,
			&bar.PriceLowAsk, &bar.PriceLowBid, &bar.PriceCloseAsk, &bar.PriceCloseBid,
			&bar.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanPrice, err)
		}
		bars = append(bars, bar)
	}

	return bars, rows.Err()
}

// CountRange counts price bars for one instrument and interval within a time range
func (r *PostgresPriceRepository) CountRange(ctx context.Context, instrumentID int64, interval models.IntervalCode, start, end time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM market.price
		WHERE instrument_id = $1 AND interval_id = $2 AND time_price >= $3 AND time_price <= $4
	`

	var count int64
	err := r.db.GetPool().QueryRow(ctx, query, instrumentID, int16(interval), start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count price range: %w", err)
	}

	return count, nil
}

// DeleteRange removes price bars for one instrument and interval within a
// time range and returns the number of rows removed
func (r *PostgresPriceRepository) DeleteRange(ctx context.Context, instrumentID int64, interval models.IntervalCode, start, end time.Time) (int64, error) {
	query := `
		DELETE FROM market.price
		WHERE instrument_id = $1 AND interval_id = $2 AND time_price >= $3 AND time_price <= $4
	`

	tag, err := r.db.GetPool().Exec(ctx, query, instrumentID, int16(interval), start, end)
	if err != nil {
		return 0, database.MapError(err)
	}

	return tag.RowsAffected(), nil
}

// GetLatest retrieves the most recent bar for one instrument and interval
func (r *PostgresPriceRepository) GetLatest(ctx context.Context, instrumentID int64, interval models.IntervalCode) (*models.PriceBar, error) {
	query := `
		SELECT ` + priceColumns + `
		FROM market.price
		WHERE instrument_id = $1 AND interval_id = $2
		ORDER BY time_price DESC
		LIMIT 1
	`

	bar := &models.PriceBar{}
	err := r.db.GetPool().QueryRow(ctx, query, instrumentID, int16(interval)).Scan(
		&bar.InstrumentID, &bar.IntervalID, &bar.TimePrice,
		&bar.PriceOpen, &bar.PriceHigh, &bar.PriceLow, &bar.PriceClose, &bar.PriceInterest,
		&bar.PriceOpenAsk, &bar.PriceOpenBid, &bar.PriceHighAsk, &bar.PriceHighBid,
		&bar.PriceLowAsk, &bar.PriceLowBid, &bar.PriceCloseAsk, &bar.PriceCloseBid,
		&bar.Volume,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price bar: %w", err)
	}

	return bar, nil
}
