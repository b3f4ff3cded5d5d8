package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Polymerase3/elpis-v2/internal/database"
	"github.com/Polymerase3/elpis-v2/internal/models"
)

const errScanAnalysis = "failed to scan analysis: %w"

const analysisColumns = `id, instrument_id, strategy_id, interval_id, date_from, date_to,
		position_size, leverage, commission, stop_loss,
		total_return, annualized_return, cagr, max_drawdown, sharpe_ratio,
		win_rate, number_trades, average_profit, profit_factor, created_at`

// PostgresAnalysisRepository implements AnalysisRepository for PostgreSQL
type PostgresAnalysisRepository struct {
	db *database.DB
}

// NewPostgresAnalysisRepository creates a new analysis repository
func NewPostgresAnalysisRepository(db *database.DB) AnalysisRepository {
	return &PostgresAnalysisRepository{db: db}
}

// InsertWithTx inserts one analysis row on the caller's transaction and
// returns its generated id
func (r *PostgresAnalysisRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, analysis *models.Analysis) (int64, error) {
	query := `
		INSERT INTO market.analysis (
			instrument_id, strategy_id, interval_id, date_from, date_to,
			position_size, leverage, commission, stop_loss,
			total_return, annualized_return, cagr, max_drawdown, sharpe_ratio,
			win_rate, number_trades, average_profit, profit_factor
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`

	var id int64
	err := tx.QueryRow(ctx, query,
		analysis.InstrumentID, analysis.StrategyID, int16(analysis.IntervalID),
		analysis.DateFrom, analysis.DateTo,
		analysis.PositionSize, analysis.Leverage, analysis.Commission, analysis.StopLoss,
		analysis.TotalReturn, analysis.AnnualizedReturn, analysis.CAGR,
		analysis.MaxDrawdown, analysis.SharpeRatio, analysis.WinRate,
		analysis.NumberTrades, analysis.AverageProfit, analysis.ProfitFactor,
	).Scan(&id)
	if err != nil {
		return 0, database.MapError(err)
	}

	return id, nil
}

// InsertParametersWithTx inserts the parameter rows of one analysis on the
// caller's transaction. Duplicate (analysis_id, strategy_id, name) keys are a
// hard failure, not a skip.
func (r *PostgresAnalysisRepository) InsertParametersWithTx(ctx context.Context, tx pgx.Tx, params []*models.Parameter) error {
	if len(params) == 0 {
		return nil
	}

	query := `
		INSERT INTO market.parameter (analysis_id, strategy_id, name, value)
		VALUES ($1, $2, $3, $4)
	`

	batch := &pgx.Batch{}
	for _, p := range params {
		batch.Queue(query, p.AnalysisID, p.StrategyID, p.Name, p.Value)
	}

	br := tx.SendBatch(ctx, batch)
	var execErr error
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			execErr = tagRecord(database.MapError(err), i)
			break
		}
	}
	if closeErr := br.Close(); execErr == nil && closeErr != nil {
		execErr = fmt.Errorf("failed to close parameter batch: %w", closeErr)
	}

	return execErr
}

// resultCopyThreshold is the curve length above which results are loaded via
// COPY instead of a pipelined batch
const resultCopyThreshold = 64

// InsertResultsWithTx inserts the equity-curve rows of one analysis on the
// caller's transaction. Long curves go through COPY, short ones through a
// pipelined batch.
func (r *PostgresAnalysisRepository) InsertResultsWithTx(ctx context.Context, tx pgx.Tx, results []*models.Result) error {
	if len(results) == 0 {
		return nil
	}

	if len(results) >= resultCopyThreshold {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"market", "result"},
			[]string{"analysis_id", "timepoint", "portfolio_value"},
			pgx.CopyFromSlice(len(results), func(i int) ([]interface{}, error) {
				res := results[i]
				return []interface{}{res.AnalysisID, res.Timepoint, res.PortfolioValue}, nil
			}),
		)
		if err != nil {
			return database.MapError(err)
		}
		return nil
	}

	query := `
		INSERT INTO market.result (analysis_id, timepoint, portfolio_value)
		VALUES ($1, $2, $3)
	`

	batch := &pgx.Batch{}
	for _, res := range results {
		batch.Queue(query, res.AnalysisID, res.Timepoint, res.PortfolioValue)
	}

	br := tx.SendBatch(ctx, batch)
	var execErr error
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			execErr = tagRecord(database.MapError(err), i)
			break
		}
	}
	if closeErr := br.Close(); execErr == nil && closeErr != nil {
		execErr = fmt.Errorf("failed to close result batch: %w", closeErr)
	}

	return execErr
}

// GetByID retrieves an analysis by its generated id
func (r *PostgresAnalysisRepository) GetByID(ctx context.Context, id int64) (*models.Analysis, error) {
	query := "SELECT " + analysisColumns + " FROM market.analysis WHERE id = $1"

	analysis := &models.Analysis{}
	err := r.db.GetPool().QueryRow(ctx, query, id).Scan(
		&analysis.ID, &analysis.InstrumentID, &analysis.StrategyID, &analysis.IntervalID,
		&analysis.DateFrom, &analysis.DateTo,
		&analysis.PositionSize, &analysis.Leverage, &analysis.Commission, &analysis.StopLoss,
		&analysis.TotalReturn, &analysis.AnnualizedReturn, &analysis.CAGR,
		&analysis.MaxDrawdown, &analysis.SharpeRatio, &analysis.WinRate,
		&analysis.NumberTrades, &analysis.AverageProfit, &analysis.ProfitFactor,
		&analysis.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	return analysis, nil
}

// GetParameters retrieves the parameter rows of an analysis
func (r *PostgresAnalysisRepository) GetParameters(ctx context.Context, analysisID int64) ([]*models.Parameter, error) {
	query := `
		SELECT analysis_id, strategy_id, name, value
		FROM market.parameter
		WHERE analysis_id = $1
		ORDER BY name ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parameters: %w", err)
	}
	defer rows.Close()

	var params []*models.Parameter
	for rows.Next() {
		p := &models.Parameter{}
		if err := rows.Scan(&p.AnalysisID, &p.StrategyID, &p.Name, &p.Value); err != nil {
			return nil, fmt.Errorf(errScanAnalysis, err)
		}
		params = append(params, p)
	}

	return params, rows.Err()
}

// GetResults retrieves the equity-curve rows of an analysis in time order
func (r *PostgresAnalysisRepository) GetResults(ctx context.Context, analysisID int64) ([]*models.Result, error) {
	query := `
		SELECT analysis_id, timepoint, portfolio_value
		FROM market.result
		WHERE analysis_id = $1
		ORDER BY timepoint ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*models.Result
	for rows.Next() {
		res := &models.Result{}
		if err := rows.Scan(&res.AnalysisID, &res.Timepoint, &res.PortfolioValue); err != nil {
			return nil, fmt.Errorf(errScanAnalysis, err)
		}
		results = append(results, res)
	}

	return results, rows.Err()
}

// Delete removes an analysis; parameter and result rows cascade
func (r *PostgresAnalysisRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.GetPool().Exec(ctx, "DELETE FROM market.analysis WHERE id = $1", id)
	if err != nil {
		return database.MapError(err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
