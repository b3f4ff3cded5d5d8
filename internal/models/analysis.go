package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Analysis represents one backtest run persisted in market.analysis.
// Metric fields are pointers so that a field absent from an ingest payload is
// distinguishable from a legitimate zero; annualized_return and cagr are the
// only optional metrics and are stored as NULL when missing.
type Analysis struct {
	ID               int64            `db:"id" json:"id"`
	InstrumentID     int64            `db:"instrument_id" json:"instrument_ID" validate:"required,gt=0"`
	StrategyID       int64            `db:"strategy_id" json:"strategy_ID" validate:"required,gt=0"`
	IntervalID       IntervalCode     `db:"interval_id" json:"interval_code" validate:"required"`
	DateFrom         time.Time        `db:"date_from" json:"date_from" validate:"required"`
	DateTo           time.Time        `db:"date_to" json:"date_to" validate:"required"`
	PositionSize     *decimal.Decimal `db:"position_size" json:"position_size" validate:"required"`
	Leverage         *decimal.Decimal `db:"leverage" json:"leverage" validate:"required"`
	Commission       *decimal.Decimal `db:"commission" json:"commission" validate:"required"`
	StopLoss         *decimal.Decimal `db:"stop_loss" json:"stop_loss" validate:"required"`
	TotalReturn      *decimal.Decimal `db:"total_return" json:"total_return" validate:"required"`
	AnnualizedReturn *decimal.Decimal `db:"annualized_return" json:"annualized_return,omitempty"`
	CAGR             *decimal.Decimal `db:"cagr" json:"cagr,omitempty"`
	MaxDrawdown      *decimal.Decimal `db:"max_drawdown" json:"max_drawdown" validate:"required"`
	SharpeRatio      *decimal.Decimal `db:"sharpe_ratio" json:"sharpe_ratio" validate:"required"`
	WinRate          *decimal.Decimal `db:"win_rate" json:"win_rate" validate:"required"`
	NumberTrades     *int             `db:"number_trades" json:"number_trades" validate:"required"`
	AverageProfit    *decimal.Decimal `db:"average_profit" json:"average_profit" validate:"required"`
	ProfitFactor     *decimal.Decimal `db:"profit_factor" json:"profit_factor" validate:"required"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// Parameter represents one named numeric parameter value of an analysis,
// keyed by (analysis_id, strategy_id, name)
type Parameter struct {
	AnalysisID int64           `db:"analysis_id" json:"analysis_id"`
	StrategyID int64           `db:"strategy_id" json:"strategy_id"`
	Name       string          `db:"name" json:"parameter_name" validate:"required"`
	Value      decimal.Decimal `db:"value" json:"parameter_value"`
}

// Result represents one equity-curve sample of an analysis, keyed by
// (analysis_id, timepoint)
type Result struct {
	AnalysisID     int64           `db:"analysis_id" json:"analysis_id"`
	Timepoint      time.Time       `db:"timepoint" json:"timepoint" validate:"required"`
	PortfolioValue decimal.Decimal `db:"portfolio_value" json:"portfolio_value"`
}

// AnalysisWithChildren is the ingest payload shape for one backtest run:
// the analysis row plus its nested parameter and equity-curve collections
type AnalysisWithChildren struct {
	Analysis
	Parameters []Parameter `json:"parameter_names"`
	Results    []Result    `json:"results"`
}

// Validate checks every required analysis field and returns a ValidationError
// naming the first one missing or malformed
func (a *Analysis) Validate() error {
	if a.InstrumentID <= 0 {
		return NewValidationError("instrument_ID", "must reference an existing instrument")
	}
	if a.StrategyID <= 0 {
		return NewValidationError("strategy_ID", "must reference an existing strategy")
	}
	if !a.IntervalID.Valid() {
		return NewValidationError("interval_code", "unknown interval code")
	}
	if a.DateFrom.IsZero() {
		return NewValidationError("date_from", "required field is missing")
	}
	if a.DateTo.IsZero() {
		return NewValidationError("date_to", "required field is missing")
	}
	if a.DateTo.Before(a.DateFrom) {
		return NewValidationError("date_to", "must not precede date_from")
	}

	required := []struct {
		field string
		value *decimal.Decimal
	}{
		{"position_size", a.PositionSize},
		{"leverage", a.Leverage},
		{"commission", a.Commission},
		{"stop_loss", a.StopLoss},
		{"total_return", a.TotalReturn},
		{"max_drawdown", a.MaxDrawdown},
		{"sharpe_ratio", a.SharpeRatio},
		{"win_rate", a.WinRate},
		{"average_profit", a.AverageProfit},
		{"profit_factor", a.ProfitFactor},
	}
	for _, r := range required {
		if r.value == nil {
			return NewValidationError(r.field, "required field is missing")
		}
	}
	if a.NumberTrades == nil {
		return NewValidationError("number_trades", "required field is missing")
	}
	if *a.NumberTrades < 0 {
		return NewValidationError("number_trades", "must not be negative")
	}
	return nil
}

// Validate checks the analysis row and every nested child record
func (a *AnalysisWithChildren) Validate() error {
	if err := a.Analysis.Validate(); err != nil {
		return err
	}
	for _, p := range a.Parameters {
		if p.Name == "" {
			return NewValidationError("parameter_name", "required field is missing")
		}
	}
	for _, r := range a.Results {
		if r.Timepoint.IsZero() {
			return NewValidationError("timepoint", "required field is missing")
		}
	}
	return nil
}
