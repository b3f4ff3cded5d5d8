package models

// StrategyDirection is the directional bias of a strategy
type StrategyDirection string

// Strategy directions accepted by market.strategy
const (
	DirectionBullish StrategyDirection = "bullish"
	DirectionBearish StrategyDirection = "bearish"
	DirectionBoth    StrategyDirection = "both"
)

// Valid reports whether the direction is one of the supported values
func (d StrategyDirection) Valid() bool {
	switch d {
	case DirectionBullish, DirectionBearish, DirectionBoth:
		return true
	}
	return false
}

// Strategy represents a named backtest strategy definition.
// Rows are immutable reference data: the name is unique and duplicate
// inserts are silently skipped.
type Strategy struct {
	ID          int64             `db:"id" json:"id"`
	Name        string            `db:"name" json:"name" validate:"required,min=1,max=255"`
	Description string            `db:"description" json:"description"`
	Type        StrategyDirection `db:"type" json:"type" validate:"required"`
}

// Validate performs basic validation on the strategy
func (s *Strategy) Validate() error {
	if s.Name == "" {
		return NewValidationError("name", ErrStrategyNameRequired.Error())
	}
	if !s.Type.Valid() {
		return NewValidationError("type", "direction must be bullish, bearish or both")
	}
	return nil
}
