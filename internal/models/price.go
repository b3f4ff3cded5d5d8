package models

import "time"

// PriceBar represents one OHLCV observation in market.price, keyed by
// (instrument_id, interval_id, time_price). Trade prices, open interest and
// the ask/bid extension columns are all nullable: which of them the venue
// fills depends on the instrument's asset class.
type PriceBar struct {
	InstrumentID  int64        `db:"instrument_id" json:"instrument_id" validate:"required,gt=0"`
	IntervalID    IntervalCode `db:"interval_id" json:"interval_id" validate:"required"`
	TimePrice     time.Time    `db:"time_price" json:"time_price" validate:"required"`
	PriceOpen     *float64     `db:"price_open" json:"price_open"`
	PriceHigh     *float64     `db:"price_high" json:"price_high"`
	PriceLow      *float64     `db:"price_low" json:"price_low"`
	PriceClose    *float64     `db:"price_close" json:"price_close"`
	PriceInterest *float64     `db:"price_interest" json:"price_interest"`
	PriceOpenAsk  *float64     `db:"price_open_ask" json:"price_open_ask"`
	PriceOpenBid  *float64     `db:"price_open_bid" json:"price_open_bid"`
	PriceHighAsk  *float64     `db:"price_high_ask" json:"price_high_ask"`
	PriceHighBid  *float64     `db:"price_high_bid" json:"price_high_bid"`
	PriceLowAsk   *float64     `db:"price_low_ask" json:"price_low_ask"`
	PriceLowBid   *float64     `db:"price_low_bid" json:"price_low_bid"`
	PriceCloseAsk *float64     `db:"price_close_ask" json:"price_close_ask"`
	PriceCloseBid *float64     `db:"price_close_bid" json:"price_close_bid"`
	Volume        *float64     `db:"volume" json:"volume"`
}

// MidOpen returns the ask/bid midpoint of the opening price, falling back to
// the trade price when one side is missing
func (p *PriceBar) MidOpen() float64 {
	if p.PriceOpenAsk == nil || p.PriceOpenBid == nil {
		if p.PriceOpen != nil {
			return *p.PriceOpen
		}
		return 0
	}
	return (*p.PriceOpenAsk + *p.PriceOpenBid) / 2
}

// MidClose returns the ask/bid midpoint of the closing price, falling back to
// the trade price when one side is missing
func (p *PriceBar) MidClose() float64 {
	if p.PriceCloseAsk == nil || p.PriceCloseBid == nil {
		if p.PriceClose != nil {
			return *p.PriceClose
		}
		return 0
	}
	return (*p.PriceCloseAsk + *p.PriceCloseBid) / 2
}

// BucketStart truncates the bar timestamp down to its interval boundary
func (p *PriceBar) BucketStart() time.Time {
	d := p.IntervalID.Duration()
	if d <= 0 {
		return p.TimePrice
	}
	return p.TimePrice.Truncate(d)
}

// Validate performs basic validation on the price bar
func (p *PriceBar) Validate() error {
	if p.InstrumentID <= 0 {
		return NewValidationError("instrument_id", "must reference an existing instrument")
	}
	if !p.IntervalID.Valid() {
		return NewValidationError("interval_id", "unknown interval code")
	}
	if p.TimePrice.IsZero() {
		return NewValidationError("time_price", "timestamp is required")
	}
	return nil
}
