package models

import "time"

// IntervalCode identifies one of the fixed bar sampling granularities.
// Codes and their second counts are seeded reference data and never change.
type IntervalCode int16

// Interval codes as stored in market.interval_code
const (
	Interval1m  IntervalCode = 1
	Interval5m  IntervalCode = 2
	Interval15m IntervalCode = 3
	Interval1h  IntervalCode = 4
	Interval4h  IntervalCode = 5
	Interval1d  IntervalCode = 6
	Interval1w  IntervalCode = 7
	Interval1mo IntervalCode = 8
)

var intervalSeconds = map[IntervalCode]int64{
	Interval1m:  60,
	Interval5m:  300,
	Interval15m: 900,
	Interval1h:  3600,
	Interval4h:  14400,
	Interval1d:  86400,
	Interval1w:  604800,
	Interval1mo: 2592000,
}

var intervalLabels = map[IntervalCode]string{
	Interval1m:  "1m",
	Interval5m:  "5m",
	Interval15m: "15m",
	Interval1h:  "1h",
	Interval4h:  "4h",
	Interval1d:  "1d",
	Interval1w:  "1w",
	Interval1mo: "1mo",
}

// Valid reports whether the code is one of the seeded granularities
func (c IntervalCode) Valid() bool {
	_, ok := intervalSeconds[c]
	return ok
}

// Seconds returns the bar width in seconds, 0 for unknown codes
func (c IntervalCode) Seconds() int64 {
	return intervalSeconds[c]
}

// Duration returns the bar width as a time.Duration
func (c IntervalCode) Duration() time.Duration {
	return time.Duration(c.Seconds()) * time.Second
}

// Minutes returns the bar width in minutes
func (c IntervalCode) Minutes() float64 {
	return c.Duration().Minutes()
}

// Hours returns the bar width in hours
func (c IntervalCode) Hours() float64 {
	return c.Duration().Hours()
}

// Days returns the bar width in days
func (c IntervalCode) Days() float64 {
	return c.Duration().Hours() / 24
}

// Weeks returns the bar width in weeks
func (c IntervalCode) Weeks() float64 {
	return c.Days() / 7
}

// Months returns the bar width in 30-day months
func (c IntervalCode) Months() float64 {
	return c.Days() / 30
}

// Label returns the human label ("1m".."1mo"), empty for unknown codes
func (c IntervalCode) Label() string {
	return intervalLabels[c]
}

func (c IntervalCode) String() string {
	if label, ok := intervalLabels[c]; ok {
		return label
	}
	return "unknown"
}

// ParseIntervalLabel resolves a human label to its interval code
func ParseIntervalLabel(label string) (IntervalCode, error) {
	for code, l := range intervalLabels {
		if l == label {
			return code, nil
		}
	}
	return 0, ErrInvalidInterval
}

// IntervalCodes returns all seeded codes in ascending order
func IntervalCodes() []IntervalCode {
	return []IntervalCode{
		Interval1m, Interval5m, Interval15m, Interval1h,
		Interval4h, Interval1d, Interval1w, Interval1mo,
	}
}
