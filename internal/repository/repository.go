package repository

import (
	"errors"
	"fmt"

	"github.com/Polymerase3/elpis-v2/internal/database"
	"github.com/Polymerase3/elpis-v2/internal/models"
)

// Repositories holds all repository implementations
type Repositories struct {
	Instrument InstrumentRepository
	Interval   IntervalRepository
	Price      PriceRepository
	Strategy   StrategyRepository
	Analysis   AnalysisRepository
	Stats      StatsRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Instrument: NewPostgresInstrumentRepository(db),
		Interval:   NewPostgresIntervalRepository(db),
		Price:      NewPostgresPriceRepository(db),
		Strategy:   NewPostgresStrategyRepository(db),
		Analysis:   NewPostgresAnalysisRepository(db),
		Stats:      NewPostgresStatsRepository(db),
	}, nil
}

// tagRecord stamps the batch position onto typed errors coming out of a
// pipelined statement, so callers can point at the offending input row
func tagRecord(err error, record int) error {
	if err == nil {
		return nil
	}

	var refErr *models.ReferenceError
	if errors.As(err, &refErr) {
		refErr.Record = record
		return err
	}

	var valErr *models.ValidationError
	if errors.As(err, &valErr) {
		valErr.Record = record
		return err
	}

	var coErr *models.TypeCoercionError
	if errors.As(err, &coErr) {
		coErr.Record = record
		return err
	}

	return err
}
