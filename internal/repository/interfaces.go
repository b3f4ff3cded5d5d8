package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Polymerase3/elpis-v2/internal/models"
)

// InstrumentRepository defines the interface for instrument reference data access
type InstrumentRepository interface {
	UpsertBatch(ctx context.Context, tx pgx.Tx, instruments []*models.Instrument) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Instrument, error)
	GetByKey(ctx context.Context, uic int64, assetType models.AssetType) (*models.Instrument, error)
	Search(ctx context.Context, keyword string, limit int) ([]*models.Instrument, error)
	List(ctx context.Context) ([]*models.Instrument, error)
	DeleteByKeys(ctx context.Context, keys []models.InstrumentKey) (int64, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

// IntervalRepository defines the interface for the interval_code lookup table
type IntervalRepository interface {
	Seed(ctx context.Context) error
	List(ctx context.Context) ([]models.IntervalCode, error)
}

// PriceRepository defines the interface for price bar data access
type PriceRepository interface {
	UpsertBatch(ctx context.Context, tx pgx.Tx, bars []*models.PriceBar) (int64, error)
	GetRange(ctx context.Context, instrumentID int64, interval models.IntervalCode, start, end time.Time) ([]*models.PriceBar, error)
	CountRange(ctx context.Context, instrumentID int64, interval models.IntervalCode, start, end time.Time) (int64, error)
	DeleteRange(ctx context.Context, instrumentID int64, interval models.IntervalCode, start, end time.Time) (int64, error)
	GetLatest(ctx context.Context, instrumentID int64, interval models.IntervalCode) (*models.PriceBar, error)
}

// StrategyRepository defines the interface for strategy reference data access
type StrategyRepository interface {
	InsertBatch(ctx context.Context, tx pgx.Tx, strategies []*models.Strategy) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Strategy, error)
	GetByName(ctx context.Context, name string) (*models.Strategy, error)
	List(ctx context.Context) ([]*models.Strategy, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

// AnalysisRepository defines the interface for backtest analysis data access
type AnalysisRepository interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, analysis *models.Analysis) (int64, error)
	InsertParametersWithTx(ctx context.Context, tx pgx.Tx, params []*models.Parameter) error
	InsertResultsWithTx(ctx context.Context, tx pgx.Tx, results []*models.Result) error
	GetByID(ctx context.Context, id int64) (*models.Analysis, error)
	GetParameters(ctx context.Context, analysisID int64) ([]*models.Parameter, error)
	GetResults(ctx context.Context, analysisID int64) ([]*models.Result, error)
	Delete(ctx context.Context, id int64) error
}

// StatsRepository defines the interface for storage size and row statistics
type StatsRepository interface {
	HypertableSizes(ctx context.Context) ([]*HypertableSize, error)
	RowCounts(ctx context.Context) (map[string]int64, error)
}

// HypertableSize reports the on-disk footprint of one hypertable
type HypertableSize struct {
	Schema     string
	Name       string
	TotalBytes int64
}
