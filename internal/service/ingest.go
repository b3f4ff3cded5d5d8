package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/Polymerase3/elpis-v2/internal/database"
	"github.com/Polymerase3/elpis-v2/internal/metrics"
	"github.com/Polymerase3/elpis-v2/internal/models"
	"github.com/Polymerase3/elpis-v2/internal/repository"
)

// IngestionEngine writes validated batches into the market schema. Each call
// runs as a single transaction: the whole batch commits or none of it does.
type IngestionEngine struct {
	db       *database.DB
	repos    *repository.Repositories
	resolver *RefResolver
	logger   *logrus.Logger
	metrics  *IngestMetrics
}

// NewIngestionEngine creates a new ingestion engine. The resolver is optional;
// without it foreign keys are checked by the database alone.
func NewIngestionEngine(
	db *database.DB,
	repos *repository.Repositories,
	resolver *RefResolver,
	logger *logrus.Logger,
) *IngestionEngine {
	if logger == nil {
		logger = logrus.New()
	}

	return &IngestionEngine{
		db:       db,
		repos:    repos,
		resolver: resolver,
		logger:   logger,
		metrics:  NewIngestMetrics(),
	}
}

// BatchReport summarizes the outcome of one ingested batch
type BatchReport struct {
	BatchID  uuid.UUID
	Entity   string
	Received int
	Written  int64
	Skipped  int64
	Duration time.Duration
}

// stampRecord sets the batch position on taxonomy errors that carry one
func stampRecord(err error, record int) error {
	var validation *models.ValidationError
	if errors.As(err, &validation) {
		validation.Record = record
		return err
	}
	var reference *models.ReferenceError
	if errors.As(err, &reference) {
		reference.Record = record
		return err
	}
	var coercion *models.TypeCoercionError
	if errors.As(err, &coercion) {
		coercion.Record = record
		return err
	}
	return err
}

func (e *IngestionEngine) newReport(entity string, received int) *BatchReport {
	return &BatchReport{
		BatchID:  uuid.New(),
		Entity:   entity,
		Received: received,
	}
}

// commit finalizes a successful batch: counters, gauges and one log line
func (e *IngestionEngine) commit(report *BatchReport, start time.Time) {
	report.Duration = time.Since(start)
	e.metrics.RecordBatch(report.Received, report.Written, report.Skipped)
	metrics.RecordBatchOK(report.Entity, report.Written, report.Skipped,
		report.Duration.Seconds(), float64(time.Now().Unix()))

	e.logger.WithFields(logrus.Fields{
		"batch_id": report.BatchID,
		"entity":   report.Entity,
		"received": report.Received,
		"written":  report.Written,
		"skipped":  report.Skipped,
		"duration": report.Duration,
	}).Info("Batch committed")
}

// rollback finalizes a failed batch and returns the classified error
func (e *IngestionEngine) rollback(report *BatchReport, start time.Time, err error) error {
	report.Duration = time.Since(start)
	report.Written = 0
	report.Skipped = 0
	kind := e.metrics.RecordFailure(report.Received, err)
	metrics.RecordBatchFailed(report.Entity, report.Duration.Seconds())
	metrics.RecordIngestError(kind)

	e.logger.WithFields(logrus.Fields{
		"batch_id": report.BatchID,
		"entity":   report.Entity,
		"received": report.Received,
		"kind":     kind,
	}).WithError(err).Error("Batch rolled back")

	return err
}

// IngestPrices upserts a batch of price bars. Re-ingested bars overwrite the
// trade OHLC columns and volume of existing rows; the remaining columns keep
// their first-write values. An empty batch is a no-op.
func (e *IngestionEngine) IngestPrices(ctx context.Context, bars []*models.PriceBar) (*BatchReport, error) {
	report := e.newReport(metrics.EntityPrice, len(bars))
	if len(bars) == 0 {
		return report, nil
	}

	start := time.Now()
	metrics.RecordBatchReceived(report.Entity, report.Received)

	for i, bar := range bars {
		if err := bar.Validate(); err != nil {
			return report, e.rollback(report, start, stampRecord(err, i))
		}
	}

	if e.resolver != nil {
		if err := e.checkInstrumentRefs(ctx, bars); err != nil {
			return report, e.rollback(report, start, err)
		}
	}

	err := e.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		written, err := e.repos.Price.UpsertBatch(ctx, tx, bars)
		if err != nil {
			return err
		}
		report.Written = written
		return nil
	})
	if err != nil {
		return report, e.rollback(report, start, err)
	}

	e.commit(report, start)
	return report, nil
}

// IngestInstruments inserts a batch of instruments, silently skipping rows
// whose (uic, asset_type) key already exists
func (e *IngestionEngine) IngestInstruments(ctx context.Context, instruments []*models.Instrument) (*BatchReport, error) {
	report := e.newReport(metrics.EntityInstrument, len(instruments))
	if len(instruments) == 0 {
		return report, nil
	}

	start := time.Now()
	metrics.RecordBatchReceived(report.Entity, report.Received)

	for i, instr := range instruments {
		if err := instr.Validate(); err != nil {
			return report, e.rollback(report, start, stampRecord(err, i))
		}
	}

	err := e.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		inserted, err := e.repos.Instrument.UpsertBatch(ctx, tx, instruments)
		if err != nil {
			return err
		}
		report.Written = inserted
		return nil
	})
	if err != nil {
		return report, e.rollback(report, start, err)
	}

	report.Skipped = int64(report.Received) - report.Written
	e.commit(report, start)
	return report, nil
}

// IngestStrategies inserts a batch of strategies, silently skipping rows
// whose name already exists
func (e *IngestionEngine) IngestStrategies(ctx context.Context, strategies []*models.Strategy) (*BatchReport, error) {
	report := e.newReport(metrics.EntityStrategy, len(strategies))
	if len(strategies) == 0 {
		return report, nil
	}

	start := time.Now()
	metrics.RecordBatchReceived(report.Entity, report.Received)

	for i, strat := range strategies {
		if err := strat.Validate(); err != nil {
			return report, e.rollback(report, start, stampRecord(err, i))
		}
	}

	err := e.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		inserted, err := e.repos.Strategy.InsertBatch(ctx, tx, strategies)
		if err != nil {
			return err
		}
		report.Written = inserted
		return nil
	})
	if err != nil {
		return report, e.rollback(report, start, err)
	}

	report.Skipped = int64(report.Received) - report.Written
	e.commit(report, start)
	return report, nil
}

// IngestAnalyses inserts a batch of backtest analyses with their parameter
// and equity-curve children. Parent rows are inserted first so the generated
// id can fan out to the children. Any failure rolls back the whole batch.
func (e *IngestionEngine) IngestAnalyses(ctx context.Context, batch []*models.AnalysisWithChildren) (*BatchReport, error) {
	report := e.newReport(metrics.EntityAnalysis, len(batch))
	if len(batch) == 0 {
		return report, nil
	}

	start := time.Now()
	metrics.RecordBatchReceived(report.Entity, report.Received)

	for i, awc := range batch {
		if err := awc.Validate(); err != nil {
			return report, e.rollback(report, start, stampRecord(err, i))
		}
	}

	var parameters, results int64
	err := e.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for i, awc := range batch {
			id, err := e.repos.Analysis.InsertWithTx(ctx, tx, &awc.Analysis)
			if err != nil {
				return stampRecord(err, i)
			}
			awc.ID = id

			if len(awc.Parameters) > 0 {
				params := make([]*models.Parameter, len(awc.Parameters))
				for j := range awc.Parameters {
					p := awc.Parameters[j]
					p.AnalysisID = id
					p.StrategyID = awc.StrategyID
					params[j] = &p
				}
				if err := e.repos.Analysis.InsertParametersWithTx(ctx, tx, params); err != nil {
					return stampRecord(err, i)
				}
				parameters += int64(len(params))
			}

			if len(awc.Results) > 0 {
				rows := make([]*models.Result, len(awc.Results))
				for j := range awc.Results {
					r := awc.Results[j]
					r.AnalysisID = id
					rows[j] = &r
				}
				if err := e.repos.Analysis.InsertResultsWithTx(ctx, tx, rows); err != nil {
					return stampRecord(err, i)
				}
				results += int64(len(rows))
			}

			report.Written++
		}
		return nil
	})
	if err != nil {
		return report, e.rollback(report, start, err)
	}

	report.Duration = time.Since(start)
	e.metrics.RecordBatch(report.Received, report.Written, 0)
	metrics.RecordBatchOK(report.Entity, report.Written, 0,
		report.Duration.Seconds(), float64(time.Now().Unix()))

	e.logger.WithFields(logrus.Fields{
		"batch_id":   report.BatchID,
		"entity":     report.Entity,
		"received":   report.Received,
		"written":    report.Written,
		"parameters": parameters,
		"results":    results,
		"duration":   report.Duration,
	}).Info("Batch committed")

	return report, nil
}

// checkInstrumentRefs verifies every referenced instrument id before the
// transaction opens, so a dangling reference fails fast with its position
func (e *IngestionEngine) checkInstrumentRefs(ctx context.Context, bars []*models.PriceBar) error {
	seen := make(map[int64]bool)
	for i, bar := range bars {
		if seen[bar.InstrumentID] {
			continue
		}
		exists, err := e.resolver.InstrumentExists(ctx, bar.InstrumentID)
		if err != nil {
			return err
		}
		if !exists {
			return models.NewReferenceError(i, "instrument_id", bar.InstrumentID)
		}
		seen[bar.InstrumentID] = true
	}
	return nil
}

// Metrics returns the engine's in-process counters
func (e *IngestionEngine) Metrics() *IngestMetrics {
	return e.metrics
}

// ResetMetrics resets the engine's in-process counters
func (e *IngestionEngine) ResetMetrics() {
	e.metrics.Reset()
}
