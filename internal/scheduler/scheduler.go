// Package scheduler runs the cron-driven spool directory scan. Producers drop
// JSON batch files into per-kind subdirectories of the spool dir; each scan
// ingests them through the engine and routes the files to processed/ or
// failed/.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Polymerase3/elpis-v2/internal/config"
	"github.com/Polymerase3/elpis-v2/internal/logger"
	"github.com/Polymerase3/elpis-v2/internal/metrics"
	"github.com/Polymerase3/elpis-v2/internal/models"
	"github.com/Polymerase3/elpis-v2/internal/service"
)

const scanTimeout = 30 * time.Minute

// Spool subdirectories, one per payload kind
const (
	KindPrices      = "prices"
	KindInstruments = "instruments"
	KindStrategies  = "strategies"
	KindAnalyses    = "analyses"
)

// Reference kinds scan first: prices and analyses dropped in the same window
// may depend on instruments and strategies from the very same scan.
var spoolKinds = []string{KindInstruments, KindStrategies, KindPrices, KindAnalyses}

// BatchIngester is the slice of the ingestion engine the scheduler drives
type BatchIngester interface {
	IngestPrices(ctx context.Context, bars []*models.PriceBar) (*service.BatchReport, error)
	IngestInstruments(ctx context.Context, instruments []*models.Instrument) (*service.BatchReport, error)
	IngestStrategies(ctx context.Context, strategies []*models.Strategy) (*service.BatchReport, error)
	IngestAnalyses(ctx context.Context, batch []*models.AnalysisWithChildren) (*service.BatchReport, error)
}

// Stats tracks spool scan outcomes
type Stats struct {
	FilesProcessed   int64
	FilesQuarantined int64
	RecordsWritten   int64
	ScanErrors       int64
	LastScanTime     time.Time
}

// Scheduler scans the spool directory on a cron schedule
type Scheduler struct {
	cron         *cron.Cron
	engine       BatchIngester
	spoolDir     string
	processedDir string
	failedDir    string
	schedule     string
	logger       *logrus.Logger
	audit        *logger.AuditLogger

	mu        sync.RWMutex
	isRunning bool
	jobID     cron.EntryID
	stats     Stats
}

// NewScheduler creates a spool scheduler for the configured directories
func NewScheduler(engine BatchIngester, cfg *config.IngestConfig, baseLogger *logrus.Logger) *Scheduler {
	if baseLogger == nil {
		baseLogger = logrus.New()
	}

	return &Scheduler{
		cron:         cron.New(cron.WithLocation(time.UTC)),
		engine:       engine,
		spoolDir:     cfg.SpoolDir,
		processedDir: cfg.ProcessedDir,
		failedDir:    cfg.FailedDir,
		schedule:     cfg.Schedule,
		logger:       baseLogger,
		audit:        logger.NewAuditLogger(baseLogger),
	}
}

// Start registers the scan job and starts the cron loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	jobID, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()

		if err := s.ScanOnce(ctx); err != nil {
			s.logger.WithError(err).Error("Spool scan failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule spool scan: %w", err)
	}

	s.jobID = jobID
	s.cron.Start()
	s.isRunning = true
	s.logger.WithFields(logrus.Fields{
		"schedule":  s.schedule,
		"spool_dir": s.spoolDir,
	}).Info("Spool scheduler started")

	return nil
}

// Stop waits for a running scan to finish and stops the cron loop
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	<-s.cron.Stop().Done()
	s.isRunning = false
	s.logger.Info("Spool scheduler stopped")

	return nil
}

// ScanOnce walks all spool kind directories and ingests every *.json file.
// Files that can never succeed move to failed/; transient failures stay in
// the spool for the next scan.
func (s *Scheduler) ScanOnce(ctx context.Context) error {
	var firstErr error

	for _, kind := range spoolKinds {
		files, err := filepath.Glob(filepath.Join(s.spoolDir, kind, "*.json"))
		if err != nil {
			return fmt.Errorf("failed to list spool files for %s: %w", kind, err)
		}
		sort.Strings(files)

		for _, path := range files {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if err := s.processFile(ctx, kind, path); err != nil {
				s.logger.WithError(err).WithField("file", path).Warn("Spool file deferred")
				s.mu.Lock()
				s.stats.ScanErrors++
				s.mu.Unlock()
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}

	s.mu.Lock()
	s.stats.LastScanTime = time.Now()
	s.mu.Unlock()

	return firstErr
}

// processFile ingests one spool file and routes it by outcome
func (s *Scheduler) processFile(ctx context.Context, kind, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read spool file: %w", err)
	}

	report, err := s.ingestPayload(ctx, kind, data)
	if err != nil {
		if !quarantineWorthy(err) {
			return fmt.Errorf("failed to ingest %s: %w", filepath.Base(path), err)
		}

		movedTo, moveErr := s.moveFile(path, filepath.Join(s.failedDir, kind))
		if moveErr != nil {
			return moveErr
		}
		s.audit.LogFileQuarantined(path, kind, err.Error(), movedTo)
		metrics.RecordSpoolFile(kind, "failed")

		s.mu.Lock()
		s.stats.FilesQuarantined++
		s.mu.Unlock()
		return nil
	}

	movedTo, moveErr := s.moveFile(path, filepath.Join(s.processedDir, kind))
	if moveErr != nil {
		return moveErr
	}
	s.audit.LogFileIngested(path, kind, report.Received, movedTo)
	metrics.RecordSpoolFile(kind, "processed")

	s.mu.Lock()
	s.stats.FilesProcessed++
	s.stats.RecordsWritten += report.Written
	s.mu.Unlock()
	return nil
}

// ingestPayload decodes and ingests one payload by its spool kind
func (s *Scheduler) ingestPayload(ctx context.Context, kind string, data []byte) (*service.BatchReport, error) {
	switch kind {
	case KindPrices:
		bars, err := service.DecodePriceBatch(data)
		if err != nil {
			return nil, &payloadError{err}
		}
		return s.engine.IngestPrices(ctx, bars)

	case KindInstruments:
		instruments, err := service.DecodeInstrumentBatch(data)
		if err != nil {
			return nil, &payloadError{err}
		}
		return s.engine.IngestInstruments(ctx, instruments)

	case KindStrategies:
		strategies, err := service.DecodeStrategyBatch(data)
		if err != nil {
			return nil, &payloadError{err}
		}
		return s.engine.IngestStrategies(ctx, strategies)

	case KindAnalyses:
		analyses, err := service.DecodeAnalysisBatch(data)
		if err != nil {
			return nil, &payloadError{err}
		}
		return s.engine.IngestAnalyses(ctx, analyses)

	default:
		return nil, &payloadError{fmt.Errorf("unknown payload kind %q", kind)}
	}
}

// moveFile relocates a spool file into destDir under a timestamped name
func (s *Scheduler) moveFile(path, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	dest := filepath.Join(destDir, time.Now().UTC().Format("20060102T150405")+"_"+filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", path, err)
	}
	return dest, nil
}

// payloadError marks a file that can never decode successfully
type payloadError struct {
	err error
}

func (e *payloadError) Error() string {
	return fmt.Sprintf("invalid payload: %v", e.err)
}

func (e *payloadError) Unwrap() error {
	return e.err
}

// quarantineWorthy reports whether retrying the file could ever succeed
func quarantineWorthy(err error) bool {
	var payload *payloadError
	var validation *models.ValidationError
	var reference *models.ReferenceError
	var coercion *models.TypeCoercionError
	var conflict *models.UniqueConflictError

	return errors.As(err, &payload) ||
		errors.As(err, &validation) ||
		errors.As(err, &reference) ||
		errors.As(err, &coercion) ||
		errors.As(err, &conflict)
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled scan
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}

	entry := s.cron.Entry(s.jobID)
	if !entry.Valid() {
		return time.Time{}
	}
	return entry.Next
}

// Stats returns a snapshot of the scan counters
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
