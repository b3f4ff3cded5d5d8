package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Polymerase3/elpis-v2/internal/models"
)

// Error kind labels shared by logs and the Prometheus error counter
const (
	errKindValidation = "validation"
	errKindReference  = "reference"
	errKindUnique     = "unique"
	errKindCoercion   = "coercion"
	errKindAbort      = "abort"
	errKindOther      = "other"
)

// errorKind classifies an ingestion failure by its taxonomy type
func errorKind(err error) string {
	var validation *models.ValidationError
	if errors.As(err, &validation) {
		return errKindValidation
	}
	var reference *models.ReferenceError
	if errors.As(err, &reference) {
		return errKindReference
	}
	var unique *models.UniqueConflictError
	if errors.As(err, &unique) {
		return errKindUnique
	}
	var coercion *models.TypeCoercionError
	if errors.As(err, &coercion) {
		return errKindCoercion
	}
	var abort *models.TransactionAbortError
	if errors.As(err, &abort) {
		return errKindAbort
	}
	return errKindOther
}

// IngestStats holds a point-in-time copy of the ingestion counters
type IngestStats struct {
	StartTime        time.Time
	Batches          int
	FailedBatches    int
	RecordsReceived  int
	RecordsWritten   int64
	RecordsSkipped   int64
	ValidationErrors int
	ReferenceErrors  int
	ConflictErrors   int
	CoercionErrors   int
	AbortedBatches   int
	OtherErrors      int
}

// String returns a formatted representation of the counters
func (s IngestStats) String() string {
	return fmt.Sprintf(
		"IngestStats{Batches=%d, Failed=%d, Received=%d, Written=%d, Skipped=%d, Validation=%d, Reference=%d, Conflict=%d, Coercion=%d, Aborted=%d, Other=%d}",
		s.Batches,
		s.FailedBatches,
		s.RecordsReceived,
		s.RecordsWritten,
		s.RecordsSkipped,
		s.ValidationErrors,
		s.ReferenceErrors,
		s.ConflictErrors,
		s.CoercionErrors,
		s.AbortedBatches,
		s.OtherErrors,
	)
}

// IngestMetrics tracks in-process statistics about batch ingestion
type IngestMetrics struct {
	mu    sync.RWMutex
	stats IngestStats
}

// NewIngestMetrics creates a new metrics tracker
func NewIngestMetrics() *IngestMetrics {
	return &IngestMetrics{
		stats: IngestStats{StartTime: time.Now()},
	}
}

// Reset resets all counters
func (m *IngestMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = IngestStats{StartTime: time.Now()}
}

// RecordBatch records a committed batch
func (m *IngestMetrics) RecordBatch(received int, written, skipped int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Batches++
	m.stats.RecordsReceived += received
	m.stats.RecordsWritten += written
	m.stats.RecordsSkipped += skipped
}

// RecordFailure records a rolled-back batch and returns the error kind label
func (m *IngestMetrics) RecordFailure(received int, err error) string {
	kind := errorKind(err)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.FailedBatches++
	m.stats.RecordsReceived += received
	switch kind {
	case errKindValidation:
		m.stats.ValidationErrors++
	case errKindReference:
		m.stats.ReferenceErrors++
	case errKindUnique:
		m.stats.ConflictErrors++
	case errKindCoercion:
		m.stats.CoercionErrors++
	case errKindAbort:
		m.stats.AbortedBatches++
	default:
		m.stats.OtherErrors++
	}
	return kind
}

// Snapshot returns a copy of the current counters
func (m *IngestMetrics) Snapshot() IngestStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.stats
}

// String returns a formatted representation of the current counters
func (m *IngestMetrics) String() string {
	return m.Snapshot().String()
}
