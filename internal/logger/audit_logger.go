// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogBatchCommitted logs a successfully committed ingest batch.
func (al *AuditLogger) LogBatchCommitted(batchID, entity string, received int, written, skipped int64, duration time.Duration) {
	al.WithFields(logrus.Fields{
		"batch_id": batchID,
		"entity":   entity,
		"received": received,
		"written":  written,
		"skipped":  skipped,
		"duration": duration.String(),
	}).Info("Batch committed")
}

// LogBatchRejected logs a rolled-back ingest batch.
func (al *AuditLogger) LogBatchRejected(batchID, entity string, received int, kind, reason string) {
	al.WithFields(logrus.Fields{
		"batch_id": batchID,
		"entity":   entity,
		"received": received,
		"kind":     kind,
		"reason":   reason,
	}).Warn("Batch rejected")
}

// LogFileIngested logs a spool file processed end to end.
func (al *AuditLogger) LogFileIngested(path, entity string, records int, movedTo string) {
	al.WithFields(logrus.Fields{
		"path":     path,
		"entity":   entity,
		"records":  records,
		"moved_to": movedTo,
	}).Info("Spool file ingested")
}

// LogFileQuarantined logs a spool file moved aside after a failed ingest.
func (al *AuditLogger) LogFileQuarantined(path, entity, reason, movedTo string) {
	al.WithFields(logrus.Fields{
		"path":     path,
		"entity":   entity,
		"reason":   reason,
		"moved_to": movedTo,
	}).Warn("Spool file quarantined")
}

// LogManualDelete logs rows removed through the management CLI.
func (al *AuditLogger) LogManualDelete(entity string, keys int, deletedRows int64, requestedBy string) {
	al.WithFields(logrus.Fields{
		"entity":       entity,
		"keys":         keys,
		"deleted_rows": deletedRows,
		"requested_by": requestedBy,
	}).Warn("Manual delete executed")
}
