// Package logger provides venue API logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// VenueLogger provides dedicated logging for venue API calls.
type VenueLogger struct {
	*logrus.Entry
}

// NewVenueLogger creates a new venue logger.
func NewVenueLogger(baseLogger *logrus.Logger) *VenueLogger {
	return &VenueLogger{
		Entry: baseLogger.WithField("component", "venue"),
	}
}

// LogChartRequest logs a completed chart data request.
func (vl *VenueLogger) LogChartRequest(uic int64, assetType, interval string, pages, rows int, latencyMs float64) {
	vl.WithFields(logrus.Fields{
		"uic":        uic,
		"asset_type": assetType,
		"interval":   interval,
		"pages":      pages,
		"rows":       rows,
		"latency_ms": latencyMs,
	}).Info("Chart data request completed")
}

// LogInstrumentSearch logs an instrument search request.
func (vl *VenueLogger) LogInstrumentSearch(query, assetType string, results int) {
	vl.WithFields(logrus.Fields{
		"query":      query,
		"asset_type": assetType,
		"results":    results,
	}).Info("Instrument search completed")
}

// LogRateLimitWait logs time spent waiting on the client rate limiter.
func (vl *VenueLogger) LogRateLimitWait(endpoint string, waitMs float64) {
	vl.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"wait_ms":  waitMs,
	}).Debug("Rate limiter delayed request")
}

// LogRequestRetry logs a retried venue request.
func (vl *VenueLogger) LogRequestRetry(endpoint string, attempt, status int) {
	vl.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"attempt":  attempt,
		"status":   status,
	}).Warn("Venue request retried")
}

// LogRequestError logs a failed venue request.
func (vl *VenueLogger) LogRequestError(endpoint, errorReason string) {
	vl.WithFields(logrus.Fields{
		"endpoint":     endpoint,
		"error_reason": errorReason,
	}).Error("Venue request failed")
}
