// Package logger provides feed-specific logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// FeedLogger provides dedicated logging for the streaming price feed.
type FeedLogger struct {
	*logrus.Entry
}

// NewFeedLogger creates a new feed logger.
func NewFeedLogger(baseLogger *logrus.Logger) *FeedLogger {
	return &FeedLogger{
		Entry: baseLogger.WithField("component", "feed"),
	}
}

// LogStreamConnected logs an established stream connection.
func (fl *FeedLogger) LogStreamConnected(url string, attempt int) {
	fl.WithFields(logrus.Fields{
		"url":     url,
		"attempt": attempt,
	}).Info("Stream connected")
}

// LogStreamDisconnected logs a dropped stream connection.
func (fl *FeedLogger) LogStreamDisconnected(reason string, uptime time.Duration) {
	fl.WithFields(logrus.Fields{
		"reason": reason,
		"uptime": uptime.String(),
	}).Warn("Stream disconnected")
}

// LogReconnectScheduled logs the next reconnect attempt and its backoff.
func (fl *FeedLogger) LogReconnectScheduled(attempt int, backoff time.Duration) {
	fl.WithFields(logrus.Fields{
		"attempt": attempt,
		"backoff": backoff.String(),
	}).Info("Stream reconnect scheduled")
}

// LogSubscription logs an instrument subscription on the stream.
func (fl *FeedLogger) LogSubscription(uic int64, assetType, interval string) {
	fl.WithFields(logrus.Fields{
		"uic":        uic,
		"asset_type": assetType,
		"interval":   interval,
	}).Info("Instrument subscribed")
}

// LogFlush logs a buffered bar flush into the database.
func (fl *FeedLogger) LogFlush(bars int, written, skipped int64, duration time.Duration) {
	fl.WithFields(logrus.Fields{
		"bars":     bars,
		"written":  written,
		"skipped":  skipped,
		"duration": duration.String(),
	}).Info("Feed buffer flushed")
}

// LogBufferOverflow logs bars dropped because the buffer was full.
func (fl *FeedLogger) LogBufferOverflow(dropped, capacity int) {
	fl.WithFields(logrus.Fields{
		"dropped":  dropped,
		"capacity": capacity,
	}).Error("Feed buffer overflow")
}
