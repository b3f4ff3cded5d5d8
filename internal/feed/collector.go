package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Polymerase3/elpis-v2/internal/config"
	"github.com/Polymerase3/elpis-v2/internal/logger"
	"github.com/Polymerase3/elpis-v2/internal/metrics"
	"github.com/Polymerase3/elpis-v2/internal/models"
	"github.com/Polymerase3/elpis-v2/internal/saxo"
	"github.com/Polymerase3/elpis-v2/internal/service"
)

const flushTimeout = 30 * time.Second

// BarIngester writes price bar batches transactionally. Satisfied by
// service.IngestionEngine.
type BarIngester interface {
	IngestPrices(ctx context.Context, bars []*models.PriceBar) (*service.BatchReport, error)
}

// Collector buffers streamed bars and flushes them into the database in
// batches, either when the buffer fills or on a fixed interval.
type Collector struct {
	stream        *StreamClient
	ingester      BarIngester
	bufferSize    int
	flushInterval time.Duration
	logger        *logger.FeedLogger

	mu     sync.Mutex
	buffer []*models.PriceBar
	subs   map[string]Subscription
	stats  CollectorStats
	done   chan struct{}
}

// CollectorStats tracks collector performance
type CollectorStats struct {
	MessagesProcessed int64
	BufferFlushes     int64
	BarsStored        int64
	BarsDropped       int64
	Errors            int64
	LastFlushTime     time.Time
	Buffered          int
}

// NewCollector creates a new streaming bar collector
func NewCollector(stream *StreamClient, ingester BarIngester, cfg *config.FeedConfig, baseLogger *logrus.Logger) *Collector {
	if baseLogger == nil {
		baseLogger = logrus.New()
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 500
	}
	flushInterval := cfg.FlushInterval()
	if flushInterval <= 0 {
		flushInterval = 15 * time.Second
	}

	return &Collector{
		stream:        stream,
		ingester:      ingester,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		buffer:        make([]*models.PriceBar, 0, bufferSize),
		subs:          make(map[string]Subscription),
		done:          make(chan struct{}),
		logger:        logger.NewFeedLogger(baseLogger),
	}
}

// Start registers the stream handler, sends all subscriptions and begins the
// periodic flush loop. The stream itself is driven separately via Run.
func (c *Collector) Start(subs []Subscription) error {
	if len(subs) == 0 {
		return fmt.Errorf("at least one subscription required")
	}

	c.stream.AddHandler(c.onMessage)

	c.mu.Lock()
	for _, sub := range subs {
		c.subs[sub.ReferenceID] = sub
	}
	c.mu.Unlock()

	for _, sub := range subs {
		if err := c.stream.Subscribe(sub); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", sub.ReferenceID, err)
		}
	}

	go c.flushLoop()
	return nil
}

// onMessage converts one streamed chart update into buffered bars
func (c *Collector) onMessage(referenceID string, data json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.MessagesProcessed++

	sub, ok := c.subs[referenceID]
	if !ok {
		// Not one of ours, e.g. a subscription drained after unsubscribe
		return nil
	}

	var rows []saxo.Sample
	if err := json.Unmarshal(data, &rows); err != nil {
		c.stats.Errors++
		return fmt.Errorf("failed to unmarshal chart update: %w", err)
	}

	for _, row := range rows {
		bar := row.PriceBar(sub.InstrumentID, sub.Interval)
		c.buffer = append(c.buffer, &bar)
	}

	metrics.UpdateFeedBufferedBars(len(c.buffer))

	if len(c.buffer) >= c.bufferSize {
		c.flushLocked()
	}

	return nil
}

// flushLocked writes the buffer through the ingestion engine. The caller
// must hold c.mu.
func (c *Collector) flushLocked() {
	if len(c.buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	batch := c.buffer
	report, err := c.ingester.IngestPrices(ctx, batch)
	if err != nil {
		c.stats.Errors++

		if permanentIngestFailure(err) {
			// A poisoned batch would never succeed on retry
			c.stats.BarsDropped += int64(len(batch))
			c.logger.WithError(err).WithField("bars", len(batch)).Error("Dropping unprocessable feed batch")
			c.buffer = make([]*models.PriceBar, 0, c.bufferSize)
			metrics.UpdateFeedBufferedBars(0)
			return
		}

		// Transient failure: keep the bars and retry on the next flush,
		// shedding the oldest ones once the buffer doubles its capacity
		if len(c.buffer) >= 2*c.bufferSize {
			dropped := len(c.buffer) - c.bufferSize
			c.stats.BarsDropped += int64(dropped)
			c.buffer = append(make([]*models.PriceBar, 0, c.bufferSize), c.buffer[dropped:]...)
			c.logger.LogBufferOverflow(dropped, c.bufferSize)
		}
		metrics.UpdateFeedBufferedBars(len(c.buffer))
		return
	}

	c.logger.LogFlush(report.Received, report.Written, report.Skipped, report.Duration)

	c.stats.BarsStored += report.Written
	c.stats.BufferFlushes++
	c.stats.LastFlushTime = time.Now()
	c.buffer = make([]*models.PriceBar, 0, c.bufferSize)
	metrics.UpdateFeedBufferedBars(0)
}

// permanentIngestFailure reports whether the batch can never succeed as-is
func permanentIngestFailure(err error) bool {
	var validation *models.ValidationError
	var reference *models.ReferenceError
	var coercion *models.TypeCoercionError
	var conflict *models.UniqueConflictError

	return errors.As(err, &validation) ||
		errors.As(err, &reference) ||
		errors.As(err, &coercion) ||
		errors.As(err, &conflict)
}

// flushLoop periodically flushes the buffer
func (c *Collector) flushLoop() {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()

		case <-c.done:
			return
		}
	}
}

// Stop flushes any remaining bars and shuts the collector down
func (c *Collector) Stop() error {
	close(c.done)

	c.mu.Lock()
	c.flushLocked()
	c.mu.Unlock()

	if c.stream == nil {
		return nil
	}
	return c.stream.Close()
}

// Stats returns a snapshot of the collector counters
func (c *Collector) Stats() CollectorStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Buffered = len(c.buffer)
	return stats
}
