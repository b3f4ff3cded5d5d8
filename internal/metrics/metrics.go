// Package metrics provides the centralized Prometheus metrics registry for the
// ingestion engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Entity label values used across ingestion metrics
const (
	EntityPrice      = "price"
	EntityInstrument = "instrument"
	EntityStrategy   = "strategy"
	EntityAnalysis   = "analysis"
)

// Counter metrics
var (
	BatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elpis",
		Name:      "ingest_batches_total",
		Help:      "Total number of ingested batches by entity and status",
	}, []string{"entity", "status"})
	RecordsWrittenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elpis",
		Name:      "ingest_records_written_total",
		Help:      "Total number of records written by entity",
	}, []string{"entity"})
	RecordsSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elpis",
		Name:      "ingest_records_skipped_total",
		Help:      "Total number of records skipped by conflict policy",
	}, []string{"entity"})
	IngestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elpis",
		Name:      "ingest_errors_total",
		Help:      "Total number of ingestion failures by error kind",
	}, []string{"kind"})
	SpoolFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elpis",
		Name:      "spool_files_total",
		Help:      "Total number of spool files routed by entity and outcome",
	}, []string{"entity", "outcome"})
)

// Gauge metrics
var (
	ResolverCacheHitRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "elpis",
		Name:      "resolver_cache_hit_ratio",
		Help:      "Hit ratio of the reference data resolver cache",
	})
	HypertableBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "elpis",
		Name:      "hypertable_bytes",
		Help:      "On-disk size of each hypertable in bytes",
	}, []string{"table"})
	LastIngestTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "elpis",
		Name:      "last_ingest_timestamp_seconds",
		Help:      "Unix time of the last successful batch by entity",
	}, []string{"entity"})
)

// Histogram metrics
var (
	BatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "elpis",
		Name:      "ingest_batch_duration_seconds",
		Help:      "Duration of batch ingestion in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"entity"})
	BatchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "elpis",
		Name:      "ingest_batch_size_records",
		Help:      "Number of records per ingested batch",
		Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
	}, []string{"entity"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		// Register counter metrics
		registry.MustRegister(BatchesTotal)
		registry.MustRegister(RecordsWrittenTotal)
		registry.MustRegister(RecordsSkippedTotal)
		registry.MustRegister(IngestErrorsTotal)
		registry.MustRegister(SpoolFilesTotal)

		// Register gauge metrics
		registry.MustRegister(ResolverCacheHitRatio)
		registry.MustRegister(HypertableBytes)
		registry.MustRegister(LastIngestTimestamp)

		// Register histogram metrics
		registry.MustRegister(BatchDuration)
		registry.MustRegister(BatchSize)

		// Register feed metrics
		registry.MustRegister(FeedConnected)
		registry.MustRegister(FeedMessagesTotal)
		registry.MustRegister(FeedReconnectsTotal)
		registry.MustRegister(FeedBufferedBars)
		registry.MustRegister(VenueRequestsTotal)
		registry.MustRegister(VenueRequestDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordBatchOK records a committed batch with its outcome counts.
func RecordBatchOK(entity string, written, skipped int64, durationSeconds float64, unixNow float64) {
	BatchesTotal.WithLabelValues(entity, "ok").Inc()
	RecordsWrittenTotal.WithLabelValues(entity).Add(float64(written))
	RecordsSkippedTotal.WithLabelValues(entity).Add(float64(skipped))
	BatchDuration.WithLabelValues(entity).Observe(durationSeconds)
	LastIngestTimestamp.WithLabelValues(entity).Set(unixNow)
}

// RecordBatchFailed records a rolled-back batch.
func RecordBatchFailed(entity string, durationSeconds float64) {
	BatchesTotal.WithLabelValues(entity, "failed").Inc()
	BatchDuration.WithLabelValues(entity).Observe(durationSeconds)
}

// RecordBatchReceived records the incoming size of a batch.
func RecordBatchReceived(entity string, records int) {
	BatchSize.WithLabelValues(entity).Observe(float64(records))
}

// RecordIngestError records an ingestion failure by taxonomy kind.
func RecordIngestError(kind string) {
	IngestErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordSpoolFile records one spool file routed to processed or failed.
func RecordSpoolFile(entity, outcome string) {
	SpoolFilesTotal.WithLabelValues(entity, outcome).Inc()
}

// UpdateResolverHitRatio updates the resolver cache hit ratio gauge.
func UpdateResolverHitRatio(ratio float64) {
	ResolverCacheHitRatio.Set(ratio)
}

// UpdateHypertableBytes updates the size gauge for one hypertable.
func UpdateHypertableBytes(table string, bytes int64) {
	HypertableBytes.WithLabelValues(table).Set(float64(bytes))
}
