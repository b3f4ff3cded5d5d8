// Package metrics defines feed and venue client metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Feed-specific gauge and counter vectors
var (
	FeedConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "elpis",
		Name:      "feed_connected",
		Help:      "Whether the streaming price feed is connected (1) or not (0)",
	})

	FeedMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elpis",
		Name:      "feed_messages_total",
		Help:      "Total number of feed messages by type",
	}, []string{"type"})

	FeedReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "elpis",
		Name:      "feed_reconnects_total",
		Help:      "Total number of feed reconnect attempts",
	})

	FeedBufferedBars = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "elpis",
		Name:      "feed_buffered_bars",
		Help:      "Number of price bars buffered and awaiting flush",
	})
)

// Venue REST client vectors
var (
	VenueRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elpis",
		Name:      "venue_requests_total",
		Help:      "Total number of venue API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	VenueRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "elpis",
		Name:      "venue_request_duration_seconds",
		Help:      "Duration of venue API requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// SetFeedConnected flips the feed connectivity gauge.
func SetFeedConnected(connected bool) {
	if connected {
		FeedConnected.Set(1)
		return
	}
	FeedConnected.Set(0)
}

// RecordFeedMessage records one received feed message.
func RecordFeedMessage(msgType string) {
	FeedMessagesTotal.WithLabelValues(msgType).Inc()
}

// RecordFeedReconnect records a feed reconnect attempt.
func RecordFeedReconnect() {
	FeedReconnectsTotal.Inc()
}

// UpdateFeedBufferedBars updates the buffered bar count gauge.
func UpdateFeedBufferedBars(count int) {
	FeedBufferedBars.Set(float64(count))
}

// RecordVenueRequest records one venue API request.
func RecordVenueRequest(endpoint, status string, durationSeconds float64) {
	VenueRequestsTotal.WithLabelValues(endpoint, status).Inc()
	VenueRequestDuration.WithLabelValues(endpoint).Observe(durationSeconds)
}
