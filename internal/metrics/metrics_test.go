package metrics

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistry(t *testing.T) {
	// Initialize the registry
	InitRegistry()
	registry := GetRegistry()

	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)
}

func TestRecordBatchOK(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordBatchOK(EntityPrice, 1200, 0, 0.25, 1.7e9)
	})
}

func TestRecordBatchFailed(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordBatchFailed(EntityAnalysis, 0.1)
	})
}

func TestRecordBatchReceived(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name    string
		entity  string
		records int
	}{
		{
			name:    "price batch",
			entity:  EntityPrice,
			records: 1200,
		},
		{
			name:    "empty batch",
			entity:  EntityInstrument,
			records: 0,
		},
		{
			name:    "large batch",
			entity:  EntityPrice,
			records: 50000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordBatchReceived(tt.entity, tt.records)
			})
		})
	}
}

func TestRecordIngestError(t *testing.T) {
	InitRegistry()

	for _, kind := range []string{"validation", "reference", "unique", "coercion", "abort", "other"} {
		assert.NotPanics(t, func() {
			RecordIngestError(kind)
		})
	}
}

func TestUpdateHypertableBytes(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name  string
		table string
		bytes int64
	}{
		{
			name:  "price hypertable",
			table: "market.price",
			bytes: 104857600,
		},
		{
			name:  "empty table",
			table: "market.result",
			bytes: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				UpdateHypertableBytes(tt.table, tt.bytes)
			})
		})
	}
}

func TestFeedMetrics(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		SetFeedConnected(true)
		SetFeedConnected(false)
	})

	assert.NotPanics(t, func() {
		RecordFeedMessage("price")
		RecordFeedReconnect()
		UpdateFeedBufferedBars(42)
	})

	assert.NotPanics(t, func() {
		RecordVenueRequest("charts", "200", 0.35)
	})
}

func TestMetricsHandler(t *testing.T) {
	InitRegistry()

	handler := Handler()
	assert.NotNil(t, handler)
	assert.Implements(t, (*http.Handler)(nil), handler)
}

func BenchmarkRecordBatchOK(b *testing.B) {
	InitRegistry()

	for i := 0; i < b.N; i++ {
		RecordBatchOK(EntityPrice, 1000, 0, 0.2, 1.7e9)
	}
}

func BenchmarkRecordIngestError(b *testing.B) {
	InitRegistry()

	for i := 0; i < b.N; i++ {
		RecordIngestError("validation")
	}
}
