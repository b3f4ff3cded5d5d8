package saxo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polymerase3/elpis-v2/internal/config"
	"github.com/Polymerase3/elpis-v2/internal/models"
)

func newTestClient(serverURL string, pageSize int) *Client {
	cfg := &config.SaxoConfig{
		APIURL:                serverURL,
		StreamURL:             "wss://stream.invalid",
		Token:                 "test-token",
		AccountKey:            "acc-key",
		RequestTimeoutSeconds: 5,
		RetryAttempts:         0,
		RateLimitPerSecond:    1000,
		RateLimitBurst:        1000,
		PageSize:              pageSize,
	}
	return NewClient(cfg, nil)
}

func f(v float64) *float64 { return &v }

func TestGetChartDataSinglePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chart/v1/charts", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "acc-key", q.Get("AccountKey"))
		assert.Equal(t, "21", q.Get("Uic"))
		assert.Equal(t, "FxSpot", q.Get("AssetType"))
		assert.Equal(t, "60", q.Get("Horizon"))
		assert.Equal(t, "From", q.Get("Mode"))
		assert.Equal(t, "1200", q.Get("Count"))

		resp := chartResponse{Data: []Sample{
			{
				Time:     time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
				OpenAsk:  f(1.0945),
				OpenBid:  f(1.0943),
				HighAsk:  f(1.0951),
				HighBid:  f(1.0949),
				LowAsk:   f(1.0940),
				LowBid:   f(1.0938),
				CloseAsk: f(1.0948),
				CloseBid: f(1.0946),
			},
			{
				Time:     time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC),
				OpenAsk:  f(1.0948),
				OpenBid:  f(1.0946),
				HighAsk:  f(1.0957),
				HighBid:  f(1.0955),
				LowAsk:   f(1.0944),
				LowBid:   f(1.0942),
				CloseAsk: f(1.0952),
				CloseBid: f(1.0950),
			},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1200)

	bars, err := client.GetChartData(context.Background(), ChartRequest{
		InstrumentID: 7,
		UIC:          21,
		AssetType:    models.AssetFxSpot,
		Interval:     models.Interval1h,
		From:         time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		To:           time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, int64(7), bars[0].InstrumentID)
	assert.Equal(t, models.Interval1h, bars[0].IntervalID)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), bars[0].TimePrice)
	require.NotNil(t, bars[0].PriceCloseAsk)
	assert.InDelta(t, 1.0948, *bars[0].PriceCloseAsk, 1e-9)
	assert.Nil(t, bars[0].PriceClose)
	assert.Nil(t, bars[0].Volume)
}

func TestGetChartDataPagination(t *testing.T) {
	var requestTimes []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor, err := time.Parse(time.RFC3339, r.URL.Query().Get("Time"))
		require.NoError(t, err)
		requestTimes = append(requestTimes, r.URL.Query().Get("Time"))

		// Two bars per page, one hour apart, starting at the cursor
		resp := chartResponse{Data: []Sample{
			{Time: cursor, Open: f(100), High: f(101), Low: f(99), Close: f(100.5), Volume: f(1000)},
			{Time: cursor.Add(time.Hour), Open: f(100.5), High: f(102), Low: f(100), Close: f(101.5), Volume: f(1100)},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)

	bars, err := client.GetChartData(context.Background(), ChartRequest{
		InstrumentID: 3,
		UIC:          1906,
		AssetType:    models.AssetStock,
		Interval:     models.Interval1h,
		From:         time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		To:           time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// 240 minutes / 60 minute bars / 2 rows per page = 2 pages
	assert.Equal(t, []string{"2024-01-02T10:00:00Z", "2024-01-02T12:00:00Z"}, requestTimes)
	require.Len(t, bars, 4)
	assert.Equal(t, time.Date(2024, 1, 2, 13, 0, 0, 0, time.UTC), bars[3].TimePrice)
}

func TestGetChartDataAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1200)

	_, err := client.GetChartData(context.Background(), ChartRequest{
		InstrumentID: 7,
		UIC:          21,
		AssetType:    models.AssetFxSpot,
		Interval:     models.Interval1h,
		From:         time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		To:           time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)

	var authErr *AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestGetChartDataValidation(t *testing.T) {
	client := newTestClient("http://localhost:1", 1200)
	from := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  ChartRequest
	}{
		{
			name: "missing instrument id",
			req:  ChartRequest{UIC: 21, AssetType: models.AssetFxSpot, Interval: models.Interval1h, From: from},
		},
		{
			name: "missing uic",
			req:  ChartRequest{InstrumentID: 7, AssetType: models.AssetFxSpot, Interval: models.Interval1h, From: from},
		},
		{
			name: "unknown interval",
			req:  ChartRequest{InstrumentID: 7, UIC: 21, AssetType: models.AssetFxSpot, Interval: models.IntervalCode(99), From: from},
		},
		{
			name: "empty window",
			req:  ChartRequest{InstrumentID: 7, UIC: 21, AssetType: models.AssetFxSpot, Interval: models.Interval1h, From: from, To: from.Add(-time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.GetChartData(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
}

func TestSearchInstruments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ref/v1/instruments", r.URL.Path)
		assert.Equal(t, "FxSpot", r.URL.Query().Get("AssetTypes"))
		assert.Equal(t, "EURUSD", r.URL.Query().Get("Keywords"))

		resp := instrumentsResponse{Data: []instrumentSummary{
			{
				Identifier:   21,
				AssetType:    "FxSpot",
				Symbol:       "EURUSD",
				ExchangeID:   "SBFX",
				Description:  "Euro/US Dollar",
				CurrencyCode: "USD",
			},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1200)

	instruments, err := client.SearchInstruments(context.Background(), "EURUSD", models.AssetFxSpot)
	require.NoError(t, err)
	require.Len(t, instruments, 1)

	assert.Equal(t, int64(21), instruments[0].UIC)
	assert.Equal(t, models.AssetFxSpot, instruments[0].AssetType)
	assert.Equal(t, "EURUSD", instruments[0].Symbol)
	assert.Equal(t, "SBFX", instruments[0].Exchange)
	assert.Equal(t, "USD", instruments[0].Currency)
}

func TestSearchInstrumentsSkipsFailingClass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("AssetTypes") == "FxSpot" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		resp := instrumentsResponse{Data: []instrumentSummary{
			{Identifier: 1906, AssetType: "Stock", Symbol: "AAPL:xnas", CurrencyCode: "USD"},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1200)

	instruments, err := client.SearchInstruments(context.Background(), "apple", models.AssetFxSpot, models.AssetStock)
	require.NoError(t, err)
	require.Len(t, instruments, 1)
	assert.Equal(t, int64(1906), instruments[0].UIC)
}

func TestSearchInstrumentsAllClasses(t *testing.T) {
	var searched []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		searched = append(searched, r.URL.Query().Get("AssetTypes"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(instrumentsResponse{})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1200)

	_, err := client.SearchInstruments(context.Background(), "gold")
	require.NoError(t, err)

	// One request per supported asset class
	assert.Len(t, searched, len(models.AssetTypes()))
}

func TestSearchInstrumentsEmptyKeywords(t *testing.T) {
	client := newTestClient("http://localhost:1", 1200)

	_, err := client.SearchInstruments(context.Background(), "")
	assert.Error(t, err)
}

func TestSetToken(t *testing.T) {
	client := newTestClient("http://localhost:1", 1200)

	assert.Equal(t, "test-token", client.Token())
	client.SetToken("rotated-token")
	assert.Equal(t, "rotated-token", client.Token())
}

func TestRetryPolicy(t *testing.T) {
	policy := retryPolicy()

	tests := []struct {
		name       string
		statusCode int
		err        error
		retry      bool
	}{
		{"rate limited", 429, nil, true},
		{"server error", 500, nil, true},
		{"bad gateway", 502, nil, true},
		{"not found", 404, nil, false},
		{"ok", 200, nil, false},
		{"network error", 0, fmt.Errorf("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode != 0 {
				resp = &http.Response{StatusCode: tt.statusCode}
			}
			retry, _ := policy(context.Background(), resp, tt.err)
			assert.Equal(t, tt.retry, retry)
		})
	}
}
