package saxo

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/Polymerase3/elpis-v2/internal/models"
)

// ChartRequest describes one chart data pull. InstrumentID is the internal
// database id the returned bars are stamped with; UIC and AssetType identify
// the instrument on the venue side.
type ChartRequest struct {
	InstrumentID int64
	UIC          int64
	AssetType    models.AssetType
	Interval     models.IntervalCode
	From         time.Time
	To           time.Time // zero means now
}

// chartResponse is the envelope of the venue chart endpoint
type chartResponse struct {
	Data []Sample `json:"Data"`
}

// Sample mirrors one row of the venue chart payload, both on the REST
// endpoint and on streamed chart updates. Which fields the venue fills
// depends on the asset class: trade OHLC for stocks, ask/bid pairs for
// quoted classes such as FX spot.
type Sample struct {
	Time     time.Time `json:"Time"`
	Open     *float64  `json:"Open"`
	High     *float64  `json:"High"`
	Low      *float64  `json:"Low"`
	Close    *float64  `json:"Close"`
	Interest *float64  `json:"Interest"`
	OpenAsk  *float64  `json:"OpenAsk"`
	OpenBid  *float64  `json:"OpenBid"`
	HighAsk  *float64  `json:"HighAsk"`
	HighBid  *float64  `json:"HighBid"`
	LowAsk   *float64  `json:"LowAsk"`
	LowBid   *float64  `json:"LowBid"`
	CloseAsk *float64  `json:"CloseAsk"`
	CloseBid *float64  `json:"CloseBid"`
	Volume   *float64  `json:"Volume"`
}

// PriceBar converts the sample into a storable bar for the given instrument
// and interval
func (s Sample) PriceBar(instrumentID int64, interval models.IntervalCode) models.PriceBar {
	return models.PriceBar{
		InstrumentID:  instrumentID,
		IntervalID:    interval,
		TimePrice:     s.Time.UTC(),
		PriceOpen:     s.Open,
		PriceHigh:     s.High,
		PriceLow:      s.Low,
		PriceClose:    s.Close,
		PriceInterest: s.Interest,
		PriceOpenAsk:  s.OpenAsk,
		PriceOpenBid:  s.OpenBid,
		PriceHighAsk:  s.HighAsk,
		PriceHighBid:  s.HighBid,
		PriceLowAsk:   s.LowAsk,
		PriceLowBid:   s.LowBid,
		PriceCloseAsk: s.CloseAsk,
		PriceCloseBid: s.CloseBid,
		Volume:        s.Volume,
	}
}

// GetChartData pulls historical bars for one instrument and interval. The
// venue caps each response at 1200 rows, so the window is walked in fixed
// chunks of pageSize*horizon minutes, Mode=From, until the whole range is
// covered.
func (c *Client) GetChartData(ctx context.Context, req ChartRequest) ([]models.PriceBar, error) {
	if req.InstrumentID <= 0 {
		return nil, fmt.Errorf("chart request needs a resolved instrument id")
	}
	if req.UIC <= 0 {
		return nil, fmt.Errorf("chart request needs a venue uic")
	}
	horizon := int(req.Interval.Minutes())
	if horizon <= 0 {
		return nil, models.ErrInvalidInterval
	}

	end := req.To
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if !req.From.Before(end) {
		return nil, fmt.Errorf("chart window is empty: from %s to %s", req.From.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	totalMinutes := end.Sub(req.From).Minutes()
	chunks := int(math.Ceil(totalMinutes / float64(horizon) / float64(c.pageSize)))

	start := time.Now()
	bars := make([]models.PriceBar, 0)
	cursor := req.From.UTC()
	pages := 0

	for i := 0; i < chunks; i++ {
		query := url.Values{}
		if c.accountKey != "" {
			query.Set("AccountKey", c.accountKey)
		}
		query.Set("Uic", strconv.FormatInt(req.UIC, 10))
		query.Set("AssetType", string(req.AssetType))
		query.Set("Horizon", strconv.Itoa(horizon))
		query.Set("Mode", "From")
		query.Set("Time", cursor.Format(time.RFC3339))
		query.Set("Count", strconv.Itoa(c.pageSize))

		var page chartResponse
		if err := c.get(ctx, chartEndpoint, query, &page); err != nil {
			return nil, err
		}
		pages++

		for _, row := range page.Data {
			bars = append(bars, row.PriceBar(req.InstrumentID, req.Interval))
		}

		cursor = cursor.Add(time.Duration(c.pageSize*horizon) * time.Minute)
	}

	c.logger.LogChartRequest(req.UIC, string(req.AssetType), req.Interval.Label(), pages, len(bars), float64(time.Since(start).Milliseconds()))
	return bars, nil
}
