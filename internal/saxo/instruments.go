package saxo

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/Polymerase3/elpis-v2/internal/models"
)

// instrumentsResponse is the envelope of the reference data search endpoint
type instrumentsResponse struct {
	Data []instrumentSummary `json:"Data"`
}

// instrumentSummary mirrors one search hit. The venue calls the uic field
// Identifier here.
type instrumentSummary struct {
	Identifier   int64  `json:"Identifier"`
	AssetType    string `json:"AssetType"`
	Symbol       string `json:"Symbol"`
	ExchangeID   string `json:"ExchangeId"`
	Description  string `json:"Description"`
	CurrencyCode string `json:"CurrencyCode"`
}

// SearchInstruments looks up venue instruments by keyword. With no explicit
// asset types every supported class is searched, one request per class. A
// venue-side error for a single class skips that class rather than aborting
// the whole search.
func (c *Client) SearchInstruments(ctx context.Context, keywords string, assetTypes ...models.AssetType) ([]models.Instrument, error) {
	if keywords == "" {
		return nil, fmt.Errorf("search keywords must not be empty")
	}
	if len(assetTypes) == 0 {
		assetTypes = models.AssetTypes()
	}

	results := make([]models.Instrument, 0)
	for _, at := range assetTypes {
		query := url.Values{}
		query.Set("AssetTypes", string(at))
		query.Set("Keywords", keywords)

		var page instrumentsResponse
		if err := c.get(ctx, instrumentsEndpoint, query, &page); err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				continue
			}
			return nil, err
		}

		for _, item := range page.Data {
			results = append(results, models.Instrument{
				UIC:         item.Identifier,
				AssetType:   models.AssetType(item.AssetType),
				Symbol:      item.Symbol,
				Exchange:    item.ExchangeID,
				Description: item.Description,
				Currency:    item.CurrencyCode,
			})
		}
		c.logger.LogInstrumentSearch(keywords, string(at), len(page.Data))
	}

	return results, nil
}
