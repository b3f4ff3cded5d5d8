package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Polymerase3/elpis-v2/internal/models"
)

// Timestamp layouts accepted in ingest payloads. Values without a zone are
// interpreted as UTC.
var payloadTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// flexTime decodes venue and backtest timestamps in any of the accepted
// layouts
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return models.NewTypeCoercionError(-1, "timestamp", string(data))
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	for _, layout := range payloadTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return models.NewTypeCoercionError(-1, "timestamp", s)
}

// pricePayload shadows the bar timestamp so flexible layouts decode
type pricePayload struct {
	models.PriceBar
	TimePrice flexTime `json:"time_price"`
}

// analysisResultPayload shadows the equity-curve timepoint
type analysisResultPayload struct {
	models.Result
	Timepoint flexTime `json:"timepoint"`
}

// analysisPayload shadows the analysis window bounds and nested results
type analysisPayload struct {
	models.AnalysisWithChildren
	DateFrom flexTime                `json:"date_from"`
	DateTo   flexTime                `json:"date_to"`
	Results  []analysisResultPayload `json:"results"`
}

// splitBatch parses a payload into its top-level records. A single JSON object
// is accepted as a batch of one.
func splitBatch(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '{' {
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("invalid batch payload: %w", err)
	}
	return records, nil
}

// decodeError maps a per-record unmarshal failure onto the ingest error
// taxonomy, stamping the batch position
func decodeError(err error, record int) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return models.NewTypeCoercionError(record, typeErr.Field, typeErr.Value)
	}

	var coercion *models.TypeCoercionError
	if errors.As(err, &coercion) {
		coercion.Record = record
		return coercion
	}

	return fmt.Errorf("record %d: %w", record, err)
}

// DecodePriceBatch parses a JSON payload into price bars
func DecodePriceBatch(data []byte) ([]*models.PriceBar, error) {
	records, err := splitBatch(data)
	if err != nil {
		return nil, err
	}

	bars := make([]*models.PriceBar, 0, len(records))
	for i, raw := range records {
		var p pricePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, decodeError(err, i)
		}
		bar := p.PriceBar
		bar.TimePrice = p.TimePrice.Time
		bars = append(bars, &bar)
	}
	return bars, nil
}

// DecodeInstrumentBatch parses a JSON payload into instruments
func DecodeInstrumentBatch(data []byte) ([]*models.Instrument, error) {
	records, err := splitBatch(data)
	if err != nil {
		return nil, err
	}

	instruments := make([]*models.Instrument, 0, len(records))
	for i, raw := range records {
		var instr models.Instrument
		if err := json.Unmarshal(raw, &instr); err != nil {
			return nil, decodeError(err, i)
		}
		instruments = append(instruments, &instr)
	}
	return instruments, nil
}

// DecodeStrategyBatch parses a JSON payload into strategies
func DecodeStrategyBatch(data []byte) ([]*models.Strategy, error) {
	records, err := splitBatch(data)
	if err != nil {
		return nil, err
	}

	strategies := make([]*models.Strategy, 0, len(records))
	for i, raw := range records {
		var s models.Strategy
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, decodeError(err, i)
		}
		strategies = append(strategies, &s)
	}
	return strategies, nil
}

// DecodeAnalysisBatch parses a JSON payload into analyses with their nested
// parameter and result collections
func DecodeAnalysisBatch(data []byte) ([]*models.AnalysisWithChildren, error) {
	records, err := splitBatch(data)
	if err != nil {
		return nil, err
	}

	analyses := make([]*models.AnalysisWithChildren, 0, len(records))
	for i, raw := range records {
		var p analysisPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, decodeError(err, i)
		}

		awc := p.AnalysisWithChildren
		awc.DateFrom = p.DateFrom.Time
		awc.DateTo = p.DateTo.Time
		awc.Results = make([]models.Result, len(p.Results))
		for j, r := range p.Results {
			res := r.Result
			res.Timepoint = r.Timepoint.Time
			awc.Results[j] = res
		}
		analyses = append(analyses, &awc)
	}
	return analyses, nil
}
