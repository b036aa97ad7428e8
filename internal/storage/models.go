package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"autosniper/internal/outcome"
	"autosniper/internal/valuation"
)

func urlKey(url string) string {
	return strings.TrimSpace(url)
}

func encodeResult(res valuation.Result) ([]byte, error) {
	res.Cached = false
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode valuation: %w", err)
	}
	return payload, nil
}

func decodeResult(payload []byte) (valuation.Result, error) {
	var res valuation.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return valuation.Result{}, fmt.Errorf("decode valuation: %w", err)
	}
	return res, nil
}

func encodeRecord(rec outcome.Record) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode scored record: %w", err)
	}
	return payload, nil
}

// nullable renders an optional decimal as a driver value.
func nullable(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

// settled filters records worth persisting to scored history.
func settled(records []outcome.Record) []outcome.Record {
	out := make([]outcome.Record, 0, len(records))
	for _, r := range records {
		if r.URL != "" && r.Settled() {
			out = append(out, r)
		}
	}
	return out
}
