package valuation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"autosniper/internal/normalize"
)

// Estimator is the external pricing service.
type Estimator interface {
	Estimate(ctx context.Context, snapshot Snapshot) (Estimate, error)
}

// EstimatorFunc adapts a function into an Estimator.
type EstimatorFunc func(ctx context.Context, snapshot Snapshot) (Estimate, error)

// Estimate calls f.
func (f EstimatorFunc) Estimate(ctx context.Context, snapshot Snapshot) (Estimate, error) {
	return f(ctx, snapshot)
}

// Estimate is a pricing service reply after normalisation. Every field is optional.
type Estimate struct {
	Price          decimal.NullDecimal
	RangeText      string
	MaxBid         decimal.NullDecimal
	ExpectedProfit decimal.NullDecimal
	MarginPct      decimal.NullDecimal
	Score          *float64
	Notes          []string
}

// Response is the wire shape returned by the pricing service. Fields are
// loosely typed because the service mixes strings and numbers.
type Response struct {
	PriceEstimate       any `json:"carsales_price_estimate"`
	PriceRange          any `json:"carsales_price_range"`
	RecommendedMaxBid   any `json:"recommended_max_bid"`
	ExpectedProfit      any `json:"expected_profit"`
	ProfitMarginPercent any `json:"profit_margin_percent"`
	Score               any `json:"score_out_of_10"`
	ConfidenceNotes     any `json:"confidence_notes"`
}

// ParseEstimate decodes a JSON reply. Unparseable fields are left empty.
func ParseEstimate(raw []byte) (Estimate, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Estimate{}, fmt.Errorf("decode pricing response: %w", err)
	}
	return resp.Normalize(), nil
}

// Normalize converts the wire response into an Estimate.
func (r Response) Normalize() Estimate {
	est := Estimate{
		Price:          nullCurrency(r.PriceEstimate),
		MaxBid:         nullCurrency(r.RecommendedMaxBid),
		ExpectedProfit: nullCurrency(r.ExpectedProfit),
		MarginPct:      nullCurrency(r.ProfitMarginPercent),
		Notes:          splitNotes(r.ConfidenceNotes),
	}
	if text, ok := r.PriceRange.(string); ok {
		est.RangeText = strings.TrimSpace(text)
	}
	if score, ok := normalize.Currency(r.Score); ok {
		v := clampScore(score).InexactFloat64()
		est.Score = &v
	}
	return est
}

func nullCurrency(v any) decimal.NullDecimal {
	if d, ok := normalize.Currency(v); ok {
		return decimal.NewNullDecimal(d)
	}
	return decimal.NullDecimal{}
}

// splitNotes accepts a list of strings or one ";"-separated string.
func splitNotes(v any) []string {
	var raw []string
	switch n := v.(type) {
	case string:
		raw = []string{n}
	case []string:
		raw = n
	case []any:
		for _, item := range n {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	var notes []string
	for _, r := range raw {
		for _, part := range strings.Split(r, ";") {
			part = strings.TrimSpace(part)
			if part == "" || strings.EqualFold(part, "none") {
				continue
			}
			notes = append(notes, part)
		}
	}
	return notes
}
