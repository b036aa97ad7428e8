package valuation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status classifies how much pricing evidence backed a result.
type Status string

const (
	// StatusPriced means a headline resale estimate was available.
	StatusPriced Status = "priced"
	// StatusFloorOnly means the bid comes only from the live bid or historical floor.
	StatusFloorOnly Status = "floor_only"
	// StatusUnpriced means no usable number existed at all.
	StatusUnpriced Status = "unpriced"
)

// Result is a finalised bid recommendation, cached by URL.
type Result struct {
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	AnalyzedAt time.Time `json:"analysis_timestamp"`
	Status     Status    `json:"status"`

	PriceEstimate     decimal.NullDecimal `json:"carsales_price_estimate"`
	PriceRange        string              `json:"carsales_price_range,omitempty"`
	BreakEvenBid      decimal.NullDecimal `json:"break_even_bid"`
	RecommendedMaxBid decimal.NullDecimal `json:"recommended_max_bid"`
	ExpectedProfit    decimal.NullDecimal `json:"expected_profit"`
	ProfitMarginPct   decimal.NullDecimal `json:"profit_margin_percent"`
	Score             float64             `json:"score_out_of_10"`
	Notes             []string            `json:"confidence_notes"`

	CurrentBid     decimal.NullDecimal `json:"current_bid"`
	OdometerFactor decimal.Decimal     `json:"odometer_factor"`
	Manual         *ManualSnapshot     `json:"manual,omitempty"`
	ServiceError   string              `json:"service_error,omitempty"`

	// Cached is set on results served from the cache without re-evaluation.
	Cached bool `json:"-"`
}

// Actionable reports whether the result carries a bid recommendation.
func (r Result) Actionable() bool {
	return r.Status != StatusUnpriced && r.RecommendedMaxBid.Valid
}

// PredictedResale is the resale price the recommendation assumed.
func (r Result) PredictedResale() decimal.NullDecimal {
	return r.PriceEstimate
}
