// Package outcome grades past bid recommendations against settled sales.
package outcome

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"autosniper/internal/valuation"
	"autosniper/internal/vehicle"
)

// Tier labels.
const (
	TierGold   = "Gold"
	TierSilver = "Silver"
	TierBronze = "Bronze"
)

var verdictTiers = map[string]string{
	"gold":   TierGold,
	"silver": TierSilver,
	"bronze": TierBronze,
	"great":  TierGold,
	"good":   TierSilver,
	"fair":   TierBronze,
	"pass":   TierBronze,
	"avoid":  TierBronze,
}

// Actual is what really happened to a listing after the auction.
type Actual struct {
	URL            string
	PurchasePrice  decimal.NullDecimal
	PurchaseDate   *time.Time
	SalePrice      decimal.NullDecimal
	Fees           decimal.NullDecimal
	Reconditioning decimal.NullDecimal
	SettledDate    *time.Time
}

// Record joins one prediction with its actual outcome. Either side may be missing.
type Record struct {
	URL        string     `json:"url"`
	Title      string     `json:"title,omitempty"`
	AnalyzedAt *time.Time `json:"analysis_timestamp,omitempty"`

	PredictedResale   decimal.NullDecimal `json:"predicted_resale_price"`
	PredictedProfit   decimal.NullDecimal `json:"predicted_profit"`
	RecommendedMaxBid decimal.NullDecimal `json:"recommended_max_bid"`
	PredictedScore    *float64            `json:"predicted_score,omitempty"`
	Tier              string              `json:"predicted_verdict,omitempty"`

	PurchasePrice  decimal.NullDecimal `json:"purchase_price"`
	PurchaseDate   *time.Time          `json:"purchase_date,omitempty"`
	SalePrice      decimal.NullDecimal `json:"actual_sale_price"`
	Fees           decimal.NullDecimal `json:"actual_fees_total"`
	Reconditioning decimal.NullDecimal `json:"reconditioning_cost"`
	SettledDate    *time.Time          `json:"settled_date,omitempty"`

	ActualProfit decimal.NullDecimal `json:"actual_profit"`
	ErrorAbs     decimal.NullDecimal `json:"outcome_error_abs"`
	// ErrorPct is a fraction of the sale price.
	ErrorPct decimal.NullDecimal `json:"outcome_error_pct"`
	Hit      *bool               `json:"hit,omitempty"`
}

// Settled reports whether an actual sale price is known.
func (r Record) Settled() bool {
	return r.SalePrice.Valid
}

// TierForScore buckets a 0-10 score.
func TierForScore(score float64) string {
	switch {
	case score >= 8:
		return TierGold
	case score >= 6.5:
		return TierSilver
	default:
		return TierBronze
	}
}

// NormalizeVerdict maps free-text verdict labels onto tiers. Unknown labels are title-cased.
func NormalizeVerdict(v string) string {
	text := strings.TrimSpace(v)
	if text == "" {
		return ""
	}
	if tier, ok := verdictTiers[strings.ToLower(text)]; ok {
		return tier
	}
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// FillPurchases copies purchase price and date from sold records onto
// actuals that lack them, matching by URL.
func FillPurchases(actuals []Actual, sold []vehicle.SoldRecord) []Actual {
	byURL := make(map[string]vehicle.SoldRecord, len(sold))
	for _, rec := range sold {
		if rec.URL != "" {
			byURL[rec.URL] = rec
		}
	}

	out := make([]Actual, len(actuals))
	copy(out, actuals)
	for i := range out {
		rec, ok := byURL[out[i].URL]
		if !ok {
			continue
		}
		if !out[i].PurchasePrice.Valid {
			out[i].PurchasePrice = decimal.NewNullDecimal(rec.Price)
		}
		if out[i].PurchaseDate == nil {
			out[i].PurchaseDate = rec.DateSold
		}
	}
	return out
}

// join outer-joins predictions and actuals by URL, keeping the last
// occurrence of duplicate URLs on either side.
func join(results []valuation.Result, actuals []Actual, verdicts map[string]string) []Record {
	records := make(map[string]*Record)
	var order []string
	get := func(url string) *Record {
		if r, ok := records[url]; ok {
			return r
		}
		r := &Record{URL: url}
		records[url] = r
		order = append(order, url)
		return r
	}

	for _, res := range results {
		if res.URL == "" {
			continue
		}
		r := get(res.URL)
		r.Title = res.Title
		if !res.AnalyzedAt.IsZero() {
			at := res.AnalyzedAt
			r.AnalyzedAt = &at
		}
		r.PredictedResale = res.PredictedResale()
		r.PredictedProfit = res.ExpectedProfit
		r.RecommendedMaxBid = res.RecommendedMaxBid
		score := res.Score
		r.PredictedScore = &score
		r.Tier = TierForScore(score)
		if v, ok := verdicts[res.URL]; ok {
			if tier := NormalizeVerdict(v); tier != "" {
				r.Tier = tier
			}
		}
	}

	for _, a := range actuals {
		if a.URL == "" {
			continue
		}
		r := get(a.URL)
		r.PurchasePrice = a.PurchasePrice
		r.PurchaseDate = a.PurchaseDate
		r.SalePrice = a.SalePrice
		r.Fees = a.Fees
		r.Reconditioning = a.Reconditioning
		r.SettledDate = a.SettledDate
		if r.SettledDate == nil {
			r.SettledDate = a.PurchaseDate
		}
	}

	out := make([]Record, 0, len(order))
	for _, url := range order {
		out = append(out, *records[url])
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].AnalyzedAt, out[j].AnalyzedAt
		switch {
		case ai != nil && aj == nil:
			return true
		case ai == nil && aj != nil:
			return false
		case ai != nil && aj != nil && !ai.Equal(*aj):
			return ai.After(*aj)
		}
		return out[i].URL < out[j].URL
	})
	return out
}

func score(r *Record) {
	if !r.Settled() {
		return
	}
	cost := orZero(r.PurchasePrice).Add(orZero(r.Fees)).Add(orZero(r.Reconditioning))
	r.ActualProfit = decimal.NewNullDecimal(r.SalePrice.Decimal.Sub(cost))

	if r.PredictedResale.Valid {
		abs := r.SalePrice.Decimal.Sub(r.PredictedResale.Decimal).Abs()
		r.ErrorAbs = decimal.NewNullDecimal(abs)
		if !r.SalePrice.Decimal.IsZero() {
			r.ErrorPct = decimal.NewNullDecimal(abs.Div(r.SalePrice.Decimal))
		}
	}

	if r.PredictedProfit.Valid {
		hit := r.PredictedProfit.Decimal.IsPositive() == r.ActualProfit.Decimal.IsPositive()
		r.Hit = &hit
	}
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return decimal.Zero
}
