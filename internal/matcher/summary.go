package matcher

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Stats aggregates sale prices. Aggregates are null when Count is zero.
type Stats struct {
	Count  int                 `json:"count"`
	Median decimal.NullDecimal `json:"median"`
	Mean   decimal.NullDecimal `json:"mean"`
	Min    decimal.NullDecimal `json:"min"`
	Max    decimal.NullDecimal `json:"max"`
}

// Summary describes the broad and close comparable sets for one listing.
type Summary struct {
	Broad          Stats    `json:"broad"`
	MeanSimilarity *float64 `json:"mean_similarity,omitempty"`

	Close                 Stats               `json:"close"`
	CloseMeanOdometerDiff decimal.NullDecimal `json:"close_mean_odometer_diff"`

	// MedianDiscount is broad median minus the current bid.
	MedianDiscount          decimal.NullDecimal `json:"median_discount"`
	PricedBelowHistory      *bool               `json:"priced_below_history,omitempty"`
	CloseMedianDiscount     decimal.NullDecimal `json:"close_median_discount"`
	PricedBelowCloseHistory *bool               `json:"priced_below_close_history,omitempty"`
}

// Empty reports whether no comparable was found at all.
func (s Summary) Empty() bool {
	return s.Broad.Count == 0 && s.Close.Count == 0
}

func summarize(broad, closeSet []Match, currentBid decimal.NullDecimal) Summary {
	s := Summary{
		Broad: priceStats(broad),
		Close: priceStats(closeSet),
	}

	if len(broad) > 0 {
		total := 0.0
		for _, m := range broad {
			total += m.Similarity
		}
		mean := total / float64(len(broad))
		s.MeanSimilarity = &mean
	}

	var diffs []decimal.Decimal
	for _, m := range closeSet {
		if d, ok := m.AbsOdometerDiff(); ok {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) > 0 {
		s.CloseMeanOdometerDiff = decimal.NewNullDecimal(decimal.Avg(diffs[0], diffs[1:]...))
	}

	if currentBid.Valid {
		if s.Broad.Median.Valid {
			s.MedianDiscount = decimal.NewNullDecimal(s.Broad.Median.Decimal.Sub(currentBid.Decimal))
			below := currentBid.Decimal.LessThan(s.Broad.Median.Decimal)
			s.PricedBelowHistory = &below
		}
		if s.Close.Median.Valid {
			s.CloseMedianDiscount = decimal.NewNullDecimal(s.Close.Median.Decimal.Sub(currentBid.Decimal))
			below := currentBid.Decimal.LessThan(s.Close.Median.Decimal)
			s.PricedBelowCloseHistory = &below
		}
	}
	return s
}

func priceStats(matches []Match) Stats {
	if len(matches) == 0 {
		return Stats{}
	}
	prices := make([]decimal.Decimal, len(matches))
	for i, m := range matches {
		prices[i] = m.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	return Stats{
		Count:  len(prices),
		Median: decimal.NewNullDecimal(median(prices)),
		Mean:   decimal.NewNullDecimal(decimal.Avg(prices[0], prices[1:]...)),
		Min:    decimal.NewNullDecimal(prices[0]),
		Max:    decimal.NewNullDecimal(prices[len(prices)-1]),
	}
}

// median expects sorted input.
func median(sorted []decimal.Decimal) decimal.Decimal {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}
