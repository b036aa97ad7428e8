// Package matcher selects historical sales comparable to a live listing.
package matcher

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/shopspring/decimal"

	"autosniper/internal/normalize"
	"autosniper/internal/vehicle"
)

const hybridToken = "hybrid"

// Options tune comparable selection.
type Options struct {
	// SimilarityThreshold is the minimum variant similarity for the broad set.
	SimilarityThreshold float64
	// FallbackLimit caps the broad set when nothing clears the threshold.
	FallbackLimit int
	// CloseLimit caps the odometer-closest set.
	CloseLimit int
	// CloseFallbackLimit is how many out-of-window candidates get promoted
	// into the nearby set when the odometer window is empty.
	CloseFallbackLimit int
	// MaxOdometerDiff bounds the nearby window in km. Zero disables the window.
	MaxOdometerDiff decimal.Decimal
}

// DefaultOptions returns the production selection parameters.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.5,
		FallbackLimit:       5,
		CloseLimit:          5,
		CloseFallbackLimit:  2,
		MaxOdometerDiff:     decimal.NewFromInt(20000),
	}
}

// Match is one sold record scored against a listing.
type Match struct {
	Record     vehicle.SoldRecord
	Similarity float64
	// OdometerDiff is record odometer minus listing odometer.
	OdometerDiff decimal.NullDecimal
	Price        decimal.Decimal
}

// AbsOdometerDiff returns |OdometerDiff| when known.
func (m Match) AbsOdometerDiff() (decimal.Decimal, bool) {
	if !m.OdometerDiff.Valid {
		return decimal.Decimal{}, false
	}
	return m.OdometerDiff.Decimal.Abs(), true
}

// Result is the full output of a match query.
type Result struct {
	Summary Summary
	Broad   []Match
	// Close holds the CloseLimit smallest known odometer differences.
	Close []Match
	// Nearby holds the Close candidates inside MaxOdometerDiff. It is for
	// display only and never feeds Summary.
	Nearby []Match
	// Rows holds every filtered candidate, closest odometer first.
	Rows []Match
	// BroadFallback is set when no candidate cleared the similarity threshold.
	BroadFallback bool
	// NearbyFallback is set when Nearby was promoted from outside the window.
	NearbyFallback bool
}

// Matcher finds comparable sales for active listings.
type Matcher struct {
	opts Options
}

// New constructs a Matcher, filling unset limits from DefaultOptions.
func New(opts Options) *Matcher {
	def := DefaultOptions()
	if opts.FallbackLimit <= 0 {
		opts.FallbackLimit = def.FallbackLimit
	}
	if opts.CloseLimit <= 0 {
		opts.CloseLimit = def.CloseLimit
	}
	if opts.CloseFallbackLimit <= 0 {
		opts.CloseFallbackLimit = def.CloseFallbackLimit
	}
	if opts.SimilarityThreshold < 0 {
		opts.SimilarityThreshold = def.SimilarityThreshold
	}
	return &Matcher{opts: opts}
}

// Match ranks corpus records against listing. An empty result is valid.
func (m *Matcher) Match(listing vehicle.ActiveListing, corpus *Corpus) Result {
	target := newEntry(listing.Attributes)

	candidates := m.filter(target, corpus)
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		match := Match{
			Record:     c.record,
			Similarity: similarity(target.variant, c.variant),
			Price:      c.record.Price,
		}
		if listing.Odometer.Valid && c.record.Odometer.Valid {
			match.OdometerDiff = decimal.NewNullDecimal(c.record.Odometer.Decimal.Sub(listing.Odometer.Decimal))
		}
		matches = append(matches, match)
	}

	res := Result{Rows: sortByOdometer(matches)}
	res.Broad, res.BroadFallback = m.selectBroad(matches)
	res.Close = m.selectClose(matches)
	res.Nearby, res.NearbyFallback = m.selectNearby(matches)
	res.Summary = summarize(res.Broad, res.Close, listing.CurrentBid)
	return res
}

func (m *Matcher) filter(target entry, corpus *Corpus) []entry {
	if corpus == nil || target.make == "" || target.model == "" {
		return nil
	}

	var pool []entry
	for _, e := range corpus.entries {
		if e.make == target.make && e.model == target.model {
			pool = append(pool, e)
		}
	}

	if target.year > 0 {
		var sameYear []entry
		for _, e := range pool {
			if e.year == target.year {
				sameYear = append(sameYear, e)
			}
		}
		if len(sameYear) > 0 {
			pool = sameYear
		}
	}

	out := pool[:0:0]
	for _, e := range pool {
		if target.variant != "" && e.hybrid != target.hybrid {
			continue
		}
		if target.transmission != "" && e.transmission != "" && e.transmission != target.transmission {
			continue
		}
		if target.fuel != "" && e.fuel != "" && e.fuel != target.fuel {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m *Matcher) selectBroad(matches []Match) ([]Match, bool) {
	ranked := make([]Match, len(matches))
	copy(ranked, matches)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})

	var selected []Match
	for _, match := range ranked {
		if match.Similarity >= m.opts.SimilarityThreshold {
			selected = append(selected, match)
		}
	}
	if len(selected) > 0 || len(ranked) == 0 {
		return selected, false
	}
	return ranked[:min(m.opts.FallbackLimit, len(ranked))], true
}

// selectClose keeps the CloseLimit smallest known differences. Without any
// odometer data the whole filtered set is returned, best similarity first.
func (m *Matcher) selectClose(matches []Match) []Match {
	known := withOdometer(matches)
	if len(known) == 0 {
		all := make([]Match, len(matches))
		copy(all, matches)
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].Similarity > all[j].Similarity
		})
		return all
	}
	known = sortByOdometer(known)
	return known[:min(m.opts.CloseLimit, len(known))]
}

// selectNearby applies the MaxOdometerDiff window. When nothing falls inside
// it the CloseFallbackLimit smallest differences are promoted.
func (m *Matcher) selectNearby(matches []Match) ([]Match, bool) {
	known := sortByOdometer(withOdometer(matches))
	if len(known) == 0 {
		return nil, false
	}

	var window []Match
	for _, match := range known {
		diff, _ := match.AbsOdometerDiff()
		if m.opts.MaxOdometerDiff.IsPositive() && diff.GreaterThan(m.opts.MaxOdometerDiff) {
			continue
		}
		window = append(window, match)
	}
	if len(window) > 0 {
		return window[:min(m.opts.CloseLimit, len(window))], false
	}
	return known[:min(m.opts.CloseFallbackLimit, len(known))], true
}

func withOdometer(matches []Match) []Match {
	var out []Match
	for _, match := range matches {
		if match.OdometerDiff.Valid {
			out = append(out, match)
		}
	}
	return out
}

// sortByOdometer orders by absolute odometer difference, unknown last,
// breaking ties on higher similarity.
func sortByOdometer(matches []Match) []Match {
	out := make([]Match, len(matches))
	copy(out, matches)
	sort.SliceStable(out, func(i, j int) bool {
		di, iok := out[i].AbsOdometerDiff()
		dj, jok := out[j].AbsOdometerDiff()
		switch {
		case iok && !jok:
			return true
		case !iok && jok:
			return false
		case iok && jok && !di.Equal(dj):
			return di.LessThan(dj)
		}
		return out[i].Similarity > out[j].Similarity
	})
	return out
}

// similarity is the difflib ratio over variant characters.
func similarity(a, b string) float64 {
	switch {
	case a == "" && b == "":
		return 1
	case a == "" || b == "":
		return 0
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

func newEntry(attrs vehicle.Attributes) entry {
	variant := normalize.Text(attrs.Variant)
	return entry{
		year:         attrs.Year,
		make:         normalize.Text(attrs.Make),
		model:        normalize.Text(attrs.Model),
		variant:      variant,
		transmission: normalize.Loose(attrs.Transmission),
		fuel:         normalize.Loose(attrs.FuelType),
		hybrid:       strings.Contains(variant, hybridToken),
	}
}
