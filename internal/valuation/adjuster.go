// Package valuation turns a pricing estimate and comparable sales into a
// defended maximum-bid recommendation.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autosniper/internal/matcher"
	"autosniper/internal/normalize"
	"autosniper/internal/vehicle"
)

var (
	hundred  = decimal.NewFromInt(100)
	maxScore = decimal.NewFromInt(10)
)

// Options hold the business constants of the pipeline.
type Options struct {
	// CostBuffer covers auction fees plus reconditioning.
	CostBuffer decimal.Decimal
	// BidHeadroom caps the recommendation above the current live bid. Zero disables the cap.
	BidHeadroom           decimal.Decimal
	MinOdometerFactor     decimal.Decimal
	MaxOdometerFactor     decimal.Decimal
	OdometerNoteTolerance decimal.Decimal
	// ScoreMarginDivisor converts profit margin % into a score ceiling.
	ScoreMarginDivisor decimal.Decimal
	// RefreshAfter is the age past which a cached result is recomputed.
	// Zero keeps cached results until forced.
	RefreshAfter time.Duration
}

// DefaultOptions returns the production constants.
func DefaultOptions() Options {
	return Options{
		CostBuffer:            decimal.NewFromInt(1500),
		BidHeadroom:           decimal.NewFromInt(3500),
		MinOdometerFactor:     decimal.RequireFromString("0.25"),
		MaxOdometerFactor:     decimal.RequireFromString("1.2"),
		OdometerNoteTolerance: decimal.RequireFromString("0.05"),
		ScoreMarginDivisor:    decimal.NewFromInt(5),
	}
}

// Cache stores results by listing URL. Writes replace the whole entry.
type Cache interface {
	Get(ctx context.Context, url string) (Result, bool, error)
	Put(ctx context.Context, result Result) error
}

// Adjuster runs the valuation pipeline.
type Adjuster struct {
	opts      Options
	estimator Estimator
	cache     Cache
	stages    []ClampStage
	now       func() time.Time
	logger    zerolog.Logger
}

// NewAdjuster wires the pricing service and cache. Either may be nil.
func NewAdjuster(opts Options, estimator Estimator, cache Cache, logger zerolog.Logger) *Adjuster {
	if opts.ScoreMarginDivisor.IsZero() {
		opts.ScoreMarginDivisor = DefaultOptions().ScoreMarginDivisor
	}
	return &Adjuster{
		opts:      opts,
		estimator: estimator,
		cache:     cache,
		stages:    ClampStages,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("component", "valuation").Logger(),
	}
}

// Evaluate returns the cached result for listing unless force is set or the
// entry is older than RefreshAfter, otherwise prices it through the external
// service and stores the outcome.
// Pricing service failures degrade to fallback rules instead of erroring.
func (a *Adjuster) Evaluate(ctx context.Context, listing vehicle.ActiveListing, summary *matcher.Summary, force bool) (Result, error) {
	if !force && a.cache != nil && listing.URL != "" {
		cached, ok, err := a.cache.Get(ctx, listing.URL)
		if err != nil {
			a.logger.Warn().Err(err).Str("url", listing.URL).Msg("valuation cache read failed")
		} else if ok && !a.expired(cached) {
			cached.Cached = true
			return cached, nil
		}
	}

	var (
		est        Estimate
		serviceErr error
	)
	if a.estimator == nil {
		serviceErr = errors.New("no pricing service configured")
	} else {
		est, serviceErr = a.estimator.Estimate(ctx, BuildSnapshot(listing, summary))
	}
	if serviceErr != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		a.logger.Warn().Err(serviceErr).Str("url", listing.URL).Msg("pricing service failed; using fallbacks")
		est = Estimate{}
	}

	res := a.Adjust(listing, summary, est)
	if serviceErr != nil {
		res.ServiceError = serviceErr.Error()
		res.Notes = dedupe(append([]string{fmt.Sprintf("Pricing service unavailable: %s.", serviceErr)}, res.Notes...))
	}

	if a.cache != nil && listing.URL != "" {
		if err := a.cache.Put(ctx, res); err != nil {
			return res, fmt.Errorf("store valuation: %w", err)
		}
	}
	return res, nil
}

func (a *Adjuster) expired(cached Result) bool {
	return a.opts.RefreshAfter > 0 && a.now().Sub(cached.AnalyzedAt) > a.opts.RefreshAfter
}

// Adjust is the pure pipeline: estimate plus listing context in, defended bid out.
func (a *Adjuster) Adjust(listing vehicle.ActiveListing, summary *matcher.Summary, est Estimate) Result {
	res := Result{
		URL:        listing.URL,
		Title:      listing.Label(),
		AnalyzedAt: a.now(),
		CurrentBid: listing.CurrentBid,
		Manual:     NewManualSnapshot(listing.Manual),
	}
	var notes []string
	manual := listing.Manual

	// base comparable price and odometer factor
	base := manual.Estimate
	if !base.Valid {
		base = manual.AvgPrice
	}
	factor := decimal.NewFromInt(1)
	if base.Valid && manual.AvgOdometer.Valid && listing.Odometer.Valid && listing.Odometer.Decimal.IsPositive() {
		factor = clampDecimal(manual.AvgOdometer.Decimal.Div(listing.Odometer.Decimal), a.opts.MinOdometerFactor, a.opts.MaxOdometerFactor)
		if factor.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(a.opts.OdometerNoteTolerance) {
			notes = append(notes, fmt.Sprintf("Adjusted comparable average for odometer difference (factor %s).", factor.StringFixed(2)))
		}
	}
	res.OdometerFactor = factor

	// headline estimate and range
	headline := decimal.NullDecimal{}
	res.PriceRange = est.RangeText
	if base.Valid {
		headline = decimal.NewNullDecimal(base.Decimal.Mul(factor))
	}
	if manual.MinPrice.Valid && manual.MaxPrice.Valid {
		res.PriceRange = normalize.FormatCurrency(manual.MinPrice.Decimal.Mul(factor)) + " - " +
			normalize.FormatCurrency(manual.MaxPrice.Decimal.Mul(factor))
	}
	if !headline.Valid {
		headline = est.Price
	}
	if !headline.Valid && est.RangeText != "" {
		if d, ok := normalize.Currency(est.RangeText); ok {
			headline = decimal.NewNullDecimal(d)
		}
	}
	res.PriceEstimate = headline

	// break-even
	if headline.Valid {
		res.BreakEvenBid = decimal.NewNullDecimal(decimal.Max(decimal.Zero, headline.Decimal.Sub(a.opts.CostBuffer)))
	}

	// recommended bid resolution
	bid := est.MaxBid
	if bid.Valid && !factor.Equal(decimal.NewFromInt(1)) {
		bid = decimal.NewNullDecimal(bid.Decimal.Mul(factor))
	}
	var historicalMin, closeMedian, closeMin decimal.NullDecimal
	if summary != nil {
		historicalMin = summary.Broad.Min
		closeMedian = summary.Close.Median
		closeMin = summary.Close.Min
	}
	if !bid.Valid {
		switch {
		case res.BreakEvenBid.Valid:
			bid = res.BreakEvenBid
			notes = append(notes, fmt.Sprintf("Pricing service gave no max bid; defaulted to break-even after %s buffer.",
				normalize.FormatCurrency(a.opts.CostBuffer)))
		case listing.CurrentBid.Valid || historicalMin.Valid:
			floor := maxNull(listing.CurrentBid, historicalMin)
			bid = floor
			notes = append(notes, fmt.Sprintf("Pricing service gave no max bid; using observed floor %s.",
				normalize.FormatCurrency(floor.Decimal)))
		}
	}

	// clamp chain
	bid, clampNotes := RunClamps(a.stages, bid, ClampContext{
		BreakEven:  res.BreakEvenBid,
		Headline:   headline,
		CurrentBid: listing.CurrentBid,
		Headroom:   a.opts.BidHeadroom,
	})
	notes = append(notes, clampNotes...)
	if bid.Valid {
		if note := undercutNote(bid.Decimal, historicalMin, closeMedian, closeMin); note != "" {
			notes = append(notes, note)
		}
	}
	res.RecommendedMaxBid = bid

	// profit and margin
	var margin decimal.NullDecimal
	if headline.Valid && bid.Valid {
		profit := decimal.Max(decimal.Zero, headline.Decimal.Sub(a.opts.CostBuffer).Sub(bid.Decimal))
		res.ExpectedProfit = decimal.NewNullDecimal(profit)
		if headline.Decimal.IsPositive() {
			margin = decimal.NewNullDecimal(profit.Div(headline.Decimal).Mul(hundred))
			res.ProfitMarginPct = decimal.NewNullDecimal(margin.Decimal.Round(1))
		}
	} else {
		if est.ExpectedProfit.Valid {
			res.ExpectedProfit = decimal.NewNullDecimal(decimal.Max(decimal.Zero, est.ExpectedProfit.Decimal))
		}
		res.ProfitMarginPct = est.MarginPct
	}

	// status
	switch {
	case headline.Valid:
		res.Status = StatusPriced
	case bid.Valid:
		res.Status = StatusFloorOnly
		notes = append(notes, "No resale estimate available; recommendation reflects the live bid or historical floor only.")
	default:
		res.Status = StatusUnpriced
		notes = append(notes, "No usable price data; no bid recommendation produced.")
	}

	// score reconciliation
	score, scoreNotes := a.reconcileScore(est.Score, res.ExpectedProfit, margin, res.Status)
	res.Score = score
	notes = append(notes, scoreNotes...)

	res.Notes = dedupe(append(append([]string{}, est.Notes...), notes...))
	return res
}

func (a *Adjuster) reconcileScore(service *float64, profit, margin decimal.NullDecimal, status Status) (float64, []string) {
	var notes []string
	var score decimal.NullDecimal
	if service != nil {
		score = decimal.NewNullDecimal(clampScore(decimal.NewFromFloat(*service)))
	}

	switch {
	case status == StatusUnpriced:
		score = decimal.NewNullDecimal(decimal.Zero)
	case profit.Valid && !profit.Decimal.IsPositive():
		if score.Valid && score.Decimal.IsPositive() {
			notes = append(notes, "Score forced to 0 because projected profit is not positive.")
		}
		score = decimal.NewNullDecimal(decimal.Zero)
	case margin.Valid:
		ceiling := clampScore(margin.Decimal.Div(a.opts.ScoreMarginDivisor))
		if !score.Valid {
			score = decimal.NewNullDecimal(ceiling)
			notes = append(notes, fmt.Sprintf("Score derived from profit margin cap (%s%% => %s/10).",
				margin.Decimal.StringFixed(1), ceiling.StringFixed(1)))
		} else if ceiling.LessThan(score.Decimal) {
			notes = append(notes, fmt.Sprintf("Score capped at %s to align with %s%% profit margin.",
				ceiling.StringFixed(1), margin.Decimal.StringFixed(1)))
			score = decimal.NewNullDecimal(ceiling)
		}
	}

	if !score.Valid {
		notes = append(notes, "No score available; defaulted to 0.")
		return 0, notes
	}
	return roundScore(score.Decimal), notes
}

func undercutNote(bid decimal.Decimal, refs ...decimal.NullDecimal) string {
	labels := []string{"historical auction minimum", "closest historical median", "historical close minimum"}
	for i, ref := range refs {
		if ref.Valid && bid.LessThan(ref.Decimal) {
			return fmt.Sprintf("Recommended bid undercuts the %s (%s); confirm condition advantages before bidding.",
				labels[i], normalize.FormatCurrency(ref.Decimal))
		}
	}
	return ""
}

func clampScore(d decimal.Decimal) decimal.Decimal {
	return clampDecimal(d, decimal.Zero, maxScore)
}

func roundScore(d decimal.Decimal) float64 {
	return math.Round(d.Round(1).InexactFloat64()*10) / 10
}

func clampDecimal(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

func maxNull(values ...decimal.NullDecimal) decimal.NullDecimal {
	var out decimal.NullDecimal
	for _, v := range values {
		if v.Valid && (!out.Valid || v.Decimal.GreaterThan(out.Decimal)) {
			out = v
		}
	}
	return out
}

func dedupe(notes []string) []string {
	seen := make(map[string]struct{}, len(notes))
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
