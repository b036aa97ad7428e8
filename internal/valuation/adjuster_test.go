package valuation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autosniper/internal/matcher"
	"autosniper/internal/vehicle"
)

type memoryCache struct {
	items map[string]Result
	gets  int
	puts  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string]Result)}
}

func (c *memoryCache) Get(_ context.Context, url string) (Result, bool, error) {
	c.gets++
	r, ok := c.items[url]
	return r, ok, nil
}

func (c *memoryCache) Put(_ context.Context, r Result) error {
	c.puts++
	c.items[r.URL] = r
	return nil
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func nd(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(dec(v)) }

func score(v float64) *float64 { return &v }

func scenarioListing() vehicle.ActiveListing {
	return vehicle.ActiveListing{
		Attributes: vehicle.Attributes{
			Year:     2018,
			Make:     "Mazda",
			Model:    "CX-5",
			Variant:  "Maxx Sport",
			Odometer: nd(90000),
		},
		URL:        "https://auction.example/lot/42",
		CurrentBid: nd(10000),
		Manual: vehicle.ManualComparables{
			AvgPrice:    nd(18000),
			AvgOdometer: nd(90000),
		},
	}
}

func newTestAdjuster(headroom int64) *Adjuster {
	opts := DefaultOptions()
	opts.BidHeadroom = dec(headroom)
	a := NewAdjuster(opts, nil, nil, zerolog.Nop())
	a.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return a
}

func hasNote(notes []string, fragment string) bool {
	for _, n := range notes {
		if strings.Contains(n, fragment) {
			return true
		}
	}
	return false
}

func TestAdjustScenarioA(t *testing.T) {
	a := newTestAdjuster(4000)
	res := a.Adjust(scenarioListing(), nil, Estimate{MaxBid: nd(14000), Score: score(7)})

	if !res.BreakEvenBid.Decimal.Equal(dec(16500)) {
		t.Fatalf("break-even = %s, want 16500", res.BreakEvenBid.Decimal)
	}
	if !res.RecommendedMaxBid.Decimal.Equal(dec(14000)) {
		t.Fatalf("bid = %s, want 14000", res.RecommendedMaxBid.Decimal)
	}
	if !res.ExpectedProfit.Decimal.Equal(dec(2500)) {
		t.Fatalf("profit = %s, want 2500", res.ExpectedProfit.Decimal)
	}
	if !res.ProfitMarginPct.Decimal.Equal(decimal.RequireFromString("13.9")) {
		t.Fatalf("margin = %s, want 13.9", res.ProfitMarginPct.Decimal)
	}
	if res.Score != 2.8 {
		t.Fatalf("score = %v, want 2.8", res.Score)
	}
	if !hasNote(res.Notes, "Score capped at 2.8") {
		t.Fatalf("expected a score cap note, got %v", res.Notes)
	}
	if hasNote(res.Notes, "odometer difference") {
		t.Fatal("factor 1.0 must not add an odometer note")
	}
	if res.Status != StatusPriced || !res.Actionable() {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestAdjustScenarioBMissingBid(t *testing.T) {
	a := newTestAdjuster(3500)
	res := a.Adjust(scenarioListing(), nil, Estimate{Score: score(6)})

	if !hasNote(res.Notes, "defaulted to break-even after $1,500 buffer") {
		t.Fatalf("expected break-even default note, got %v", res.Notes)
	}
	if !res.RecommendedMaxBid.Decimal.Equal(dec(13500)) {
		t.Fatalf("bid = %s, want headroom cap 13500", res.RecommendedMaxBid.Decimal)
	}
	if !hasNote(res.Notes, "Capped recommended max bid at $13,500") {
		t.Fatalf("expected headroom note, got %v", res.Notes)
	}
	if !res.ExpectedProfit.Decimal.Equal(dec(3000)) {
		t.Fatalf("profit = %s, want 3000", res.ExpectedProfit.Decimal)
	}
}

func TestAdjustScenarioCServiceOnly(t *testing.T) {
	listing := vehicle.ActiveListing{
		Attributes: vehicle.Attributes{Make: "Kia", Model: "Rio", Odometer: nd(120000)},
		URL:        "https://auction.example/lot/7",
		CurrentBid: nd(5000),
	}
	empty := matcher.Summary{}
	est := Estimate{Price: nd(9000), MaxBid: nd(6500), Score: score(5), Notes: []string{"Thin market"}}

	res := newTestAdjuster(3500).Adjust(listing, &empty, est)
	if empty.Broad.Count != 0 || empty.Close.Count != 0 {
		t.Fatal("summary should stay empty")
	}
	if hasNote(res.Notes, "odometer difference") {
		t.Fatal("no manual data means no odometer note")
	}
	if !res.PriceEstimate.Decimal.Equal(dec(9000)) {
		t.Fatalf("headline = %s", res.PriceEstimate.Decimal)
	}
	if !res.RecommendedMaxBid.Decimal.Equal(dec(6500)) {
		t.Fatalf("bid = %s", res.RecommendedMaxBid.Decimal)
	}
	if res.Notes[0] != "Thin market" {
		t.Fatalf("service notes should come first, got %v", res.Notes)
	}
}

func TestAdjustOdometerFactor(t *testing.T) {
	listing := scenarioListing()
	listing.Odometer = nd(180000)
	listing.Manual.MinPrice = nd(16000)
	listing.Manual.MaxPrice = nd(20000)

	res := newTestAdjuster(3500).Adjust(listing, nil, Estimate{MaxBid: nd(14000)})
	if !res.OdometerFactor.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("factor = %s", res.OdometerFactor)
	}
	if !res.PriceEstimate.Decimal.Equal(dec(9000)) {
		t.Fatalf("headline = %s, want 9000", res.PriceEstimate.Decimal)
	}
	if res.PriceRange != "$8,000 - $10,000" {
		t.Fatalf("range = %q", res.PriceRange)
	}
	if !hasNote(res.Notes, "factor 0.50") {
		t.Fatalf("expected factor note, got %v", res.Notes)
	}
	// service bid 14000 * 0.5 = 7000, under break-even 7500, floored at the 10000 live bid
	if !res.RecommendedMaxBid.Decimal.Equal(dec(10000)) {
		t.Fatalf("bid = %s, want live-bid floor", res.RecommendedMaxBid.Decimal)
	}
	if !hasNote(res.Notes, "Raised recommended max bid") {
		t.Fatalf("expected floor note, got %v", res.Notes)
	}
	if !res.ExpectedProfit.Decimal.IsZero() || res.Score != 0 {
		t.Fatalf("profit %s score %v, want zero", res.ExpectedProfit.Decimal, res.Score)
	}
}

func TestAdjustFactorBounds(t *testing.T) {
	listing := scenarioListing()
	listing.Odometer = nd(10000)
	res := newTestAdjuster(3500).Adjust(listing, nil, Estimate{})
	if !res.OdometerFactor.Equal(decimal.RequireFromString("1.2")) {
		t.Fatalf("factor = %s, want upper bound 1.2", res.OdometerFactor)
	}

	listing.Odometer = nd(1000000)
	res = newTestAdjuster(3500).Adjust(listing, nil, Estimate{})
	if !res.OdometerFactor.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("factor = %s, want lower bound 0.25", res.OdometerFactor)
	}
}

func TestAdjustHeadlineFromRangeText(t *testing.T) {
	listing := vehicle.ActiveListing{URL: "u", CurrentBid: nd(1000)}
	res := newTestAdjuster(3500).Adjust(listing, nil, Estimate{RangeText: "$10,000 - $12,000"})
	if !res.PriceEstimate.Decimal.Equal(dec(11000)) {
		t.Fatalf("headline = %s, want range mean", res.PriceEstimate.Decimal)
	}
	if res.PriceRange != "$10,000 - $12,000" {
		t.Fatalf("range = %q", res.PriceRange)
	}
}

func TestAdjustObservedFloorFallback(t *testing.T) {
	listing := vehicle.ActiveListing{URL: "u", CurrentBid: nd(8000)}
	summary := matcher.Summary{Broad: matcher.Stats{Count: 3, Min: nd(9000)}}

	res := newTestAdjuster(3500).Adjust(listing, &summary, Estimate{})
	if !res.RecommendedMaxBid.Decimal.Equal(dec(9000)) {
		t.Fatalf("bid = %s, want historical floor", res.RecommendedMaxBid.Decimal)
	}
	if !hasNote(res.Notes, "using observed floor $9,000") {
		t.Fatalf("expected floor note, got %v", res.Notes)
	}
	if res.Status != StatusFloorOnly {
		t.Fatalf("status = %s, want floor_only", res.Status)
	}
	if res.Score != 0 || !hasNote(res.Notes, "No score available") {
		t.Fatalf("score %v notes %v", res.Score, res.Notes)
	}
}

func TestAdjustUnpriced(t *testing.T) {
	res := newTestAdjuster(3500).Adjust(vehicle.ActiveListing{URL: "u"}, nil, Estimate{Score: score(9)})
	if res.Status != StatusUnpriced || res.Actionable() {
		t.Fatalf("status = %s", res.Status)
	}
	if res.RecommendedMaxBid.Valid {
		t.Fatal("unpriced result must not carry a bid")
	}
	if res.Score != 0 {
		t.Fatalf("score = %v, want 0", res.Score)
	}
	if !hasNote(res.Notes, "No usable price data") {
		t.Fatalf("notes = %v", res.Notes)
	}
}

func TestAdjustUndercutNote(t *testing.T) {
	listing := scenarioListing()
	summary := matcher.Summary{
		Broad: matcher.Stats{Count: 2, Min: nd(12000)},
		Close: matcher.Stats{Count: 2, Median: nd(15000), Min: nd(11000)},
	}
	res := newTestAdjuster(4000).Adjust(listing, &summary, Estimate{MaxBid: nd(11500)})
	if !hasNote(res.Notes, "undercuts the historical auction minimum ($12,000)") {
		t.Fatalf("expected undercut note, got %v", res.Notes)
	}
	count := 0
	for _, n := range res.Notes {
		if strings.Contains(n, "undercuts") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("only the first undercut reference should be noted, got %d", count)
	}
}

func TestAdjustScoreDerivedFromMargin(t *testing.T) {
	res := newTestAdjuster(4000).Adjust(scenarioListing(), nil, Estimate{MaxBid: nd(14000)})
	if res.Score != 2.8 {
		t.Fatalf("score = %v, want margin-derived 2.8", res.Score)
	}
	if !hasNote(res.Notes, "Score derived from profit margin cap") {
		t.Fatalf("notes = %v", res.Notes)
	}
}

func TestAdjustScoreForcedToZero(t *testing.T) {
	listing := scenarioListing()
	listing.CurrentBid = nd(17000)
	res := newTestAdjuster(3500).Adjust(listing, nil, Estimate{MaxBid: nd(14000), Score: score(8)})
	if !res.ExpectedProfit.Decimal.IsZero() {
		t.Fatalf("profit = %s", res.ExpectedProfit.Decimal)
	}
	if res.Score != 0 || !hasNote(res.Notes, "Score forced to 0") {
		t.Fatalf("score %v notes %v", res.Score, res.Notes)
	}
}

func TestAdjustInvariants(t *testing.T) {
	bids := []int64{0, 5000, 9000, 14000, 25000, 60000}
	currents := []int64{0, 4000, 10000, 16000, 30000}
	scores := []float64{-3, 0, 4.44, 10, 14}

	a := newTestAdjuster(3500)
	for _, b := range bids {
		for _, c := range currents {
			for _, s := range scores {
				listing := scenarioListing()
				listing.CurrentBid = nd(c)
				res := a.Adjust(listing, nil, Estimate{MaxBid: nd(b), Score: score(s)})

				if res.Score < 0 || res.Score > 10 {
					t.Fatalf("score %v out of range (bid %d current %d)", res.Score, b, c)
				}
				if res.RecommendedMaxBid.Decimal.IsNegative() {
					t.Fatalf("negative bid for bid %d current %d", b, c)
				}
				if res.RecommendedMaxBid.Decimal.LessThan(dec(c)) {
					t.Fatalf("bid %s below current %d", res.RecommendedMaxBid.Decimal, c)
				}
				if c <= 16500 && res.RecommendedMaxBid.Decimal.GreaterThan(res.BreakEvenBid.Decimal) {
					t.Fatalf("bid %s above break-even with current %d", res.RecommendedMaxBid.Decimal, c)
				}
				if res.ExpectedProfit.Decimal.IsZero() && res.Score != 0 {
					t.Fatalf("zero profit must have zero score, got %v", res.Score)
				}
			}
		}
	}
}

func TestAdjustDeduplicatesNotes(t *testing.T) {
	est := Estimate{
		MaxBid: nd(14000),
		Notes:  []string{"Strong demand", "Strong demand"},
	}
	res := newTestAdjuster(4000).Adjust(scenarioListing(), nil, est)
	seen := map[string]bool{}
	for _, n := range res.Notes {
		if seen[n] {
			t.Fatalf("duplicate note %q", n)
		}
		seen[n] = true
	}
}

func TestEvaluateUsesCache(t *testing.T) {
	calls := 0
	est := EstimatorFunc(func(ctx context.Context, s Snapshot) (Estimate, error) {
		calls++
		if s.Manual == nil || !s.Manual.AvgPrice.Decimal.Equal(dec(18000)) {
			t.Fatalf("snapshot missing manual comparables: %+v", s.Manual)
		}
		return Estimate{MaxBid: nd(14000), Score: score(7)}, nil
	})
	cache := newMemoryCache()
	a := NewAdjuster(DefaultOptions(), est, cache, zerolog.Nop())
	ctx := context.Background()

	first, err := a.Evaluate(ctx, scenarioListing(), nil, false)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if first.Cached {
		t.Fatal("first evaluation should not be cached")
	}

	second, err := a.Evaluate(ctx, scenarioListing(), nil, false)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !second.Cached || calls != 1 {
		t.Fatalf("expected cache hit, cached=%v calls=%d", second.Cached, calls)
	}

	if _, err := a.Evaluate(ctx, scenarioListing(), nil, true); err != nil {
		t.Fatalf("Evaluate force: %v", err)
	}
	if calls != 2 || cache.puts != 2 {
		t.Fatalf("force should re-run and overwrite, calls=%d puts=%d", calls, cache.puts)
	}
}

func TestEvaluateRecomputesExpiredEntries(t *testing.T) {
	calls := 0
	est := EstimatorFunc(func(context.Context, Snapshot) (Estimate, error) {
		calls++
		return Estimate{MaxBid: nd(14000), Score: score(7)}, nil
	})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := newMemoryCache()
	opts := DefaultOptions()
	opts.RefreshAfter = 12 * time.Hour
	a := NewAdjuster(opts, est, cache, zerolog.Nop())
	a.now = func() time.Time { return now }
	ctx := context.Background()

	url := scenarioListing().URL
	cache.items[url] = Result{URL: url, AnalyzedAt: now.Add(-11 * time.Hour)}
	res, err := a.Evaluate(ctx, scenarioListing(), nil, false)
	if err != nil || !res.Cached || calls != 0 {
		t.Fatalf("recent entry should be served: cached=%v calls=%d err=%v", res.Cached, calls, err)
	}

	cache.items[url] = Result{URL: url, AnalyzedAt: now.Add(-13 * time.Hour)}
	res, err = a.Evaluate(ctx, scenarioListing(), nil, false)
	if err != nil || res.Cached || calls != 1 {
		t.Fatalf("expired entry should be recomputed: cached=%v calls=%d err=%v", res.Cached, calls, err)
	}
	if cache.gets != 2 {
		t.Fatalf("each evaluation should read the cache once, got %d reads", cache.gets)
	}
}

func TestEvaluateServiceFailureDegrades(t *testing.T) {
	est := EstimatorFunc(func(context.Context, Snapshot) (Estimate, error) {
		return Estimate{}, errors.New("rate limited")
	})
	cache := newMemoryCache()
	a := NewAdjuster(DefaultOptions(), est, cache, zerolog.Nop())

	res, err := a.Evaluate(context.Background(), scenarioListing(), nil, false)
	if err != nil {
		t.Fatalf("service failure should not surface as an error: %v", err)
	}
	if res.ServiceError == "" || !strings.Contains(res.Notes[0], "Pricing service unavailable") {
		t.Fatalf("expected service failure note first, got %v", res.Notes)
	}
	if !res.RecommendedMaxBid.Valid {
		t.Fatal("manual comparables should still produce a bid")
	}
	if _, ok := cache.items[res.URL]; !ok {
		t.Fatal("degraded result should still be cached")
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	est := EstimatorFunc(func(ctx context.Context, _ Snapshot) (Estimate, error) {
		return Estimate{}, ctx.Err()
	})
	cache := newMemoryCache()
	a := NewAdjuster(DefaultOptions(), est, cache, zerolog.Nop())

	if _, err := a.Evaluate(ctx, scenarioListing(), nil, true); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if cache.puts != 0 {
		t.Fatal("cancelled evaluation must not be cached")
	}
}
