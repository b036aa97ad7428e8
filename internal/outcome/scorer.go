package outcome

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"autosniper/internal/valuation"
)

// Options tune report sizes.
type Options struct {
	WorstMissLimit int
}

// DefaultOptions returns the standard report settings.
func DefaultOptions() Options {
	return Options{WorstMissLimit: 10}
}

// WeeklyMetric aggregates settled rows by ISO week of settlement.
type WeeklyMetric struct {
	WeekStart  time.Time           `json:"week"`
	ISOYear    int                 `json:"iso_year"`
	ISOWeek    int                 `json:"iso_week"`
	Count      int                 `json:"count"`
	Accuracy   float64             `json:"accuracy"`
	MAE        decimal.NullDecimal `json:"mae_price"`
	MAPE       decimal.NullDecimal `json:"mape_price"`
	MeanProfit decimal.NullDecimal `json:"profit_calibration"`
}

// TierMetric aggregates settled rows by predicted tier.
type TierMetric struct {
	Tier     string              `json:"predicted_verdict"`
	Accuracy float64             `json:"accuracy"`
	MAE      decimal.NullDecimal `json:"mae_price"`
	Count    int                 `json:"count"`
}

// Totals summarise the whole report.
type Totals struct {
	Predictions int                 `json:"predictions"`
	Settled     int                 `json:"settled"`
	Scored      int                 `json:"scored"`
	Accuracy    *float64            `json:"accuracy,omitempty"`
	MAE         decimal.NullDecimal `json:"mae_price"`
	MAPE        decimal.NullDecimal `json:"mape_price"`
	MeanProfit  decimal.NullDecimal `json:"mean_actual_profit"`
}

// Report is a complete backtest.
type Report struct {
	Records     []Record       `json:"records"`
	Weekly      []WeeklyMetric `json:"weekly"`
	Tiers       []TierMetric   `json:"tiers"`
	WorstMisses []Record       `json:"worst_misses"`
	Totals      Totals         `json:"totals"`
}

// Scorer computes reports. It keeps no state between calls.
type Scorer struct {
	opts Options
}

// NewScorer constructs a Scorer.
func NewScorer(opts Options) *Scorer {
	if opts.WorstMissLimit <= 0 {
		opts.WorstMissLimit = DefaultOptions().WorstMissLimit
	}
	return &Scorer{opts: opts}
}

// Score joins predictions to actuals by URL and aggregates accuracy metrics.
// verdicts optionally override the score-derived tier per URL.
func (s *Scorer) Score(results []valuation.Result, actuals []Actual, verdicts map[string]string) Report {
	records := join(results, actuals, verdicts)
	for i := range records {
		score(&records[i])
	}

	// Metrics cover rows with a defined hit and a settlement date, so the
	// weekly, tier and total views agree.
	var metricRows []Record
	for _, r := range records {
		if r.Hit != nil && r.SettledDate != nil {
			metricRows = append(metricRows, r)
		}
	}

	rep := Report{
		Records:     records,
		Weekly:      weekly(metricRows),
		Tiers:       tiers(metricRows),
		WorstMisses: s.worstMisses(records),
		Totals:      totals(records, metricRows),
	}
	return rep
}

func weekly(rows []Record) []WeeklyMetric {
	groups := make(map[time.Time][]Record)
	for _, r := range rows {
		start := WeekStart(*r.SettledDate)
		groups[start] = append(groups[start], r)
	}

	out := make([]WeeklyMetric, 0, len(groups))
	for start, group := range groups {
		year, week := start.ISOWeek()
		agg := aggregate(group)
		out = append(out, WeeklyMetric{
			WeekStart:  start,
			ISOYear:    year,
			ISOWeek:    week,
			Count:      len(group),
			Accuracy:   agg.accuracy,
			MAE:        agg.mae,
			MAPE:       agg.mape,
			MeanProfit: agg.meanProfit,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out
}

func tiers(rows []Record) []TierMetric {
	groups := make(map[string][]Record)
	for _, r := range rows {
		if r.Tier == "" {
			continue
		}
		groups[r.Tier] = append(groups[r.Tier], r)
	}

	out := make([]TierMetric, 0, len(groups))
	for tier, group := range groups {
		agg := aggregate(group)
		out = append(out, TierMetric{
			Tier:     tier,
			Accuracy: agg.accuracy,
			MAE:      agg.mae,
			Count:    len(group),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Accuracy != out[j].Accuracy {
			return out[i].Accuracy > out[j].Accuracy
		}
		return out[i].Tier < out[j].Tier
	})
	return out
}

func (s *Scorer) worstMisses(records []Record) []Record {
	var misses []Record
	for _, r := range records {
		if r.ErrorPct.Valid {
			misses = append(misses, r)
		}
	}
	sort.SliceStable(misses, func(i, j int) bool {
		return misses[i].ErrorPct.Decimal.GreaterThan(misses[j].ErrorPct.Decimal)
	})
	return misses[:min(s.opts.WorstMissLimit, len(misses))]
}

func totals(records, metricRows []Record) Totals {
	t := Totals{Scored: len(metricRows)}
	for _, r := range records {
		if r.PredictedScore != nil {
			t.Predictions++
		}
		if r.Settled() {
			t.Settled++
		}
	}
	if len(metricRows) > 0 {
		agg := aggregate(metricRows)
		t.Accuracy = &agg.accuracy
		t.MAE = agg.mae
		t.MAPE = agg.mape
		t.MeanProfit = agg.meanProfit
	}
	return t
}

type aggregates struct {
	accuracy   float64
	mae        decimal.NullDecimal
	mape       decimal.NullDecimal
	meanProfit decimal.NullDecimal
}

// aggregate averages each column over its non-null values.
func aggregate(rows []Record) aggregates {
	var agg aggregates
	hits, flagged := 0, 0
	var abs, pct, profit []decimal.Decimal
	for _, r := range rows {
		if r.Hit != nil {
			flagged++
			if *r.Hit {
				hits++
			}
		}
		if r.ErrorAbs.Valid {
			abs = append(abs, r.ErrorAbs.Decimal)
		}
		if r.ErrorPct.Valid {
			pct = append(pct, r.ErrorPct.Decimal)
		}
		if r.ActualProfit.Valid {
			profit = append(profit, r.ActualProfit.Decimal)
		}
	}
	if flagged > 0 {
		agg.accuracy = float64(hits) / float64(flagged)
	}
	agg.mae = mean(abs)
	agg.mape = mean(pct)
	agg.meanProfit = mean(profit)
	return agg
}

func mean(values []decimal.Decimal) decimal.NullDecimal {
	if len(values) == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.Avg(values[0], values[1:]...))
}

// WeekStart returns midnight UTC on the Monday of t's ISO week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
}
