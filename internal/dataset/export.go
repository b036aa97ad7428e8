package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"autosniper/internal/outcome"
	"autosniper/internal/valuation"
)

// WriteFile writes through a temp file and renames it into place.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteValuations exports cached valuation results.
func WriteValuations(w io.Writer, results []valuation.Result) error {
	header := []string{
		"url", "title", "analysis_timestamp", "status", "carsales_price_estimate", "carsales_price_range",
		"break_even_bid", "recommended_max_bid", "expected_profit", "profit_margin_percent",
		"score_out_of_10", "confidence_notes", "current_bid", "odometer_factor", "service_error",
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.URL,
			r.Title,
			formatTime(&r.AnalyzedAt),
			string(r.Status),
			formatDecimal(r.PriceEstimate),
			r.PriceRange,
			formatDecimal(r.BreakEvenBid),
			formatDecimal(r.RecommendedMaxBid),
			formatDecimal(r.ExpectedProfit),
			formatDecimal(r.ProfitMarginPct),
			strconv.FormatFloat(r.Score, 'f', 1, 64),
			strings.Join(r.Notes, "; "),
			formatDecimal(r.CurrentBid),
			r.OdometerFactor.StringFixed(2),
			r.ServiceError,
		})
	}
	return writeCSV(w, header, rows)
}

// WriteScored exports joined outcome records.
func WriteScored(w io.Writer, records []outcome.Record) error {
	header := []string{
		"url", "analysis_timestamp", "predicted_resale_price", "predicted_profit", "predicted_verdict",
		"predicted_score", "recommended_max_bid", "purchase_price", "purchase_date", "actual_sale_price",
		"actual_fees_total", "reconditioning_cost", "actual_profit", "outcome_error_abs", "outcome_error_pct",
		"hit", "settled_date",
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		score := ""
		if r.PredictedScore != nil {
			score = strconv.FormatFloat(*r.PredictedScore, 'f', 1, 64)
		}
		hit := ""
		if r.Hit != nil {
			hit = strconv.FormatBool(*r.Hit)
		}
		rows = append(rows, []string{
			r.URL,
			formatTime(r.AnalyzedAt),
			formatDecimal(r.PredictedResale),
			formatDecimal(r.PredictedProfit),
			r.Tier,
			score,
			formatDecimal(r.RecommendedMaxBid),
			formatDecimal(r.PurchasePrice),
			formatDate(r.PurchaseDate),
			formatDecimal(r.SalePrice),
			formatDecimal(r.Fees),
			formatDecimal(r.Reconditioning),
			formatDecimal(r.ActualProfit),
			formatDecimal(r.ErrorAbs),
			formatRatio(r.ErrorPct),
			hit,
			formatDate(r.SettledDate),
		})
	}
	return writeCSV(w, header, rows)
}

// WriteWeekly exports weekly accuracy metrics.
func WriteWeekly(w io.Writer, metrics []outcome.WeeklyMetric) error {
	header := []string{"week", "iso_year", "iso_week", "count", "accuracy", "mae_price", "mape_price", "profit_calibration"}
	rows := make([][]string, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, []string{
			m.WeekStart.Format("2006-01-02"),
			strconv.Itoa(m.ISOYear),
			strconv.Itoa(m.ISOWeek),
			strconv.Itoa(m.Count),
			strconv.FormatFloat(m.Accuracy, 'f', 4, 64),
			formatDecimal(m.MAE),
			formatRatio(m.MAPE),
			formatDecimal(m.MeanProfit),
		})
	}
	return writeCSV(w, header, rows)
}

// WriteTiers exports per-tier accuracy metrics.
func WriteTiers(w io.Writer, metrics []outcome.TierMetric) error {
	header := []string{"predicted_verdict", "accuracy", "mae_price", "count"}
	rows := make([][]string, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, []string{
			m.Tier,
			strconv.FormatFloat(m.Accuracy, 'f', 4, 64),
			formatDecimal(m.MAE),
			strconv.Itoa(m.Count),
		})
	}
	return writeCSV(w, header, rows)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func formatDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.Round(2).String()
}

func formatRatio(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(4)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
