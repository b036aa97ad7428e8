package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"autosniper/internal/dataset"
	"autosniper/internal/normalize"
	"autosniper/internal/outcome"
	"autosniper/internal/service"
)

// Score builds the outcome report, prints it, and optionally writes CSVs and a PNG chart.
func (a *App) Score(ctx context.Context, opts ScoreOptions) error {
	if opts.CSVDir == "" {
		opts.CSVDir = a.Config.Scoring.OutputDir
	}

	return a.withService(ctx, func(svc *service.Service) error {
		run, err := svc.Score(ctx)
		if err != nil {
			return err
		}
		rep := run.Report

		printTotals(a.Out, rep.Totals)
		printWeekly(a.Out, rep.Weekly)
		printTiers(a.Out, rep.Tiers)
		printWorstMisses(a.Out, rep.WorstMisses)

		if opts.CSVDir != "" {
			if err := writeReportCSVs(opts.CSVDir, rep); err != nil {
				return err
			}
			a.Logger.Info().Str("dir", opts.CSVDir).Msg("outcome csvs written")
		}
		if opts.PNGPath != "" {
			if len(rep.Weekly) < 2 {
				a.Logger.Warn().Int("weeks", len(rep.Weekly)).Msg("chart needs at least two settled weeks; skipping")
				return nil
			}
			if err := writeWeeklyPNG(opts.PNGPath, rep.Weekly); err != nil {
				return err
			}
			a.Logger.Info().Str("path", opts.PNGPath).Msg("weekly accuracy chart written")
		}
		return nil
	})
}

func writeReportCSVs(dir string, rep outcome.Report) error {
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"scored_listings.csv", func(w io.Writer) error { return dataset.WriteScored(w, rep.Records) }},
		{"weekly_metrics.csv", func(w io.Writer) error { return dataset.WriteWeekly(w, rep.Weekly) }},
		{"tier_metrics.csv", func(w io.Writer) error { return dataset.WriteTiers(w, rep.Tiers) }},
		{"worst_misses.csv", func(w io.Writer) error { return dataset.WriteScored(w, rep.WorstMisses) }},
	}
	for _, f := range files {
		if err := dataset.WriteFile(filepath.Join(dir, f.name), f.write); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

func printTotals(out io.Writer, t outcome.Totals) {
	fmt.Fprintf(out, "Predictions: %d  Settled: %d  Scored: %d\n", t.Predictions, t.Settled, t.Scored)
	accuracy := "N/A"
	if t.Accuracy != nil {
		accuracy = fmt.Sprintf("%.1f%%", *t.Accuracy*100)
	}
	fmt.Fprintf(out, "Accuracy: %s  MAE: %s  MAPE: %s  Mean profit: %s\n",
		accuracy,
		normalize.FormatNullCurrency(t.MAE),
		formatPct(t.MAPE),
		normalize.FormatNullCurrency(t.MeanProfit))
}

func printWeekly(out io.Writer, weeks []outcome.WeeklyMetric) {
	if len(weeks) == 0 {
		return
	}
	fmt.Fprintln(out)
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Week\tCount\tAccuracy\tMAE\tMAPE\tMean profit")
	for _, w := range weeks {
		fmt.Fprintf(writer, "%d-W%02d\t%d\t%.1f%%\t%s\t%s\t%s\n",
			w.ISOYear, w.ISOWeek, w.Count, w.Accuracy*100,
			normalize.FormatNullCurrency(w.MAE), formatPct(w.MAPE), normalize.FormatNullCurrency(w.MeanProfit))
	}
	writer.Flush()
}

func printTiers(out io.Writer, tiers []outcome.TierMetric) {
	if len(tiers) == 0 {
		return
	}
	fmt.Fprintln(out)
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Tier\tCount\tAccuracy\tMAE")
	for _, t := range tiers {
		fmt.Fprintf(writer, "%s\t%d\t%.1f%%\t%s\n", t.Tier, t.Count, t.Accuracy*100, normalize.FormatNullCurrency(t.MAE))
	}
	writer.Flush()
}

func printWorstMisses(out io.Writer, records []outcome.Record) {
	if len(records) == 0 {
		return
	}
	fmt.Fprintln(out)
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Error\tPredicted\tActual\tListing")
	for _, r := range records {
		label := r.Title
		if label == "" {
			label = r.URL
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			formatPct(r.ErrorPct), normalize.FormatNullCurrency(r.PredictedResale),
			normalize.FormatNullCurrency(r.SalePrice), label)
	}
	writer.Flush()
}

// formatPct renders a fraction as a percentage.
func formatPct(d decimal.NullDecimal) string {
	if !d.Valid {
		return "N/A"
	}
	return d.Decimal.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

func writeWeeklyPNG(path string, weeks []outcome.WeeklyMetric) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(weeks))
	accuracy := make([]float64, len(weeks))
	mape := make([]float64, len(weeks))
	mapeMax := 10.0
	for i, w := range weeks {
		x[i] = w.WeekStart
		accuracy[i] = w.Accuracy * 100
		if w.MAPE.Valid {
			mape[i] = w.MAPE.Decimal.Mul(decimal.NewFromInt(100)).InexactFloat64()
			mapeMax = max(mapeMax, mape[i])
		}
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f%%")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Accuracy (%)",
			ValueFormatter: pctFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: 100},
		},
		YAxisSecondary: chart.YAxis{
			Name:           "MAPE (%)",
			ValueFormatter: pctFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: mapeMax},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Profit call accuracy",
				XValues: x,
				YValues: accuracy,
			},
			chart.TimeSeries{
				Name:    "Resale MAPE",
				XValues: x,
				YValues: mape,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
