package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"autosniper/internal/dataset"
	"autosniper/internal/normalize"
	"autosniper/internal/service"
	"autosniper/internal/valuation"
)

// Value evaluates active listings in the hours window and prints the recommendations.
func (a *App) Value(ctx context.Context, opts ValueOptions) error {
	return a.withService(ctx, func(svc *service.Service) error {
		window := svc.Window()
		if opts.MinHours != nil {
			window.MinHours = *opts.MinHours
		}
		if opts.MaxHours != nil {
			window.MaxHours = *opts.MaxHours
		}
		if window.MaxHours > 0 && window.MaxHours <= window.MinHours {
			return fmt.Errorf("--max-hours must exceed --min-hours")
		}

		pass, err := svc.Evaluate(ctx, service.EvaluateOptions{
			URL:    opts.URL,
			Force:  opts.Force,
			Window: window,
			Alert:  opts.Alert,
		})
		if err != nil {
			return err
		}

		a.Logger.Info().Str("run_id", pass.RunID).
			Int("listings", pass.Listings).
			Int("fresh", pass.Fresh).
			Int("cached", pass.Cached).
			Int("failed", pass.Failed).
			Msg("valuation pass complete")

		if opts.CSVPath != "" {
			if err := dataset.WriteFile(opts.CSVPath, func(w io.Writer) error {
				return dataset.WriteValuations(w, pass.Results)
			}); err != nil {
				return err
			}
		}

		if len(pass.Results) == 0 {
			fmt.Fprintln(a.Out, "no active listings in window")
			return nil
		}
		if opts.URL != "" {
			printDetail(a.Out, pass.Results[0])
			return nil
		}
		printResults(a.Out, pass.Results)
		return nil
	})
}

func printResults(out io.Writer, results []valuation.Result) {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Score\tMax bid\tCurrent\tEstimate\tProfit\tStatus\tCached\tListing")
	for _, res := range results {
		fmt.Fprintf(writer, "%.1f\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			res.Score,
			normalize.FormatNullCurrency(res.RecommendedMaxBid),
			normalize.FormatNullCurrency(res.CurrentBid),
			normalize.FormatNullCurrency(res.PriceEstimate),
			normalize.FormatNullCurrency(res.ExpectedProfit),
			res.Status,
			res.Cached,
			listingLabel(res),
		)
	}
	writer.Flush()
}

func printDetail(out io.Writer, res valuation.Result) {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Listing\t%s\n", listingLabel(res))
	fmt.Fprintf(writer, "URL\t%s\n", res.URL)
	fmt.Fprintf(writer, "Analyzed\t%s\n", res.AnalyzedAt.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(writer, "Status\t%s\n", res.Status)
	fmt.Fprintf(writer, "Resale estimate\t%s\n", normalize.FormatNullCurrency(res.PriceEstimate))
	if res.PriceRange != "" {
		fmt.Fprintf(writer, "Range\t%s\n", res.PriceRange)
	}
	fmt.Fprintf(writer, "Break-even bid\t%s\n", normalize.FormatNullCurrency(res.BreakEvenBid))
	fmt.Fprintf(writer, "Recommended max bid\t%s\n", normalize.FormatNullCurrency(res.RecommendedMaxBid))
	fmt.Fprintf(writer, "Current bid\t%s\n", normalize.FormatNullCurrency(res.CurrentBid))
	fmt.Fprintf(writer, "Expected profit\t%s\n", normalize.FormatNullCurrency(res.ExpectedProfit))
	if res.ProfitMarginPct.Valid {
		fmt.Fprintf(writer, "Margin\t%s%%\n", res.ProfitMarginPct.Decimal.StringFixed(1))
	}
	fmt.Fprintf(writer, "Score\t%.1f/10\n", res.Score)
	writer.Flush()

	if len(res.Notes) > 0 {
		fmt.Fprintln(out, "Notes:")
		for _, note := range res.Notes {
			fmt.Fprintf(out, "  - %s\n", sanitizeInline(note))
		}
	}
}

func listingLabel(res valuation.Result) string {
	if res.Title != "" {
		return res.Title
	}
	return res.URL
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
