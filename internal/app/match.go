package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"autosniper/internal/matcher"
	"autosniper/internal/normalize"
	"autosniper/internal/service"
)

// Match prints the comparable sales for one listing.
func (a *App) Match(ctx context.Context, opts MatchOptions) error {
	return a.withService(ctx, func(svc *service.Service) error {
		listing, res, err := svc.Match(ctx, opts.URL)
		if err != nil {
			return err
		}

		fmt.Fprintf(a.Out, "%s (%s)\n", listing.Label(), normalize.FormatNullCurrency(listing.CurrentBid))
		printStats(a.Out, "Broad", res.Summary.Broad, res.BroadFallback)
		printStats(a.Out, "Close", res.Summary.Close, false)
		nearby := fmt.Sprintf("Within %s", normalize.FormatOdometer(a.matcherOptions().MaxOdometerDiff))
		if res.NearbyFallback {
			nearby += " (fallback)"
		}
		fmt.Fprintf(a.Out, "%s: %d\n", nearby, len(res.Nearby))
		if res.Summary.MedianDiscount.Valid {
			fmt.Fprintf(a.Out, "Median discount vs current bid: %s\n", normalize.FormatCurrency(res.Summary.MedianDiscount.Decimal))
		}

		rows := res.Rows
		if limit := a.Config.ResolveLimit(opts.Limit); len(rows) > limit {
			rows = rows[:limit]
		}
		if len(rows) == 0 {
			fmt.Fprintln(a.Out, "no comparable sales found")
			return nil
		}

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Price\tOdometer\tDiff\tSimilarity\tSold\tVehicle")
		for _, m := range rows {
			odo := "N/A"
			if m.Record.Odometer.Valid {
				odo = normalize.FormatOdometer(m.Record.Odometer.Decimal)
			}
			diff := "N/A"
			if m.OdometerDiff.Valid {
				diff = normalize.FormatOdometer(m.OdometerDiff.Decimal)
			}
			sold := ""
			if m.Record.DateSold != nil {
				sold = m.Record.DateSold.Format("2006-01-02")
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
				normalize.FormatCurrency(m.Price), odo, diff, m.Similarity, sold, m.Record.Title())
		}
		writer.Flush()
		return nil
	})
}

func printStats(out io.Writer, label string, s matcher.Stats, fallback bool) {
	suffix := ""
	if fallback {
		suffix = " (fallback)"
	}
	if s.Count == 0 {
		fmt.Fprintf(out, "%s comparables: none%s\n", label, suffix)
		return
	}
	fmt.Fprintf(out, "%s comparables: %d, median %s, range %s - %s%s\n",
		label, s.Count,
		normalize.FormatNullCurrency(s.Median),
		normalize.FormatNullCurrency(s.Min),
		normalize.FormatNullCurrency(s.Max),
		suffix)
}
