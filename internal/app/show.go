package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"autosniper/internal/normalize"
)

// Show prints recent cached valuations.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	results, err := store.ListValuations(ctx, a.Config.ResolveLimit(opts.Limit))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(a.Out, "no cached valuations found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Analyzed\tScore\tMax bid\tEstimate\tStatus\tService error\tListing")
	for _, res := range results {
		fmt.Fprintf(
			writer,
			"%s\t%.1f\t%s\t%s\t%s\t%s\t%s\n",
			humanize.RelTime(res.AnalyzedAt, time.Now(), "ago", "from now"),
			res.Score,
			normalize.FormatNullCurrency(res.RecommendedMaxBid),
			normalize.FormatNullCurrency(res.PriceEstimate),
			res.Status,
			sanitizeInline(res.ServiceError),
			listingLabel(res),
		)
	}

	writer.Flush()
	return nil
}
