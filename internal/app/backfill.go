package app

import (
	"context"
	"errors"

	"autosniper/internal/dataset"
	"autosniper/internal/service"
	"autosniper/internal/storage"
)

// Backfill values every active listing regardless of closing time so the
// cache covers the whole auction run. Dry runs use a throwaway memory store.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	var store storage.ValuationStore
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: results are not persisted")
		store = storage.NewMemoryStore()
	} else {
		opened, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
		store = opened
	}

	svc, err := a.newService(store, nil)
	if err != nil {
		return err
	}

	pass, err := svc.Evaluate(ctx, service.EvaluateOptions{
		Force:  opts.Force,
		Window: dataset.Window{},
	})
	if err != nil {
		return err
	}

	a.Logger.Info().Str("run_id", pass.RunID).
		Int("listings", pass.Listings).
		Int("fresh", pass.Fresh).
		Int("cached", pass.Cached).
		Int("failed", pass.Failed).
		Msg("backfill complete")
	if opts.DryRun {
		printResults(a.Out, pass.Results)
	}
	if pass.Failed > 0 {
		return errors.New("some listings failed to backfill; check the logs")
	}
	return nil
}
