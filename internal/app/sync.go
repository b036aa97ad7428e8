package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"autosniper/internal/fetcher"
)

// Sync downloads the remote dataset bundle into the data directory.
func (a *App) Sync(ctx context.Context, opts SyncOptions) error {
	syncer := a.newSyncer()
	if syncer == nil {
		return errors.New("data.remote_url not configured; nothing to sync")
	}

	res, err := syncer.Sync(ctx, opts.Force)
	if errors.Is(err, fetcher.ErrNotConfigured) {
		return errors.New("data.remote_url not configured; nothing to sync")
	}
	if err != nil {
		return err
	}

	if !res.Downloaded {
		fmt.Fprintf(a.Out, "dataset up to date (%s)\n", res.Reason)
		return nil
	}
	fmt.Fprintf(a.Out, "downloaded %d file(s) (%s): %s\n", len(res.Files), res.Reason, strings.Join(res.Files, ", "))
	return nil
}
