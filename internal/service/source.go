package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"autosniper/internal/config"
	"autosniper/internal/dataset"
	"autosniper/internal/fetcher"
	"autosniper/internal/outcome"
	"autosniper/internal/vehicle"
)

// Source supplies the CSV inputs of a pass.
type Source interface {
	Corpus(ctx context.Context) ([]vehicle.SoldRecord, error)
	Listings(ctx context.Context, window dataset.Window) ([]vehicle.ActiveListing, error)
	Actuals(ctx context.Context) ([]outcome.Actual, error)
	Verdicts(ctx context.Context) (map[string]string, error)
}

// Syncer refreshes the local data directory from the remote bundle.
type Syncer interface {
	Sync(ctx context.Context, force bool) (fetcher.SyncResult, error)
}

// FileSource reads the configured data directory.
type FileSource struct {
	data   config.DataConfig
	logger zerolog.Logger
}

// NewFileSource constructs a FileSource.
func NewFileSource(data config.DataConfig, logger zerolog.Logger) *FileSource {
	return &FileSource{data: data, logger: logger.With().Str("component", "source").Logger()}
}

// Corpus loads the base sold file plus the archive directory.
func (f *FileSource) Corpus(context.Context) ([]vehicle.SoldRecord, error) {
	return dataset.LoadCorpus(f.data.Path(f.data.SoldFile), f.data.Path(f.data.ArchiveDir), f.logger)
}

// Listings loads the first active listings file that exists.
func (f *FileSource) Listings(_ context.Context, window dataset.Window) ([]vehicle.ActiveListing, error) {
	candidates := make([]string, 0, len(f.data.ActiveFiles))
	for _, name := range f.data.ActiveFiles {
		candidates = append(candidates, f.data.Path(name))
	}
	path := dataset.ResolvePath(candidates...)
	if path == "" {
		return nil, fmt.Errorf("no active listings file found in %s", f.data.Dir)
	}
	f.logger.Debug().Str("path", path).Msg("loading active listings")
	listings, err := dataset.LoadActive(path, window)
	if err != nil {
		return nil, fmt.Errorf("load active listings: %w", err)
	}
	return listings, nil
}

// Actuals loads realised outcomes and back-fills purchase data from the sold corpus.
func (f *FileSource) Actuals(ctx context.Context) ([]outcome.Actual, error) {
	actuals, err := dataset.LoadActuals(f.data.Path(f.data.OutcomesFile))
	if err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}
	if len(actuals) == 0 {
		return nil, nil
	}
	sold, err := f.Corpus(ctx)
	if err != nil {
		return nil, err
	}
	return outcome.FillPurchases(actuals, sold), nil
}

// Verdicts loads the optional tier overrides.
func (f *FileSource) Verdicts(context.Context) (map[string]string, error) {
	verdicts, err := dataset.LoadVerdicts(f.data.Path(f.data.VerdictsFile))
	if err != nil {
		return nil, fmt.Errorf("load verdicts: %w", err)
	}
	return verdicts, nil
}

var _ Source = (*FileSource)(nil)
