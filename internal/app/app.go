package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autosniper/internal/alerting"
	"autosniper/internal/config"
	"autosniper/internal/estimator"
	"autosniper/internal/fetcher"
	"autosniper/internal/matcher"
	"autosniper/internal/scheduler"
	"autosniper/internal/service"
	"autosniper/internal/storage"
	"autosniper/internal/valuation"
	"autosniper/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives reports and tables.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) valuationOptions() valuation.Options {
	v := a.Config.Valuation
	return valuation.Options{
		CostBuffer:            decimal.NewFromFloat(v.CostBuffer),
		BidHeadroom:           decimal.NewFromFloat(v.BidHeadroom),
		MinOdometerFactor:     decimal.NewFromFloat(v.MinOdometerFactor),
		MaxOdometerFactor:     decimal.NewFromFloat(v.MaxOdometerFactor),
		OdometerNoteTolerance: decimal.NewFromFloat(v.OdometerNoteTolerance),
		ScoreMarginDivisor:    decimal.NewFromFloat(v.ScoreMarginDivisor),
		RefreshAfter:          v.RefreshAfter,
	}
}

func (a *App) matcherOptions() matcher.Options {
	m := a.Config.Matching
	return matcher.Options{
		SimilarityThreshold: m.SimilarityThreshold,
		FallbackLimit:       m.FallbackLimit,
		CloseLimit:          m.CloseLimit,
		CloseFallbackLimit:  m.CloseFallbackLimit,
		MaxOdometerDiff:     decimal.NewFromFloat(m.MaxOdometerDiff),
	}
}

// newEstimator returns nil when no provider is configured; the adjuster then
// falls back to comparables and notes the missing service.
func (a *App) newEstimator() (valuation.Estimator, error) {
	p := a.Config.Pricing
	est, err := estimator.FromOptions(estimator.Options{
		Provider:    p.Provider,
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Timeout:     p.Timeout,
		CostBuffer:  decimal.NewFromFloat(a.Config.Valuation.CostBuffer),
	}, a.Logger)
	if errors.Is(err, estimator.ErrNotConfigured) {
		a.Logger.Warn().Str("provider", p.Provider).Msg("pricing provider not configured; valuations use fallbacks only")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return est, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	if a.Config.Alerting.Enabled {
		return alerting.NewLogNotifier(a.Logger)
	}
	return nil
}

func (a *App) newSyncer() *fetcher.Syncer {
	d := a.Config.Data
	if d.RemoteURL == "" {
		return nil
	}
	return fetcher.NewSyncer(fetcher.Options{
		URL:          d.RemoteURL,
		Token:        d.RemoteToken,
		Dir:          d.Dir,
		CacheMinutes: d.CacheMinutes,
		Timeout:      d.Timeout,
		Required:     []string{d.SoldFile},
		UserAgent:    version.UserAgent(),
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.ValuationStore, func(), error) {
	store, err := storage.Open(ctx, a.Config, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close valuation store")
		}
	}
	return store, closer, nil
}

// newService wires the full pipeline over store. sched may be nil for one-shot commands.
func (a *App) newService(store storage.ValuationStore, sched *scheduler.Scheduler) (*service.Service, error) {
	est, err := a.newEstimator()
	if err != nil {
		return nil, err
	}

	deps := service.Deps{
		Scheduler: sched,
		Source:    service.NewFileSource(a.Config.Data, a.Logger),
		Matcher:   matcher.New(a.matcherOptions()),
		Adjuster:  valuation.NewAdjuster(a.valuationOptions(), est, store, a.Logger),
		Store:     store,
		Notifier:  a.newNotifier(),
	}
	if syncer := a.newSyncer(); syncer != nil {
		deps.Syncer = syncer
	}
	return service.New(a.Config, deps, a.Logger), nil
}

// withService opens the store, builds the service and runs fn.
func (a *App) withService(ctx context.Context, fn func(*service.Service) error) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store, nil)
	if err != nil {
		return err
	}
	return fn(svc)
}

// Run executes the long-running re-valuation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched, err := scheduler.New(scheduler.Options{
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
		RunOnStart:    true,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc, err := a.newService(store, sched)
	if err != nil {
		return err
	}

	a.Logger.Info().Str("storage", a.Config.Storage.Driver).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting re-valuation service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("re-valuation service stopped")
	return nil
}

// ValueOptions configure the value command.
type ValueOptions struct {
	URL      string
	Force    bool
	MinHours *float64
	MaxHours *float64
	CSVPath  string
	Alert    bool
}

// MatchOptions configure the match command.
type MatchOptions struct {
	URL   string
	Limit int
}

// ScoreOptions configure the score command.
type ScoreOptions struct {
	CSVDir  string
	PNGPath string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	DryRun bool
	Force  bool
}

// SyncOptions configure the sync command.
type SyncOptions struct {
	Force bool
}
