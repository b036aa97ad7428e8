package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"autosniper/internal/alerting"
	"autosniper/internal/config"
	"autosniper/internal/dataset"
	"autosniper/internal/fetcher"
	"autosniper/internal/matcher"
	"autosniper/internal/outcome"
	"autosniper/internal/scheduler"
	"autosniper/internal/storage"
	"autosniper/internal/valuation"
	"autosniper/internal/vehicle"
)

// Deps are the collaborators of a Service. Scheduler, Syncer and Notifier may be nil.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Syncer    Syncer
	Source    Source
	Matcher   *matcher.Matcher
	Adjuster  *valuation.Adjuster
	Scorer    *outcome.Scorer
	Store     storage.ValuationStore
	Notifier  alerting.Notifier
}

// EvaluateOptions narrow a valuation pass.
type EvaluateOptions struct {
	// URL restricts the pass to one listing.
	URL    string
	Force  bool
	Window dataset.Window
	// Alert dispatches notifications for fresh high-score results.
	Alert bool
}

// Pass summarises one valuation pass.
type Pass struct {
	RunID     string
	StartedAt time.Time
	Results   []valuation.Result
	Listings  int
	Fresh     int
	Cached    int
	Alerts    int
	Failed    int
}

// ScoreRun is an outcome report plus how much history it appended.
type ScoreRun struct {
	RunID    string
	Report   outcome.Report
	Appended int64
}

// Service orchestrates data sync, valuation, alerting, and scoring.
type Service struct {
	scheduler *scheduler.Scheduler
	syncer    Syncer
	source    Source
	matcher   *matcher.Matcher
	adjuster  *valuation.Adjuster
	scorer    *outcome.Scorer
	store     storage.ValuationStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	window   dataset.Window
	minScore float64
	channels []string
	alertsOn bool
	locker   storage.AdvisoryLocker
	lockKey  int64
	now      func() time.Time
}

// New constructs the bid advisor service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := deps.Store.(storage.AdvisoryLocker); ok {
		locker = l
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = outcome.NewScorer(outcome.Options{WorstMissLimit: cfg.Scoring.WorstMissLimit})
	}

	return &Service{
		scheduler: deps.Scheduler,
		syncer:    deps.Syncer,
		source:    deps.Source,
		matcher:   deps.Matcher,
		adjuster:  deps.Adjuster,
		scorer:    scorer,
		store:     deps.Store,
		notifier:  deps.Notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		window: dataset.Window{
			MinHours: cfg.Listings.MinHours,
			MaxHours: cfg.Listings.MaxHours,
		},
		minScore: cfg.Alerting.MinScore,
		channels: cfg.Alerting.Channels,
		alertsOn: cfg.Alerting.Enabled,
		locker:   locker,
		lockKey:  cfg.Scheduler.AdvisoryLockKey,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Window returns the configured hours window.
func (s *Service) Window() dataset.Window {
	return s.window
}

// Run begins the scheduled re-valuation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行一次定时估值。
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if _, err := s.Sync(ctx, false); err != nil && !errors.Is(err, fetcher.ErrNotConfigured) {
		s.logger.Warn().Err(err).Msg("remote dataset sync failed; using local files")
	}

	pass, err := s.Evaluate(ctx, EvaluateOptions{Window: s.window, Alert: s.alertsOn})
	if err != nil {
		return err
	}
	s.logger.Info().Time("tick", tick).
		Str("run_id", pass.RunID).
		Int("listings", pass.Listings).
		Int("fresh", pass.Fresh).
		Int("cached", pass.Cached).
		Int("alerts", pass.Alerts).
		Int("failed", pass.Failed).
		Msg("tick complete")
	return nil
}

// Sync refreshes the data directory. Without a syncer it reports ErrNotConfigured.
func (s *Service) Sync(ctx context.Context, force bool) (fetcher.SyncResult, error) {
	if s.syncer == nil {
		return fetcher.SyncResult{}, fetcher.ErrNotConfigured
	}
	return s.syncer.Sync(ctx, force)
}

// Match loads the corpus and returns comparables for the listing with url.
func (s *Service) Match(ctx context.Context, url string) (vehicle.ActiveListing, matcher.Result, error) {
	listings, err := s.source.Listings(ctx, dataset.Window{AnyTime: true})
	if err != nil {
		return vehicle.ActiveListing{}, matcher.Result{}, err
	}
	listing, ok := dataset.FindListing(listings, url)
	if !ok {
		return vehicle.ActiveListing{}, matcher.Result{}, fmt.Errorf("listing %s not found", url)
	}
	corpus, err := s.corpus(ctx)
	if err != nil {
		return vehicle.ActiveListing{}, matcher.Result{}, err
	}
	return listing, s.matcher.Match(listing, corpus), nil
}

// Evaluate values every listing in the window, one at a time. A URL option
// looks up that listing whatever its closing time. A failed listing is logged
// and skipped.
func (s *Service) Evaluate(ctx context.Context, opts EvaluateOptions) (Pass, error) {
	pass := Pass{RunID: uuid.NewString(), StartedAt: s.now()}
	logger := s.logger.With().Str("run_id", pass.RunID).Logger()

	window := opts.Window
	if opts.URL != "" {
		window = dataset.Window{AnyTime: true}
	}
	listings, err := s.source.Listings(ctx, window)
	if err != nil {
		return pass, err
	}
	if opts.URL != "" {
		listing, ok := dataset.FindListing(listings, opts.URL)
		if !ok {
			return pass, fmt.Errorf("listing %s not found", opts.URL)
		}
		listings = []vehicle.ActiveListing{listing}
	}
	pass.Listings = len(listings)
	if len(listings) == 0 {
		logger.Info().Msg("no active listings in window")
		return pass, nil
	}

	corpus, err := s.corpus(ctx)
	if err != nil {
		return pass, err
	}

	for _, listing := range listings {
		if err := ctx.Err(); err != nil {
			return pass, err
		}

		match := s.matcher.Match(listing, corpus)
		res, err := s.adjuster.Evaluate(ctx, listing, &match.Summary, opts.Force)
		if err != nil {
			if ctx.Err() != nil {
				return pass, ctx.Err()
			}
			pass.Failed++
			logger.Error().Err(err).Str("url", listing.URL).Msg("valuation failed")
			if res.URL == "" {
				continue
			}
		}

		if res.Cached {
			pass.Cached++
		} else {
			pass.Fresh++
			logger.Info().Str("url", listing.URL).
				Str("status", string(res.Status)).
				Float64("score", res.Score).
				Int("comparables", match.Summary.Broad.Count).
				Msg("listing valued")
			if opts.Alert && s.alert(ctx, listing, res) {
				pass.Alerts++
			}
		}
		pass.Results = append(pass.Results, res)
	}
	return pass, nil
}

// Score builds an outcome report from every cached valuation and appends
// settled records to the scored history when the store keeps one.
func (s *Service) Score(ctx context.Context) (ScoreRun, error) {
	run := ScoreRun{RunID: uuid.NewString()}

	results, err := s.store.ListValuations(ctx, 0)
	if err != nil {
		return run, fmt.Errorf("list valuations: %w", err)
	}
	actuals, err := s.source.Actuals(ctx)
	if err != nil {
		return run, err
	}
	verdicts, err := s.source.Verdicts(ctx)
	if err != nil {
		return run, err
	}

	run.Report = s.scorer.Score(results, actuals, verdicts)

	if history, ok := s.store.(storage.ScoredHistory); ok {
		n, err := history.InsertScoredRecords(ctx, run.RunID, run.Report.Records)
		if err != nil {
			return run, fmt.Errorf("append scored history: %w", err)
		}
		run.Appended = n
	}

	s.logger.Info().Str("run_id", run.RunID).
		Int("records", len(run.Report.Records)).
		Int("settled", run.Report.Totals.Settled).
		Int64("appended", run.Appended).
		Msg("outcome report built")
	return run, nil
}

// Recent lists cached valuations newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]valuation.Result, error) {
	return s.store.ListValuations(ctx, limit)
}

func (s *Service) corpus(ctx context.Context) (*matcher.Corpus, error) {
	records, err := s.source.Corpus(ctx)
	if err != nil {
		return nil, err
	}
	return matcher.NewCorpus(records), nil
}

func (s *Service) alert(ctx context.Context, listing vehicle.ActiveListing, res valuation.Result) bool {
	if s.notifier == nil || !alerting.ShouldAlert(res, s.minScore) {
		return false
	}
	note := alerting.FromResult(res, s.minScore, listing.HoursRemaining, s.channels)
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("url", res.URL).Msg("failed to dispatch alert")
		return false
	}
	return true
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
