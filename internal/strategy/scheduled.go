package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/library"
	"github.com/keonramses/Cinephage-sub002/internal/scoring"
)

// MatcherFactory builds a release matcher bound to one series, used
// by sweeps to verify results against the series' canonical record.
type MatcherFactory func(SeriesContext) scoring.ReleaseMatcher

// ScheduledSearcher runs the pack-aware strategy periodically for
// every monitored series that still has missing episodes.
type ScheduledSearcher struct {
	runner     *Runner
	store      *library.Store
	options    Options
	matcherFor MatcherFactory
	logger     zerolog.Logger

	gocron  gocron.Scheduler
	mu      sync.Mutex
	running bool
	lastRun *time.Time
}

func NewScheduledSearcher(runner *Runner, store *library.Store, options Options, logger zerolog.Logger) (*ScheduledSearcher, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &ScheduledSearcher{
		runner:  runner,
		store:   store,
		options: options,
		logger:  logger.With().Str("component", "scheduled-search").Logger(),
		gocron:  gs,
	}, nil
}

// WithMatcherFactory sets the per-series matcher builder. Without one,
// sweeps run with whatever matcher the base options carry.
func (s *ScheduledSearcher) WithMatcherFactory(f MatcherFactory) *ScheduledSearcher {
	s.matcherFor = f
	return s
}

// Start schedules the periodic sweep and begins running it.
func (s *ScheduledSearcher) Start(interval time.Duration) error {
	_, err := s.gocron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.sweep(context.Background()) }),
		gocron.WithName("missing-content-search"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule missing-content search: %w", err)
	}
	s.gocron.Start()
	s.logger.Info().Dur("interval", interval).Msg("scheduled missing-content search started")
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep.
func (s *ScheduledSearcher) Stop() error {
	return s.gocron.Shutdown()
}

// LastRun returns when the previous sweep started, if any.
func (s *ScheduledSearcher) LastRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// sweep runs the strategy once for each monitored series with missing
// episodes. A series failure is logged and never stops the sweep.
func (s *ScheduledSearcher) sweep(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug().Msg("previous sweep still running, skipping")
		return
	}
	s.running = true
	now := time.Now()
	s.lastRun = &now
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	series, err := s.store.MonitoredSeries(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list monitored series")
		return
	}

	for _, sr := range series {
		missing, counts, err := s.missingForSeries(ctx, sr.ID)
		if err != nil {
			s.logger.Error().Err(err).Int64("seriesId", sr.ID).Msg("failed to load missing episodes")
			continue
		}
		if len(missing) == 0 {
			continue
		}

		seriesCtx := SeriesContext{
			SeriesID:      sr.ID,
			Title:         sr.Title,
			Year:          sr.Year,
			TvdbID:        sr.TvdbID,
			TmdbID:        sr.TmdbID,
			ImdbID:        sr.ImdbID,
			EpisodeCounts: counts,
		}

		opts := s.options
		opts.IsAutomatic = true
		if s.matcherFor != nil {
			opts.Matcher = s.matcherFor(seriesCtx)
		}
		summary, err := s.runner.RunPackAwareSearch(ctx, seriesCtx, missing, opts, nil)
		if err != nil {
			s.logger.Error().Err(err).Int64("seriesId", sr.ID).Msg("scheduled search failed")
			continue
		}
		if len(summary.CoveredEpisodeIDs) > 0 {
			s.logger.Info().
				Int64("seriesId", sr.ID).
				Int("covered", len(summary.CoveredEpisodeIDs)).
				Interface("grabs", summary.Grabs).
				Msg("scheduled search covered missing episodes")
		}
	}
}

func (s *ScheduledSearcher) missingForSeries(ctx context.Context, seriesID int64) ([]Episode, map[int]int, error) {
	all, err := s.store.EpisodesBySeries(ctx, seriesID)
	if err != nil {
		return nil, nil, err
	}
	counts := map[int]int{}
	for _, ep := range all {
		counts[ep.Season]++
	}

	missingEpisodes, err := s.store.MissingEpisodes(ctx, seriesID)
	if err != nil {
		return nil, nil, err
	}
	missing := make([]Episode, len(missingEpisodes))
	for i, ep := range missingEpisodes {
		missing[i] = Episode{ID: ep.ID, Season: ep.Season, Episode: ep.Episode}
	}
	return missing, counts, nil
}
