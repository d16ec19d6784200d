// Package strategy runs the pack-aware search cascade for a series:
// complete-series pack, multi-season packs, single-season packs, then
// individual episodes, stopping each tier as coverage is reached.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/config"
	"github.com/keonramses/Cinephage-sub002/internal/grab"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/search"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
	"github.com/keonramses/Cinephage-sub002/internal/release"
	"github.com/keonramses/Cinephage-sub002/internal/scoring"
)

// Grab categories tallied in the run summary.
const (
	PhaseCompleteSeries = "complete-series"
	PhaseMultiSeason    = "multi-season"
	PhaseSingleSeason   = "single-season"
	PhaseIndividual     = "individual-episode"
)

const defaultEpisodeDelay = 500 * time.Millisecond

// Searcher issues one capability-gated search across all indexes.
type Searcher interface {
	Search(ctx context.Context, criteria types.SearchCriteria) (*search.Result, error)
}

// Committer is the grab decision gate. A nil-error return means the
// candidate was accepted and committed.
type Committer interface {
	Grab(ctx context.Context, cand scoring.Candidate, target grab.Target) (*grab.Result, error)
}

// Episode is one missing episode the run tries to cover.
type Episode struct {
	ID      int64
	Season  int
	Episode int
}

// SeriesContext describes the show being searched.
type SeriesContext struct {
	SeriesID int64
	Title    string
	Year     int
	TvdbID   int
	TmdbID   int
	ImdbID   string

	// EpisodeCounts maps season number to its total episode count,
	// used for coverage-ratio math.
	EpisodeCounts map[int]int
}

// Options tunes one run.
type Options struct {
	Profile *scoring.Profile
	Search  config.SearchConfig

	// Matcher enables canonical-metadata verification during
	// enrichment; nil skips it.
	Matcher scoring.ReleaseMatcher

	Category    string
	IsAutomatic bool
	IsUpgrade   bool

	// EpisodeDelay overrides the configured inter-episode delay when
	// positive.
	EpisodeDelay time.Duration
}

// Summary is the final tally of one run.
type Summary struct {
	CoveredEpisodeIDs []int64        `json:"coveredEpisodeIds"`
	Grabs             map[string]int `json:"grabs"`
	SearchesIssued    int            `json:"searchesIssued"`
	Errors            []string       `json:"errors,omitempty"`
	Elapsed           time.Duration  `json:"elapsed"`
}

// Runner executes pack-aware searches.
type Runner struct {
	searcher  Searcher
	enricher  *scoring.Enricher
	committer Committer
	logger    zerolog.Logger
}

func NewRunner(searcher Searcher, enricher *scoring.Enricher, committer Committer, logger zerolog.Logger) *Runner {
	return &Runner{
		searcher:  searcher,
		enricher:  enricher,
		committer: committer,
		logger:    logger.With().Str("component", "strategy").Logger(),
	}
}

// run carries the mutable state of one strategy execution.
type run struct {
	series   SeriesContext
	opts     Options
	missing  []Episode
	covered  map[int64]bool
	summary  *Summary
	progress *reporter
}

func (s *run) coverEpisode(id int64) {
	if !s.covered[id] {
		s.covered[id] = true
		s.summary.CoveredEpisodeIDs = append(s.summary.CoveredEpisodeIDs, id)
	}
}

func (s *run) uncovered() []Episode {
	var out []Episode
	for _, ep := range s.missing {
		if !s.covered[ep.ID] {
			out = append(out, ep)
		}
	}
	return out
}

func (s *run) percentCovered() int {
	if len(s.missing) == 0 {
		return 100
	}
	return len(s.summary.CoveredEpisodeIDs) * 100 / len(s.missing)
}

// RunPackAwareSearch walks the four phases in order. Each phase may
// fully satisfy the request and short-circuit the rest; a failed phase
// is treated as having found nothing. Cancellation is honored between
// phases and between searches, and whatever was already committed
// stays committed.
func (r *Runner) RunPackAwareSearch(ctx context.Context, series SeriesContext, missing []Episode, opts Options, sink chan<- ProgressEvent) (*Summary, error) {
	start := time.Now()
	state := &run{
		series:  series,
		opts:    opts,
		missing: missing,
		covered: make(map[int64]bool),
		summary: &Summary{Grabs: map[string]int{}},
		progress: newReporter(sink, r.logger.With().
			Int64("seriesId", series.SeriesID).Logger()),
	}
	defer func() { state.summary.Elapsed = time.Since(start) }()

	if len(missing) == 0 {
		state.progress.report(ProgressEvent{Phase: PhaseCompleteSeries, Message: "nothing missing", PercentComplete: 100})
		return state.summary, nil
	}

	phases := []func(context.Context, *run) error{
		r.phaseCompleteSeries,
		r.phaseMultiSeason,
		r.phaseSingleSeason,
		r.phaseIndividual,
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return state.summary, err
		}
		if len(state.uncovered()) == 0 {
			break
		}
		if err := phase(ctx, state); err != nil {
			// Context cancellation is the only error a phase escalates.
			return state.summary, err
		}
	}

	state.progress.report(ProgressEvent{
		Phase:           PhaseIndividual,
		Message:         "run complete",
		PercentComplete: 100,
		Details: map[string]any{
			"covered": len(state.summary.CoveredEpisodeIDs),
			"missing": len(missing),
		},
	})
	r.logger.Info().
		Int64("seriesId", series.SeriesID).
		Int("missing", len(missing)).
		Int("covered", len(state.summary.CoveredEpisodeIDs)).
		Interface("grabs", state.summary.Grabs).
		Msg("pack-aware search finished")
	return state.summary, nil
}

// phaseCompleteSeries tries one pack covering every season, entered
// only when the whole-series missing ratio meets the threshold.
func (r *Runner) phaseCompleteSeries(ctx context.Context, state *run) error {
	total := 0
	for _, count := range state.series.EpisodeCounts {
		total += count
	}
	if total == 0 || len(state.missing)*100/total < state.opts.Search.CompleteSeriesThreshold {
		return nil
	}

	state.progress.report(ProgressEvent{
		Phase:           PhaseCompleteSeries,
		Message:         "searching for a complete series pack",
		PercentComplete: state.percentCovered(),
	})

	candidates, err := r.searchAndRank(ctx, state, types.SearchCriteria{
		Type:   types.SearchTypeTV,
		Query:  state.series.Title,
		TvdbID: state.series.TvdbID,
		ImdbID: state.series.ImdbID,
	}, total)
	if err != nil {
		return r.containPhaseError(ctx, state, PhaseCompleteSeries, err)
	}

	firstSeason, lastSeason := seasonSpan(state.series.EpisodeCounts)
	candidates = filterCandidates(candidates, func(c *scoring.Candidate) bool {
		return c.Parsed.IsCompleteSeries || coversSeasons(c.Parsed, firstSeason, lastSeason)
	})

	if r.commitBest(ctx, state, candidates, PhaseCompleteSeries, state.uncovered()) {
		for _, ep := range state.missing {
			state.coverEpisode(ep.ID)
		}
	}
	return ctx.Err()
}

// phaseMultiSeason searches each qualifying consecutive-season range
// with the range's first season as the filter.
func (r *Runner) phaseMultiSeason(ctx context.Context, state *run) error {
	ranges := multiSeasonRanges(state.seasonStats(), state.opts.Search.MultiSeasonThreshold)
	for _, seasons := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		targets := episodesInRange(state.uncovered(), seasons)
		if len(targets) == 0 {
			continue
		}

		state.progress.report(ProgressEvent{
			Phase:           PhaseMultiSeason,
			Message:         fmt.Sprintf("searching seasons %d-%d as one pack", seasons.Start, seasons.End),
			PercentComplete: state.percentCovered(),
		})

		candidates, err := r.searchAndRank(ctx, state, types.SearchCriteria{
			Type:   types.SearchTypeTV,
			Query:  state.series.Title,
			TvdbID: state.series.TvdbID,
			Season: seasons.Start,
		}, state.episodeTotal(seasons))
		if err != nil {
			if cerr := r.containPhaseError(ctx, state, PhaseMultiSeason, err); cerr != nil {
				return cerr
			}
			continue
		}

		candidates = filterCandidates(candidates, func(c *scoring.Candidate) bool {
			return coversSeasons(c.Parsed, seasons.Start, seasons.End)
		})
		if r.commitBest(ctx, state, candidates, PhaseMultiSeason, targets) {
			for _, ep := range targets {
				state.coverEpisode(ep.ID)
			}
		}
	}
	return ctx.Err()
}

// phaseSingleSeason tries a season pack for every season whose
// remaining missing-ratio still meets the threshold.
func (r *Runner) phaseSingleSeason(ctx context.Context, state *run) error {
	for _, stat := range state.seasonStats() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stat.total == 0 || stat.missing*100/stat.total < state.opts.Search.SingleSeasonThreshold {
			continue
		}
		targets := episodesInRange(state.uncovered(), SeasonRange{Start: stat.season, End: stat.season})
		if len(targets) == 0 {
			continue
		}

		state.progress.report(ProgressEvent{
			Phase:           PhaseSingleSeason,
			Message:         fmt.Sprintf("searching season %d pack", stat.season),
			PercentComplete: state.percentCovered(),
		})

		candidates, err := r.searchAndRank(ctx, state, types.SearchCriteria{
			Type:   types.SearchTypeTV,
			Query:  state.series.Title,
			TvdbID: state.series.TvdbID,
			Season: stat.season,
		}, stat.total)
		if err != nil {
			if cerr := r.containPhaseError(ctx, state, PhaseSingleSeason, err); cerr != nil {
				return cerr
			}
			continue
		}

		candidates = filterCandidates(candidates, func(c *scoring.Candidate) bool {
			return isSingleSeasonPack(c.Parsed, stat.season)
		})
		if r.commitBest(ctx, state, candidates, PhaseSingleSeason, targets) {
			for _, ep := range targets {
				state.coverEpisode(ep.ID)
			}
		}
	}
	return ctx.Err()
}

// phaseIndividual searches every still-uncovered episode on its own,
// pacing requests with the configured delay.
func (r *Runner) phaseIndividual(ctx context.Context, state *run) error {
	delay := state.opts.EpisodeDelay
	if delay <= 0 {
		delay = time.Duration(state.opts.Search.EpisodeDelayMs) * time.Millisecond
	}
	if delay < defaultEpisodeDelay {
		delay = defaultEpisodeDelay
	}

	remaining := state.uncovered()
	sort.Slice(remaining, func(i, j int) bool {
		if remaining[i].Season != remaining[j].Season {
			return remaining[i].Season < remaining[j].Season
		}
		return remaining[i].Episode < remaining[j].Episode
	})

	for i, ep := range remaining {
		if i > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		state.progress.report(ProgressEvent{
			Phase:           PhaseIndividual,
			Message:         fmt.Sprintf("searching S%02dE%02d", ep.Season, ep.Episode),
			PercentComplete: state.percentCovered(),
		})

		candidates, err := r.searchAndRank(ctx, state, types.SearchCriteria{
			Type:    types.SearchTypeTV,
			Query:   state.series.Title,
			TvdbID:  state.series.TvdbID,
			Season:  ep.Season,
			Episode: ep.Episode,
		}, 1)
		if err != nil {
			if cerr := r.containPhaseError(ctx, state, PhaseIndividual, err); cerr != nil {
				return cerr
			}
			continue
		}

		candidates = filterCandidates(candidates, func(c *scoring.Candidate) bool {
			return matchesEpisode(c.Parsed, ep.Season, ep.Episode)
		})
		if r.commitBest(ctx, state, candidates, PhaseIndividual, []Episode{ep}) {
			state.coverEpisode(ep.ID)
		}
	}
	return ctx.Err()
}

// searchAndRank issues one search and scores the hits.
func (r *Runner) searchAndRank(ctx context.Context, state *run, criteria types.SearchCriteria, expectedEpisodes int) ([]scoring.Candidate, error) {
	state.summary.SearchesIssued++
	result, err := r.searcher.Search(ctx, criteria)
	if err != nil {
		return nil, err
	}

	mediaType := scoring.MediaTypeSeason
	if criteria.Episode > 0 {
		mediaType = scoring.MediaTypeEpisode
	}
	enriched := r.enricher.Enrich(ctx, result.Releases, scoring.EnrichOptions{
		Profile:          state.opts.Profile,
		MediaType:        mediaType,
		ExpectedEpisodes: expectedEpisodes,
		Matcher:          state.opts.Matcher,
		DropRejected:     true,
	})
	return enriched.Candidates, nil
}

// commitBest walks candidates in score order and stops at the first
// accepted commit. A candidate the committer refuses is skipped, not
// fatal.
func (r *Runner) commitBest(ctx context.Context, state *run, candidates []scoring.Candidate, phase string, targets []Episode) bool {
	if len(targets) == 0 {
		return false
	}
	episodeIDs := make([]int64, len(targets))
	for i, ep := range targets {
		episodeIDs[i] = ep.ID
	}
	target := grab.Target{
		SeriesID:    &state.series.SeriesID,
		EpisodeIDs:  episodeIDs,
		Category:    state.opts.Category,
		IsAutomatic: state.opts.IsAutomatic,
		IsUpgrade:   state.opts.IsUpgrade,
	}

	for i := range candidates {
		if ctx.Err() != nil {
			return false
		}
		cand := candidates[i]
		if cand.Rejected {
			continue
		}
		result, err := r.committer.Grab(ctx, cand, target)
		if err != nil {
			r.logger.Warn().Err(err).Str("title", cand.Release.Title).Str("phase", phase).
				Msg("commit refused, trying next candidate")
			continue
		}
		if result != nil && result.Success {
			state.summary.Grabs[phase]++
			state.progress.report(ProgressEvent{
				Phase:           phase,
				Message:         "grabbed " + cand.Release.Title,
				PercentComplete: state.percentCovered(),
				Details:         map[string]any{"score": cand.Score, "episodes": len(targets)},
			})
			return true
		}
	}
	return false
}

// containPhaseError downgrades a phase failure to "found nothing"
// unless the context itself was canceled.
func (r *Runner) containPhaseError(ctx context.Context, state *run, phase string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.logger.Warn().Err(err).Str("phase", phase).Msg("phase search failed")
	state.summary.Errors = append(state.summary.Errors, fmt.Sprintf("%s: %v", phase, err))
	state.progress.report(ProgressEvent{
		Phase:           phase,
		Message:         "phase search failed, continuing",
		PercentComplete: state.percentCovered(),
	})
	return nil
}

func (s *run) seasonStats() []seasonStat {
	missingBySeason := map[int]int{}
	for _, ep := range s.uncovered() {
		missingBySeason[ep.Season]++
	}
	stats := make([]seasonStat, 0, len(s.series.EpisodeCounts))
	for season, total := range s.series.EpisodeCounts {
		stats = append(stats, seasonStat{season: season, missing: missingBySeason[season], total: total})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].season < stats[j].season })
	return stats
}

func (s *run) episodeTotal(seasons SeasonRange) int {
	total := 0
	for season := seasons.Start; season <= seasons.End; season++ {
		total += s.series.EpisodeCounts[season]
	}
	return total
}

func seasonSpan(counts map[int]int) (first, last int) {
	for season := range counts {
		if first == 0 || season < first {
			first = season
		}
		if season > last {
			last = season
		}
	}
	return first, last
}

func episodesInRange(episodes []Episode, seasons SeasonRange) []Episode {
	var out []Episode
	for _, ep := range episodes {
		if seasons.Contains(ep.Season) {
			out = append(out, ep)
		}
	}
	return out
}

func filterCandidates(candidates []scoring.Candidate, keep func(*scoring.Candidate) bool) []scoring.Candidate {
	out := candidates[:0:0]
	for i := range candidates {
		if candidates[i].Parsed != nil && keep(&candidates[i]) {
			out = append(out, candidates[i])
		}
	}
	return out
}

// coversSeasons reports whether the parsed hit is a pack whose span
// fully covers [start, end]. Single-episode hits never qualify even
// though their season numbers would overlap.
func coversSeasons(parsed *release.ParsedRelease, start, end int) bool {
	if parsed.Episode > 0 || (!parsed.IsSeasonPack && !parsed.IsCompleteSeries) {
		return false
	}
	return parsed.CoversSeasons(start, end)
}

func isSingleSeasonPack(parsed *release.ParsedRelease, season int) bool {
	if !parsed.IsSeasonPack || parsed.IsCompleteSeries || parsed.Episode > 0 {
		return false
	}
	s, e, ok := parsed.SeasonRange()
	return ok && s == season && e == season
}

func matchesEpisode(parsed *release.ParsedRelease, season, episode int) bool {
	if parsed.IsSeasonPack || parsed.IsCompleteSeries || parsed.Season != season {
		return false
	}
	endEpisode := parsed.EndEpisode
	if endEpisode == 0 {
		endEpisode = parsed.Episode
	}
	return parsed.Episode > 0 && parsed.Episode <= episode && endEpisode >= episode
}
