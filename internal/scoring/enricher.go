package scoring

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
	"github.com/keonramses/Cinephage-sub002/internal/release"
)

// RejectMetadataMismatch marks candidates whose title could not be
// matched to the search target's canonical record.
const RejectMetadataMismatch = "metadata-mismatch"

// ReleaseMatcher decides whether a parsed release refers to the search
// target, returning a confidence in [0,1]. Implementations are bound
// to a target before enrichment starts.
type ReleaseMatcher interface {
	MatchRelease(ctx context.Context, info types.ReleaseInfo, parsed *release.ParsedRelease) (float64, bool)
}

// EnrichOptions configures one enrichment run.
type EnrichOptions struct {
	Profile          *Profile
	MediaType        MediaType
	ExpectedEpisodes int

	// Matcher enables canonical-metadata verification; nil skips it.
	Matcher ReleaseMatcher

	// DropRejected removes rejected candidates from the output instead
	// of carrying them with their reasons.
	DropRejected bool

	// MinScore overrides the profile's floor when positive.
	MinScore int

	// Now anchors age calculations; the zero value means time.Now.
	Now time.Time
}

// EnrichmentResult is the outcome of scoring a raw result set.
type EnrichmentResult struct {
	Candidates    []Candidate   `json:"candidates"`
	RejectedCount int           `json:"rejectedCount"`
	ProfileUsed   string        `json:"profileUsed"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Enricher parses, scores, and optionally metadata-verifies raw search
// results concurrently.
type Enricher struct {
	workers int
	logger  zerolog.Logger
}

func NewEnricher(workers int, logger zerolog.Logger) *Enricher {
	if workers < 1 {
		workers = 1
	}
	return &Enricher{
		workers: workers,
		logger:  logger.With().Str("component", "enricher").Logger(),
	}
}

// Enrich scores every raw result against the profile. Output order is
// deterministic: score descending, then seeders descending, then GUID.
// Enrichment never mutates its input and is safe to re-run.
func (e *Enricher) Enrich(ctx context.Context, results []types.ReleaseInfo, opts EnrichOptions) EnrichmentResult {
	start := time.Now()
	scorer := NewScorer(opts.Profile, e.logger)
	scoreCtx := ScoreContext{
		MediaType:        opts.MediaType,
		ExpectedEpisodes: opts.ExpectedEpisodes,
		Now:              opts.Now,
	}

	candidates := make([]Candidate, len(results))
	p := pool.New().WithMaxGoroutines(e.workers)
	for i := range results {
		p.Go(func() {
			candidates[i] = e.enrichOne(ctx, scorer, results[i], scoreCtx, opts)
		})
	}
	p.Wait()

	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = opts.Profile.MinScore
	}

	rejected := 0
	kept := candidates[:0]
	for _, cand := range candidates {
		if !cand.Rejected && cand.Score < minScore {
			cand.Rejected = true
			cand.Reason = "below-min-score"
		}
		if cand.Rejected {
			rejected++
			if opts.DropRejected {
				continue
			}
		}
		kept = append(kept, cand)
	}

	sortCandidates(kept)

	e.logger.Debug().
		Int("results", len(results)).
		Int("rejected", rejected).
		Str("profile", opts.Profile.Name).
		Dur("elapsed", time.Since(start)).
		Msg("enrichment complete")

	return EnrichmentResult{
		Candidates:    kept,
		RejectedCount: rejected,
		ProfileUsed:   opts.Profile.Name,
		Elapsed:       time.Since(start),
	}
}

func (e *Enricher) enrichOne(ctx context.Context, scorer *Scorer, info types.ReleaseInfo, scoreCtx ScoreContext, opts EnrichOptions) Candidate {
	parsed := release.Parse(info.Title)
	cand := scorer.Score(info, parsed, scoreCtx)
	if cand.Rejected || opts.Matcher == nil {
		return cand
	}

	confidence, matched := opts.Matcher.MatchRelease(ctx, info, parsed)
	cand.MatchConfidence = confidence
	if !matched {
		cand.Rejected = true
		cand.Reason = RejectMetadataMismatch
	}
	return cand
}

func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Rejected != b.Rejected {
			return !a.Rejected
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Release.Seeders != b.Release.Seeders {
			return a.Release.Seeders > b.Release.Seeders
		}
		return a.Release.GUID < b.Release.GUID
	})
}
