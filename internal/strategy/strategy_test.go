package strategy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keonramses/Cinephage-sub002/internal/config"
	"github.com/keonramses/Cinephage-sub002/internal/grab"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/search"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
	"github.com/keonramses/Cinephage-sub002/internal/scoring"
	"github.com/keonramses/Cinephage-sub002/internal/testutil"
)

// stubSearcher serves canned releases keyed by the criteria's season
// and episode filter.
type stubSearcher struct {
	byFilter map[string][]types.ReleaseInfo
	errors   map[string]error
	calls    []string
}

func filterKey(criteria types.SearchCriteria) string {
	return fmt.Sprintf("S%dE%d", criteria.Season, criteria.Episode)
}

func (s *stubSearcher) Search(ctx context.Context, criteria types.SearchCriteria) (*search.Result, error) {
	key := filterKey(criteria)
	s.calls = append(s.calls, key)
	if err := s.errors[key]; err != nil {
		return nil, err
	}
	releases := s.byFilter[key]
	return &search.Result{Releases: releases, TotalResults: len(releases), IndexersUsed: 1}, nil
}

// stubCommitter accepts every candidate unless its title is listed as
// refused, and records what it grabbed.
type stubCommitter struct {
	refused map[string]bool
	grabbed []string
	targets []grab.Target
}

func (c *stubCommitter) Grab(ctx context.Context, cand scoring.Candidate, target grab.Target) (*grab.Result, error) {
	if c.refused[cand.Release.Title] {
		return nil, fmt.Errorf("refused %s", cand.Release.Title)
	}
	c.grabbed = append(c.grabbed, cand.Release.Title)
	c.targets = append(c.targets, target)
	return &grab.Result{Success: true, QueueItemID: int64(len(c.grabbed))}, nil
}

func strategyProfile() *scoring.Profile {
	return &scoring.Profile{
		Name: "test",
		FormatWeights: map[string]int{
			"1080p":  350,
			"BluRay": 120,
			"WEB-DL": 100,
			"x265":   60,
			"x264":   40,
		},
		SizeBounds: map[scoring.MediaType]scoring.SizeBounds{
			scoring.MediaTypeEpisode: {MinBytes: 100 << 20, MaxBytes: 8 << 30},
		},
		AllowedProtocols: []types.Protocol{types.ProtocolTorrent},
	}
}

func torrentHit(title string, sizeGB int64) types.ReleaseInfo {
	return types.ReleaseInfo{
		GUID:        "guid-" + title,
		Title:       title,
		DownloadURL: "https://alpha.example.com/dl/" + title,
		Protocol:    types.ProtocolTorrent,
		Size:        sizeGB << 30,
		Seeders:     40,
		PublishDate: time.Now().Add(-48 * time.Hour),
	}
}

// threeSeasonSeries has 3 seasons of 3 episodes; episode IDs are
// season*100+episode.
func threeSeasonSeries() (SeriesContext, func(seasons ...int) []Episode) {
	series := SeriesContext{
		SeriesID:      7,
		Title:         "Show Name",
		TvdbID:        281470,
		EpisodeCounts: map[int]int{1: 3, 2: 3, 3: 3},
	}
	missing := func(seasons ...int) []Episode {
		var out []Episode
		for _, season := range seasons {
			for ep := 1; ep <= 3; ep++ {
				out = append(out, Episode{ID: int64(season*100 + ep), Season: season, Episode: ep})
			}
		}
		return out
	}
	return series, missing
}

func newTestRunner(searcher *stubSearcher, committer *stubCommitter) *Runner {
	logger := testutil.NopLogger()
	return NewRunner(searcher, scoring.NewEnricher(4, logger), committer, logger)
}

func testOptions() Options {
	return Options{
		Profile: strategyProfile(),
		Search: config.SearchConfig{
			CompleteSeriesThreshold: 60,
			MultiSeasonThreshold:    50,
			SingleSeasonThreshold:   50,
			EpisodeDelayMs:          500,
		},
		Category:    "tv",
		IsAutomatic: true,
	}
}

func TestCompleteSeriesShortCircuits(t *testing.T) {
	series, missing := threeSeasonSeries()
	searcher := &stubSearcher{byFilter: map[string][]types.ReleaseInfo{
		"S0E0": {torrentHit("Show.Name.Complete.Series.1080p.BluRay.x265-GRP", 20)},
	}}
	committer := &stubCommitter{}

	summary, err := newTestRunner(searcher, committer).RunPackAwareSearch(
		context.Background(), series, missing(1, 2, 3), testOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{PhaseCompleteSeries: 1}, summary.Grabs)
	assert.Len(t, summary.CoveredEpisodeIDs, 9)
	assert.Equal(t, 1, summary.SearchesIssued)
	require.Len(t, committer.targets, 1)
	assert.Len(t, committer.targets[0].EpisodeIDs, 9)
	assert.True(t, committer.targets[0].IsAutomatic)
}

func TestCompleteSeriesSkippedBelowThreshold(t *testing.T) {
	series, missing := threeSeasonSeries()
	// 3 of 9 missing is 33%, below the 60% gate; the unfiltered
	// series search must never be issued.
	searcher := &stubSearcher{byFilter: map[string][]types.ReleaseInfo{
		"S2E0": {torrentHit("Show.Name.S02.1080p.BluRay.x265-GRP", 5)},
	}}
	committer := &stubCommitter{}

	summary, err := newTestRunner(searcher, committer).RunPackAwareSearch(
		context.Background(), series, missing(2), testOptions(), nil)
	require.NoError(t, err)

	assert.NotContains(t, searcher.calls, "S0E0")
	assert.Equal(t, map[string]int{PhaseSingleSeason: 1}, summary.Grabs)
	assert.Len(t, summary.CoveredEpisodeIDs, 3)
}

func TestMultiSeasonPackCoversRange(t *testing.T) {
	series, missing := threeSeasonSeries()
	// All of seasons 1 and 2 missing: 66% of the series, which enters
	// the complete-series phase (nothing found) and then the seasons
	// 1-2 range. The stub serves an S01-S03 pack, which covers the
	// requested range and is accepted.
	searcher := &stubSearcher{byFilter: map[string][]types.ReleaseInfo{
		"S1E0": {torrentHit("Show.Name.S01-S03.1080p.BluRay.x265-GRP", 15)},
	}}
	committer := &stubCommitter{}

	summary, err := newTestRunner(searcher, committer).RunPackAwareSearch(
		context.Background(), series, missing(1, 2), testOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{PhaseMultiSeason: 1}, summary.Grabs)
	assert.Len(t, summary.CoveredEpisodeIDs, 6)
	require.Len(t, committer.targets, 1)
	assert.Len(t, committer.targets[0].EpisodeIDs, 6)
}

func TestCascadeFallsThroughToEpisodes(t *testing.T) {
	series, missing := threeSeasonSeries()
	// Seasons 1 and 2 fully missing. No complete pack, no range pack;
	// season 1 has a pack, season 2 falls all the way to individual
	// episode grabs.
	searcher := &stubSearcher{byFilter: map[string][]types.ReleaseInfo{
		"S1E0": {torrentHit("Show.Name.S01.1080p.BluRay.x265-GRP", 5)},
		"S2E1": {torrentHit("Show.Name.S02E01.1080p.WEB-DL.x264-GRP", 1)},
		"S2E2": {torrentHit("Show.Name.S02E02.1080p.WEB-DL.x264-GRP", 1)},
		"S2E3": {torrentHit("Show.Name.S02E03.1080p.WEB-DL.x264-GRP", 1)},
	}}
	committer := &stubCommitter{}

	opts := testOptions()
	summary, err := newTestRunner(searcher, committer).RunPackAwareSearch(
		context.Background(), series, missing(1, 2), opts, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		PhaseSingleSeason: 1,
		PhaseIndividual:   3,
	}, summary.Grabs)
	assert.Len(t, summary.CoveredEpisodeIDs, 6)
}

func TestPhaseErrorIsContained(t *testing.T) {
	series, missing := threeSeasonSeries()
	searcher := &stubSearcher{
		byFilter: map[string][]types.ReleaseInfo{
			"S2E1": {torrentHit("Show.Name.S02E01.1080p.WEB-DL.x264-GRP", 1)},
			"S2E2": {torrentHit("Show.Name.S02E02.1080p.WEB-DL.x264-GRP", 1)},
			"S2E3": {torrentHit("Show.Name.S02E03.1080p.WEB-DL.x264-GRP", 1)},
		},
		errors: map[string]error{
			"S2E0": fmt.Errorf("index gateway timeout"),
		},
	}
	committer := &stubCommitter{}

	summary, err := newTestRunner(searcher, committer).RunPackAwareSearch(
		context.Background(), series, missing(2), testOptions(), nil)
	require.NoError(t, err)

	// The season-pack search failed but the run still covered the
	// season episode by episode.
	assert.NotEmpty(t, summary.Errors)
	assert.Equal(t, map[string]int{PhaseIndividual: 3}, summary.Grabs)
	assert.Len(t, summary.CoveredEpisodeIDs, 3)
}

func TestCommitRefusalTriesNextCandidate(t *testing.T) {
	series, missing := threeSeasonSeries()
	best := torrentHit("Show.Name.S02.1080p.BluRay.x265-BEST", 5)
	fallback := torrentHit("Show.Name.S02.1080p.WEB-DL.x264-NEXT", 4)
	searcher := &stubSearcher{byFilter: map[string][]types.ReleaseInfo{
		"S2E0": {fallback, best},
	}}
	committer := &stubCommitter{refused: map[string]bool{best.Title: true}}

	summary, err := newTestRunner(searcher, committer).RunPackAwareSearch(
		context.Background(), series, missing(2), testOptions(), nil)
	require.NoError(t, err)

	require.Len(t, committer.grabbed, 1)
	assert.Equal(t, fallback.Title, committer.grabbed[0])
	assert.Equal(t, map[string]int{PhaseSingleSeason: 1}, summary.Grabs)
}

func TestProgressEventsDelivered(t *testing.T) {
	series, missing := threeSeasonSeries()
	searcher := &stubSearcher{byFilter: map[string][]types.ReleaseInfo{
		"S2E0": {torrentHit("Show.Name.S02.1080p.BluRay.x265-GRP", 5)},
	}}
	sink := make(chan ProgressEvent, 64)

	_, err := newTestRunner(searcher, &stubCommitter{}).RunPackAwareSearch(
		context.Background(), series, missing(2), testOptions(), sink)
	require.NoError(t, err)
	close(sink)

	var phases []string
	final := ProgressEvent{}
	for event := range sink {
		phases = append(phases, event.Phase)
		assert.GreaterOrEqual(t, event.PercentComplete, 0)
		assert.LessOrEqual(t, event.PercentComplete, 100)
		final = event
	}
	require.NotEmpty(t, phases)
	assert.Equal(t, 100, final.PercentComplete)
}

func TestProgressSinkNeverBlocks(t *testing.T) {
	series, missing := threeSeasonSeries()
	searcher := &stubSearcher{byFilter: map[string][]types.ReleaseInfo{
		"S2E0": {torrentHit("Show.Name.S02.1080p.BluRay.x265-GRP", 5)},
	}}
	// Unbuffered sink with nobody reading: every send must be dropped
	// rather than deadlocking the run.
	sink := make(chan ProgressEvent)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := newTestRunner(searcher, &stubCommitter{}).RunPackAwareSearch(
			context.Background(), series, missing(2), testOptions(), sink)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("strategy run blocked on progress sink")
	}
}

func TestCancellationReturnsPartialSummary(t *testing.T) {
	series, missing := threeSeasonSeries()
	ctx, cancel := context.WithCancel(context.Background())

	searcher := &stubSearcher{byFilter: map[string][]types.ReleaseInfo{
		"S1E0": {torrentHit("Show.Name.S01.1080p.BluRay.x265-GRP", 5)},
	}}
	committer := &stubCommitter{}
	runner := newTestRunner(searcher, committer)

	// Cancel once the first season pack was committed; the individual
	// phase's inter-episode delay observes the cancellation.
	go func() {
		for {
			if len(committer.grabbed) > 0 {
				cancel()
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	summary, err := runner.RunPackAwareSearch(ctx, series, missing(1, 2), testOptions(), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, summary.CoveredEpisodeIDs, 3)
	assert.Equal(t, 1, summary.Grabs[PhaseSingleSeason])
}
