package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
	"github.com/keonramses/Cinephage-sub002/internal/release"
	"github.com/keonramses/Cinephage-sub002/internal/testutil"
)

type stubMatcher struct {
	accept map[string]float64
}

func (m *stubMatcher) MatchRelease(_ context.Context, info types.ReleaseInfo, _ *release.ParsedRelease) (float64, bool) {
	conf, ok := m.accept[info.GUID]
	return conf, ok
}

func enrichInput(now time.Time) []types.ReleaseInfo {
	return []types.ReleaseInfo{
		torrentRelease("Show.Name.S01E02.720p.HDTV.x264-GRP", 50, 1<<30, 48*time.Hour, now),
		torrentRelease("Show.Name.S01E02.1080p.BluRay.x265-GRP", 200, 3<<30, 48*time.Hour, now),
		torrentRelease("Show.Name.S01E02.CAM.x264", 500, 1<<30, time.Hour, now),
		torrentRelease("Show.Name.S01.1080p.BluRay.x265-GRP", 80, 6<<30, 48*time.Hour, now),
	}
}

func TestEnrichOrdersByScoreDescending(t *testing.T) {
	e := NewEnricher(4, testutil.NopLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := e.Enrich(context.Background(), enrichInput(now), EnrichOptions{
		Profile: testProfile(),
		Now:     now,
	})

	require.Len(t, res.Candidates, 4)
	assert.Equal(t, 1, res.RejectedCount)
	assert.Equal(t, "test", res.ProfileUsed)

	// The pack outranks the matching single episode through its flat bonus.
	assert.Equal(t, "Show.Name.S01.1080p.BluRay.x265-GRP", res.Candidates[0].Release.GUID)
	assert.Equal(t, "Show.Name.S01E02.1080p.BluRay.x265-GRP", res.Candidates[1].Release.GUID)

	// Rejected candidates sort last and keep their reason.
	last := res.Candidates[3]
	assert.True(t, last.Rejected)
	assert.Equal(t, RejectBannedTag, last.Reason)

	for i := 1; i < 3; i++ {
		assert.GreaterOrEqual(t, res.Candidates[i-1].Score, res.Candidates[i].Score)
	}
}

func TestEnrichDropRejected(t *testing.T) {
	e := NewEnricher(4, testutil.NopLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := e.Enrich(context.Background(), enrichInput(now), EnrichOptions{
		Profile:      testProfile(),
		DropRejected: true,
		Now:          now,
	})

	require.Len(t, res.Candidates, 3)
	assert.Equal(t, 1, res.RejectedCount)
	for _, cand := range res.Candidates {
		assert.False(t, cand.Rejected)
	}
}

func TestEnrichMinScoreFloor(t *testing.T) {
	e := NewEnricher(2, testutil.NopLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := e.Enrich(context.Background(), enrichInput(now), EnrichOptions{
		Profile:      testProfile(),
		MinScore:     400,
		DropRejected: true,
		Now:          now,
	})

	for _, cand := range res.Candidates {
		assert.GreaterOrEqual(t, cand.Score, 400)
	}
	// The 720p episode scores below 400 and is filtered.
	assert.Len(t, res.Candidates, 2)
}

func TestEnrichWithMatcher(t *testing.T) {
	e := NewEnricher(4, testutil.NopLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	matcher := &stubMatcher{accept: map[string]float64{
		"Show.Name.S01E02.1080p.BluRay.x265-GRP": 0.92,
	}}

	input := enrichInput(now)[:2]
	res := e.Enrich(context.Background(), input, EnrichOptions{
		Profile: testProfile(),
		Matcher: matcher,
		Now:     now,
	})

	require.Len(t, res.Candidates, 2)
	matched := res.Candidates[0]
	assert.False(t, matched.Rejected)
	assert.InDelta(t, 0.92, matched.MatchConfidence, 0.001)

	unmatched := res.Candidates[1]
	assert.True(t, unmatched.Rejected)
	assert.Equal(t, RejectMetadataMismatch, unmatched.Reason)
}

func TestEnrichIsDeterministic(t *testing.T) {
	e := NewEnricher(8, testutil.NopLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opts := EnrichOptions{Profile: testProfile(), Now: now}

	a := e.Enrich(context.Background(), enrichInput(now), opts)
	b := e.Enrich(context.Background(), enrichInput(now), opts)

	require.Equal(t, len(a.Candidates), len(b.Candidates))
	for i := range a.Candidates {
		assert.Equal(t, a.Candidates[i].Release.GUID, b.Candidates[i].Release.GUID)
		assert.Equal(t, a.Candidates[i].Score, b.Candidates[i].Score)
		assert.Equal(t, a.Candidates[i].Breakdown, b.Candidates[i].Breakdown)
	}
}
