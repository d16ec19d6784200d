package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
	"github.com/keonramses/Cinephage-sub002/internal/release"
	"github.com/keonramses/Cinephage-sub002/internal/testutil"
)

func releaseInfo(title string) types.ReleaseInfo {
	return types.ReleaseInfo{GUID: title, Title: title, DownloadURL: "https://example.org/dl"}
}

type stubProvider struct {
	records    []Record
	titleCalls int
}

func (p *stubProvider) find(pred func(*Record) bool) (*Record, error) {
	for i := range p.records {
		if pred(&p.records[i]) {
			return &p.records[i], nil
		}
	}
	return nil, nil
}

func (p *stubProvider) GetByTmdbID(_ context.Context, kind MediaKind, tmdbID int) (*Record, error) {
	return p.find(func(r *Record) bool { return r.Kind == kind && r.TmdbID == tmdbID })
}

func (p *stubProvider) FindByImdbID(_ context.Context, imdbID string) (*Record, error) {
	return p.find(func(r *Record) bool { return r.ImdbID == imdbID })
}

func (p *stubProvider) FindByTvdbID(_ context.Context, tvdbID int) (*Record, error) {
	return p.find(func(r *Record) bool { return r.TvdbID == tvdbID })
}

func (p *stubProvider) SearchByTitle(_ context.Context, kind MediaKind, _ string) ([]Record, error) {
	p.titleCalls++
	var out []Record
	for _, r := range p.records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func catalogProvider() *stubProvider {
	return &stubProvider{records: []Record{
		{ID: 1, Kind: KindMovie, Title: "Film Title", Year: 1999, ImdbID: "tt0137523", TmdbID: 550},
		{ID: 2, Kind: KindMovie, Title: "Other Film", Year: 2010, ImdbID: "tt1375666", TmdbID: 27205},
		{ID: 3, Kind: KindSeries, Title: "Show Name", AlternateTitles: []string{"Show Name US"}, Year: 2015, TvdbID: 281470, TmdbID: 62560},
	}}
}

func newTestMatcher(provider Provider) *Matcher {
	svc := NewService(provider, NewCache(DefaultCacheConfig()), testutil.NopLogger())
	return NewMatcher(svc, testutil.NopLogger())
}

func TestMatchCanonicalIDHint(t *testing.T) {
	m := newTestMatcher(catalogProvider())

	parsed := release.Parse("Film.Title.1999.1080p.BluRay.x264")
	match, err := m.Match(context.Background(), parsed, Hint{Kind: KindMovie, TmdbID: 550})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, MethodCanonicalID, match.Method)
	assert.Equal(t, int64(1), match.Record.ID)
	assert.Equal(t, 1.0, match.Confidence)
}

func TestMatchCanonicalIDYearMismatchFallsThrough(t *testing.T) {
	m := newTestMatcher(catalogProvider())

	// Release year is far from the hinted record's year; the cascade
	// falls through to the IMDb hint instead of hard-failing.
	parsed := release.Parse("Other.Film.2010.1080p.BluRay.x264")
	match, err := m.Match(context.Background(), parsed, Hint{
		Kind:   KindMovie,
		TmdbID: 550,
		ImdbID: "tt1375666",
	})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, MethodImdbID, match.Method)
	assert.Equal(t, int64(2), match.Record.ID)
}

func TestMatchTvdbIDSkipsYearCheck(t *testing.T) {
	m := newTestMatcher(catalogProvider())

	parsed := release.Parse("Show.Name.2023.S08E01.1080p.WEB-DL")
	match, err := m.Match(context.Background(), parsed, Hint{Kind: KindSeries, TvdbID: 281470})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, MethodTvdbID, match.Method)
	assert.Equal(t, int64(3), match.Record.ID)
}

func TestMatchTitleEmbeddedID(t *testing.T) {
	m := newTestMatcher(catalogProvider())

	parsed := release.Parse("Film.Title.1999.tt0137523.1080p.BluRay")
	match, err := m.Match(context.Background(), parsed, Hint{Kind: KindMovie})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, MethodTitleID, match.Method)
	assert.Equal(t, int64(1), match.Record.ID)
}

func TestMatchFuzzyTitle(t *testing.T) {
	m := newTestMatcher(catalogProvider())

	parsed := release.Parse("Film.Title.1999.1080p.BluRay.x264")
	match, err := m.Match(context.Background(), parsed, Hint{Kind: KindMovie})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, MethodFuzzyTitle, match.Method)
	assert.Equal(t, int64(1), match.Record.ID)
	// Exact title and exact year: 0.8 + 0.2.
	assert.InDelta(t, 1.0, match.Confidence, 0.001)
}

func TestMatchFuzzyAlternateTitle(t *testing.T) {
	m := newTestMatcher(catalogProvider())

	parsed := release.Parse("Show.Name.US.S01E01.720p.HDTV")
	match, err := m.Match(context.Background(), parsed, Hint{Kind: KindSeries})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, int64(3), match.Record.ID)
}

func TestMatchRejectsWeakFuzzy(t *testing.T) {
	m := newTestMatcher(catalogProvider())

	parsed := release.Parse("Totally.Unrelated.Program.2001.1080p.BluRay")
	match, err := m.Match(context.Background(), parsed, Hint{Kind: KindMovie})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestMatchCachesExternalIDLookups(t *testing.T) {
	provider := catalogProvider()
	m := newTestMatcher(provider)

	parsed := release.Parse("Film.Title.1999.1080p.BluRay.x264")
	for i := 0; i < 3; i++ {
		match, err := m.Match(context.Background(), parsed, Hint{Kind: KindMovie})
		require.NoError(t, err)
		require.NotNil(t, match)
	}
	assert.Equal(t, 1, provider.titleCalls)
}

func TestTitleSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, titleSimilarity("show name", "show name"))
	assert.Equal(t, 0.0, titleSimilarity("", "show name"))

	close := titleSimilarity("show name", "show names")
	assert.Greater(t, close, 0.8)

	far := titleSimilarity("show name", "completely different")
	assert.Less(t, far, 0.4)
}

func TestTargetMatcherRejectsDifferentRecord(t *testing.T) {
	m := newTestMatcher(catalogProvider())

	tm := m.ForTarget(Hint{Kind: KindMovie, TmdbID: 27205, Title: "Other Film", Year: 2010})

	// This release resolves to record 1, not the bound target.
	parsed := release.Parse("Film.Title.1999.tt0137523.1080p.BluRay")
	info := releaseInfo("Film.Title.1999.tt0137523.1080p.BluRay")
	_, ok := tm.MatchRelease(context.Background(), info, parsed)
	assert.False(t, ok)

	right := release.Parse("Other.Film.2010.1080p.BluRay.x264")
	conf, ok := tm.MatchRelease(context.Background(), releaseInfo("Other.Film.2010.1080p.BluRay.x264"), right)
	assert.True(t, ok)
	assert.Greater(t, conf, 0.0)
}
