package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/definition"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/request"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
	"github.com/keonramses/Cinephage-sub002/internal/testutil"
)

const indexDefTemplate = `
id: %s
name: %s
links: [https://%s.example]
caps:
  categorymappings:
    - {id: "tv", cat: TV/HD}
  modes:
    search: [q]
    tv-search: [q, season, ep]
search:
  paths:
    - path: /api
      response:
        type: json
  rows:
    selector: results
  fields:
    title:
      selector: title
    download:
      selector: link
    infohash:
      selector: hash
      optional: true
    seeders:
      selector: seeders
      optional: true
`

func testIndex(t *testing.T, id string, indexID int64, priority int) *Index {
	t.Helper()
	def, err := definition.Parse([]byte(fmt.Sprintf(indexDefTemplate, id, id, id)))
	require.NoError(t, err)
	return NewIndex(def, IndexOptions{ID: indexID, Name: id, Priority: priority, Enabled: true}, testutil.NopLogger())
}

func jsonRelease(title, link, hash string, seeders int) string {
	return fmt.Sprintf(`{"title": %q, "link": %q, "hash": %q, "seeders": %d}`, title, link, hash, seeders)
}

// hostRequester serves canned bodies keyed by URL host substring.
type hostRequester struct {
	bodies map[string]string
	errs   map[string]error
}

func (r *hostRequester) Do(_ context.Context, spec request.Spec) (*Response, error) {
	for host, err := range r.errs {
		if strings.Contains(spec.URL, host) {
			return nil, err
		}
	}
	for host, body := range r.bodies {
		if strings.Contains(spec.URL, host) {
			return &Response{StatusCode: 200, Body: []byte(body)}, nil
		}
	}
	return &Response{StatusCode: 404, Body: nil}, nil
}

func tvCriteria() types.SearchCriteria {
	return types.SearchCriteria{
		Query:  "show name",
		Type:   types.SearchTypeTV,
		Season: 1,
	}
}

func TestSearchFansOutAndDeduplicates(t *testing.T) {
	requester := &hostRequester{bodies: map[string]string{
		"alpha.example": `{"results": [` +
			jsonRelease("Show.Name.S01E01.1080p.WEB-DL", "https://alpha.example/dl/1", "aabbcc", 10) + "," +
			jsonRelease("Show.Name.S01E02.1080p.WEB-DL", "https://alpha.example/dl/2", "ddeeff", 5) +
			`]}`,
		"beta.example": `{"results": [` +
			// Same info hash as alpha's first release, more seeders.
			jsonRelease("Show.Name.S01E01.1080p.WEB-DL", "https://beta.example/dl/9", "AABBCC", 80) +
			`]}`,
	}}

	svc := NewService(requester, Options{}, testutil.NopLogger())
	svc.AddIndex(testIndex(t, "alpha", 1, 1))
	svc.AddIndex(testIndex(t, "beta", 2, 2))

	result, err := svc.Search(context.Background(), tvCriteria())
	require.NoError(t, err)

	assert.Equal(t, 2, result.IndexersUsed)
	assert.Empty(t, result.IndexerErrors)
	require.Len(t, result.Releases, 2)

	// The duplicate resolved to the better-seeded copy.
	var dup *types.ReleaseInfo
	for i := range result.Releases {
		if strings.EqualFold(result.Releases[i].InfoHash, "aabbcc") {
			dup = &result.Releases[i]
		}
	}
	require.NotNil(t, dup)
	assert.Equal(t, 80, dup.Seeders)
	assert.Equal(t, "beta", dup.IndexerName)
}

func TestSearchPartialFailure(t *testing.T) {
	requester := &hostRequester{
		bodies: map[string]string{
			"alpha.example": `{"results": [` +
				jsonRelease("Show.Name.S01E01.1080p.WEB-DL", "https://alpha.example/dl/1", "aabbcc", 10) +
				`]}`,
		},
		errs: map[string]error{
			"beta.example": fmt.Errorf("connection refused"),
		},
	}

	svc := NewService(requester, Options{}, testutil.NopLogger())
	svc.AddIndex(testIndex(t, "alpha", 1, 1))
	svc.AddIndex(testIndex(t, "beta", 2, 2))

	result, err := svc.Search(context.Background(), tvCriteria())
	require.NoError(t, err)

	assert.Equal(t, 1, result.IndexersUsed)
	require.Len(t, result.IndexerErrors, 1)
	assert.Equal(t, "beta", result.IndexerErrors[0].IndexerName)
	assert.Contains(t, result.IndexerErrors[0].Error, "connection refused")
	assert.Len(t, result.Releases, 1)
}

func TestSearchCapabilityGateSkips(t *testing.T) {
	requester := &hostRequester{bodies: map[string]string{}}
	svc := NewService(requester, Options{}, testutil.NopLogger())
	svc.AddIndex(testIndex(t, "alpha", 1, 1))

	// A movie search against a TV-only index is gated out before any
	// request is issued.
	result, err := svc.Search(context.Background(), types.SearchCriteria{
		Query: "film title",
		Type:  types.SearchTypeMovie,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Releases)
	assert.Zero(t, result.IndexersUsed)
	require.Len(t, result.Skipped, 1)
	assert.Contains(t, result.Skipped[0].Reason, "no-matching-categories")
}

func TestSearchSkipsDisabledIndex(t *testing.T) {
	requester := &hostRequester{bodies: map[string]string{}}
	svc := NewService(requester, Options{}, testutil.NopLogger())

	def, err := definition.Parse([]byte(fmt.Sprintf(indexDefTemplate, "alpha", "alpha", "alpha")))
	require.NoError(t, err)
	svc.AddIndex(NewIndex(def, IndexOptions{ID: 1, Name: "alpha", Enabled: false}, testutil.NopLogger()))

	result, err := svc.Search(context.Background(), tvCriteria())
	require.NoError(t, err)
	assert.Zero(t, result.IndexersUsed)
	assert.Empty(t, result.Skipped)
}

func TestSearchPerIndexTimeout(t *testing.T) {
	blocker := RequesterFunc(func(ctx context.Context, _ request.Spec) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	svc := NewService(blocker, Options{PerIndexTimeout: 50 * time.Millisecond}, testutil.NopLogger())
	svc.AddIndex(testIndex(t, "alpha", 1, 1))

	start := time.Now()
	result, err := svc.Search(context.Background(), tvCriteria())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, result.IndexerErrors, 1)
	assert.Contains(t, result.IndexerErrors[0].Error, "context deadline exceeded")
}

func TestDeduplicateReleasesByGUID(t *testing.T) {
	releases := []types.ReleaseInfo{
		{GUID: "https://a.example/r/1", Seeders: 3},
		{GUID: "http://a.example/r/1/", Seeders: 9},
		{GUID: "https://a.example/r/2", Seeders: 1},
	}

	out := deduplicateReleases(releases)
	require.Len(t, out, 2)
	assert.Equal(t, 9, out[0].Seeders)
}

func TestSortReleasesNewestFirst(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	releases := []types.ReleaseInfo{
		{GUID: "b", PublishDate: now.Add(-2 * time.Hour)},
		{GUID: "a", PublishDate: now},
		{GUID: "c", PublishDate: now.Add(-2 * time.Hour), Seeders: 5},
	}

	sortReleases(releases)
	assert.Equal(t, "a", releases[0].GUID)
	assert.Equal(t, "c", releases[1].GUID)
	assert.Equal(t, "b", releases[2].GUID)
}
