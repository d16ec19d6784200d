package grab

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
	"github.com/keonramses/Cinephage-sub002/internal/library"
	"github.com/keonramses/Cinephage-sub002/internal/queue"
	"github.com/keonramses/Cinephage-sub002/internal/release"
	"github.com/keonramses/Cinephage-sub002/internal/scoring"
	"github.com/keonramses/Cinephage-sub002/internal/testutil"
)

type stubFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, indexerID int64, url string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type stubClient struct {
	id       string
	protocol types.Protocol
	defaults AddOptions
	nextID   string
	err      error
	added    []Payload
	addOpts  []AddOptions
}

func (c *stubClient) ID() string               { return c.id }
func (c *stubClient) Protocol() types.Protocol { return c.protocol }
func (c *stubClient) AddDefaults() AddOptions  { return c.defaults }

func (c *stubClient) AddDownload(ctx context.Context, payload Payload, opts AddOptions) (string, error) {
	c.added = append(c.added, payload)
	c.addOpts = append(c.addOpts, opts)
	if c.err != nil {
		return "", c.err
	}
	return c.nextID, nil
}

type grabFixture struct {
	service  *Service
	client   *stubClient
	fetcher  *stubFetcher
	queue    *queue.Repository
	store    *library.Store
	seriesID int64
	movieID  int64
	episodes []int64
}

func newGrabFixture(t *testing.T, protocol types.Protocol) (*grabFixture, func()) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	logger := testutil.NopLogger()
	ctx := context.Background()

	store := library.NewStore(tdb.DB, logger)
	seriesID, err := store.AddSeries(ctx, library.Series{
		Title: "Show Name", Year: 2015, Path: t.TempDir(), Monitored: true,
	})
	require.NoError(t, err)

	var episodes []int64
	for ep := 1; ep <= 3; ep++ {
		id, err := store.AddEpisode(ctx, library.Episode{SeriesID: seriesID, Season: 1, Episode: ep, Monitored: true})
		require.NoError(t, err)
		episodes = append(episodes, id)
	}

	movieID, err := store.AddMovie(ctx, library.Movie{
		Title: "Film Title", Year: 1999, Path: t.TempDir(), Monitored: true,
	})
	require.NoError(t, err)

	fetcher := &stubFetcher{data: []byte("d8:announce0:e")}
	client := &stubClient{id: "client-1", protocol: protocol, nextID: "native-42"}
	queueRepo := queue.NewRepository(tdb.DB, logger)
	importer := library.NewImporter(store, logger)
	service := NewService(NewResolver(fetcher, logger), []DownloadClient{client}, queueRepo, store, importer, logger)

	return &grabFixture{
		service:  service,
		client:   client,
		fetcher:  fetcher,
		queue:    queueRepo,
		store:    store,
		seriesID: seriesID,
		movieID:  movieID,
		episodes: episodes,
	}, tdb.Close
}

func torrentCandidate(title string) scoring.Candidate {
	parsed := release.Parse(title)
	return scoring.Candidate{
		Release: types.ReleaseInfo{
			GUID:        "guid-" + title,
			Title:       title,
			MagnetURL:   "magnet:?xt=urn:btih:aabbccddeeff",
			DownloadURL: "https://alpha.example.com/dl/1",
			IndexerName: "alpha",
			Protocol:    types.ProtocolTorrent,
			Size:        1 << 30,
			Seeders:     50,
		},
		Parsed: parsed,
		Score:  500,
	}
}

func seriesTarget(f *grabFixture) Target {
	return Target{
		SeriesID:    &f.seriesID,
		EpisodeIDs:  f.episodes,
		Category:    "tv",
		IsAutomatic: true,
	}
}

func TestGrabTorrentLinksQueueItem(t *testing.T) {
	f, done := newGrabFixture(t, types.ProtocolTorrent)
	defer done()
	ctx := context.Background()

	result, err := f.service.Grab(ctx, torrentCandidate("Show.Name.S01.1080p.BluRay.x265-GRP"), seriesTarget(f))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "native-42", result.DownloadID)
	assert.Equal(t, "client-1", result.ClientID)
	assert.False(t, result.Adopted)

	// Magnet passthrough, no fetch.
	assert.Zero(t, f.fetcher.calls)
	require.Len(t, f.client.added, 1)
	assert.Equal(t, PayloadMagnet, f.client.added[0].Kind)

	item, err := f.queue.GetByHandle(ctx, "client-1", "native-42")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, result.QueueItemID, item.ID)
	assert.Equal(t, f.episodes, item.EpisodeIDs)
	assert.True(t, item.IsAutomatic)
}

func TestGrabAppliesClientSubmissionDefaults(t *testing.T) {
	f, done := newGrabFixture(t, types.ProtocolTorrent)
	defer done()
	f.client.defaults = AddOptions{Paused: true, SeedRatioLimit: 1.5}

	_, err := f.service.Grab(context.Background(),
		torrentCandidate("Show.Name.S01.1080p.BluRay.x265-GRP"), seriesTarget(f))
	require.NoError(t, err)

	// The client's configured pause and seed parameters travel with
	// the submission; the category comes from the grab target.
	require.Len(t, f.client.addOpts, 1)
	assert.Equal(t, AddOptions{Category: "tv", Paused: true, SeedRatioLimit: 1.5}, f.client.addOpts[0])
}

func TestGrabAdoptsDuplicateDownload(t *testing.T) {
	f, done := newGrabFixture(t, types.ProtocolTorrent)
	defer done()
	ctx := context.Background()

	cand := torrentCandidate("Show.Name.S01.1080p.BluRay.x265-GRP")
	first, err := f.service.Grab(ctx, cand, seriesTarget(f))
	require.NoError(t, err)

	// The client now reports the download as a duplicate; the grab
	// adopts the existing handle and resolves to the same queue item.
	f.client.err = &DuplicateError{ExistingID: "native-42"}
	second, err := f.service.Grab(ctx, cand, seriesTarget(f))
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.Adopted)
	assert.Equal(t, "native-42", second.DownloadID)
	assert.Equal(t, first.QueueItemID, second.QueueItemID)

	items, err := f.queue.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestGrabRejectedCandidate(t *testing.T) {
	f, done := newGrabFixture(t, types.ProtocolTorrent)
	defer done()

	cand := torrentCandidate("Show.Name.S01E01.CAM.x264")
	cand.Rejected = true
	cand.Reason = "banned-tag"

	_, err := f.service.Grab(context.Background(), cand, seriesTarget(f))
	require.ErrorIs(t, err, ErrCandidateRejected)
}

func TestGrabNoClientForProtocol(t *testing.T) {
	f, done := newGrabFixture(t, types.ProtocolUsenet)
	defer done()

	_, err := f.service.Grab(context.Background(), torrentCandidate("Show.Name.S01E01.1080p.WEB-DL.x264"), seriesTarget(f))
	require.ErrorIs(t, err, ErrNoDownloadClient)
}

func TestGrabUsenetValidatesNZB(t *testing.T) {
	f, done := newGrabFixture(t, types.ProtocolUsenet)
	defer done()
	ctx := context.Background()

	cand := torrentCandidate("Show.Name.S01E01.1080p.WEB-DL.x264")
	cand.Release.Protocol = types.ProtocolUsenet
	cand.Release.MagnetURL = ""

	f.fetcher.data = []byte("<html>login required</html>")
	result, err := f.service.Grab(ctx, cand, seriesTarget(f))
	require.Error(t, err)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, f.client.added)

	f.fetcher.data = []byte(`<?xml version="1.0" encoding="utf-8"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
  <file poster="poster@example.com" date="1700000000" subject="Show.Name.S01E01 (1/1)">
    <groups><group>alt.binaries.tv</group></groups>
    <segments><segment bytes="1024" number="1">segment-id-1@example.com</segment></segments>
  </file>
</nzb>`)
	result, err = f.service.Grab(ctx, cand, seriesTarget(f))
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, f.client.added, 1)
	assert.Equal(t, PayloadNZB, f.client.added[0].Kind)
}

func streamCandidate(descriptor string) scoring.Candidate {
	title := "Show.Name.S01.1080p.WEB-DL.x264"
	parsed := release.Parse(title)
	return scoring.Candidate{
		Release: types.ReleaseInfo{
			GUID:             "guid-stream",
			Title:            title,
			IndexerName:      "streamsource",
			Protocol:         types.ProtocolStreaming,
			StreamDescriptor: descriptor,
		},
		Parsed: parsed,
		Score:  400,
	}
}

func TestGrabStreamPackSkipsEpisodesWithFiles(t *testing.T) {
	f, done := newGrabFixture(t, types.ProtocolTorrent)
	defer done()
	ctx := context.Background()

	// Episode 1 already has a file from a previous import.
	importer := library.NewImporter(f.store, testutil.NopLogger())
	_, err := importer.ImportEpisodeFile(ctx, f.seriesID, library.EpisodeFile{
		EpisodeID:    f.episodes[0],
		RelativePath: "Season 01/Show.Name.S01E01.mkv",
		SizeBytes:    1 << 30,
	}, "Show.Name.S01E01.1080p-GRP", "alpha", "torrent", false, false)
	require.NoError(t, err)

	result, err := f.service.Grab(ctx, streamCandidate("stream://vault/abc123?season=1"), seriesTarget(f))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.PlaceholderFiles)

	have, err := f.store.EpisodesWithFiles(ctx, f.episodes)
	require.NoError(t, err)
	for _, id := range f.episodes {
		assert.True(t, have[id])
	}

	// The created records are placeholders, distinct per episode.
	files, err := f.store.FilesForSeries(ctx, f.seriesID)
	require.NoError(t, err)
	placeholders := 0
	for _, file := range files {
		if file.Placeholder {
			placeholders++
			// Placeholders carry the parsed quality label of the grab.
			assert.Equal(t, "1080p", file.Quality)
		}
	}
	assert.Equal(t, 2, placeholders)
}

func TestGrabStreamMovie(t *testing.T) {
	f, done := newGrabFixture(t, types.ProtocolTorrent)
	defer done()
	ctx := context.Background()

	cand := streamCandidate("stream://vault/m789")
	target := Target{MovieID: &f.movieID, IsAutomatic: true}

	result, err := f.service.Grab(ctx, cand, target)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.PlaceholderFiles)

	movie, err := f.store.GetMovie(ctx, f.movieID)
	require.NoError(t, err)
	assert.True(t, movie.HasFile)
}

func TestParseStreamDescriptor(t *testing.T) {
	tests := []struct {
		descriptor string
		want       StreamRef
		pack       bool
		wantErr    bool
	}{
		{descriptor: "stream://vault/abc123", want: StreamRef{Source: "vault", ContentID: "abc123"}},
		{descriptor: "stream://vault/abc123?season=1", want: StreamRef{Source: "vault", ContentID: "abc123", SeasonStart: 1, SeasonEnd: 1}, pack: true},
		{descriptor: "stream://vault/abc123?season=1&seasonEnd=3", want: StreamRef{Source: "vault", ContentID: "abc123", SeasonStart: 1, SeasonEnd: 3}, pack: true},
		{descriptor: "stream://vault/abc123?season=2&episode=5", want: StreamRef{Source: "vault", ContentID: "abc123", SeasonStart: 2, SeasonEnd: 2, Episode: 5}},
		{descriptor: "stream://vault/abc123?season=3&seasonEnd=1", wantErr: true},
		{descriptor: "stream://vault/abc123?episode=5", wantErr: true},
		{descriptor: "https://vault/abc123", wantErr: true},
		{descriptor: "stream://vault/", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.descriptor, func(t *testing.T) {
			ref, err := ParseStreamDescriptor(tc.descriptor)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, *ref)
			assert.Equal(t, tc.pack, ref.IsPack())
		})
	}
}

func TestResolveFetchRetries(t *testing.T) {
	logger := testutil.NopLogger()
	attempts := 0
	fetcher := fetcherFunc(func(ctx context.Context, indexerID int64, url string) ([]byte, error) {
		attempts++
		if attempts < 3 {
			return nil, fmt.Errorf("transient failure %d", attempts)
		}
		return []byte("d8:announce0:e"), nil
	})

	resolver := NewResolver(fetcher, logger)
	payload, err := resolver.Resolve(context.Background(), &types.ReleaseInfo{
		Title:       "Show.Name.S01E01.1080p-GRP",
		DownloadURL: "https://alpha.example.com/dl/1",
		Protocol:    types.ProtocolTorrent,
	})
	require.NoError(t, err)
	assert.Equal(t, PayloadTorrent, payload.Kind)
	assert.Equal(t, 3, attempts)
}

type fetcherFunc func(ctx context.Context, indexerID int64, url string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, indexerID int64, url string) ([]byte, error) {
	return f(ctx, indexerID, url)
}
