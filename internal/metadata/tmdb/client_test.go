package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keonramses/Cinephage-sub002/internal/config"
	"github.com/keonramses/Cinephage-sub002/internal/metadata"
	"github.com/keonramses/Cinephage-sub002/internal/testutil"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.TMDBConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5,
	}, testutil.NopLogger())
}

func TestGetByTmdbIDMovie(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movie/550", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{
			"id": 550,
			"title": "Film Title",
			"original_title": "Der Film Titel",
			"release_date": "1999-10-15",
			"imdb_id": "tt0137523",
			"alternative_titles": {"titles": [{"title": "Le Film"}]}
		}`))
	})

	record, err := client.GetByTmdbID(context.Background(), metadata.KindMovie, 550)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, metadata.KindMovie, record.Kind)
	assert.Equal(t, "Film Title", record.Title)
	assert.Equal(t, 1999, record.Year)
	assert.Equal(t, "tt0137523", record.ImdbID)
	assert.Equal(t, []string{"Der Film Titel", "Le Film"}, record.AlternateTitles)
}

func TestGetByTmdbIDNotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status_message": "The resource you requested could not be found."}`))
	})

	record, err := client.GetByTmdbID(context.Background(), metadata.KindSeries, 999999)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestFindByTvdbID(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/find/281470", r.URL.Path)
		assert.Equal(t, "tvdb_id", r.URL.Query().Get("external_source"))
		w.Write([]byte(`{
			"movie_results": [],
			"tv_results": [{
				"id": 62560,
				"name": "Show Name",
				"first_air_date": "2015-06-24",
				"external_ids": {"imdb_id": "tt4158110", "tvdb_id": 281470}
			}]
		}`))
	})

	record, err := client.FindByTvdbID(context.Background(), 281470)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, metadata.KindSeries, record.Kind)
	assert.Equal(t, 281470, record.TvdbID)
	assert.Equal(t, 62560, record.TmdbID)
}

func TestFindNoResults(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"movie_results": [], "tv_results": []}`))
	})

	record, err := client.FindByImdbID(context.Background(), "tt0000000")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestSearchByTitle(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/tv", r.URL.Path)
		assert.Equal(t, "Show Name", r.URL.Query().Get("query"))
		w.Write([]byte(`{"results": [
			{"id": 62560, "name": "Show Name", "first_air_date": "2015-06-24"},
			{"id": 62561, "name": "Show Name Again", "first_air_date": "2018-01-01"}
		]}`))
	})

	records, err := client.SearchByTitle(context.Background(), metadata.KindSeries, "Show Name")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Show Name", records[0].Title)
	assert.Equal(t, 2015, records[0].Year)
}

func TestUnconfiguredClient(t *testing.T) {
	client := NewClient(config.TMDBConfig{}, testutil.NopLogger())
	_, err := client.SearchByTitle(context.Background(), metadata.KindMovie, "anything")
	assert.ErrorIs(t, err, ErrAPIKeyMissing)
}

func TestRateLimited(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.SearchByTitle(context.Background(), metadata.KindMovie, "anything")
	assert.ErrorIs(t, err, ErrRateLimited)
}
