package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keonramses/Cinephage-sub002/internal/testutil"
)

func TestAddOrGetIsIdempotent(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	repo := NewRepository(tdb.DB, testutil.NopLogger())
	ctx := context.Background()

	item := Item{
		ClientID:    "qbittorrent-main",
		DownloadID:  "abc123hash",
		Title:       "Show.Name.S01.1080p.BluRay.x265-GRP",
		Protocol:    "torrent",
		EpisodeIDs:  []int64{11, 12, 13},
		IsAutomatic: true,
	}

	first, existed, err := repo.AddOrGet(ctx, item)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.NotZero(t, first.ID)
	assert.Equal(t, StatusQueued, first.Status)
	assert.Equal(t, []int64{11, 12, 13}, first.EpisodeIDs)

	// Re-adding the same native handle returns the original record,
	// even with different incidental fields.
	again := item
	again.Title = "renamed"
	second, existed, err := repo.AddOrGet(ctx, again)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Title, second.Title)
}

func TestAddOrGetDistinctHandles(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	repo := NewRepository(tdb.DB, testutil.NopLogger())
	ctx := context.Background()

	a, _, err := repo.AddOrGet(ctx, Item{ClientID: "client", DownloadID: "h1", Title: "a", Protocol: "torrent"})
	require.NoError(t, err)
	b, _, err := repo.AddOrGet(ctx, Item{ClientID: "client", DownloadID: "h2", Title: "b", Protocol: "torrent"})
	require.NoError(t, err)
	// Same download ID on a different client is a different item.
	c, existed, err := repo.AddOrGet(ctx, Item{ClientID: "other", DownloadID: "h1", Title: "c", Protocol: "usenet"})
	require.NoError(t, err)
	assert.False(t, existed)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)

	items, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestUpdateStatusAndRemove(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	repo := NewRepository(tdb.DB, testutil.NopLogger())
	ctx := context.Background()

	item, _, err := repo.AddOrGet(ctx, Item{ClientID: "client", DownloadID: "h1", Title: "a", Protocol: "torrent"})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, item.ID, StatusImporting))
	got, err := repo.GetByHandle(ctx, "client", "h1")
	require.NoError(t, err)
	assert.Equal(t, StatusImporting, got.Status)

	require.NoError(t, repo.Remove(ctx, item.ID))
	gone, err := repo.GetByHandle(ctx, "client", "h1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
