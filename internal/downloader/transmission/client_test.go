package transmission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keonramses/Cinephage-sub002/internal/grab"
	"github.com/keonramses/Cinephage-sub002/internal/testutil"
)

func testServer(t *testing.T, handler func(method string, args map[string]interface{}) map[string]interface{}) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(sessionIDHeader) == "" {
			w.Header().Set(sessionIDHeader, "session-1")
			w.WriteHeader(http.StatusConflict)
			return
		}

		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		args := handler(req.Method, req.Arguments)
		json.NewEncoder(w).Encode(rpcResponse{Result: "success", Arguments: args})
	}))
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, _ := strconv.Atoi(u.Port())
	return New(Config{ID: "tr-1", Host: u.Hostname(), Port: port}, testutil.NopLogger())
}

func TestAddDownloadMagnet(t *testing.T) {
	var gotArgs map[string]interface{}
	client := testServer(t, func(method string, args map[string]interface{}) map[string]interface{} {
		if method == "torrent-add" {
			gotArgs = args
			return map[string]interface{}{
				"torrent-added": map[string]interface{}{"hashString": "aabbccdd", "id": float64(3)},
			}
		}
		return nil
	})

	hash, err := client.AddDownload(context.Background(), grab.Payload{
		Kind: grab.PayloadMagnet,
		URI:  "magnet:?xt=urn:btih:aabbccdd",
	}, grab.AddOptions{Category: "tv"})
	require.NoError(t, err)
	assert.Equal(t, "aabbccdd", hash)
	assert.Equal(t, "magnet:?xt=urn:btih:aabbccdd", gotArgs["filename"])
	assert.Equal(t, []interface{}{"tv"}, gotArgs["labels"])
}

func TestAddDownloadDuplicate(t *testing.T) {
	client := testServer(t, func(method string, args map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"torrent-duplicate": map[string]interface{}{"hashString": "aabbccdd"},
		}
	})

	_, err := client.AddDownload(context.Background(), grab.Payload{
		Kind: grab.PayloadMagnet,
		URI:  "magnet:?xt=urn:btih:aabbccdd",
	}, grab.AddOptions{})
	require.Error(t, err)

	var dup *grab.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "aabbccdd", dup.ExistingID)
}

func TestAddDownloadTorrentBytes(t *testing.T) {
	var gotArgs map[string]interface{}
	client := testServer(t, func(method string, args map[string]interface{}) map[string]interface{} {
		gotArgs = args
		return map[string]interface{}{
			"torrent-added": map[string]interface{}{"hashString": "eeff0011"},
		}
	})

	hash, err := client.AddDownload(context.Background(), grab.Payload{
		Kind: grab.PayloadTorrent,
		Data: []byte("d8:announce0:e"),
	}, grab.AddOptions{})
	require.NoError(t, err)
	assert.Equal(t, "eeff0011", hash)
	// Raw bytes travel base64-encoded in the metainfo field.
	assert.Equal(t, "ZDg6YW5ub3VuY2UwOmU=", gotArgs["metainfo"])
}

func TestAddDownloadRejectsNZB(t *testing.T) {
	client := testServer(t, func(method string, args map[string]interface{}) map[string]interface{} {
		t.Fatal("no RPC call expected")
		return nil
	})

	_, err := client.AddDownload(context.Background(), grab.Payload{Kind: grab.PayloadNZB}, grab.AddOptions{})
	require.Error(t, err)
}

func TestSessionConflictRetries(t *testing.T) {
	// The test server 409s every request without a session id; Test
	// succeeding proves the retry picked the new id up.
	client := testServer(t, func(method string, args map[string]interface{}) map[string]interface{} {
		assert.Equal(t, "session-get", method)
		return map[string]interface{}{}
	})
	require.NoError(t, client.Test(context.Background()))
}
