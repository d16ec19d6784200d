// Package transmission implements a Transmission RPC download client.
package transmission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/grab"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

const sessionIDHeader = "X-Transmission-Session-Id"

// Config holds the configuration for a Transmission client.
type Config struct {
	ID       string
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool

	// DownloadDir overrides the daemon's default location when set.
	DownloadDir string

	// AddPaused submits new torrents paused.
	AddPaused bool
	// SeedRatioLimit stops seeding at the given ratio when positive.
	SeedRatioLimit float64
}

// Client speaks the Transmission RPC protocol and satisfies
// grab.DownloadClient. A duplicate submission surfaces as
// grab.DuplicateError carrying the existing torrent's hash.
type Client struct {
	config     Config
	sessionID  string
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ grab.DownloadClient = (*Client)(nil)

func New(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "transmission").Str("clientId", cfg.ID).Logger(),
	}
}

// ID returns the configured client instance id.
func (c *Client) ID() string {
	return c.config.ID
}

// Protocol returns the protocol this client handles.
func (c *Client) Protocol() types.Protocol {
	return types.ProtocolTorrent
}

// Test verifies connectivity and credentials.
func (c *Client) Test(ctx context.Context) error {
	_, err := c.call(ctx, "session-get", nil)
	return err
}

// AddDefaults returns the configured submission parameters.
func (c *Client) AddDefaults() grab.AddOptions {
	return grab.AddOptions{
		Paused:         c.config.AddPaused,
		SeedRatioLimit: c.config.SeedRatioLimit,
	}
}

// AddDownload submits a magnet URI or raw torrent bytes. The returned
// handle is the torrent's info hash, which is stable across both the
// fresh-add and duplicate response shapes.
func (c *Client) AddDownload(ctx context.Context, payload grab.Payload, opts grab.AddOptions) (string, error) {
	args := map[string]interface{}{}
	switch payload.Kind {
	case grab.PayloadMagnet:
		args["filename"] = payload.URI
	case grab.PayloadTorrent:
		args["metainfo"] = base64.StdEncoding.EncodeToString(payload.Data)
	default:
		return "", fmt.Errorf("transmission cannot accept %s payloads", payload.Kind)
	}

	if c.config.DownloadDir != "" {
		args["download-dir"] = c.config.DownloadDir
	}
	if opts.Category != "" {
		args["labels"] = []string{opts.Category}
	}
	if opts.Paused {
		args["paused"] = true
	}

	resp, err := c.call(ctx, "torrent-add", args)
	if err != nil {
		return "", err
	}

	hash, err := extractHash(resp)
	if err != nil {
		return "", err
	}
	if hash.duplicate {
		return "", &grab.DuplicateError{ExistingID: hash.id}
	}

	if opts.SeedRatioLimit > 0 {
		if err := c.setSeedRatio(ctx, hash.id, opts.SeedRatioLimit); err != nil {
			c.logger.Warn().Err(err).Str("hash", hash.id).Msg("failed to set seed ratio limit")
		}
	}
	return hash.id, nil
}

// Remove deletes a torrent, optionally with its data.
func (c *Client) Remove(ctx context.Context, hash string, deleteData bool) error {
	_, err := c.call(ctx, "torrent-remove", map[string]interface{}{
		"ids":               []string{hash},
		"delete-local-data": deleteData,
	})
	return err
}

func (c *Client) setSeedRatio(ctx context.Context, hash string, ratio float64) error {
	_, err := c.call(ctx, "torrent-set", map[string]interface{}{
		"ids":            []string{hash},
		"seedRatioLimit": ratio,
		"seedRatioMode":  1,
	})
	return err
}

type rpcRequest struct {
	Method    string                 `json:"method"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type rpcResponse struct {
	Result    string                 `json:"result"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, args map[string]interface{}) (*rpcResponse, error) {
	resp, err := c.doRPC(ctx, method, args)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Transmission rotates the session id via a 409; retry once with
	// the fresh one.
	if resp.StatusCode == http.StatusConflict {
		c.sessionID = resp.Header.Get(sessionIDHeader)
		if c.sessionID == "" {
			return nil, fmt.Errorf("received 409 but no session id in response")
		}
		resp.Body.Close()
		resp, err = c.doRPC(ctx, method, args)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
	}

	return parseRPCResponse(resp)
}

func (c *Client) doRPC(ctx context.Context, method string, args map[string]interface{}) (*http.Response, error) {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s:%d/transmission/rpc", scheme, c.config.Host, c.config.Port)

	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionID != "" {
		req.Header.Set(sessionIDHeader, c.sessionID)
	}
	if c.config.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.config.Username + ":" + c.config.Password))
		req.Header.Set("Authorization", "Basic "+auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func parseRPCResponse(resp *http.Response) (*rpcResponse, error) {
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("transmission authentication failed")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if rpcResp.Result != "success" {
		return nil, fmt.Errorf("RPC error: %s", rpcResp.Result)
	}
	return &rpcResp, nil
}

type addedHash struct {
	id        string
	duplicate bool
}

func extractHash(resp *rpcResponse) (addedHash, error) {
	if added, ok := resp.Arguments["torrent-added"].(map[string]interface{}); ok {
		if hash, ok := added["hashString"].(string); ok {
			return addedHash{id: hash}, nil
		}
	}
	if dupe, ok := resp.Arguments["torrent-duplicate"].(map[string]interface{}); ok {
		if hash, ok := dupe["hashString"].(string); ok {
			return addedHash{id: hash, duplicate: true}, nil
		}
	}
	return addedHash{}, fmt.Errorf("could not extract torrent hash from response")
}
