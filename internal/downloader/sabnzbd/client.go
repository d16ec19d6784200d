// Package sabnzbd implements a SABnzbd API download client for usenet.
package sabnzbd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/grab"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// Config holds the configuration for a SABnzbd client.
type Config struct {
	ID     string
	Host   string
	Port   int
	APIKey string
	UseSSL bool

	// AddPaused submits new jobs at paused priority.
	AddPaused bool
}

// Client speaks the SABnzbd JSON API and satisfies grab.DownloadClient.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ grab.DownloadClient = (*Client)(nil)

func New(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With().Str("component", "sabnzbd").Str("clientId", cfg.ID).Logger(),
	}
}

// ID returns the configured client instance id.
func (c *Client) ID() string {
	return c.config.ID
}

// Protocol returns the protocol this client handles.
func (c *Client) Protocol() types.Protocol {
	return types.ProtocolUsenet
}

// Test verifies connectivity and the API key.
func (c *Client) Test(ctx context.Context) error {
	var result struct {
		Version string `json:"version"`
	}
	return c.get(ctx, url.Values{"mode": {"version"}}, &result)
}

// AddDefaults returns the configured submission parameters. Seed
// limits do not apply to usenet.
func (c *Client) AddDefaults() grab.AddOptions {
	return grab.AddOptions{Paused: c.config.AddPaused}
}

// AddDownload uploads NZB bytes via mode=addfile. The returned handle
// is the nzo id SABnzbd assigned to the job.
func (c *Client) AddDownload(ctx context.Context, payload grab.Payload, opts grab.AddOptions) (string, error) {
	if payload.Kind != grab.PayloadNZB {
		return "", fmt.Errorf("sabnzbd cannot accept %s payloads", payload.Kind)
	}
	if len(payload.Data) == 0 {
		return "", fmt.Errorf("nzb payload is empty")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("name", payload.Name+".nzb")
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(payload.Data); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	writer.Close()

	params := url.Values{
		"mode":   {"addfile"},
		"output": {"json"},
		"apikey": {c.config.APIKey},
	}
	if opts.Category != "" {
		params.Set("cat", opts.Category)
	}
	if opts.Paused {
		params.Set("priority", "-2")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(params), &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result struct {
		Status bool     `json:"status"`
		NzoIDs []string `json:"nzo_ids"`
		Error  string   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Status {
		return "", fmt.Errorf("sabnzbd rejected nzb: %s", result.Error)
	}
	if len(result.NzoIDs) == 0 {
		return "", fmt.Errorf("sabnzbd accepted nzb but returned no job id")
	}
	return result.NzoIDs[0], nil
}

// Remove deletes a queued job, optionally with its files.
func (c *Client) Remove(ctx context.Context, nzoID string, deleteData bool) error {
	params := url.Values{
		"mode":  {"queue"},
		"name":  {"delete"},
		"value": {nzoID},
	}
	if deleteData {
		params.Set("del_files", "1")
	}
	var result struct {
		Status bool `json:"status"`
	}
	if err := c.get(ctx, params, &result); err != nil {
		return err
	}
	if !result.Status {
		return fmt.Errorf("sabnzbd failed to delete job %s", nzoID)
	}
	return nil
}

func (c *Client) get(ctx context.Context, params url.Values, result interface{}) error {
	params.Set("output", "json")
	params.Set("apikey", c.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(params), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) apiURL(params url.Values) string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/api?%s", scheme, c.config.Host, c.config.Port, params.Encode())
}
