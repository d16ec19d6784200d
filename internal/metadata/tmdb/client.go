// Package tmdb implements the canonical-metadata provider against the
// TMDB API, including reverse lookups from IMDb and TVDB identifiers
// via the /find endpoint.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/config"
	"github.com/keonramses/Cinephage-sub002/internal/metadata"
)

var (
	ErrAPIKeyMissing = errors.New("TMDB API key is not configured")
	ErrNotFound      = errors.New("not found")
	ErrAPIError      = errors.New("TMDB API error")
	ErrRateLimited   = errors.New("TMDB API rate limited")
)

// Client is a TMDB API client implementing metadata.Provider.
type Client struct {
	httpClient *http.Client
	config     config.TMDBConfig
	logger     zerolog.Logger
}

func NewClient(cfg config.TMDBConfig, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		config: cfg,
		logger: logger.With().Str("component", "tmdb").Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "tmdb"
}

// IsConfigured returns true if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// Test verifies connectivity by requesting the API configuration.
func (c *Client) Test(ctx context.Context) error {
	if !c.IsConfigured() {
		return ErrAPIKeyMissing
	}
	var result struct {
		Images struct {
			BaseURL string `json:"base_url"`
		} `json:"images"`
	}
	return c.doRequest(ctx, "/configuration", url.Values{}, &result)
}

// GetByTmdbID fetches the canonical record for a TMDB id.
func (c *Client) GetByTmdbID(ctx context.Context, kind metadata.MediaKind, tmdbID int) (*metadata.Record, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	params := url.Values{}
	params.Set("append_to_response", "external_ids,alternative_titles")

	if kind == metadata.KindMovie {
		var detail movieDetail
		if err := c.doRequest(ctx, "/movie/"+strconv.Itoa(tmdbID), params, &detail); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return detail.record(), nil
	}

	var detail seriesDetail
	if err := c.doRequest(ctx, "/tv/"+strconv.Itoa(tmdbID), params, &detail); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return detail.record(), nil
}

// FindByImdbID reverse-resolves an IMDb id. TMDB's /find endpoint
// returns movie and TV hits separately; whichever is non-empty wins.
func (c *Client) FindByImdbID(ctx context.Context, imdbID string) (*metadata.Record, error) {
	return c.find(ctx, imdbID, "imdb_id")
}

// FindByTvdbID reverse-resolves a TVDB id.
func (c *Client) FindByTvdbID(ctx context.Context, tvdbID int) (*metadata.Record, error) {
	return c.find(ctx, strconv.Itoa(tvdbID), "tvdb_id")
}

// SearchByTitle runs a free-text title search for the given kind.
func (c *Client) SearchByTitle(ctx context.Context, kind metadata.MediaKind, title string) ([]metadata.Record, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	params := url.Values{}
	params.Set("query", title)
	params.Set("include_adult", "false")

	if kind == metadata.KindMovie {
		var response struct {
			Results []movieDetail `json:"results"`
		}
		if err := c.doRequest(ctx, "/search/movie", params, &response); err != nil {
			return nil, err
		}
		records := make([]metadata.Record, 0, len(response.Results))
		for _, hit := range response.Results {
			records = append(records, *hit.record())
		}
		return records, nil
	}

	var response struct {
		Results []seriesDetail `json:"results"`
	}
	if err := c.doRequest(ctx, "/search/tv", params, &response); err != nil {
		return nil, err
	}
	records := make([]metadata.Record, 0, len(response.Results))
	for _, hit := range response.Results {
		records = append(records, *hit.record())
	}
	return records, nil
}

func (c *Client) find(ctx context.Context, externalID, source string) (*metadata.Record, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	params := url.Values{}
	params.Set("external_source", source)

	var response struct {
		MovieResults  []movieDetail  `json:"movie_results"`
		SeriesResults []seriesDetail `json:"tv_results"`
	}
	if err := c.doRequest(ctx, "/find/"+url.PathEscape(externalID), params, &response); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if len(response.MovieResults) > 0 {
		return response.MovieResults[0].record(), nil
	}
	if len(response.SeriesResults) > 0 {
		return response.SeriesResults[0].record(), nil
	}
	return nil, nil
}

func (c *Client) doRequest(ctx context.Context, path string, params url.Values, result interface{}) error {
	params.Set("api_key", c.config.APIKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.config.BaseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			StatusMessage string `json:"status_message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.StatusMessage != "" {
			c.logger.Debug().
				Int("status", resp.StatusCode).
				Str("message", errResp.StatusMessage).
				Msg("TMDB API error")
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: invalid API key", ErrAPIError)
		case http.StatusTooManyRequests:
			return ErrRateLimited
		default:
			return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
