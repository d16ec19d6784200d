package grab

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// maxPayloadBytes bounds a fetched release payload. Torrent and NZB
// files are tiny; anything past this is not one.
const maxPayloadBytes = 20 << 20

// HTTPFetcher fetches release payloads over plain HTTP.
type HTTPFetcher struct {
	client *http.Client
	logger zerolog.Logger
}

var _ Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(timeout time.Duration, logger zerolog.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "fetcher").Logger(),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, indexerID int64, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Cinephage/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d fetching payload", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	f.logger.Debug().Int64("indexerId", indexerID).Int("bytes", len(data)).Msg("payload fetched")
	return data, nil
}
