package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/request"
)

const defaultUserAgent = "Cinephage/1.0"

// maxResponseBytes bounds how much of an index response is read.
// Feed pages are small; anything past this is a misbehaving index.
const maxResponseBytes = 10 << 20

// HTTPRequester issues compiled request specs over plain HTTP.
// Transport failures are retried; HTTP error statuses are returned
// to the caller unretried.
type HTTPRequester struct {
	client *http.Client
	logger zerolog.Logger
}

var _ Requester = (*HTTPRequester)(nil)

func NewHTTPRequester(timeout time.Duration, logger zerolog.Logger) *HTTPRequester {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRequester{
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "requester").Logger(),
	}
}

func (r *HTTPRequester) Do(ctx context.Context, spec request.Spec) (*Response, error) {
	var response *Response

	err := retry.Do(
		func() error {
			resp, err := r.execute(ctx, spec)
			if err != nil {
				return err
			}
			response = resp
			return nil
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn().Err(err).Uint("attempt", n+1).Str("url", spec.URL).Msg("retrying request")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", spec.URL, err)
	}
	return response, nil
}

func (r *HTTPRequester) execute(ctx context.Context, spec request.Spec) (*Response, error) {
	var body io.Reader
	if spec.Method == http.MethodPost && spec.Body != nil {
		body = strings.NewReader(spec.Body.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", defaultUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for key, val := range spec.Headers {
		req.Header.Set(key, val)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       data,
	}, nil
}
