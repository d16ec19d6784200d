package grab

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/javi11/nzbparser"
	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// Fetcher performs an authenticated fetch-through-index: the index's
// session artifacts are attached by the implementation, not here.
type Fetcher interface {
	Fetch(ctx context.Context, indexerID int64, url string) ([]byte, error)
}

// Resolver turns a release into a submittable payload.
type Resolver struct {
	fetcher Fetcher
	logger  zerolog.Logger
}

func NewResolver(fetcher Fetcher, logger zerolog.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve produces a payload for the release. Magnet links pass
// through without a fetch; torrent and NZB references are fetched
// through the index with retries, and NZBs are validated structurally
// before they ever reach a client.
func (r *Resolver) Resolve(ctx context.Context, release *types.ReleaseInfo) (*Payload, error) {
	switch release.Protocol {
	case types.ProtocolTorrent:
		if release.MagnetURL != "" {
			return &Payload{Kind: PayloadMagnet, Name: release.Title, URI: release.MagnetURL}, nil
		}
		if strings.HasPrefix(release.DownloadURL, "magnet:") {
			return &Payload{Kind: PayloadMagnet, Name: release.Title, URI: release.DownloadURL}, nil
		}
		data, err := r.fetchWithRetry(ctx, release)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 || data[0] != 'd' {
			return nil, fmt.Errorf("fetched payload for %q is not a torrent file", release.Title)
		}
		return &Payload{Kind: PayloadTorrent, Name: release.Title, URI: release.DownloadURL, Data: data}, nil

	case types.ProtocolUsenet:
		data, err := r.fetchWithRetry(ctx, release)
		if err != nil {
			return nil, err
		}
		if err := validateNZB(data); err != nil {
			return nil, fmt.Errorf("invalid NZB for %q: %w", release.Title, err)
		}
		return &Payload{Kind: PayloadNZB, Name: release.Title, URI: release.DownloadURL, Data: data}, nil

	default:
		return nil, fmt.Errorf("protocol %s has no fetchable payload", release.Protocol)
	}
}

func (r *Resolver) fetchWithRetry(ctx context.Context, release *types.ReleaseInfo) ([]byte, error) {
	if release.DownloadURL == "" {
		return nil, fmt.Errorf("release %q has no download URL", release.Title)
	}

	var data []byte
	err := retry.Do(
		func() error {
			var err error
			data, err = r.fetcher.Fetch(ctx, release.IndexerID, release.DownloadURL)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn().Err(err).Uint("attempt", n+1).Str("url", release.DownloadURL).
				Msg("payload fetch failed, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payload: %w", err)
	}
	return data, nil
}

// validateNZB checks structural integrity: parseable XML with at least
// one file carrying at least one segment.
func validateNZB(data []byte) error {
	parsed, err := nzbparser.ParseString(string(data))
	if err != nil {
		return err
	}
	if len(parsed.Files) == 0 {
		return fmt.Errorf("nzb contains no files")
	}
	for _, file := range parsed.Files {
		if len(file.Segments) == 0 {
			return fmt.Errorf("nzb file %q has no segments", file.Filename)
		}
	}
	return nil
}
