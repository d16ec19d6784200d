// Package grab commits accepted release candidates: it resolves the
// payload, submits it to a download client, and links the resulting
// download to the media it covers.
package grab

import (
	"context"
	"fmt"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// PayloadKind classifies a resolved download payload.
type PayloadKind string

const (
	PayloadMagnet  PayloadKind = "magnet"
	PayloadTorrent PayloadKind = "torrent"
	PayloadNZB     PayloadKind = "nzb"
)

// Payload is a fetchable download reference, either a URI or raw
// bytes.
type Payload struct {
	Kind PayloadKind
	Name string
	URI  string
	Data []byte
}

// AddOptions carries client-side submission parameters.
type AddOptions struct {
	Category       string
	Paused         bool
	SeedRatioLimit float64
}

// DownloadClient is one configured download-client instance. AddDownload
// returns the client's native handle for the new download; a duplicate
// submission returns a DuplicateError carrying the existing handle.
// AddDefaults exposes the submission parameters drawn from the client's
// configuration (initial pause state, seed limits); the grab service
// layers the per-grab category over them.
type DownloadClient interface {
	ID() string
	Protocol() types.Protocol
	AddDefaults() AddOptions
	AddDownload(ctx context.Context, payload Payload, opts AddOptions) (string, error)
}

// DuplicateError reports that the client already holds this download.
// Grabbing treats it as success and adopts the existing handle.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("download already exists with id %s", e.ExistingID)
}

// Target identifies what a grab is for.
type Target struct {
	SeriesID    *int64
	MovieID     *int64
	EpisodeIDs  []int64
	Category    string
	IsAutomatic bool
	IsUpgrade   bool
}

// Result is the outcome of one grab.
type Result struct {
	Success     bool   `json:"success"`
	QueueItemID int64  `json:"queueItemId,omitempty"`
	DownloadID  string `json:"downloadId,omitempty"`
	ClientID    string `json:"clientId,omitempty"`
	Adopted     bool   `json:"adopted,omitempty"`
	Error       string `json:"error,omitempty"`

	// PlaceholderFiles counts placeholder records created for a
	// streaming grab.
	PlaceholderFiles int `json:"placeholderFiles,omitempty"`
}
