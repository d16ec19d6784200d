// Package types contains shared type definitions for indexer packages.
package types

import (
	"time"
)

// Protocol represents the download protocol.
type Protocol string

const (
	ProtocolTorrent   Protocol = "torrent"
	ProtocolUsenet    Protocol = "usenet"
	ProtocolStreaming Protocol = "streaming"
)

// Privacy represents indexer privacy level.
type Privacy string

const (
	PrivacyPublic      Privacy = "public"
	PrivacySemiPrivate Privacy = "semi-private"
	PrivacyPrivate     Privacy = "private"
)

// SearchType identifies the kind of search being performed.
type SearchType string

const (
	SearchTypeBasic SearchType = "search"
	SearchTypeMovie SearchType = "movie"
	SearchTypeTV    SearchType = "tvsearch"
)

// Identifier parameter names as indexers advertise them.
const (
	ParamQuery  = "q"
	ParamImdbID = "imdbid"
	ParamTmdbID = "tmdbid"
	ParamTvdbID = "tvdbid"
	ParamSeason = "season"
	ParamEp     = "ep"
	ParamYear   = "year"
)

// SearchCriteria defines search parameters for one request.
type SearchCriteria struct {
	Query      string     `json:"query,omitempty"`
	Type       SearchType `json:"type"`
	Categories []int      `json:"categories,omitempty"`

	// External identifiers. When any of these is set, identifier-based
	// matching is authoritative and free text is never substituted.
	ImdbID string `json:"imdbId,omitempty"`
	TmdbID int    `json:"tmdbId,omitempty"`
	TvdbID int    `json:"tvdbId,omitempty"`

	Year    int `json:"year,omitempty"`
	Season  int `json:"season,omitempty"`
	Episode int `json:"episode,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// HasIdentifiers returns true if any external identifier is set.
func (c *SearchCriteria) HasIdentifiers() bool {
	return c.ImdbID != "" || c.TmdbID > 0 || c.TvdbID > 0
}

// ProvidedIdentifiers returns the parameter names of the identifiers
// actually carried by the criteria.
func (c *SearchCriteria) ProvidedIdentifiers() []string {
	var ids []string
	if c.ImdbID != "" {
		ids = append(ids, ParamImdbID)
	}
	if c.TmdbID > 0 {
		ids = append(ids, ParamTmdbID)
	}
	if c.TvdbID > 0 {
		ids = append(ids, ParamTvdbID)
	}
	return ids
}

// NativeCategory maps one indexer-native category to the canonical taxonomy.
type NativeCategory struct {
	ID          string `json:"id"`
	CanonicalID int    `json:"canonicalId"`
	Name        string `json:"name,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// Capabilities describes what an indexer supports. Loaded once at
// index-registration time and treated as immutable afterwards.
type Capabilities struct {
	// Modes maps a search type to the parameter names it supports,
	// e.g. "tvsearch" -> ["q", "tvdbid", "season", "ep"].
	Modes map[SearchType][]string `json:"modes"`

	Categories []NativeCategory `json:"categories"`

	AllowRawSearch      bool `json:"allowRawSearch,omitempty"`
	MaxResultsPerSearch int  `json:"maxResultsPerSearch,omitempty"`
}

// SupportsType returns true if the search type is advertised at all.
func (c *Capabilities) SupportsType(t SearchType) bool {
	if c.Modes == nil {
		return false
	}
	_, ok := c.Modes[t]
	return ok
}

// SupportedParams returns the advertised parameters for a search type.
func (c *Capabilities) SupportedParams(t SearchType) []string {
	if c.Modes == nil {
		return nil
	}
	return c.Modes[t]
}

// IndexerRef identifies one configured indexer.
type IndexerRef struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	DefinitionID string       `json:"definitionId"`
	Protocol     Protocol     `json:"protocol"`
	Privacy      Privacy      `json:"privacy"`
	Priority     int          `json:"priority"`
	Enabled      bool         `json:"enabled"`
	Capabilities Capabilities `json:"capabilities"`
}

// ReleaseInfo represents a raw search result from an indexer.
type ReleaseInfo struct {
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	DownloadURL string    `json:"downloadUrl"`
	InfoURL     string    `json:"infoUrl,omitempty"`
	MagnetURL   string    `json:"magnetUrl,omitempty"`
	InfoHash    string    `json:"infoHash,omitempty"`
	Size        int64     `json:"size"`
	PublishDate time.Time `json:"publishDate"`
	Categories  []int     `json:"categories,omitempty"`

	IndexerID   int64    `json:"indexerId"`
	IndexerName string   `json:"indexer"`
	Protocol    Protocol `json:"protocol"`

	Seeders  int `json:"seeders,omitempty"`
	Leechers int `json:"leechers,omitempty"`
	Grabs    int `json:"grabs,omitempty"`

	DownloadVolumeFactor float64 `json:"downloadVolumeFactor,omitempty"`
	UploadVolumeFactor   float64 `json:"uploadVolumeFactor,omitempty"`

	// External IDs reported by the indexer itself.
	ImdbID string `json:"imdbId,omitempty"`
	TmdbID int    `json:"tmdbId,omitempty"`
	TvdbID int    `json:"tvdbId,omitempty"`

	// StreamDescriptor carries an internal stream reference for
	// streaming-protocol results.
	StreamDescriptor string `json:"streamDescriptor,omitempty"`
}

// Age returns how old the release is relative to now. An unknown
// publish date yields a negative age so age-tiered logic can skip it.
func (r *ReleaseInfo) Age(now time.Time) time.Duration {
	if r.PublishDate.IsZero() {
		return -1
	}
	return now.Sub(r.PublishDate)
}
