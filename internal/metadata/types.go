// Package metadata resolves movies and series to canonical catalog
// records and matches release titles against them.
package metadata

// MediaKind distinguishes movie and series records.
type MediaKind string

const (
	KindMovie  MediaKind = "movie"
	KindSeries MediaKind = "series"
)

// Record is a canonical catalog entry for a movie or series.
type Record struct {
	ID              int64     `json:"id"`
	Kind            MediaKind `json:"kind"`
	Title           string    `json:"title"`
	AlternateTitles []string  `json:"alternateTitles,omitempty"`
	Year            int       `json:"year,omitempty"`
	ImdbID          string    `json:"imdbId,omitempty"`
	TmdbID          int       `json:"tmdbId,omitempty"`
	TvdbID          int       `json:"tvdbId,omitempty"`
}

// Hint carries what the caller already knows about the search target.
// Identifier fields take priority over the title during matching.
type Hint struct {
	Kind   MediaKind `json:"kind"`
	TmdbID int       `json:"tmdbId,omitempty"`
	ImdbID string    `json:"imdbId,omitempty"`
	TvdbID int       `json:"tvdbId,omitempty"`
	Title  string    `json:"title,omitempty"`
	Year   int       `json:"year,omitempty"`
}

// Match is a successful resolution of a release to a canonical record.
type Match struct {
	Record     *Record `json:"record"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// Match methods, in cascade priority order.
const (
	MethodCanonicalID = "canonical-id"
	MethodImdbID      = "imdb-id"
	MethodTvdbID      = "tvdb-id"
	MethodTitleID     = "title-embedded-id"
	MethodFuzzyTitle  = "fuzzy-title"
)
