package tmdb

import (
	"strconv"

	"github.com/keonramses/Cinephage-sub002/internal/metadata"
)

// movieDetail covers both /movie/{id} detail responses and
// /search/movie hits; the appended sub-objects are simply absent on
// search hits.
type movieDetail struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	OriginalTitle string `json:"original_title"`
	ReleaseDate   string `json:"release_date"`
	ImdbID        string `json:"imdb_id"`

	ExternalIDs *externalIDs `json:"external_ids"`

	AlternativeTitles *struct {
		Titles []altTitle `json:"titles"`
	} `json:"alternative_titles"`
}

type seriesDetail struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	OriginalName  string `json:"original_name"`
	FirstAirDate  string `json:"first_air_date"`

	ExternalIDs *externalIDs `json:"external_ids"`

	AlternativeTitles *struct {
		Results []altTitle `json:"results"`
	} `json:"alternative_titles"`
}

type externalIDs struct {
	ImdbID string `json:"imdb_id"`
	TvdbID int    `json:"tvdb_id"`
}

type altTitle struct {
	Title string `json:"title"`
}

func (m *movieDetail) record() *metadata.Record {
	rec := &metadata.Record{
		ID:     int64(m.ID),
		Kind:   metadata.KindMovie,
		Title:  m.Title,
		Year:   yearOf(m.ReleaseDate),
		ImdbID: m.ImdbID,
		TmdbID: m.ID,
	}
	if m.ExternalIDs != nil && rec.ImdbID == "" {
		rec.ImdbID = m.ExternalIDs.ImdbID
	}
	if m.OriginalTitle != "" && m.OriginalTitle != m.Title {
		rec.AlternateTitles = append(rec.AlternateTitles, m.OriginalTitle)
	}
	if m.AlternativeTitles != nil {
		for _, alt := range m.AlternativeTitles.Titles {
			rec.AlternateTitles = append(rec.AlternateTitles, alt.Title)
		}
	}
	return rec
}

func (s *seriesDetail) record() *metadata.Record {
	rec := &metadata.Record{
		ID:    int64(s.ID),
		Kind:  metadata.KindSeries,
		Title: s.Name,
		Year:  yearOf(s.FirstAirDate),
		TmdbID: s.ID,
	}
	if s.ExternalIDs != nil {
		rec.ImdbID = s.ExternalIDs.ImdbID
		rec.TvdbID = s.ExternalIDs.TvdbID
	}
	if s.OriginalName != "" && s.OriginalName != s.Name {
		rec.AlternateTitles = append(rec.AlternateTitles, s.OriginalName)
	}
	if s.AlternativeTitles != nil {
		for _, alt := range s.AlternativeTitles.Results {
			rec.AlternateTitles = append(rec.AlternateTitles, alt.Title)
		}
	}
	return rec
}

// yearOf extracts the year from a TMDB date string (2006-01-02).
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
