// Package library is the record store for series, movies, episodes
// and their media files, plus the transactional import step that
// commits grabbed content into it.
package library

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/database"
)

// Series is a tracked show.
type Series struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Year           int    `json:"year,omitempty"`
	TvdbID         int    `json:"tvdbId,omitempty"`
	TmdbID         int    `json:"tmdbId,omitempty"`
	ImdbID         string `json:"imdbId,omitempty"`
	Path           string `json:"path"`
	QualityProfile string `json:"qualityProfile"`
	Monitored      bool   `json:"monitored"`
}

// Movie is a tracked movie.
type Movie struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Year           int    `json:"year,omitempty"`
	TmdbID         int    `json:"tmdbId,omitempty"`
	ImdbID         string `json:"imdbId,omitempty"`
	Path           string `json:"path"`
	QualityProfile string `json:"qualityProfile"`
	Monitored      bool   `json:"monitored"`
	HasFile        bool   `json:"hasFile"`
}

// Episode is one episode of a series.
type Episode struct {
	ID        int64  `json:"id"`
	SeriesID  int64  `json:"seriesId"`
	Season    int    `json:"season"`
	Episode   int    `json:"episode"`
	Title     string `json:"title,omitempty"`
	Monitored bool   `json:"monitored"`
	HasFile   bool   `json:"hasFile"`
}

// MediaFile is an on-disk (or placeholder) file linked to media.
type MediaFile struct {
	ID           int64  `json:"id"`
	SeriesID     *int64 `json:"seriesId,omitempty"`
	MovieID      *int64 `json:"movieId,omitempty"`
	EpisodeID    *int64 `json:"episodeId,omitempty"`
	RelativePath string `json:"relativePath"`
	SizeBytes    int64  `json:"sizeBytes"`
	Quality      string `json:"quality,omitempty"`
	ReleaseTitle string `json:"releaseTitle,omitempty"`
	Placeholder  bool   `json:"placeholder"`
}

// dbtx abstracts over *sql.DB and *sql.Tx so store queries run inside
// or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store provides record access for the library.
type Store struct {
	db     *database.DB
	logger zerolog.Logger
}

func NewStore(db *database.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "library").Logger(),
	}
}

// DB exposes the underlying database for transaction scoping.
func (s *Store) DB() *database.DB {
	return s.db
}

func (s *Store) AddSeries(ctx context.Context, series Series) (int64, error) {
	res, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO series (title, year, tvdb_id, tmdb_id, imdb_id, path, quality_profile, monitored)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		series.Title, series.Year, series.TvdbID, series.TmdbID, series.ImdbID,
		series.Path, profileOrAny(series.QualityProfile), series.Monitored,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert series: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetSeries(ctx context.Context, id int64) (*Series, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT id, title, COALESCE(year, 0), COALESCE(tvdb_id, 0), COALESCE(tmdb_id, 0), COALESCE(imdb_id, ''), path, quality_profile, monitored
		FROM series WHERE id = ?`, id)

	var series Series
	err := row.Scan(&series.ID, &series.Title, &series.Year, &series.TvdbID, &series.TmdbID,
		&series.ImdbID, &series.Path, &series.QualityProfile, &series.Monitored)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get series: %w", err)
	}
	return &series, nil
}

// MonitoredSeries returns every series flagged for automatic searches.
func (s *Store) MonitoredSeries(ctx context.Context) ([]Series, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, title, COALESCE(year, 0), COALESCE(tvdb_id, 0), COALESCE(tmdb_id, 0), COALESCE(imdb_id, ''), path, quality_profile, monitored
		FROM series WHERE monitored = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored series: %w", err)
	}
	defer rows.Close()

	var out []Series
	for rows.Next() {
		var series Series
		if err := rows.Scan(&series.ID, &series.Title, &series.Year, &series.TvdbID, &series.TmdbID,
			&series.ImdbID, &series.Path, &series.QualityProfile, &series.Monitored); err != nil {
			return nil, err
		}
		out = append(out, series)
	}
	return out, rows.Err()
}

func (s *Store) AddMovie(ctx context.Context, movie Movie) (int64, error) {
	res, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO movies (title, year, tmdb_id, imdb_id, path, quality_profile, monitored)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		movie.Title, movie.Year, movie.TmdbID, movie.ImdbID,
		movie.Path, profileOrAny(movie.QualityProfile), movie.Monitored,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert movie: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetMovie(ctx context.Context, id int64) (*Movie, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT id, title, COALESCE(year, 0), COALESCE(tmdb_id, 0), COALESCE(imdb_id, ''), path, quality_profile, monitored, has_file
		FROM movies WHERE id = ?`, id)

	var movie Movie
	err := row.Scan(&movie.ID, &movie.Title, &movie.Year, &movie.TmdbID, &movie.ImdbID,
		&movie.Path, &movie.QualityProfile, &movie.Monitored, &movie.HasFile)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}
	return &movie, nil
}

func (s *Store) AddEpisode(ctx context.Context, ep Episode) (int64, error) {
	res, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO episodes (series_id, season_number, episode_number, title, monitored)
		VALUES (?, ?, ?, ?, ?)`,
		ep.SeriesID, ep.Season, ep.Episode, ep.Title, ep.Monitored,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert episode: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	return getEpisode(ctx, s.db.Conn(), id)
}

// EpisodesBySeries returns all episodes for a series ordered by season
// and episode number.
func (s *Store) EpisodesBySeries(ctx context.Context, seriesID int64) ([]Episode, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, series_id, season_number, episode_number, COALESCE(title, ''), monitored, has_file
		FROM episodes WHERE series_id = ? ORDER BY season_number, episode_number`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		if err := rows.Scan(&ep.ID, &ep.SeriesID, &ep.Season, &ep.Episode, &ep.Title, &ep.Monitored, &ep.HasFile); err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// MissingEpisodes returns monitored episodes without a file.
func (s *Store) MissingEpisodes(ctx context.Context, seriesID int64) ([]Episode, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, series_id, season_number, episode_number, COALESCE(title, ''), monitored, has_file
		FROM episodes WHERE series_id = ? AND monitored = 1 AND has_file = 0
		ORDER BY season_number, episode_number`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		if err := rows.Scan(&ep.ID, &ep.SeriesID, &ep.Season, &ep.Episode, &ep.Title, &ep.Monitored, &ep.HasFile); err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// FileForEpisode returns the current file record for an episode, nil
// when the episode has none.
func (s *Store) FileForEpisode(ctx context.Context, episodeID int64) (*MediaFile, error) {
	return fileForEpisode(ctx, s.db.Conn(), episodeID)
}

// FilesForSeries returns all file records for a series.
func (s *Store) FilesForSeries(ctx context.Context, seriesID int64) ([]MediaFile, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, series_id, movie_id, episode_id, relative_path, size_bytes, COALESCE(quality, ''), COALESCE(release_title, ''), placeholder
		FROM media_files WHERE series_id = ? ORDER BY relative_path`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to list media files: %w", err)
	}
	defer rows.Close()

	var files []MediaFile
	for rows.Next() {
		var f MediaFile
		if err := rows.Scan(&f.ID, &f.SeriesID, &f.MovieID, &f.EpisodeID, &f.RelativePath,
			&f.SizeBytes, &f.Quality, &f.ReleaseTitle, &f.Placeholder); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// EpisodesWithFiles reports which of the given episode IDs already
// have a file record, placeholder or real.
func (s *Store) EpisodesWithFiles(ctx context.Context, episodeIDs []int64) (map[int64]bool, error) {
	have := make(map[int64]bool)
	for _, id := range episodeIDs {
		file, err := s.FileForEpisode(ctx, id)
		if err != nil {
			return nil, err
		}
		if file != nil {
			have[id] = true
		}
	}
	return have, nil
}

func getEpisode(ctx context.Context, q dbtx, id int64) (*Episode, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, series_id, season_number, episode_number, COALESCE(title, ''), monitored, has_file
		FROM episodes WHERE id = ?`, id)

	var ep Episode
	err := row.Scan(&ep.ID, &ep.SeriesID, &ep.Season, &ep.Episode, &ep.Title, &ep.Monitored, &ep.HasFile)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	return &ep, nil
}

func fileForEpisode(ctx context.Context, q dbtx, episodeID int64) (*MediaFile, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, series_id, movie_id, episode_id, relative_path, size_bytes, COALESCE(quality, ''), COALESCE(release_title, ''), placeholder
		FROM media_files WHERE episode_id = ?`, episodeID)

	var f MediaFile
	err := row.Scan(&f.ID, &f.SeriesID, &f.MovieID, &f.EpisodeID, &f.RelativePath,
		&f.SizeBytes, &f.Quality, &f.ReleaseTitle, &f.Placeholder)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media file: %w", err)
	}
	return &f, nil
}

// fileByPath looks up a file record by its series-relative path.
func fileByPath(ctx context.Context, q dbtx, seriesID int64, relativePath string) (*MediaFile, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, series_id, movie_id, episode_id, relative_path, size_bytes, COALESCE(quality, ''), COALESCE(release_title, ''), placeholder
		FROM media_files WHERE series_id = ? AND relative_path = ?`, seriesID, relativePath)

	var f MediaFile
	err := row.Scan(&f.ID, &f.SeriesID, &f.MovieID, &f.EpisodeID, &f.RelativePath,
		&f.SizeBytes, &f.Quality, &f.ReleaseTitle, &f.Placeholder)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media file by path: %w", err)
	}
	return &f, nil
}

// GrabEvent is an acquisition-history record outside the import step.
type GrabEvent struct {
	EventType    string
	ReleaseTitle string
	Indexer      string
	Protocol     string
	SeriesID     *int64
	MovieID      *int64
	EpisodeID    *int64
	IsAutomatic  bool
	IsUpgrade    bool
	Detail       string
}

// RecordGrabEvent appends an acquisition-history record.
func (s *Store) RecordGrabEvent(ctx context.Context, event GrabEvent) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO grab_history (event_type, release_title, indexer, protocol, series_id, movie_id, episode_id, is_automatic, is_upgrade, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventType, event.ReleaseTitle, event.Indexer, event.Protocol,
		event.SeriesID, event.MovieID, event.EpisodeID,
		event.IsAutomatic, event.IsUpgrade, event.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record grab event: %w", err)
	}
	return nil
}

func profileOrAny(profile string) string {
	if profile == "" {
		return "any"
	}
	return profile
}
