package library

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// History event types written by the importer.
const (
	EventImported = "imported"
	EventUpgraded = "upgraded"
)

// EpisodeFile is one file of an import, linked to a single episode.
type EpisodeFile struct {
	EpisodeID    int64
	RelativePath string
	SizeBytes    int64
	Quality      string
	Placeholder  bool
}

// SeasonPackImport commits every file of a pack in one transaction.
type SeasonPackImport struct {
	SeriesID     int64
	Files        []EpisodeFile
	ReleaseTitle string
	Indexer      string
	Protocol     string
	IsAutomatic  bool
	IsUpgrade    bool
}

// MovieImport commits a single movie file.
type MovieImport struct {
	MovieID      int64
	RelativePath string
	SizeBytes    int64
	Quality      string
	ReleaseTitle string
	Indexer      string
	Protocol     string
	Placeholder  bool
	IsAutomatic  bool
	IsUpgrade    bool
}

// ImportResult summarizes what a commit did.
type ImportResult struct {
	FileIDs       []int64 `json:"fileIds"`
	AdoptedFiles  int     `json:"adoptedFiles"`
	ReplacedFiles int     `json:"replacedFiles"`
}

// Importer commits grabbed content into the record store. All record
// and flag mutations for one import happen in a single transaction;
// disk operations are best-effort side effects that never abort it.
type Importer struct {
	store  *Store
	logger zerolog.Logger
}

func NewImporter(store *Store, logger zerolog.Logger) *Importer {
	return &Importer{
		store:  store,
		logger: logger.With().Str("component", "importer").Logger(),
	}
}

// ImportSeasonPack inserts file records for every covered episode,
// flips their has-file flags, and writes one combined history record,
// all atomically. Inside the transaction each path is re-checked: if a
// concurrent watcher already inserted a record for the same relative
// path, that record is adopted instead of re-inserted. If the
// transaction fails, any placeholder files already on disk are left
// for the watcher to discover; deleting them first would make content
// momentarily vanish from the library.
func (im *Importer) ImportSeasonPack(ctx context.Context, req SeasonPackImport) (*ImportResult, error) {
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("season pack import has no files")
	}

	series, err := im.store.GetSeries(ctx, req.SeriesID)
	if err != nil {
		return nil, err
	}
	if series == nil {
		return nil, fmt.Errorf("series %d not found", req.SeriesID)
	}

	result := &ImportResult{}
	err = im.store.DB().WithTx(ctx, func(tx *sql.Tx) error {
		for _, file := range req.Files {
			fileID, adopted, replaced, err := im.commitEpisodeFile(ctx, tx, series, file, req)
			if err != nil {
				return err
			}
			result.FileIDs = append(result.FileIDs, fileID)
			if adopted {
				result.AdoptedFiles++
			}
			result.ReplacedFiles += replaced
		}

		eventType := EventImported
		if req.IsUpgrade {
			eventType = EventUpgraded
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO grab_history (event_type, release_title, indexer, protocol, series_id, is_automatic, is_upgrade, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			eventType, req.ReleaseTitle, req.Indexer, req.Protocol, req.SeriesID,
			req.IsAutomatic, req.IsUpgrade, fmt.Sprintf("%d episodes", len(req.Files)),
		)
		if err != nil {
			return fmt.Errorf("failed to write history record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("season pack import failed: %w", err)
	}

	im.logger.Info().
		Int64("seriesId", req.SeriesID).
		Int("files", len(req.Files)).
		Int("adopted", result.AdoptedFiles).
		Int("replaced", result.ReplacedFiles).
		Bool("upgrade", req.IsUpgrade).
		Msg("season pack imported")

	return result, nil
}

// ImportEpisodeFile commits a single episode file through the same
// transactional path as a one-file pack.
func (im *Importer) ImportEpisodeFile(ctx context.Context, seriesID int64, file EpisodeFile, releaseTitle, indexer, protocol string, isAutomatic, isUpgrade bool) (*ImportResult, error) {
	return im.ImportSeasonPack(ctx, SeasonPackImport{
		SeriesID:     seriesID,
		Files:        []EpisodeFile{file},
		ReleaseTitle: releaseTitle,
		Indexer:      indexer,
		Protocol:     protocol,
		IsAutomatic:  isAutomatic,
		IsUpgrade:    isUpgrade,
	})
}

// ImportMovieFile commits a movie file record, has-file flag, and
// history entry atomically.
func (im *Importer) ImportMovieFile(ctx context.Context, req MovieImport) (*ImportResult, error) {
	movie, err := im.store.GetMovie(ctx, req.MovieID)
	if err != nil {
		return nil, err
	}
	if movie == nil {
		return nil, fmt.Errorf("movie %d not found", req.MovieID)
	}

	result := &ImportResult{}
	err = im.store.DB().WithTx(ctx, func(tx *sql.Tx) error {
		if req.IsUpgrade {
			result.ReplacedFiles += im.deleteMovieFiles(ctx, tx, movie)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO media_files (movie_id, relative_path, size_bytes, quality, release_title, placeholder)
			VALUES (?, ?, ?, ?, ?, ?)`,
			req.MovieID, req.RelativePath, req.SizeBytes, req.Quality, req.ReleaseTitle, req.Placeholder,
		)
		if err != nil {
			return fmt.Errorf("failed to insert media file: %w", err)
		}
		fileID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		result.FileIDs = append(result.FileIDs, fileID)

		if _, err := tx.ExecContext(ctx, `UPDATE movies SET has_file = 1 WHERE id = ?`, req.MovieID); err != nil {
			return fmt.Errorf("failed to flag movie: %w", err)
		}

		eventType := EventImported
		if req.IsUpgrade {
			eventType = EventUpgraded
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO grab_history (event_type, release_title, indexer, protocol, movie_id, is_automatic, is_upgrade)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			eventType, req.ReleaseTitle, req.Indexer, req.Protocol, req.MovieID, req.IsAutomatic, req.IsUpgrade,
		)
		if err != nil {
			return fmt.Errorf("failed to write history record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("movie import failed: %w", err)
	}

	return result, nil
}

// commitEpisodeFile handles one episode inside the pack transaction:
// optional upgrade pre-delete, path re-check-adopt, insert, flag flip.
func (im *Importer) commitEpisodeFile(ctx context.Context, tx *sql.Tx, series *Series, file EpisodeFile, req SeasonPackImport) (fileID int64, adopted bool, replaced int, err error) {
	if req.IsUpgrade {
		existing, err := fileForEpisode(ctx, tx, file.EpisodeID)
		if err != nil {
			return 0, false, 0, err
		}
		if existing != nil && existing.RelativePath != file.RelativePath {
			im.removeFromDisk(series.Path, existing.RelativePath)
			if _, err := tx.ExecContext(ctx, `DELETE FROM media_files WHERE id = ?`, existing.ID); err != nil {
				return 0, false, 0, fmt.Errorf("failed to delete replaced file record: %w", err)
			}
			replaced = 1
		}
	}

	// First-writer-wins on relative path: a concurrent watcher may
	// have linked this file between grab and import.
	current, err := fileByPath(ctx, tx, req.SeriesID, file.RelativePath)
	if err != nil {
		return 0, false, 0, err
	}
	if current != nil {
		fileID = current.ID
		adopted = true
		if current.EpisodeID == nil {
			if _, err := tx.ExecContext(ctx, `UPDATE media_files SET episode_id = ? WHERE id = ?`, file.EpisodeID, fileID); err != nil {
				return 0, false, 0, fmt.Errorf("failed to link adopted file: %w", err)
			}
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO media_files (series_id, episode_id, relative_path, size_bytes, quality, release_title, placeholder)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			req.SeriesID, file.EpisodeID, file.RelativePath, file.SizeBytes, file.Quality, req.ReleaseTitle, file.Placeholder,
		)
		if err != nil {
			return 0, false, 0, fmt.Errorf("failed to insert media file: %w", err)
		}
		fileID, err = res.LastInsertId()
		if err != nil {
			return 0, false, 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE episodes SET has_file = 1 WHERE id = ?`, file.EpisodeID); err != nil {
		return 0, false, 0, fmt.Errorf("failed to flag episode: %w", err)
	}

	return fileID, adopted, replaced, nil
}

// deleteMovieFiles removes existing file records for a movie and their
// disk files, returning how many records were deleted.
func (im *Importer) deleteMovieFiles(ctx context.Context, tx *sql.Tx, movie *Movie) int {
	rows, err := tx.QueryContext(ctx, `SELECT id, relative_path FROM media_files WHERE movie_id = ?`, movie.ID)
	if err != nil {
		im.logger.Warn().Err(err).Int64("movieId", movie.ID).Msg("failed to list files for upgrade")
		return 0
	}
	type oldFile struct {
		id   int64
		path string
	}
	var old []oldFile
	for rows.Next() {
		var f oldFile
		if err := rows.Scan(&f.id, &f.path); err == nil {
			old = append(old, f)
		}
	}
	rows.Close()

	deleted := 0
	for _, f := range old {
		im.removeFromDisk(movie.Path, f.path)
		if _, err := tx.ExecContext(ctx, `DELETE FROM media_files WHERE id = ?`, f.id); err != nil {
			im.logger.Warn().Err(err).Int64("fileId", f.id).Msg("failed to delete replaced file record")
			continue
		}
		deleted++
	}
	return deleted
}

// removeFromDisk deletes a file best-effort. Failures are logged and
// never abort the surrounding record update.
func (im *Importer) removeFromDisk(root, relativePath string) {
	full := filepath.Join(root, relativePath)
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		im.logger.Warn().Err(err).Str("path", full).Msg("failed to delete replaced file from disk")
	}
}
