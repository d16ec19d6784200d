// Package queue persists download-queue items and links them to the
// media they will eventually import.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/database"
)

// Item statuses.
const (
	StatusQueued    = "queued"
	StatusImporting = "importing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Item is one tracked download. ClientID plus DownloadID (the download
// client's native handle) uniquely identify it.
type Item struct {
	ID          int64     `json:"id"`
	ClientID    string    `json:"clientId"`
	DownloadID  string    `json:"downloadId"`
	Title       string    `json:"title"`
	Protocol    string    `json:"protocol"`
	SeriesID    *int64    `json:"seriesId,omitempty"`
	MovieID     *int64    `json:"movieId,omitempty"`
	EpisodeIDs  []int64   `json:"episodeIds,omitempty"`
	IsAutomatic bool      `json:"isAutomatic"`
	IsUpgrade   bool      `json:"isUpgrade"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Repository stores queue items in sqlite.
type Repository struct {
	db     *database.DB
	logger zerolog.Logger
}

func NewRepository(db *database.DB, logger zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With().Str("component", "queue").Logger(),
	}
}

// AddOrGet inserts the item, or returns the existing record when one
// already references the same (clientId, downloadId). The second
// return value reports whether the item already existed. Safe to call
// repeatedly with the same handle; duplicate-grab adoption relies on
// this.
func (r *Repository) AddOrGet(ctx context.Context, item Item) (*Item, bool, error) {
	episodeIDs, err := encodeEpisodeIDs(item.EpisodeIDs)
	if err != nil {
		return nil, false, err
	}

	res, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO queue_items (client_id, download_id, title, protocol, series_id, movie_id, episode_ids, is_automatic, is_upgrade, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, download_id) DO NOTHING`,
		item.ClientID, item.DownloadID, item.Title, item.Protocol,
		item.SeriesID, item.MovieID, episodeIDs,
		item.IsAutomatic, item.IsUpgrade, statusOrQueued(item.Status),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert queue item: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	existing, err := r.GetByHandle(ctx, item.ClientID, item.DownloadID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("queue item vanished after insert: %s/%s", item.ClientID, item.DownloadID)
	}

	return existing, inserted == 0, nil
}

// GetByHandle looks an item up by its client and native download ID.
// A missing item returns (nil, nil).
func (r *Repository) GetByHandle(ctx context.Context, clientID, downloadID string) (*Item, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, client_id, download_id, title, protocol, series_id, movie_id, episode_ids, is_automatic, is_upgrade, status, created_at
		FROM queue_items WHERE client_id = ? AND download_id = ?`,
		clientID, downloadID,
	)
	return scanItem(row)
}

// List returns all queue items, newest first.
func (r *Repository) List(ctx context.Context) ([]Item, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, client_id, download_id, title, protocol, series_id, movie_id, episode_ids, is_automatic, is_upgrade, status, created_at
		FROM queue_items ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateStatus moves an item to a new status.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.Conn().ExecContext(ctx,
		`UPDATE queue_items SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update queue item status: %w", err)
	}
	return nil
}

// Remove deletes an item.
func (r *Repository) Remove(ctx context.Context, id int64) error {
	_, err := r.db.Conn().ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove queue item: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var episodeIDs sql.NullString
	var createdAt string

	err := row.Scan(&item.ID, &item.ClientID, &item.DownloadID, &item.Title, &item.Protocol,
		&item.SeriesID, &item.MovieID, &episodeIDs, &item.IsAutomatic, &item.IsUpgrade,
		&item.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue item: %w", err)
	}

	if episodeIDs.Valid && episodeIDs.String != "" {
		if err := json.Unmarshal([]byte(episodeIDs.String), &item.EpisodeIDs); err != nil {
			return nil, fmt.Errorf("corrupt episode id list on queue item %d: %w", item.ID, err)
		}
	}
	item.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)

	return &item, nil
}

func encodeEpisodeIDs(ids []int64) (sql.NullString, error) {
	if len(ids) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode episode ids: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func statusOrQueued(status string) string {
	if status == "" {
		return StatusQueued
	}
	return status
}
