package grab

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
	"github.com/keonramses/Cinephage-sub002/internal/library"
	"github.com/keonramses/Cinephage-sub002/internal/queue"
	"github.com/keonramses/Cinephage-sub002/internal/scoring"
)

// EventGrabbed marks the history record written when a candidate is
// accepted and handed to a download client.
const EventGrabbed = "grabbed"

var (
	ErrNoDownloadClient  = errors.New("no suitable download client available")
	ErrCandidateRejected = errors.New("candidate was rejected by scoring")
)

// Service commits accepted candidates. Torrent and usenet grabs go to
// a download client and land in the queue; streaming grabs import
// placeholder records synchronously.
type Service struct {
	resolver *Resolver
	clients  map[types.Protocol]DownloadClient
	queue    *queue.Repository
	store    *library.Store
	importer *library.Importer
	logger   zerolog.Logger
}

func NewService(resolver *Resolver, clients []DownloadClient, queueRepo *queue.Repository, store *library.Store, importer *library.Importer, logger zerolog.Logger) *Service {
	byProtocol := make(map[types.Protocol]DownloadClient, len(clients))
	for _, client := range clients {
		byProtocol[client.Protocol()] = client
	}
	return &Service{
		resolver: resolver,
		clients:  byProtocol,
		queue:    queueRepo,
		store:    store,
		importer: importer,
		logger:   logger.With().Str("component", "grab").Logger(),
	}
}

// Grab dispatches by the candidate's protocol.
func (s *Service) Grab(ctx context.Context, cand scoring.Candidate, target Target) (*Result, error) {
	if cand.Rejected {
		return nil, fmt.Errorf("%w: %s", ErrCandidateRejected, cand.Reason)
	}

	switch cand.Release.Protocol {
	case types.ProtocolTorrent, types.ProtocolUsenet:
		return s.grabDownload(ctx, cand, target)
	case types.ProtocolStreaming:
		return s.grabStream(ctx, cand, target)
	default:
		return nil, fmt.Errorf("unsupported protocol %s", cand.Release.Protocol)
	}
}

// grabDownload resolves the payload, submits it, and links the queue
// item. A duplicate report from the client is adoption, not failure;
// queue linking is idempotent on (client, native handle) either way.
func (s *Service) grabDownload(ctx context.Context, cand scoring.Candidate, target Target) (*Result, error) {
	client, ok := s.clients[cand.Release.Protocol]
	if !ok {
		return nil, fmt.Errorf("%w for protocol %s", ErrNoDownloadClient, cand.Release.Protocol)
	}

	payload, err := s.resolver.Resolve(ctx, &cand.Release)
	if err != nil {
		return &Result{Error: err.Error()}, fmt.Errorf("failed to resolve payload: %w", err)
	}

	opts := client.AddDefaults()
	opts.Category = target.Category

	adopted := false
	downloadID, err := client.AddDownload(ctx, *payload, opts)
	if err != nil {
		var dup *DuplicateError
		if !errors.As(err, &dup) {
			return &Result{Error: err.Error()}, fmt.Errorf("failed to submit to client %s: %w", client.ID(), err)
		}
		downloadID = dup.ExistingID
		adopted = true
		s.logger.Info().Str("clientId", client.ID()).Str("downloadId", downloadID).
			Str("title", cand.Release.Title).Msg("client already has download, adopting")
	}

	item, existed, err := s.queue.AddOrGet(ctx, queue.Item{
		ClientID:    client.ID(),
		DownloadID:  downloadID,
		Title:       cand.Release.Title,
		Protocol:    string(cand.Release.Protocol),
		SeriesID:    target.SeriesID,
		MovieID:     target.MovieID,
		EpisodeIDs:  target.EpisodeIDs,
		IsAutomatic: target.IsAutomatic,
		IsUpgrade:   target.IsUpgrade,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to link queue item: %w", err)
	}

	if err := s.recordGrab(ctx, cand, target, fmt.Sprintf("client=%s download=%s", client.ID(), downloadID)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record grab history")
	}

	s.logger.Info().
		Str("title", cand.Release.Title).
		Str("clientId", client.ID()).
		Str("downloadId", downloadID).
		Bool("adopted", adopted || existed).
		Int("score", cand.Score).
		Msg("release grabbed")

	return &Result{
		Success:     true,
		QueueItemID: item.ID,
		DownloadID:  downloadID,
		ClientID:    client.ID(),
		Adopted:     adopted || existed,
	}, nil
}

// grabStream parses the stream descriptor and imports placeholder
// records synchronously. For a pack, episodes that already have a file
// are skipped so a concurrently running watcher is never duplicated.
func (s *Service) grabStream(ctx context.Context, cand scoring.Candidate, target Target) (*Result, error) {
	ref, err := ParseStreamDescriptor(cand.Release.StreamDescriptor)
	if err != nil {
		return &Result{Error: err.Error()}, err
	}

	switch {
	case target.MovieID != nil:
		return s.streamMovie(ctx, cand, target, ref)
	case target.SeriesID != nil && len(target.EpisodeIDs) > 0:
		return s.streamEpisodes(ctx, cand, target, ref)
	default:
		return nil, fmt.Errorf("stream grab target names no movie or episodes")
	}
}

func (s *Service) streamMovie(ctx context.Context, cand scoring.Candidate, target Target, ref *StreamRef) (*Result, error) {
	movie, err := s.store.GetMovie(ctx, *target.MovieID)
	if err != nil {
		return nil, err
	}
	if movie == nil {
		return nil, fmt.Errorf("movie %d not found", *target.MovieID)
	}

	result, err := s.importer.ImportMovieFile(ctx, library.MovieImport{
		MovieID:      movie.ID,
		RelativePath: placeholderPath("", movie.Title, ref),
		SizeBytes:    cand.Release.Size,
		Quality:      cand.Parsed.Quality,
		ReleaseTitle: cand.Release.Title,
		Indexer:      cand.Release.IndexerName,
		Protocol:     string(cand.Release.Protocol),
		Placeholder:  true,
		IsAutomatic:  target.IsAutomatic,
		IsUpgrade:    target.IsUpgrade,
	})
	if err != nil {
		return &Result{Error: err.Error()}, err
	}
	if err := s.recordGrab(ctx, cand, target, "stream:"+ref.Source); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record grab history")
	}
	return &Result{Success: true, PlaceholderFiles: len(result.FileIDs)}, nil
}

func (s *Service) streamEpisodes(ctx context.Context, cand scoring.Candidate, target Target, ref *StreamRef) (*Result, error) {
	episodeIDs := target.EpisodeIDs
	if ref.IsPack() {
		have, err := s.store.EpisodesWithFiles(ctx, episodeIDs)
		if err != nil {
			return nil, err
		}
		remainder := episodeIDs[:0:0]
		for _, id := range episodeIDs {
			if !have[id] {
				remainder = append(remainder, id)
			}
		}
		episodeIDs = remainder
	}
	if len(episodeIDs) == 0 {
		return &Result{Success: true}, nil
	}

	files := make([]library.EpisodeFile, 0, len(episodeIDs))
	for _, id := range episodeIDs {
		ep, err := s.store.GetEpisode(ctx, id)
		if err != nil {
			return nil, err
		}
		if ep == nil {
			return nil, fmt.Errorf("episode %d not found", id)
		}
		files = append(files, library.EpisodeFile{
			EpisodeID:    ep.ID,
			RelativePath: episodePlaceholderPath(ep, ref),
			SizeBytes:    0,
			Quality:      cand.Parsed.Quality,
			Placeholder:  true,
		})
	}

	result, err := s.importer.ImportSeasonPack(ctx, library.SeasonPackImport{
		SeriesID:     *target.SeriesID,
		Files:        files,
		ReleaseTitle: cand.Release.Title,
		Indexer:      cand.Release.IndexerName,
		Protocol:     string(cand.Release.Protocol),
		IsAutomatic:  target.IsAutomatic,
		IsUpgrade:    target.IsUpgrade,
	})
	if err != nil {
		return &Result{Error: err.Error()}, err
	}
	if err := s.recordGrab(ctx, cand, target, "stream:"+ref.Source); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record grab history")
	}
	return &Result{Success: true, PlaceholderFiles: len(result.FileIDs)}, nil
}

func (s *Service) recordGrab(ctx context.Context, cand scoring.Candidate, target Target, detail string) error {
	return s.store.RecordGrabEvent(ctx, library.GrabEvent{
		EventType:    EventGrabbed,
		ReleaseTitle: cand.Release.Title,
		Indexer:      cand.Release.IndexerName,
		Protocol:     string(cand.Release.Protocol),
		SeriesID:     target.SeriesID,
		MovieID:      target.MovieID,
		IsAutomatic:  target.IsAutomatic,
		IsUpgrade:    target.IsUpgrade,
		Detail:       detail,
	})
}

// episodePlaceholderPath builds a unique remote-file path for an
// episode placeholder. Uniqueness matters: two packs covering the
// same episode must not collide on relative path before the watcher
// reconciles them.
func episodePlaceholderPath(ep *library.Episode, ref *StreamRef) string {
	name := fmt.Sprintf("S%02dE%02d-%s-%s.stream", ep.Season, ep.Episode, ref.Source, uuid.NewString())
	return filepath.Join(fmt.Sprintf("Season %02d", ep.Season), name)
}

func placeholderPath(dir, title string, ref *StreamRef) string {
	name := fmt.Sprintf("%s-%s-%s.stream", sanitizeName(title), ref.Source, uuid.NewString())
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

func sanitizeName(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			out = append(out, '_')
		case ' ':
			out = append(out, '.')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
