package metadata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// Provider is the upstream catalog the service resolves against. A
// provider may be a remote API client or a local library store.
type Provider interface {
	GetByTmdbID(ctx context.Context, kind MediaKind, tmdbID int) (*Record, error)
	FindByImdbID(ctx context.Context, imdbID string) (*Record, error)
	FindByTvdbID(ctx context.Context, tvdbID int) (*Record, error)
	SearchByTitle(ctx context.Context, kind MediaKind, title string) ([]Record, error)
}

// Service fronts a Provider with a TTL cache. Reverse external-ID
// lookups are the hot path during enrichment; caching them bounds
// upstream calls to one per identifier per freshness window.
type Service struct {
	provider Provider
	cache    *Cache
	logger   zerolog.Logger
}

func NewService(provider Provider, cache *Cache, logger zerolog.Logger) *Service {
	if cache == nil {
		cache = NewCache(DefaultCacheConfig())
	}
	return &Service{
		provider: provider,
		cache:    cache,
		logger:   logger.With().Str("component", "metadata").Logger(),
	}
}

func (s *Service) GetByTmdbID(ctx context.Context, kind MediaKind, tmdbID int) (*Record, error) {
	key := "tmdb:" + string(kind) + ":" + strconv.Itoa(tmdbID)
	return s.cachedLookup(key, func() (*Record, error) {
		return s.provider.GetByTmdbID(ctx, kind, tmdbID)
	})
}

func (s *Service) FindByImdbID(ctx context.Context, imdbID string) (*Record, error) {
	return s.cachedLookup("imdb:"+imdbID, func() (*Record, error) {
		return s.provider.FindByImdbID(ctx, imdbID)
	})
}

func (s *Service) FindByTvdbID(ctx context.Context, tvdbID int) (*Record, error) {
	return s.cachedLookup("tvdb:"+strconv.Itoa(tvdbID), func() (*Record, error) {
		return s.provider.FindByTvdbID(ctx, tvdbID)
	})
}

func (s *Service) SearchByTitle(ctx context.Context, kind MediaKind, title string) ([]Record, error) {
	key := "title:" + string(kind) + ":" + title
	if records, ok := s.cache.GetRecords(key); ok {
		return records, nil
	}

	records, err := s.provider.SearchByTitle(ctx, kind, title)
	if err != nil {
		return nil, fmt.Errorf("title search failed: %w", err)
	}
	s.cache.Set(key, records)
	return records, nil
}

// cachedLookup memoizes both hits and misses. A nil record under a
// present key is a cached negative result.
func (s *Service) cachedLookup(key string, lookup func() (*Record, error)) (*Record, error) {
	if _, ok := s.cache.Get(key); ok {
		record, _ := s.cache.GetRecord(key)
		return record, nil
	}

	record, err := lookup()
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, record)
	return record, nil
}
