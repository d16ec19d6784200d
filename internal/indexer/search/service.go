// Package search orchestrates capability-gated searches across
// configured indexes.
package search

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/indexer"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// Options tunes search fan-out.
type Options struct {
	// PerIndexTimeout bounds each index's search; zero means 30s.
	PerIndexTimeout time.Duration
	// MaxConcurrent bounds parallel index searches; zero means all at
	// once.
	MaxConcurrent int
}

// Result contains aggregated search results. Per-index failures are
// reported alongside the partial results, never instead of them.
type Result struct {
	Releases      []types.ReleaseInfo `json:"releases"`
	TotalResults  int                 `json:"total"`
	IndexersUsed  int                 `json:"indexersSearched"`
	IndexerErrors []IndexerError      `json:"errors,omitempty"`
	Skipped       []SkippedIndexer    `json:"skipped,omitempty"`
}

// IndexerError is a failure from one index during a search.
type IndexerError struct {
	IndexerID   int64  `json:"indexerId"`
	IndexerName string `json:"indexerName"`
	Error       string `json:"error"`
}

// SkippedIndexer records a capability-gate rejection, with the reason
// the gate produced.
type SkippedIndexer struct {
	IndexerID   int64  `json:"indexerId"`
	IndexerName string `json:"indexerName"`
	Reason      string `json:"reason"`
}

type searchTaskResult struct {
	IndexerID   int64
	IndexerName string
	Releases    []types.ReleaseInfo
	Error       error
}

// Service fans a search out across every capable index.
type Service struct {
	mu        sync.RWMutex
	indexes   []*Index
	requester Requester
	opts      Options
	logger    zerolog.Logger
}

func NewService(requester Requester, opts Options, logger zerolog.Logger) *Service {
	if opts.PerIndexTimeout <= 0 {
		opts.PerIndexTimeout = 30 * time.Second
	}
	return &Service{
		requester: requester,
		opts:      opts,
		logger:    logger.With().Str("component", "search").Logger(),
	}
}

// AddIndex registers an index. Indexes are consulted in priority
// order (lower number first).
func (s *Service) AddIndex(ix *Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = append(s.indexes, ix)
	sort.SliceStable(s.indexes, func(i, j int) bool {
		return s.indexes[i].ref.Priority < s.indexes[j].ref.Priority
	})
}

// Indexes returns the registered index references in priority order.
func (s *Service) Indexes() []types.IndexerRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]types.IndexerRef, len(s.indexes))
	for i, ix := range s.indexes {
		refs[i] = ix.ref
	}
	return refs
}

// Search runs the criteria against every enabled index that passes the
// capability gate. One failing index never fails the whole search.
func (s *Service) Search(ctx context.Context, criteria types.SearchCriteria) (*Result, error) {
	start := time.Now()
	capable, skipped := s.gateIndexes(&criteria)

	if len(capable) == 0 {
		s.logger.Info().Int("skipped", len(skipped)).Msg("no capable indexes for search")
		return &Result{Releases: []types.ReleaseInfo{}, Skipped: skipped}, nil
	}

	s.logger.Info().
		Int("indexerCount", len(capable)).
		Str("query", criteria.Query).
		Str("type", string(criteria.Type)).
		Msg("starting search across indexes")

	result := s.dispatch(ctx, capable, &criteria)
	result.Skipped = skipped

	s.logger.Info().
		Int("totalResults", result.TotalResults).
		Int("indexersUsed", result.IndexersUsed).
		Int("errors", len(result.IndexerErrors)).
		Dur("elapsed", time.Since(start)).
		Msg("search completed")

	return result, nil
}

// gateIndexes applies the capability gate to every enabled index,
// preserving priority order.
func (s *Service) gateIndexes(criteria *types.SearchCriteria) ([]*Index, []SkippedIndexer) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var capable []*Index
	var skipped []SkippedIndexer
	for _, ix := range s.indexes {
		if !ix.ref.Enabled {
			continue
		}
		ok, reason := ix.CanSearch(criteria)
		if !ok {
			skipped = append(skipped, SkippedIndexer{
				IndexerID:   ix.ref.ID,
				IndexerName: ix.ref.Name,
				Reason:      reason,
			})
			s.logger.Debug().
				Int64("indexerId", ix.ref.ID).
				Str("indexerName", ix.ref.Name).
				Str("reason", reason).
				Msg("index skipped by capability gate")
			continue
		}
		capable = append(capable, ix)
	}
	return capable, skipped
}

// dispatch runs searches in parallel with a bounded worker count and a
// per-index timeout, then aggregates.
func (s *Service) dispatch(ctx context.Context, indexes []*Index, criteria *types.SearchCriteria) *Result {
	var wg sync.WaitGroup
	resultsChan := make(chan searchTaskResult, len(indexes))

	var sem chan struct{}
	if s.opts.MaxConcurrent > 0 {
		sem = make(chan struct{}, s.opts.MaxConcurrent)
	}

	for _, ix := range indexes {
		wg.Add(1)
		go func(ix *Index) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			resultsChan <- s.searchIndex(ctx, ix, criteria)
		}(ix)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	return s.aggregate(resultsChan)
}

// searchIndex performs a search on a single index under its own
// timeout.
func (s *Service) searchIndex(ctx context.Context, ix *Index, criteria *types.SearchCriteria) searchTaskResult {
	result := searchTaskResult{
		IndexerID:   ix.ref.ID,
		IndexerName: ix.ref.Name,
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.PerIndexTimeout)
	defer cancel()

	start := time.Now()
	releases, err := ix.Search(searchCtx, s.requester, criteria)
	elapsed := time.Since(start)

	if err != nil {
		result.Error = err
		s.logger.Error().
			Err(err).
			Int64("indexerId", ix.ref.ID).
			Str("indexerName", ix.ref.Name).
			Dur("elapsed", elapsed).
			Msg("index search failed")
		return result
	}

	result.Releases = releases
	s.logger.Debug().
		Int64("indexerId", ix.ref.ID).
		Str("indexerName", ix.ref.Name).
		Int("results", len(releases)).
		Dur("elapsed", elapsed).
		Msg("index search completed")

	return result
}

// FilterCapable exposes the pure capability gate over arbitrary refs.
func FilterCapable(criteria *types.SearchCriteria, refs []types.IndexerRef) []types.IndexerRef {
	return indexer.FindCapableIndexes(criteria, refs)
}
