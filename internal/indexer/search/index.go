package search

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/indexer"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/definition"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/request"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/response"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// Index is one searchable index: a parsed definition bound to its
// user configuration, with a compiler and parser ready to go.
type Index struct {
	ref      types.IndexerRef
	def      *definition.Definition
	compiler *request.Compiler
	parser   *response.Parser
	logger   zerolog.Logger
}

// IndexOptions is the per-index user configuration layered over a
// definition.
type IndexOptions struct {
	ID       int64
	Name     string
	Priority int
	Enabled  bool
	Settings map[string]string
}

// NewIndex builds an Index from a definition and its configuration.
func NewIndex(def *definition.Definition, opts IndexOptions, logger zerolog.Logger) *Index {
	caps := def.Capabilities()
	translator := indexer.NewTranslator(caps.Categories)

	name := opts.Name
	if name == "" {
		name = def.Name
	}

	return &Index{
		ref: types.IndexerRef{
			ID:           opts.ID,
			Name:         name,
			DefinitionID: def.ID,
			Protocol:     def.GetProtocol(),
			Privacy:      def.GetPrivacy(),
			Priority:     opts.Priority,
			Enabled:      opts.Enabled,
			Capabilities: caps,
		},
		def:      def,
		compiler: request.NewCompiler(def, translator, opts.Settings, logger),
		parser:   response.NewParser(def, translator, logger),
		logger:   logger.With().Str("component", "index").Str("indexer", def.ID).Logger(),
	}
}

// Ref returns the index's reference record, including capabilities.
func (ix *Index) Ref() types.IndexerRef {
	return ix.ref
}

// CanSearch reports whether the index can serve the criteria, with a
// reason when it cannot.
func (ix *Index) CanSearch(criteria *types.SearchCriteria) (bool, string) {
	return indexer.CanSearchWithReason(criteria, &ix.ref.Capabilities)
}

// Search compiles the criteria into requests, issues them through the
// requester, and parses every response. Results across paths are
// concatenated; the caller deduplicates.
func (ix *Index) Search(ctx context.Context, requester Requester, criteria *types.SearchCriteria) ([]types.ReleaseInfo, error) {
	specs, err := ix.compiler.BuildRequests(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to build requests: %w", err)
	}

	var results []types.ReleaseInfo
	for _, spec := range specs {
		resp, err := requester.Do(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, spec.URL)
		}

		releases, err := ix.parser.Parse(resp.Body, spec.Path, spec.TemplateCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		results = append(results, releases...)
	}

	for i := range results {
		results[i].IndexerID = ix.ref.ID
		results[i].IndexerName = ix.ref.Name
	}

	if max := ix.ref.Capabilities.MaxResultsPerSearch; max > 0 && len(results) > max {
		results = results[:max]
	}

	ix.logger.Debug().Int("requests", len(specs)).Int("results", len(results)).Msg("index search complete")
	return results, nil
}
