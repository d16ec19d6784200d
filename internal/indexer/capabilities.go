package indexer

import (
	"fmt"
	"strings"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// Capability-mismatch reasons, stable for display and tests.
const (
	ReasonNoMatchingCategories   = "no-matching-categories"
	ReasonUnsupportedSearchType  = "unsupported-search-type"
	ReasonUnsupportedIdentifiers = "unsupported-identifiers"
)

// CanSearch reports whether an index can answer the criteria at all.
// It is pure: no network I/O, no side effects.
func CanSearch(criteria *types.SearchCriteria, caps *types.Capabilities) bool {
	ok, _ := CanSearchWithReason(criteria, caps)
	return ok
}

// CanSearchWithReason applies three gates in order, short-circuiting on
// the first failure:
//
//  1. Category gate: a non-basic search needs at least one native
//     category mapping into the search type's canonical family.
//  2. Search-type gate: the index must advertise the search mode.
//  3. Identifier gate: if the criteria carries any external identifier,
//     the index must support at least one of the identifiers actually
//     provided. There is no fallback to free text in that case; an
//     index with broken text search must not return unrelated results
//     when the caller asked for an ID-qualified match.
func CanSearchWithReason(criteria *types.SearchCriteria, caps *types.Capabilities) (bool, string) {
	if criteria.Type != types.SearchTypeBasic {
		if !hasFamilyCategory(criteria.Type, caps) {
			return false, fmt.Sprintf("%s: indexer has no %s categories",
				ReasonNoMatchingCategories, familyName(criteria.Type))
		}
	}

	if !caps.SupportsType(criteria.Type) {
		return false, fmt.Sprintf("%s: indexer does not support %s searches",
			ReasonUnsupportedSearchType, familyName(criteria.Type))
	}

	if criteria.HasIdentifiers() {
		provided := criteria.ProvidedIdentifiers()
		supported := caps.SupportedParams(criteria.Type)
		if !anySupported(provided, supported) {
			return false, fmt.Sprintf("%s: %s search has IDs [%s] but indexer only supports [%s]",
				ReasonUnsupportedIdentifiers, familyName(criteria.Type),
				strings.Join(provided, ", "), strings.Join(identifierParams(supported), ", "))
		}
	}

	return true, ""
}

func hasFamilyCategory(searchType types.SearchType, caps *types.Capabilities) bool {
	for _, cat := range caps.Categories {
		if FamilyMatches(searchType, cat.CanonicalID) {
			return true
		}
	}
	return false
}

func anySupported(provided, supported []string) bool {
	for _, p := range provided {
		for _, s := range supported {
			if p == s {
				return true
			}
		}
	}
	return false
}

// identifierParams filters a supported-params list down to identifier
// parameters, for readable mismatch messages.
func identifierParams(params []string) []string {
	var ids []string
	for _, p := range params {
		switch p {
		case types.ParamImdbID, types.ParamTmdbID, types.ParamTvdbID:
			ids = append(ids, p)
		}
	}
	return ids
}

func familyName(t types.SearchType) string {
	switch t {
	case types.SearchTypeMovie:
		return "movie"
	case types.SearchTypeTV:
		return "TV"
	default:
		return "basic"
	}
}

// FindCapableIndexes filters a set of configured indexers down to those
// able to answer the criteria, preserving input order.
func FindCapableIndexes(criteria *types.SearchCriteria, indexers []types.IndexerRef) []types.IndexerRef {
	var capable []types.IndexerRef
	for _, ix := range indexers {
		if !ix.Enabled {
			continue
		}
		if CanSearch(criteria, &ix.Capabilities) {
			capable = append(capable, ix)
		}
	}
	return capable
}
