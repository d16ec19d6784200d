package search

import (
	"sort"
	"strings"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// aggregate drains the per-index result channel, deduplicates, and
// sorts newest first.
func (s *Service) aggregate(results <-chan searchTaskResult) *Result {
	allReleases := make([]types.ReleaseInfo, 0)
	errors := make([]IndexerError, 0)
	indexersUsed := 0

	for result := range results {
		if result.Error != nil {
			errors = append(errors, IndexerError{
				IndexerID:   result.IndexerID,
				IndexerName: result.IndexerName,
				Error:       result.Error.Error(),
			})
			continue
		}
		indexersUsed++
		allReleases = append(allReleases, result.Releases...)
	}

	deduplicated := deduplicateReleases(allReleases)
	sortReleases(deduplicated)

	return &Result{
		Releases:      deduplicated,
		TotalResults:  len(deduplicated),
		IndexersUsed:  indexersUsed,
		IndexerErrors: errors,
	}
}

// deduplicateReleases removes duplicates by info hash when present,
// normalized GUID otherwise. On a duplicate the release with more
// seeders wins; ties keep the first seen, which is the higher
// priority index since fan-out preserves registration order per key.
func deduplicateReleases(releases []types.ReleaseInfo) []types.ReleaseInfo {
	if len(releases) == 0 {
		return releases
	}

	seen := make(map[string]int)
	result := make([]types.ReleaseInfo, 0, len(releases))

	for _, release := range releases {
		var identifier string
		if release.InfoHash != "" {
			identifier = "hash:" + strings.ToLower(release.InfoHash)
		} else {
			identifier = "guid:" + normalizeGUID(release.GUID)
		}

		if existingIdx, exists := seen[identifier]; exists {
			if release.Seeders > result[existingIdx].Seeders {
				result[existingIdx] = release
			}
			continue
		}
		seen[identifier] = len(result)
		result = append(result, release)
	}

	return result
}

// normalizeGUID strips scheme and trailing slashes so the same release
// reached over http and https deduplicates.
func normalizeGUID(guid string) string {
	guid = strings.TrimPrefix(guid, "https://")
	guid = strings.TrimPrefix(guid, "http://")
	return strings.ToLower(strings.TrimSuffix(guid, "/"))
}

// sortReleases orders by publish date descending, then seeders, then
// GUID for a stable final order.
func sortReleases(releases []types.ReleaseInfo) {
	sort.SliceStable(releases, func(i, j int) bool {
		if !releases[i].PublishDate.Equal(releases[j].PublishDate) {
			return releases[i].PublishDate.After(releases[j].PublishDate)
		}
		if releases[i].Seeders != releases[j].Seeders {
			return releases[i].Seeders > releases[j].Seeders
		}
		return releases[i].GUID < releases[j].GUID
	})
}
