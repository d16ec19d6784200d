package metadata

import (
	"context"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
	"github.com/keonramses/Cinephage-sub002/internal/release"
)

// fuzzyAcceptThreshold is the combined title+year score a fuzzy match
// must exceed. Identifier matches bypass it.
const fuzzyAcceptThreshold = 0.5

// Matcher resolves parsed releases to canonical records through a
// fixed cascade: canonical-ID hint, IMDb hint, TVDB hint, identifiers
// embedded in the release title, then fuzzy title search. Identifier
// tiers that carry a year are validated against the release year and
// fall through on mismatch instead of failing the whole match.
type Matcher struct {
	service *Service
	logger  zerolog.Logger
}

func NewMatcher(service *Service, logger zerolog.Logger) *Matcher {
	return &Matcher{
		service: service,
		logger:  logger.With().Str("component", "matcher").Logger(),
	}
}

// Match runs the cascade. A nil Match with a nil error means no tier
// produced an acceptable record.
func (m *Matcher) Match(ctx context.Context, parsed *release.ParsedRelease, hint Hint) (*Match, error) {
	if hint.TmdbID != 0 {
		record, err := m.service.GetByTmdbID(ctx, hint.Kind, hint.TmdbID)
		if err != nil {
			return nil, err
		}
		if record != nil && yearCompatible(parsed.Year, record.Year) {
			return &Match{Record: record, Method: MethodCanonicalID, Confidence: 1.0}, nil
		}
	}

	if hint.ImdbID != "" {
		record, err := m.service.FindByImdbID(ctx, hint.ImdbID)
		if err != nil {
			return nil, err
		}
		if record != nil && yearCompatible(parsed.Year, record.Year) {
			return &Match{Record: record, Method: MethodImdbID, Confidence: 0.95}, nil
		}
	}

	// TVDB identifiers are season-scoped upstream, so a release year
	// rarely lines up with the record year; skip the year check here.
	if hint.TvdbID != 0 {
		record, err := m.service.FindByTvdbID(ctx, hint.TvdbID)
		if err != nil {
			return nil, err
		}
		if record != nil {
			return &Match{Record: record, Method: MethodTvdbID, Confidence: 0.9}, nil
		}
	}

	if match, err := m.matchEmbeddedIDs(ctx, parsed, hint.Kind); match != nil || err != nil {
		return match, err
	}

	return m.matchFuzzyTitle(ctx, parsed, hint)
}

// matchEmbeddedIDs applies the same three-tier identifier order to IDs
// the release title itself carries.
func (m *Matcher) matchEmbeddedIDs(ctx context.Context, parsed *release.ParsedRelease, kind MediaKind) (*Match, error) {
	if parsed.TmdbID != 0 {
		record, err := m.service.GetByTmdbID(ctx, kind, parsed.TmdbID)
		if err != nil {
			return nil, err
		}
		if record != nil && yearCompatible(parsed.Year, record.Year) {
			return &Match{Record: record, Method: MethodTitleID, Confidence: 0.85}, nil
		}
	}
	if parsed.ImdbID != "" {
		record, err := m.service.FindByImdbID(ctx, parsed.ImdbID)
		if err != nil {
			return nil, err
		}
		if record != nil && yearCompatible(parsed.Year, record.Year) {
			return &Match{Record: record, Method: MethodTitleID, Confidence: 0.85}, nil
		}
	}
	if parsed.TvdbID != 0 {
		record, err := m.service.FindByTvdbID(ctx, parsed.TvdbID)
		if err != nil {
			return nil, err
		}
		if record != nil {
			return &Match{Record: record, Method: MethodTitleID, Confidence: 0.85}, nil
		}
	}
	return nil, nil
}

func (m *Matcher) matchFuzzyTitle(ctx context.Context, parsed *release.ParsedRelease, hint Hint) (*Match, error) {
	if parsed.Title == "" {
		return nil, nil
	}

	records, err := m.service.SearchByTitle(ctx, hint.Kind, parsed.Title)
	if err != nil {
		return nil, err
	}

	var best *Record
	bestScore := 0.0
	for i := range records {
		score := fuzzyScore(parsed, &records[i])
		if score > bestScore {
			bestScore = score
			best = &records[i]
		}
	}

	if best == nil || bestScore <= fuzzyAcceptThreshold {
		return nil, nil
	}

	m.logger.Debug().Str("title", parsed.Title).Str("matched", best.Title).
		Float64("score", bestScore).Msg("fuzzy title match")
	return &Match{Record: best, Method: MethodFuzzyTitle, Confidence: bestScore}, nil
}

// fuzzyScore combines title similarity with a year bonus. The best of
// the primary and alternate titles counts.
func fuzzyScore(parsed *release.ParsedRelease, record *Record) float64 {
	releaseTitle := release.NormalizeTitle(parsed.Title)

	sim := titleSimilarity(releaseTitle, release.NormalizeTitle(record.Title))
	for _, alt := range record.AlternateTitles {
		if s := titleSimilarity(releaseTitle, release.NormalizeTitle(alt)); s > sim {
			sim = s
		}
	}

	score := 0.8 * sim
	switch {
	case parsed.Year == 0 || record.Year == 0:
	case parsed.Year == record.Year:
		score += 0.2
	case abs(parsed.Year-record.Year) == 1:
		score += 0.1
	}
	return score
}

// titleSimilarity is normalized Levenshtein similarity over already
// normalized titles.
func titleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	sim := 1 - float64(dist)/float64(maxLen)
	if sim < 0 {
		return 0
	}
	return sim
}

// yearCompatible guards identifier hints against stale data. Unknown
// years on either side pass.
func yearCompatible(releaseYear, recordYear int) bool {
	if releaseYear == 0 || recordYear == 0 {
		return true
	}
	return abs(releaseYear-recordYear) <= 1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// TargetMatcher binds a Matcher to one search target so enrichment can
// verify each release against it.
type TargetMatcher struct {
	matcher *Matcher
	hint    Hint
}

func (m *Matcher) ForTarget(hint Hint) *TargetMatcher {
	return &TargetMatcher{matcher: m, hint: hint}
}

// MatchRelease reports whether a release resolves to the bound target.
// Identifier fields reported by the index supplement those parsed from
// the title. A resolution to a different record counts as a mismatch.
func (tm *TargetMatcher) MatchRelease(ctx context.Context, info types.ReleaseInfo, parsed *release.ParsedRelease) (float64, bool) {
	merged := *parsed
	if merged.ImdbID == "" {
		merged.ImdbID = info.ImdbID
	}
	if merged.TmdbID == 0 {
		merged.TmdbID = info.TmdbID
	}
	if merged.TvdbID == 0 {
		merged.TvdbID = info.TvdbID
	}

	match, err := tm.matcher.Match(ctx, &merged, tm.hint)
	if err != nil {
		tm.matcher.logger.Warn().Err(err).Str("title", info.Title).Msg("metadata match failed")
		return 0, false
	}
	if match == nil {
		return 0, false
	}
	if !tm.sameTarget(match.Record) {
		return 0, false
	}
	return match.Confidence, true
}

// sameTarget checks identifier agreement between the matched record
// and the hint; with no identifiers in the hint any match passes.
func (tm *TargetMatcher) sameTarget(record *Record) bool {
	if tm.hint.TmdbID != 0 || tm.hint.ImdbID != "" || tm.hint.TvdbID != 0 {
		if tm.hint.TmdbID != 0 && record.TmdbID == tm.hint.TmdbID {
			return true
		}
		if tm.hint.ImdbID != "" && record.ImdbID == tm.hint.ImdbID {
			return true
		}
		if tm.hint.TvdbID != 0 && record.TvdbID == tm.hint.TvdbID {
			return true
		}
		return false
	}
	return true
}
