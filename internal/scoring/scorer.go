package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
	"github.com/keonramses/Cinephage-sub002/internal/release"
)

// Rejection reasons reported on rejected candidates.
const (
	RejectBannedTag       = "banned-tag"
	RejectSizeBounds      = "size-out-of-bounds"
	RejectProtocol        = "protocol-not-allowed"
	RejectSeederFloor     = "below-seeder-floor"
	RejectNegativeWeights = "below-zero-base"
)

// ScoreBreakdown itemizes how a candidate's total score was reached.
// Bonus terms other than the pack bonus are proportional to the base
// score and individually capped, so a junk release cannot ride a
// bonus past a quality one.
type ScoreBreakdown struct {
	Base         int `json:"base"`
	Availability int `json:"availability"`
	Freshness    int `json:"freshness"`
	Enhancement  int `json:"enhancement"`
	Pack         int `json:"pack"`
	Confidence   int `json:"confidence"`
	Penalty      int `json:"penalty"`
	Total        int `json:"total"`
}

// Candidate is a scored, parsed release ready for selection.
type Candidate struct {
	Release   types.ReleaseInfo      `json:"release"`
	Parsed    *release.ParsedRelease `json:"parsed"`
	Score     int                    `json:"score"`
	Breakdown ScoreBreakdown         `json:"breakdown"`
	Rejected  bool                   `json:"rejected"`
	Reason    string                 `json:"reason,omitempty"`

	// MatchConfidence is set by metadata matching during enrichment;
	// zero when matching was skipped.
	MatchConfidence float64 `json:"matchConfidence,omitempty"`
}

// ScoreContext carries the search-side inputs the scorer needs beyond
// the release itself.
type ScoreContext struct {
	MediaType MediaType
	// ExpectedEpisodes scales per-item size bounds for packs. Zero
	// disables scaling.
	ExpectedEpisodes int
	// Now anchors age calculations; the zero value means time.Now.
	Now time.Time
}

// Scorer scores releases against a profile.
type Scorer struct {
	profile *Profile
	logger  zerolog.Logger
}

func NewScorer(profile *Profile, logger zerolog.Logger) *Scorer {
	return &Scorer{
		profile: profile,
		logger:  logger.With().Str("component", "scorer").Str("profile", profile.Name).Logger(),
	}
}

// Score evaluates one release. Rejections return a Candidate with
// Rejected set and a reason; they never return an error.
func (s *Scorer) Score(info types.ReleaseInfo, parsed *release.ParsedRelease, scoreCtx ScoreContext) Candidate {
	cand := Candidate{Release: info, Parsed: parsed}

	if !s.profile.AllowsProtocol(info.Protocol) {
		return s.reject(cand, RejectProtocol, fmt.Sprintf("protocol %s not allowed", info.Protocol))
	}
	if info.Protocol == types.ProtocolTorrent && info.Seeders < s.profile.MinSeeders {
		return s.reject(cand, RejectSeederFloor,
			fmt.Sprintf("%d seeders below floor %d", info.Seeders, s.profile.MinSeeders))
	}

	tags := formatTags(parsed)
	if banned := s.bannedTag(info.Title, tags); banned != "" {
		return s.reject(cand, RejectBannedTag, banned)
	}
	if reason := s.checkSize(info.Size, parsed, scoreCtx); reason != "" {
		return s.reject(cand, RejectSizeBounds, reason)
	}

	base := 0
	for _, tag := range tags {
		base += s.profile.FormatWeights[tag]
	}
	if base < 0 {
		return s.reject(cand, RejectNegativeWeights, "format weights sum below zero")
	}
	if base > maxBaseScore {
		base = maxBaseScore
	}

	now := scoreCtx.Now
	if now.IsZero() {
		now = time.Now()
	}

	b := ScoreBreakdown{Base: base}
	b.Availability = availabilityBonus(base, info)
	b.Freshness = freshnessBonus(base, info.Age(now))
	b.Enhancement = s.enhancementBonus(parsed)
	b.Pack = s.packBonus(parsed)
	b.Confidence = confidenceBonus(base, parsed.Confidence)
	if parsed.HardcodedSubs {
		b.Penalty = -50
	}

	total := base + b.Availability + b.Freshness + b.Enhancement + b.Pack + b.Confidence + b.Penalty
	if total < 0 {
		total = 0
	}
	b.Total = total

	cand.Score = total
	cand.Breakdown = b
	return cand
}

func (s *Scorer) reject(cand Candidate, code, detail string) Candidate {
	cand.Rejected = true
	cand.Reason = code
	s.logger.Debug().Str("title", cand.Release.Title).Str("reason", code).Str("detail", detail).
		Msg("release rejected")
	return cand
}

func (s *Scorer) bannedTag(title string, tags []string) string {
	lowerTitle := strings.ToLower(title)
	for _, banned := range s.profile.Banned {
		lowerBanned := strings.ToLower(banned)
		for _, tag := range tags {
			if strings.EqualFold(tag, banned) {
				return banned
			}
		}
		if containsWord(lowerTitle, lowerBanned) {
			return banned
		}
	}
	return ""
}

func (s *Scorer) checkSize(size int64, parsed *release.ParsedRelease, scoreCtx ScoreContext) string {
	if size <= 0 {
		return ""
	}
	mediaType := scoreCtx.MediaType
	if mediaType == "" {
		mediaType = inferMediaType(parsed)
	}

	// Packs are bounded per episode. Season bounds fall back to the
	// episode bounds when the profile has none for seasons.
	bounds, ok := s.profile.SizeBounds[mediaType]
	if !ok && mediaType == MediaTypeSeason {
		bounds, ok = s.profile.SizeBounds[MediaTypeEpisode]
	}
	if !ok {
		return ""
	}

	minBytes, maxBytes := bounds.MinBytes, bounds.MaxBytes
	if mediaType == MediaTypeSeason && scoreCtx.ExpectedEpisodes > 0 {
		n := int64(scoreCtx.ExpectedEpisodes)
		minBytes *= n
		maxBytes *= n
	}

	if minBytes > 0 && size < minBytes {
		return fmt.Sprintf("size %d below minimum %d", size, minBytes)
	}
	if maxBytes > 0 && size > maxBytes {
		return fmt.Sprintf("size %d above maximum %d", size, maxBytes)
	}
	return ""
}

// enhancementBonus is a flat +20 for PROPER/REPACK, skipped when the
// profile already weights those tags in the base score.
func (s *Scorer) enhancementBonus(parsed *release.ParsedRelease) int {
	if !parsed.Proper && !parsed.Repack {
		return 0
	}
	if s.profile.CreditsProperRepack() {
		return 0
	}
	return 20
}

func (s *Scorer) packBonus(parsed *release.ParsedRelease) int {
	if !parsed.IsSeasonPack {
		return 0
	}
	if parsed.IsCompleteSeries {
		return s.profile.Pack.CompleteSeries
	}
	bonus := s.profile.Pack.SeasonPack
	if start, end, ok := parsed.SeasonRange(); ok && end > start {
		bonus += (end - start) * s.profile.Pack.PerExtraSeason
	}
	return bonus
}

// availabilityBonus rewards seeder health on a log scale, saturating
// at 1000 seeders. Capped at 5% of the base score, at most 50.
func availabilityBonus(base int, info types.ReleaseInfo) int {
	if info.Protocol != types.ProtocolTorrent || info.Seeders <= 0 {
		return 0
	}
	health := math.Log10(float64(info.Seeders)+1) / 3
	if health > 1 {
		health = 1
	}
	bonus := int(math.Round(float64(base) * 0.05 * health))
	if bonus > 50 {
		bonus = 50
	}
	return bonus
}

// freshnessBonus rewards recent releases in two tiers: under a day and
// under a week. Unknown publish dates get nothing.
func freshnessBonus(base int, age time.Duration) int {
	if age < 0 {
		return 0
	}
	switch {
	case age < 24*time.Hour:
		bonus := int(math.Round(float64(base) * 0.03))
		if bonus > 30 {
			bonus = 30
		}
		return bonus
	case age < 7*24*time.Hour:
		bonus := int(math.Round(float64(base) * 0.015))
		if bonus > 15 {
			bonus = 15
		}
		return bonus
	}
	return 0
}

// confidenceBonus scales with how confidently the title parsed.
func confidenceBonus(base int, confidence float64) int {
	if confidence <= 0 {
		return 0
	}
	bonus := int(math.Round(float64(base) * 0.03 * confidence))
	if bonus > 30 {
		bonus = 30
	}
	return bonus
}

// formatTags lists the profile-weightable tags a parsed release carries.
func formatTags(parsed *release.ParsedRelease) []string {
	var tags []string
	if parsed.Resolution > 0 {
		tags = append(tags, fmt.Sprintf("%dp", parsed.Resolution))
	}
	if parsed.Source != "" {
		tags = append(tags, parsed.Source)
	}
	if parsed.Codec != "" {
		tags = append(tags, parsed.Codec)
	}
	tags = append(tags, parsed.Attributes...)
	if parsed.Proper {
		tags = append(tags, "PROPER")
	}
	if parsed.Repack {
		tags = append(tags, "REPACK")
	}
	return tags
}

func inferMediaType(parsed *release.ParsedRelease) MediaType {
	switch {
	case parsed.IsSeasonPack:
		return MediaTypeSeason
	case parsed.IsTV:
		return MediaTypeEpisode
	default:
		return MediaTypeMovie
	}
}

// containsWord matches needle in haystack at separator boundaries so a
// banned "CAM" does not reject "American".
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || isSeparator(haystack[start-1])
		afterOK := end == len(haystack) || isSeparator(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isSeparator(c byte) bool {
	switch c {
	case '.', ' ', '-', '_', '[', ']', '(', ')':
		return true
	}
	return false
}
