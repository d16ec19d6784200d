// Package scoring computes quality scores for releases against named
// profiles and enriches raw results into accept/reject verdicts.
package scoring

import (
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// MediaType selects which size bounds apply to a release.
type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeEpisode MediaType = "episode"
	MediaTypeSeason  MediaType = "season"
)

// SizeBounds limits acceptable release sizes in bytes. For season
// packs the per-item bounds are multiplied by the expected episode
// count. Zero means unbounded.
type SizeBounds struct {
	MinBytes int64 `json:"minBytes,omitempty"`
	MaxBytes int64 `json:"maxBytes,omitempty"`
}

// PackBonus is deliberately flat and profile-tunable, not proportional
// to the base score: packs must stay favored over singles even when the
// quality difference is small.
type PackBonus struct {
	// SeasonPack applies to any single-season pack.
	SeasonPack int `json:"seasonPack"`
	// PerExtraSeason is added for each season beyond the first that a
	// multi-season pack spans.
	PerExtraSeason int `json:"perExtraSeason"`
	// CompleteSeries applies to complete-series packs instead of the
	// season-based bonuses.
	CompleteSeries int `json:"completeSeries"`
}

// Profile is a named scoring policy. Format tags carry signed weights;
// the base score is their clamped sum.
type Profile struct {
	Name string `json:"name"`

	// FormatWeights maps release format tags (resolution, source,
	// codec, HDR flags, PROPER/REPACK) to signed weights.
	FormatWeights map[string]int `json:"formatWeights"`

	// Banned rejects a release outright when any entry matches a
	// format tag or appears in the title, regardless of score.
	Banned []string `json:"banned,omitempty"`

	// SizeBounds per media type; a release outside bounds is rejected,
	// not down-scored.
	SizeBounds map[MediaType]SizeBounds `json:"sizeBounds,omitempty"`

	// AllowedProtocols restricts candidates to a protocol subset.
	// Empty means all protocols are allowed.
	AllowedProtocols []types.Protocol `json:"allowedProtocols,omitempty"`

	// MinSeeders rejects torrents below a seeder floor.
	MinSeeders int `json:"minSeeders,omitempty"`

	Pack PackBonus `json:"pack"`

	// MinScore floors accepted candidates during post-processing.
	MinScore int `json:"minScore,omitempty"`
}

// AllowsProtocol checks the profile's protocol allow-list.
func (p *Profile) AllowsProtocol(protocol types.Protocol) bool {
	if len(p.AllowedProtocols) == 0 {
		return true
	}
	for _, allowed := range p.AllowedProtocols {
		if allowed == protocol {
			return true
		}
	}
	return false
}

// CreditsProperRepack reports whether PROPER/REPACK already carries a
// format weight in this profile; if so the flat enhancement bonus is
// not applied on top.
func (p *Profile) CreditsProperRepack() bool {
	_, proper := p.FormatWeights["PROPER"]
	_, repack := p.FormatWeights["REPACK"]
	return proper || repack
}

// DefaultProfiles returns the built-in profiles, keyed by name.
func DefaultProfiles() map[string]*Profile {
	return map[string]*Profile{
		"any": {
			Name: "any",
			FormatWeights: map[string]int{
				"2160p": 400, "1080p": 350, "720p": 250, "480p": 100,
				"Remux": 150, "BluRay": 120, "WEB-DL": 100, "WEBRip": 70, "HDTV": 50,
				"x265": 60, "x264": 40,
				"HDR10+": 40, "HDR10": 35, "DV": 35, "HDR": 25,
			},
			Pack: PackBonus{SeasonPack: 60, PerExtraSeason: 20, CompleteSeries: 150},
		},
		"hd-1080p": {
			Name: "hd-1080p",
			FormatWeights: map[string]int{
				"1080p": 400, "720p": 150, "2160p": 100,
				"BluRay": 150, "Remux": 120, "WEB-DL": 120, "WEBRip": 80, "HDTV": 40,
				"x265": 60, "x264": 50,
			},
			Banned: []string{"CAM", "SDTV"},
			SizeBounds: map[MediaType]SizeBounds{
				MediaTypeMovie:   {MinBytes: 700 << 20, MaxBytes: 30 << 30},
				MediaTypeEpisode: {MinBytes: 100 << 20, MaxBytes: 8 << 30},
			},
			MinSeeders: 1,
			Pack:       PackBonus{SeasonPack: 60, PerExtraSeason: 20, CompleteSeries: 150},
			MinScore:   200,
		},
		"uhd-2160p": {
			Name: "uhd-2160p",
			FormatWeights: map[string]int{
				"2160p": 450, "1080p": 100,
				"Remux": 200, "BluRay": 150, "WEB-DL": 120,
				"x265": 80, "AV1": 60,
				"HDR10+": 60, "DV": 60, "HDR10": 50, "HDR": 35,
			},
			Banned: []string{"CAM", "SDTV", "480p"},
			SizeBounds: map[MediaType]SizeBounds{
				MediaTypeMovie:   {MinBytes: 4 << 30, MaxBytes: 120 << 30},
				MediaTypeEpisode: {MinBytes: 500 << 20, MaxBytes: 25 << 30},
			},
			MinSeeders: 2,
			Pack:       PackBonus{SeasonPack: 60, PerExtraSeason: 20, CompleteSeries: 150},
			MinScore:   300,
		},
	}
}

// maxBaseScore clamps the base quality score; bonus terms are
// proportional to it, so the clamp also bounds every bonus.
const maxBaseScore = 1000
