// Package release parses release titles into structured metadata. The
// parser is a pure function of the title; everything downstream
// (scoring, pack detection, metadata matching) consumes its output.
package release

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedRelease represents a release title parsed into structured data.
type ParsedRelease struct {
	Title            string   `json:"title"`
	Year             int      `json:"year,omitempty"`
	Season           int      `json:"season,omitempty"`     // 0 for movies or complete series
	EndSeason        int      `json:"endSeason,omitempty"`  // for multi-season packs (S01-S04)
	Episode          int      `json:"episode,omitempty"`    // 0 for movies or season packs
	EndEpisode       int      `json:"endEpisode,omitempty"` // for multi-episode files
	IsSeasonPack     bool     `json:"isSeasonPack,omitempty"`
	IsCompleteSeries bool     `json:"isCompleteSeries,omitempty"`
	Quality          string   `json:"quality,omitempty"`    // "720p", "1080p", "2160p"
	Resolution       int      `json:"resolution,omitempty"` // 720, 1080, 2160
	Source           string   `json:"source,omitempty"`     // "BluRay", "WEB-DL", "HDTV"
	Codec            string   `json:"codec,omitempty"`      // "x264", "x265", "AV1"
	Attributes       []string `json:"attributes,omitempty"` // HDR, Atmos, REMUX, etc.
	Proper           bool     `json:"proper,omitempty"`
	Repack           bool     `json:"repack,omitempty"`
	HardcodedSubs    bool     `json:"hardcodedSubs,omitempty"`
	IsTV             bool     `json:"isTv"`
	ImdbID           string   `json:"imdbId,omitempty"`
	TmdbID           int      `json:"tmdbId,omitempty"`
	TvdbID           int      `json:"tvdbId,omitempty"`

	// Confidence is 0-1; a malformed title still yields a result with
	// zero confidence rather than an error, since a low-confidence hit
	// is potentially useful.
	Confidence float64 `json:"confidence"`
}

var (
	// TV patterns: Show.S01E02 or Show.1x02
	tvPatternSE = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss](\d{1,2})[Ee](\d{1,3})(?:[\-Ee](\d{1,3}))?[\.\s_-]*(.*)$`)
	tvPatternX  = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+(\d{1,2})[xX](\d{1,3})[\.\s_-]*(.*)$`)

	// TV multi-season range: Show.S01-04 or Show.S01-S04
	tvPatternSeasonRange = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss](\d{1,2})-[Ss]?(\d{1,2})[\.\s_-]+(.*)$`)

	// TV season pack: Show.S01 (no episode number)
	tvPatternSeasonPack = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss](\d{1,2})(?:[\.\s_-]|$)(.*)$`)

	// TV season pack, spelled out: Show.Season.1
	tvPatternSeasonSpelled = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss]eason[\.\s_-]+(\d{1,2})(?:[\.\s_-]|$)(.*)$`)

	// TV complete series: Show.COMPLETE or Show.Complete.Series
	tvPatternComplete = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+(?:complete[\.\s_-]*(?:series)?|the[\.\s_-]+complete[\.\s_-]+series)[\.\s_-]+(.*)$`)

	// Movie patterns: Title.Year or Title (Year)
	moviePatternDot    = regexp.MustCompile(`^(.+?)[\.\s_-]+(\d{4})[\.\s_-]+(.*)$`)
	moviePatternParen  = regexp.MustCompile(`^(.+?)\s*\((\d{4})\)\s*(.*)$`)
	moviePatternSimple = regexp.MustCompile(`^(.+?)[\.\s_-]+(\d{4})$`)

	qualityPatterns = []struct {
		name       string
		resolution int
		re         *regexp.Regexp
	}{
		{"2160p", 2160, regexp.MustCompile(`(?i)(2160p|4k|uhd)`)},
		{"1080p", 1080, regexp.MustCompile(`(?i)1080p`)},
		{"720p", 720, regexp.MustCompile(`(?i)720p`)},
		{"480p", 480, regexp.MustCompile(`(?i)(480p|sd)`)},
	}

	sourcePatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"Remux", regexp.MustCompile(`(?i)remux`)},
		{"BluRay", regexp.MustCompile(`(?i)(blu-?ray|bdrip|brrip|bdremux)`)},
		{"WEB-DL", regexp.MustCompile(`(?i)(web-?dl|webdl)`)},
		{"WEBRip", regexp.MustCompile(`(?i)webrip`)},
		{"HDTV", regexp.MustCompile(`(?i)hdtv`)},
		{"DVDRip", regexp.MustCompile(`(?i)(dvdrip|dvd-?r)`)},
		{"SDTV", regexp.MustCompile(`(?i)(sdtv|pdtv|dsr)`)},
		{"CAM", regexp.MustCompile(`(?i)\b(cam|hdcam|ts|telesync)\b`)},
	}

	codecPatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"x265", regexp.MustCompile(`(?i)(x265|h\.?265|hevc)`)},
		{"x264", regexp.MustCompile(`(?i)(x264|h\.?264|avc)`)},
		{"AV1", regexp.MustCompile(`(?i)\bav1\b`)},
		{"VP9", regexp.MustCompile(`(?i)vp9`)},
		{"XviD", regexp.MustCompile(`(?i)xvid`)},
	}

	// HDR patterns, most specific first.
	hdrPatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"DV", regexp.MustCompile(`(?i)(dolby[\.\s]?vision|dovi|[\.\s]dv[\.\s])`)},
		{"HDR10+", regexp.MustCompile(`(?i)hdr10\+`)},
		{"HDR10", regexp.MustCompile(`(?i)hdr10`)},
		{"HDR", regexp.MustCompile(`(?i)[\.\s\-]hdr[\.\s\-]`)},
		{"HLG", regexp.MustCompile(`(?i)hlg`)},
	}

	// Audio patterns, most specific first.
	audioPatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"Atmos", regexp.MustCompile(`(?i)atmos`)},
		{"DTS-X", regexp.MustCompile(`(?i)dts[\.\-]?x`)},
		{"DTS-HD", regexp.MustCompile(`(?i)dts[\.\-]?hd([\.\-]?ma)?`)},
		{"TrueHD", regexp.MustCompile(`(?i)truehd`)},
		{"DTS", regexp.MustCompile(`(?i)[\.\s\-]dts[\.\s\-]`)},
		{"DD+", regexp.MustCompile(`(?i)(ddp|dd\+|e[\.\-]?ac[\.\-]?3)`)},
		{"AAC", regexp.MustCompile(`(?i)[\.\s\-]aac[\.\s\-]`)},
		{"FLAC", regexp.MustCompile(`(?i)[\.\s\-]flac[\.\s\-]`)},
	}

	properPattern = regexp.MustCompile(`(?i)\bproper\b`)
	repackPattern = regexp.MustCompile(`(?i)\b(repack|rerip)\b`)
	hcSubsPattern = regexp.MustCompile(`(?i)\b(hc|korsub|hardsub(?:s|bed)?)\b`)

	imdbIDPattern = regexp.MustCompile(`(?i)\b(tt\d{7,8})\b`)
	tmdbIDPattern = regexp.MustCompile(`(?i)\btmdb(?:id)?[\s\-:=]*(\d+)\b`)
	tvdbIDPattern = regexp.MustCompile(`(?i)\btvdb(?:id)?[\s\-:=]*(\d+)\b`)

	cleanupPattern = regexp.MustCompile(`[\.\s_-]+`)
)

// Parse parses a release title into structured data. It never fails: a
// title no pattern matches falls back to a zero-confidence result.
func Parse(title string) *ParsedRelease {
	name := strings.TrimSpace(title)
	parsed := &ParsedRelease{}

	parseFlags(name, parsed)
	parseEmbeddedIDs(name, parsed)

	switch {
	case matchEpisode(name, parsed):
		parsed.Confidence = 0.95
	case matchSeasonRange(name, parsed):
		parsed.Confidence = 0.9
	case matchSeasonPack(name, parsed):
		parsed.Confidence = 0.9
	case matchCompleteSeries(name, parsed):
		parsed.Confidence = 0.85
	case matchMovie(name, parsed):
		parsed.Confidence = 0.8
	default:
		parsed.Title = cleanTitle(name)
		parseQualityInfo(name, parsed)
		parsed.Confidence = 0
		return parsed
	}

	// Attribute hits nudge confidence up; missing ones leave it alone.
	if parsed.Resolution > 0 {
		parsed.Confidence += 0.03
	}
	if parsed.Source != "" {
		parsed.Confidence += 0.02
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}

	return parsed
}

// SeasonRange returns the span of seasons the release covers. For a
// complete-series pack with no explicit range, ok is false and callers
// should treat it as spanning everything.
func (p *ParsedRelease) SeasonRange() (start, end int, ok bool) {
	if p.Season == 0 {
		return 0, 0, false
	}
	end = p.EndSeason
	if end == 0 {
		end = p.Season
	}
	return p.Season, end, true
}

// CoversSeasons reports whether the parsed span fully covers [start, end].
func (p *ParsedRelease) CoversSeasons(start, end int) bool {
	if p.IsCompleteSeries && p.Season == 0 {
		return true
	}
	s, e, ok := p.SeasonRange()
	if !ok {
		return false
	}
	return s <= start && e >= end
}

func matchEpisode(name string, parsed *ParsedRelease) bool {
	if match := tvPatternSE.FindStringSubmatch(name); match != nil {
		parsed.IsTV = true
		parsed.Title = cleanTitle(match[1])
		parsed.Season, _ = strconv.Atoi(match[2])
		parsed.Episode, _ = strconv.Atoi(match[3])
		if match[4] != "" {
			parsed.EndEpisode, _ = strconv.Atoi(match[4])
		}
		parseQualityInfo(match[5], parsed)
		return true
	}
	if match := tvPatternX.FindStringSubmatch(name); match != nil {
		parsed.IsTV = true
		parsed.Title = cleanTitle(match[1])
		parsed.Season, _ = strconv.Atoi(match[2])
		parsed.Episode, _ = strconv.Atoi(match[3])
		parseQualityInfo(match[4], parsed)
		return true
	}
	return false
}

// matchSeasonRange must run before matchSeasonPack so S01-S04 does not
// match prematurely as S01.
func matchSeasonRange(name string, parsed *ParsedRelease) bool {
	match := tvPatternSeasonRange.FindStringSubmatch(name)
	if match == nil {
		return false
	}
	parsed.IsTV = true
	parsed.IsSeasonPack = true
	parsed.Title = cleanTitle(match[1])
	parsed.Season, _ = strconv.Atoi(match[2])
	parsed.EndSeason, _ = strconv.Atoi(match[3])
	if parsed.EndSeason < parsed.Season {
		parsed.Season, parsed.EndSeason = parsed.EndSeason, parsed.Season
	}
	parseQualityInfo(match[4], parsed)
	return true
}

func matchSeasonPack(name string, parsed *ParsedRelease) bool {
	match := tvPatternSeasonPack.FindStringSubmatch(name)
	if match == nil {
		match = tvPatternSeasonSpelled.FindStringSubmatch(name)
	}
	if match == nil {
		return false
	}
	parsed.IsTV = true
	parsed.IsSeasonPack = true
	parsed.Title = cleanTitle(match[1])
	parsed.Season, _ = strconv.Atoi(match[2])
	parseQualityInfo(match[3], parsed)
	return true
}

func matchCompleteSeries(name string, parsed *ParsedRelease) bool {
	match := tvPatternComplete.FindStringSubmatch(name)
	if match == nil {
		return false
	}
	parsed.IsTV = true
	parsed.IsSeasonPack = true
	parsed.IsCompleteSeries = true
	parsed.Title = cleanTitle(match[1])
	parsed.Season = 0
	parseQualityInfo(match[2], parsed)
	return true
}

func matchMovie(name string, parsed *ParsedRelease) bool {
	if match := moviePatternParen.FindStringSubmatch(name); match != nil {
		parsed.Title = cleanTitle(match[1])
		parsed.Year, _ = strconv.Atoi(match[2])
		parseQualityInfo(match[3], parsed)
		return true
	}
	if match := moviePatternDot.FindStringSubmatch(name); match != nil {
		if year, _ := strconv.Atoi(match[2]); year >= 1900 && year <= 2100 {
			parsed.Title = cleanTitle(match[1])
			parsed.Year = year
			parseQualityInfo(match[3], parsed)
			return true
		}
	}
	if match := moviePatternSimple.FindStringSubmatch(name); match != nil {
		if year, _ := strconv.Atoi(match[2]); year >= 1900 && year <= 2100 {
			parsed.Title = cleanTitle(match[1])
			parsed.Year = year
			return true
		}
	}
	return false
}

func parseFlags(name string, parsed *ParsedRelease) {
	parsed.Proper = properPattern.MatchString(name)
	parsed.Repack = repackPattern.MatchString(name)
	parsed.HardcodedSubs = hcSubsPattern.MatchString(name)
}

func parseEmbeddedIDs(name string, parsed *ParsedRelease) {
	if match := imdbIDPattern.FindStringSubmatch(name); match != nil {
		parsed.ImdbID = strings.ToLower(match[1])
	}
	if match := tmdbIDPattern.FindStringSubmatch(name); match != nil {
		parsed.TmdbID, _ = strconv.Atoi(match[1])
	}
	if match := tvdbIDPattern.FindStringSubmatch(name); match != nil {
		parsed.TvdbID, _ = strconv.Atoi(match[1])
	}
}

func cleanTitle(title string) string {
	cleaned := cleanupPattern.ReplaceAllString(title, " ")
	return strings.TrimSpace(cleaned)
}

func parseQualityInfo(text string, parsed *ParsedRelease) {
	for _, q := range qualityPatterns {
		if q.re.MatchString(text) {
			parsed.Quality = q.name
			parsed.Resolution = q.resolution
			break
		}
	}

	for _, s := range sourcePatterns {
		if s.re.MatchString(text) {
			parsed.Source = s.name
			break
		}
	}

	for _, c := range codecPatterns {
		if c.re.MatchString(text) {
			parsed.Codec = c.name
			break
		}
	}

	var attributes []string
	if parsed.Source == "Remux" {
		attributes = append(attributes, "REMUX")
	}
	for _, h := range hdrPatterns {
		if h.re.MatchString(text) {
			attributes = append(attributes, h.name)
			break
		}
	}
	for _, a := range audioPatterns {
		if a.re.MatchString(text) {
			attributes = append(attributes, a.name)
			break
		}
	}
	if len(attributes) > 0 {
		parsed.Attributes = attributes
	}
}

// NormalizeTitle lowercases a title and strips punctuation, for fuzzy
// comparison.
func NormalizeTitle(title string) string {
	lower := strings.ToLower(title)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '.', r == '_', r == '-':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
