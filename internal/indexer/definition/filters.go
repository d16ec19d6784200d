package definition

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// FilterFunc transforms a string value.
type FilterFunc func(value string, args []string) (string, error)

// filterRegistry holds all available filter functions. Filters are
// declared per index in its definition file, not hardcoded per site.
var filterRegistry = map[string]FilterFunc{
	"replace":    filterReplace,
	"re_replace": filterReReplace,
	"split":      filterSplit,
	"trim":       filterTrim,
	"prepend":    filterPrepend,
	"append":     filterAppend,
	"tolower":    filterToLower,
	"toupper":    filterToUpper,

	"dateparse": filterDateParse,
	"timeago":   filterTimeAgo,
	"fuzzytime": filterFuzzyTime,

	"urldecode":   filterURLDecode,
	"urlencode":   filterURLEncode,
	"querystring": filterQueryString,

	"htmldecode": filterHTMLDecode,
	"striptags":  filterStripTags,

	"regexp":   filterRegexp,
	"validate": filterValidate,
	"size":     filterSize,

	"diacritics": filterDiacritics,
	"normalize":  filterNormalize,
}

// ApplyFilters applies a sequence of filters to a value.
func ApplyFilters(value string, filterList []Filter) (string, error) {
	return ApplyFiltersWithContext(value, filterList, nil, nil)
}

// ApplyFiltersWithContext applies filters, evaluating template
// expressions in filter arguments when an engine is supplied.
func ApplyFiltersWithContext(value string, filterList []Filter, engine *TemplateEngine, ctx *TemplateContext) (string, error) {
	result := value
	for _, f := range filterList {
		args := normalizeFilterArgs(f.Args)

		if engine != nil && ctx != nil {
			for i, arg := range args {
				if strings.Contains(arg, "{{") {
					evaluated, err := engine.Evaluate(arg, ctx)
					if err == nil {
						args[i] = evaluated
					}
				}
			}
		}

		fn, ok := filterRegistry[f.Name]
		if !ok {
			// Unknown filter, skip.
			continue
		}
		var err error
		result, err = fn(result, args)
		if err != nil {
			return "", fmt.Errorf("filter %s failed: %w", f.Name, err)
		}
	}
	return result, nil
}

// normalizeFilterArgs converts filter args to []string.
func normalizeFilterArgs(args interface{}) []string {
	if args == nil {
		return nil
	}
	switch v := args.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			result[i] = fmt.Sprintf("%v", item)
		}
		return result
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}

func filterReplace(value string, args []string) (string, error) {
	if len(args) < 2 {
		return value, nil
	}
	return strings.ReplaceAll(value, args[0], args[1]), nil
}

func filterReReplace(value string, args []string) (string, error) {
	if len(args) < 2 {
		return value, nil
	}
	re, err := regexp.Compile(args[0])
	if err != nil {
		return value, nil // skip invalid regex
	}
	return re.ReplaceAllString(value, args[1]), nil
}

func filterSplit(value string, args []string) (string, error) {
	if len(args) < 2 {
		return value, nil
	}
	sep := args[0]
	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return value, nil
	}
	parts := strings.Split(value, sep)
	if idx < 0 {
		idx = len(parts) + idx
	}
	if idx >= 0 && idx < len(parts) {
		return parts[idx], nil
	}
	return "", nil
}

func filterTrim(value string, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Trim(value, args[0]), nil
	}
	return strings.TrimSpace(value), nil
}

func filterPrepend(value string, args []string) (string, error) {
	if len(args) < 1 {
		return value, nil
	}
	return args[0] + value, nil
}

func filterAppend(value string, args []string) (string, error) {
	if len(args) < 1 {
		return value, nil
	}
	return value + args[0], nil
}

func filterToLower(value string, _ []string) (string, error) {
	return strings.ToLower(value), nil
}

func filterToUpper(value string, _ []string) (string, error) {
	return strings.ToUpper(value), nil
}

var commonDateFormats = []string{
	time.RFC3339,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 02 2006",
	"Jan 2 2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

func filterDateParse(value string, args []string) (string, error) {
	if len(args) < 1 {
		return value, nil
	}

	layout := convertDateFormat(args[0])
	t, err := time.Parse(layout, value)
	if err != nil {
		for _, f := range commonDateFormats {
			if t, err = time.Parse(f, value); err == nil {
				break
			}
		}
		if err != nil {
			return value, nil
		}
	}
	return t.Format(time.RFC3339), nil
}

// convertDateFormat converts yyyy-MM-dd style format strings to a Go layout.
func convertDateFormat(format string) string {
	replacements := []struct{ from, to string }{
		{"yyyy", "2006"},
		{"YYYY", "2006"},
		{"yy", "06"},
		{"MM", "01"},
		{"M", "1"},
		{"dd", "02"},
		{"d", "2"},
		{"HH", "15"},
		{"hh", "03"},
		{"mm", "04"},
		{"ss", "05"},
	}
	result := format
	for _, r := range replacements {
		result = strings.ReplaceAll(result, r.from, r.to)
	}
	return result
}

var timeAgoPattern = regexp.MustCompile(`(\d+)\s*(second|minute|hour|day|week|month|year)s?\s*ago`)

func filterTimeAgo(value string, _ []string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	now := time.Now()

	if value == "today" {
		return now.Format(time.RFC3339), nil
	}
	if value == "yesterday" {
		return now.AddDate(0, 0, -1).Format(time.RFC3339), nil
	}

	matches := timeAgoPattern.FindStringSubmatch(value)
	if len(matches) < 3 {
		return value, nil
	}

	num, _ := strconv.Atoi(matches[1])

	var d time.Duration
	switch matches[2] {
	case "second":
		d = time.Duration(num) * time.Second
	case "minute":
		d = time.Duration(num) * time.Minute
	case "hour":
		d = time.Duration(num) * time.Hour
	case "day":
		d = time.Duration(num) * 24 * time.Hour
	case "week":
		d = time.Duration(num) * 7 * 24 * time.Hour
	case "month":
		return now.AddDate(0, -num, 0).Format(time.RFC3339), nil
	case "year":
		return now.AddDate(-num, 0, 0).Format(time.RFC3339), nil
	}

	return now.Add(-d).Format(time.RFC3339), nil
}

func filterFuzzyTime(value string, args []string) (string, error) {
	result, _ := filterTimeAgo(value, args)
	if result != value {
		return result, nil
	}
	return filterDateParse(value, []string{"2006-01-02 15:04:05"})
}

func filterURLDecode(value string, _ []string) (string, error) {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return value, nil
	}
	return decoded, nil
}

func filterURLEncode(value string, _ []string) (string, error) {
	return url.QueryEscape(value), nil
}

func filterQueryString(value string, args []string) (string, error) {
	if len(args) < 1 {
		return value, nil
	}
	paramName := args[0]

	u, err := url.Parse(value)
	if err == nil && u.RawQuery != "" {
		return u.Query().Get(paramName), nil
	}

	values, err := url.ParseQuery(value)
	if err == nil {
		return values.Get(paramName), nil
	}

	return "", nil
}

func filterHTMLDecode(value string, _ []string) (string, error) {
	return html.UnescapeString(value), nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func filterStripTags(value string, _ []string) (string, error) {
	return tagPattern.ReplaceAllString(value, ""), nil
}

func filterRegexp(value string, args []string) (string, error) {
	if len(args) < 1 {
		return value, nil
	}
	re, err := regexp.Compile(args[0])
	if err != nil {
		return "", nil
	}
	matches := re.FindStringSubmatch(value)
	if len(matches) < 2 {
		return "", nil
	}
	return matches[1], nil
}

func filterValidate(value string, args []string) (string, error) {
	if len(args) < 1 {
		return value, nil
	}
	for _, allowed := range strings.Split(args[0], "|") {
		if value == allowed {
			return value, nil
		}
	}
	return "", nil
}

var sizePattern = regexp.MustCompile(`([\d.]+)\s*([KMGTPE]?i?B?)`)

// filterSize converts human-readable sizes ("1.5 GB") to bytes.
func filterSize(value string, _ []string) (string, error) {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, ",", "")

	matches := sizePattern.FindStringSubmatch(strings.ToUpper(value))
	if len(matches) < 2 {
		return "0", nil
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return "0", nil
	}

	var multiplier float64 = 1
	if len(matches) >= 3 {
		switch {
		case strings.HasPrefix(matches[2], "K"):
			multiplier = 1 << 10
		case strings.HasPrefix(matches[2], "M"):
			multiplier = 1 << 20
		case strings.HasPrefix(matches[2], "G"):
			multiplier = 1 << 30
		case strings.HasPrefix(matches[2], "T"):
			multiplier = 1 << 40
		case strings.HasPrefix(matches[2], "P"):
			multiplier = 1 << 50
		}
	}

	return strconv.FormatInt(int64(num*multiplier), 10), nil
}

func filterDiacritics(value string, _ []string) (string, error) {
	var result strings.Builder
	for _, r := range value {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		result.WriteRune(r)
	}
	return result.String(), nil
}

var whitespacePattern = regexp.MustCompile(`\s+`)

func filterNormalize(value string, _ []string) (string, error) {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " ")), nil
}

// ParseSize exposes the size filter for response parsing.
func ParseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	result, _ := filterSize(s, nil)
	n, _ := strconv.ParseInt(result, 10, 64)
	return n
}

// ParseDate tries the common date formats used by index responses.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, f := range commonDateFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
