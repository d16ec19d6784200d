package definition

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"
)

// TemplateContext provides data available during template evaluation.
type TemplateContext struct {
	Config     map[string]string // user-provided settings
	Query      QueryContext      // search parameters
	Keywords   string            // top-level alias for Query.Keywords
	Categories []string          // translated native category ids
	Result     map[string]string // previously extracted fields
	Today      TimeContext
}

// QueryContext contains search query parameters.
type QueryContext struct {
	Q           string
	Keywords    string
	Year        int
	Season      int
	Ep          int
	Episode     int // alias for Ep
	IMDBID      string
	IMDBIDShort string // without "tt" prefix
	TMDBID      int
	TVDBID      int
	Limit       int
	Offset      int
}

// TimeContext provides date information for templates.
type TimeContext struct {
	Year  int
	Month int
	Day   int
}

// TemplateEngine evaluates template expressions in definition strings.
type TemplateEngine struct {
	funcMap template.FuncMap
}

// NewTemplateEngine creates a template engine with all built-in functions.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		funcMap: make(template.FuncMap),
	}

	e.funcMap["join"] = funcJoin
	e.funcMap["re_replace"] = funcReReplace
	e.funcMap["replace"] = funcReplace
	e.funcMap["split"] = funcSplit
	e.funcMap["trim"] = funcTrim
	e.funcMap["tolower"] = strings.ToLower
	e.funcMap["toupper"] = strings.ToUpper
	e.funcMap["prepend"] = funcPrepend
	e.funcMap["append"] = funcAppend
	e.funcMap["if"] = funcIf
	e.funcMap["default"] = funcDefault
	e.funcMap["pad"] = funcPad

	return e
}

// NewTemplateContext creates a context with the current date populated.
func NewTemplateContext() *TemplateContext {
	now := time.Now()
	return &TemplateContext{
		Config:     make(map[string]string),
		Categories: []string{},
		Result:     make(map[string]string),
		Today: TimeContext{
			Year:  now.Year(),
			Month: int(now.Month()),
			Day:   now.Day(),
		},
	}
}

// Evaluate processes a template string with the given context.
func (e *TemplateEngine) Evaluate(tmplStr string, ctx *TemplateContext) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmplStr = e.preprocessTemplate(tmplStr)

	tmpl, err := template.New("").Funcs(e.funcMap).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("template execute error: %w", err)
	}

	return buf.String(), nil
}

// preprocessTemplate rewrites definition shorthand into Go template syntax.
func (e *TemplateEngine) preprocessTemplate(tmpl string) string {
	tmpl = strings.ReplaceAll(tmpl, "{{ .Keywords }}", "{{ .Query.Keywords }}")
	tmpl = strings.ReplaceAll(tmpl, "{{.Keywords}}", "{{.Query.Keywords}}")

	shortcuts := map[string]string{
		".IMDBID":      ".Query.IMDBID",
		".IMDBIDShort": ".Query.IMDBIDShort",
		".TMDBID":      ".Query.TMDBID",
		".TVDBID":      ".Query.TVDBID",
		".Season":      ".Query.Season",
		".Ep":          ".Query.Ep",
		".Episode":     ".Query.Episode",
		".Year":        ".Query.Year",
	}

	for short, full := range shortcuts {
		tmpl = regexp.MustCompile(`\{\{\s*`+regexp.QuoteMeta(short)+`\s*\}\}`).ReplaceAllString(
			tmpl, "{{ "+full+" }}")
	}

	return tmpl
}

// Template functions

func funcJoin(arr interface{}, sep string) string {
	switch v := arr.(type) {
	case []string:
		return strings.Join(v, sep)
	case []interface{}:
		strs := make([]string, len(v))
		for i, item := range v {
			strs[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(strs, sep)
	default:
		return fmt.Sprintf("%v", arr)
	}
}

func funcReReplace(input, pattern, replacement string) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return input
	}
	return re.ReplaceAllString(input, replacement)
}

func funcReplace(input, old, newVal string) string {
	return strings.ReplaceAll(input, old, newVal)
}

func funcSplit(input, sep string) []string {
	return strings.Split(input, sep)
}

func funcTrim(input string, args ...string) string {
	if len(args) > 0 {
		return strings.Trim(input, args[0])
	}
	return strings.TrimSpace(input)
}

func funcPrepend(input, prefix string) string {
	return prefix + input
}

func funcAppend(input, suffix string) string {
	return input + suffix
}

func funcIf(condition bool, trueVal, falseVal interface{}) interface{} {
	if condition {
		return trueVal
	}
	return falseVal
}

func funcDefault(value, defaultValue interface{}) interface{} {
	if value == nil || value == "" {
		return defaultValue
	}
	return value
}

// funcPad zero-pads an integer, e.g. {{ pad .Query.Season 2 }} -> "01".
func funcPad(value interface{}, width int) string {
	return fmt.Sprintf("%0*v", width, value)
}
