// Package request compiles canonical search criteria into concrete HTTP
// request specs using an index's declarative definition.
package request

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/indexer"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/definition"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// Spec is one concrete HTTP request to issue against an index. The
// authenticated requester attaches whatever auth artifact the index
// needs; the compiler never sees credentials.
type Spec struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    url.Values // form body for POST, nil for GET

	// Path is the definition search path this spec was compiled from;
	// the response parser needs it for the declared response type.
	Path *definition.SearchPath

	// TemplateCtx is the evaluation context the spec was built with,
	// reused when response fields carry templates.
	TemplateCtx *definition.TemplateContext
}

// Key returns a dedupe key covering method, URL and body.
func (s *Spec) Key() string {
	if s.Body == nil {
		return s.Method + " " + s.URL
	}
	return s.Method + " " + s.URL + " " + s.Body.Encode()
}

// exclusionMarker inverts a path's category restriction when it
// prefixes the first list entry.
const exclusionMarker = "!"

// rawPassthroughKey marks an input whose value is parsed as k=v&k=v
// and merged verbatim into the query string.
const rawPassthroughKey = "$raw"

// Compiler builds request specs for one index.
type Compiler struct {
	def        *definition.Definition
	translator *indexer.Translator
	engine     *definition.TemplateEngine
	baseURL    string
	settings   map[string]string
	logger     zerolog.Logger
}

// NewCompiler creates a compiler for a definition. Settings are the
// user-configured values for the definition's declared settings.
func NewCompiler(def *definition.Definition, translator *indexer.Translator, settings map[string]string, logger zerolog.Logger) *Compiler {
	return &Compiler{
		def:        def,
		translator: translator,
		engine:     definition.NewTemplateEngine(),
		baseURL:    strings.TrimSuffix(def.BaseURL(), "/"),
		settings:   mergeSettings(def.Settings, settings),
		logger:     logger.With().Str("component", "request").Str("indexer", def.ID).Logger(),
	}
}

// BuildRequests expands every applicable search path into a request
// spec. Identical resulting requests across paths are deduplicated:
// two category-restricted paths may resolve to the same request when
// their categories overlap.
func (c *Compiler) BuildRequests(criteria *types.SearchCriteria) ([]Spec, error) {
	natives := c.translator.MapCanonicalToNative(criteria.Categories)
	tmplCtx := c.buildTemplateContext(criteria, natives)

	var specs []Spec
	seen := make(map[string]bool)

	for i := range c.def.Search.Paths {
		path := &c.def.Search.Paths[i]
		if !pathMatchesCategories(path, natives) {
			continue
		}

		spec, err := c.compilePath(path, tmplCtx)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path.Path, err)
		}

		if key := spec.Key(); !seen[key] {
			seen[key] = true
			specs = append(specs, *spec)
		}
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("no search path matches categories %v", criteria.Categories)
	}

	return specs, nil
}

// buildTemplateContext creates the evaluation context from the criteria.
func (c *Compiler) buildTemplateContext(criteria *types.SearchCriteria, natives []string) *definition.TemplateContext {
	ctx := definition.NewTemplateContext()
	ctx.Config = c.settings
	ctx.Categories = natives

	ctx.Query = definition.QueryContext{
		Q:       criteria.Query,
		Year:    criteria.Year,
		Season:  criteria.Season,
		Ep:      criteria.Episode,
		Episode: criteria.Episode,
		TMDBID:  criteria.TmdbID,
		TVDBID:  criteria.TvdbID,
		Limit:   criteria.Limit,
		Offset:  criteria.Offset,
	}

	if criteria.ImdbID != "" {
		if strings.HasPrefix(criteria.ImdbID, "tt") {
			ctx.Query.IMDBID = criteria.ImdbID
			ctx.Query.IMDBIDShort = strings.TrimPrefix(criteria.ImdbID, "tt")
		} else {
			ctx.Query.IMDBIDShort = criteria.ImdbID
			ctx.Query.IMDBID = "tt" + criteria.ImdbID
		}
	}

	keywords := c.resolveKeywords(criteria, ctx)
	ctx.Query.Keywords = keywords
	ctx.Keywords = keywords

	return ctx
}

// resolveKeywords applies the definition's keyword filters and clears
// free text for identifier-driven searches, which match on IDs alone.
func (c *Compiler) resolveKeywords(criteria *types.SearchCriteria, tmplCtx *definition.TemplateContext) string {
	if criteria.HasIdentifiers() && criteria.Type == types.SearchTypeMovie {
		return ""
	}
	if len(c.def.Search.KeywordsFilters) > 0 {
		filtered, err := definition.ApplyFiltersWithContext(criteria.Query, c.def.Search.KeywordsFilters, c.engine, tmplCtx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to apply keyword filters")
		} else {
			return filtered
		}
	}
	return criteria.Query
}

// pathMatchesCategories checks a path's category restriction against
// the translated native set. A leading "!" on the first entry turns the
// list into an exclusion.
func pathMatchesCategories(path *definition.SearchPath, natives []string) bool {
	if len(path.Categories) == 0 {
		return true
	}
	if len(natives) == 0 {
		return true
	}

	pathCats := path.Categories
	excluded := false
	if pathCats[0] == exclusionMarker {
		excluded = true
		pathCats = pathCats[1:]
	} else if strings.HasPrefix(pathCats[0], exclusionMarker) {
		excluded = true
		pathCats = append([]string{strings.TrimPrefix(pathCats[0], exclusionMarker)}, pathCats[1:]...)
	}

	overlap := false
	for _, native := range natives {
		for _, pathCat := range pathCats {
			if native == pathCat {
				overlap = true
				break
			}
		}
	}

	if excluded {
		return !overlap
	}
	return overlap
}

// compilePath expands one search path into a request spec.
func (c *Compiler) compilePath(path *definition.SearchPath, tmplCtx *definition.TemplateContext) (*Spec, error) {
	target, err := c.resolvePathURL(path, tmplCtx)
	if err != nil {
		return nil, err
	}

	method := "GET"
	if path.Method != "" {
		method = strings.ToUpper(path.Method)
	}

	params, rawQuery, err := c.evaluateInputs(c.combineInputs(path), tmplCtx)
	if err != nil {
		return nil, err
	}

	spec := &Spec{
		Method:      method,
		Headers:     c.evaluateHeaders(tmplCtx),
		Path:        path,
		TemplateCtx: tmplCtx,
	}

	if method == "POST" {
		spec.URL = target.String()
		spec.Body = params
		if rawQuery != "" {
			mergeRawQuery(spec.Body, rawQuery)
		}
		return spec, nil
	}

	q := target.Query()
	for key, vals := range params {
		for _, v := range vals {
			q.Set(key, v)
		}
	}
	target.RawQuery = q.Encode()
	if rawQuery != "" {
		if target.RawQuery != "" {
			target.RawQuery += "&"
		}
		target.RawQuery += rawQuery
	}
	spec.URL = target.String()
	return spec, nil
}

// resolvePathURL evaluates the path template and resolves it against
// the configured base URL. Absolute URLs pass through unchanged.
func (c *Compiler) resolvePathURL(path *definition.SearchPath, tmplCtx *definition.TemplateContext) (*url.URL, error) {
	pathStr, err := c.engine.Evaluate(path.Path, tmplCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate path template: %w", err)
	}

	if strings.HasPrefix(pathStr, "http://") || strings.HasPrefix(pathStr, "https://") {
		return url.Parse(pathStr)
	}

	pathStr = strings.TrimPrefix(pathStr, "/")
	return url.Parse(c.baseURL + "/" + pathStr)
}

// combineInputs merges path-local inputs over the block's global
// inputs; path-local wins on key collision. A path may opt out of
// inheritance entirely.
func (c *Compiler) combineInputs(path *definition.SearchPath) map[string]string {
	inherit := path.InheritInputs == nil || *path.InheritInputs

	all := make(map[string]string)
	if inherit {
		for k, v := range c.def.Search.Inputs {
			all[k] = v
		}
	}
	for k, v := range path.Inputs {
		all[k] = v
	}
	return all
}

// evaluateInputs expands every input template. A parameter whose
// expansion is empty or "0" is dropped unless the definition allows
// empty inputs; the raw-passthrough key is returned separately.
func (c *Compiler) evaluateInputs(inputs map[string]string, tmplCtx *definition.TemplateContext) (url.Values, string, error) {
	params := url.Values{}
	var rawQuery string

	for key, tmpl := range inputs {
		val, err := c.engine.Evaluate(tmpl, tmplCtx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to evaluate input %q: %w", key, err)
		}
		if key == rawPassthroughKey {
			rawQuery = strings.Trim(val, "&")
			continue
		}
		if (val == "" || val == "0") && !c.def.Search.AllowEmptyInputs {
			continue
		}
		params.Set(key, val)
	}

	return params, rawQuery, nil
}

func (c *Compiler) evaluateHeaders(tmplCtx *definition.TemplateContext) map[string]string {
	if len(c.def.Search.Headers) == 0 {
		return nil
	}
	headers := make(map[string]string, len(c.def.Search.Headers))
	for key, val := range c.def.Search.Headers {
		evaluated, err := c.engine.Evaluate(string(val), tmplCtx)
		if err != nil {
			c.logger.Warn().Err(err).Str("header", key).Msg("failed to evaluate header template")
			continue
		}
		headers[key] = evaluated
	}
	return headers
}

// mergeRawQuery parses k=v&k=v pairs and merges them into form values.
func mergeRawQuery(values url.Values, rawQuery string) {
	parsed, err := url.ParseQuery(rawQuery)
	if err != nil {
		return
	}
	for k, vals := range parsed {
		for _, v := range vals {
			values.Add(k, v)
		}
	}
}

// mergeSettings combines user settings with definition defaults.
// Checkbox settings only carry through when explicitly set to true.
func mergeSettings(declared []definition.Setting, settings map[string]string) map[string]string {
	merged := make(map[string]string)
	checkbox := make(map[string]bool)

	for _, s := range declared {
		if s.Type == "checkbox" {
			checkbox[s.Name] = true
			if val, ok := settings[s.Name]; ok && val == "true" {
				merged[s.Name] = "true"
			}
		} else if s.Default != "" {
			merged[s.Name] = s.Default
		}
	}

	for k, v := range settings {
		if !checkbox[k] {
			merged[k] = v
		}
	}

	return merged
}
