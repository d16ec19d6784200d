package response

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keonramses/Cinephage-sub002/internal/indexer"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/definition"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// Parser turns raw index response bodies into release results.
type Parser struct {
	def        *definition.Definition
	translator *indexer.Translator
	engine     *definition.TemplateEngine
	baseURL    string
	logger     zerolog.Logger
}

// NewParser creates a parser for a definition.
func NewParser(def *definition.Definition, translator *indexer.Translator, logger zerolog.Logger) *Parser {
	return &Parser{
		def:        def,
		translator: translator,
		engine:     definition.NewTemplateEngine(),
		baseURL:    strings.TrimSuffix(def.BaseURL(), "/"),
		logger:     logger.With().Str("component", "response").Str("indexer", def.ID).Logger(),
	}
}

// Parse dispatches on the path's declared response type, defaulting to
// HTML. Rows that fail field extraction are skipped, not fatal.
func (p *Parser) Parse(body []byte, path *definition.SearchPath, tmplCtx *definition.TemplateContext) ([]types.ReleaseInfo, error) {
	responseType := "html"
	if path != nil && path.Response != nil && path.Response.Type != "" {
		responseType = strings.ToLower(path.Response.Type)
	}

	if responseType == "json" {
		return p.parseJSON(body, tmplCtx)
	}
	return p.parseHTML(body, tmplCtx)
}

func (p *Parser) parseHTML(body []byte, tmplCtx *definition.TemplateContext) ([]types.ReleaseInfo, error) {
	htmlSel, err := NewHTMLSelector(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if err := p.checkErrors(htmlSel); err != nil {
		return nil, err
	}

	rows := htmlSel.ExtractRows(&p.def.Search.Rows)
	if len(rows) == 0 {
		p.logger.Debug().Msg("no rows found in search results")
		return nil, nil
	}

	var results []types.ReleaseInfo
	for _, row := range rows {
		release, err := p.extractRelease(tmplCtx, func(field *definition.Field, ctx *definition.TemplateContext) (string, error) {
			return ExtractField(row, field, p.engine, ctx)
		})
		if err != nil {
			p.logger.Debug().Err(err).Msg("failed to extract result from row")
			continue
		}
		results = append(results, *release)
	}

	return results, nil
}

func (p *Parser) parseJSON(body []byte, tmplCtx *definition.TemplateContext) ([]types.ReleaseInfo, error) {
	jsonSel, err := NewJSONSelector(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	rowsData, err := jsonSel.SelectArray(p.def.Search.Rows.Selector)
	if err != nil {
		p.logger.Debug().Err(err).Str("path", p.def.Search.Rows.Selector).Msg("failed to select rows")
		return nil, nil
	}

	var results []types.ReleaseInfo
	for i, rowData := range rowsData {
		if i < p.def.Search.Rows.After {
			continue
		}

		row := p.unwrapJSONRow(rowData)
		if row == nil {
			continue
		}

		release, err := p.extractRelease(tmplCtx, func(field *definition.Field, ctx *definition.TemplateContext) (string, error) {
			return ExtractJSONField(row, field, p.engine, ctx)
		})
		if err != nil {
			p.logger.Debug().Err(err).Msg("failed to extract result from JSON row")
			continue
		}
		results = append(results, *release)
	}

	return results, nil
}

// unwrapJSONRow resolves the declared nested attribute per row.
func (p *Parser) unwrapJSONRow(rowData interface{}) interface{} {
	if p.def.Search.Rows.Attribute == "" {
		return rowData
	}
	rowMap, ok := rowData.(map[string]interface{})
	if !ok {
		return rowData
	}
	attrData, ok := rowMap[p.def.Search.Rows.Attribute]
	if !ok {
		return nil
	}
	return attrData
}

func (p *Parser) checkErrors(htmlSel *HTMLSelector) error {
	for _, errSel := range p.def.Search.Error {
		if !htmlSel.Exists(errSel.Selector) {
			continue
		}

		errMsg := "search error"
		if errSel.Message != nil {
			if errSel.Message.Text != "" {
				errMsg = errSel.Message.Text
			} else if errSel.Message.Selector != "" {
				errMsg = htmlSel.FindText(errSel.Message.Selector)
			}
		}
		return fmt.Errorf("%s", errMsg)
	}
	return nil
}

type extractFunc func(*definition.Field, *definition.TemplateContext) (string, error)

// extractRelease runs field extraction in two passes so that fields
// whose text template references earlier results (.Result) see the
// first pass's output.
func (p *Parser) extractRelease(tmplCtx *definition.TemplateContext, extract extractFunc) (*types.ReleaseInfo, error) {
	localCtx := *tmplCtx
	localCtx.Result = make(map[string]string)

	for _, resultRefs := range []bool{false, true} {
		for fieldName := range p.def.Search.Fields {
			fieldDef := p.def.Search.Fields[fieldName]
			hasResultRef := fieldDef.Text != "" && strings.Contains(fieldDef.Text, ".Result")
			if hasResultRef != resultRefs {
				continue
			}
			val, err := extract(&fieldDef, &localCtx)
			if err != nil {
				if !fieldDef.Optional {
					return nil, fmt.Errorf("failed to extract %s: %w", fieldName, err)
				}
				continue
			}
			localCtx.Result[fieldName] = val
		}
	}

	release := &types.ReleaseInfo{
		Protocol:             p.def.GetProtocol(),
		DownloadVolumeFactor: 1,
		UploadVolumeFactor:   1,
	}

	for fieldName, val := range localCtx.Result {
		p.applyField(release, fieldName, val)
	}

	if release.Title == "" {
		return nil, fmt.Errorf("missing title")
	}
	if release.DownloadURL == "" && release.MagnetURL == "" && release.InfoHash == "" && release.StreamDescriptor == "" {
		return nil, fmt.Errorf("missing download reference")
	}

	p.finalize(release)
	return release, nil
}

// applyField maps one extracted field into the release struct.
func (p *Parser) applyField(r *types.ReleaseInfo, fieldName, value string) {
	switch strings.ToLower(fieldName) {
	case "title":
		r.Title = value
	case "download":
		r.DownloadURL = value
	case "details", "comments", "info":
		r.InfoURL = value
	case "size":
		r.Size = definition.ParseSize(value)
	case "date", "publishdate", "publish_date":
		r.PublishDate = definition.ParseDate(value)
	case "seeders":
		r.Seeders = atoiLoose(value)
	case "leechers", "peers":
		r.Leechers = atoiLoose(value)
	case "grabs", "snatched":
		r.Grabs = atoiLoose(value)
	case "category", "cat":
		if canonical, ok := p.translator.CanonicalFor(value); ok {
			r.Categories = append(r.Categories, canonical)
		}
	case "infohash":
		r.InfoHash = value
	case "magnet", "magneturl", "magnet_url":
		r.MagnetURL = value
	case "imdb", "imdbid":
		r.ImdbID = value
	case "tmdb", "tmdbid":
		r.TmdbID = atoiLoose(value)
	case "tvdb", "tvdbid":
		r.TvdbID = atoiLoose(value)
	case "downloadvolumefactor", "freeleech":
		r.DownloadVolumeFactor = atofLoose(value)
	case "uploadvolumefactor":
		r.UploadVolumeFactor = atofLoose(value)
	case "stream", "streamdescriptor":
		r.StreamDescriptor = value
	case "guid":
		r.GUID = value
	}
}

// finalize fills the GUID fallback chain and resolves relative URLs.
func (p *Parser) finalize(r *types.ReleaseInfo) {
	if r.GUID == "" {
		r.GUID = r.DownloadURL
		if r.GUID == "" {
			r.GUID = r.InfoHash
		}
		if r.GUID == "" {
			r.GUID = r.StreamDescriptor
		}
	}
	r.DownloadURL = p.resolveURL(r.DownloadURL)
	r.InfoURL = p.resolveURL(r.InfoURL)
}

func (p *Parser) resolveURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}
	if strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://") || strings.HasPrefix(urlStr, "magnet:") {
		return urlStr
	}
	if strings.HasPrefix(urlStr, "/") {
		return p.baseURL + urlStr
	}
	return p.baseURL + "/" + urlStr
}

func atoiLoose(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	n, _ := strconv.Atoi(s)
	return n
}

func atofLoose(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
