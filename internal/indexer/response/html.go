// Package response parses index search responses (HTML or JSON) into
// raw release results using a definition's row and field selectors.
package response

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/definition"
)

// HTMLSelector provides CSS selector-based extraction from HTML documents.
type HTMLSelector struct {
	doc *goquery.Document
}

// NewHTMLSelector creates an HTML selector from raw HTML bytes.
func NewHTMLSelector(html []byte) (*HTMLSelector, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &HTMLSelector{doc: doc}, nil
}

// ExtractRows finds all result rows in the document, skipping the
// declared number of leading rows.
func (s *HTMLSelector) ExtractRows(rowSelector *definition.RowSelector) []*goquery.Selection {
	var rows []*goquery.Selection

	sel := s.doc.Find(rowSelector.Selector)
	if rowSelector.Remove != "" {
		sel.Find(rowSelector.Remove).Remove()
	}

	sel.Each(func(i int, row *goquery.Selection) {
		if i < rowSelector.After {
			return
		}
		rows = append(rows, row)
	})

	return rows
}

// Exists returns true if at least one element matches the selector.
func (s *HTMLSelector) Exists(selector string) bool {
	return s.doc.Find(selector).Length() > 0
}

// FindText returns the text content of the first matching element.
func (s *HTMLSelector) FindText(selector string) string {
	return strings.TrimSpace(s.doc.Find(selector).First().Text())
}

// ExtractField extracts a value from an HTML row based on a Field
// definition.
func ExtractField(row *goquery.Selection, field *definition.Field, engine *definition.TemplateEngine, ctx *definition.TemplateContext) (string, error) {
	if field.Text != "" {
		return engine.Evaluate(field.Text, ctx)
	}

	targetSel := row
	if field.Selector != "" {
		targetSel = row.Find(field.Selector).First()
	}

	if targetSel.Length() == 0 {
		if field.Optional || field.Default != "" {
			return field.Default, nil
		}
		return "", nil
	}

	if field.Remove != "" {
		targetSel = targetSel.Clone()
		targetSel.Find(field.Remove).Remove()
	}

	var value string
	if field.Attribute != "" {
		attr, _ := targetSel.Attr(field.Attribute)
		value = strings.TrimSpace(attr)
	} else {
		value = strings.TrimSpace(targetSel.Text())
	}

	value = applyCase(value, field.Case)

	if len(field.Filters) > 0 {
		filtered, err := definition.ApplyFilters(value, field.Filters)
		if err != nil {
			return "", err
		}
		value = filtered
	}

	if value == "" && field.Default != "" {
		value = field.Default
	}

	return value, nil
}
