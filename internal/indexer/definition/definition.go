// Package definition parses declarative YAML index definitions. A
// definition describes an index's capabilities, category mappings, and
// search request/response templates; new indexes need a new definition
// file, not new code.
package definition

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keonramses/Cinephage-sub002/internal/indexer"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// StringOrArray unmarshals from either a string or an array of strings,
// joining array elements into one string.
type StringOrArray string

// UnmarshalYAML implements custom YAML unmarshaling for StringOrArray.
func (s *StringOrArray) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = StringOrArray(value.Value)
		return nil
	case yaml.SequenceNode:
		var arr []string
		if err := value.Decode(&arr); err != nil {
			return err
		}
		if len(arr) > 0 {
			*s = StringOrArray(strings.Join(arr, ", "))
		}
		return nil
	default:
		return fmt.Errorf("cannot unmarshal %v into StringOrArray", value.Kind)
	}
}

// Definition represents a parsed YAML index definition.
type Definition struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Language     string   `yaml:"language"`
	Type         string   `yaml:"type"`     // public, private, semi-private
	Protocol     string   `yaml:"protocol"` // torrent, usenet, streaming
	Encoding     string   `yaml:"encoding"`
	RequestDelay float64  `yaml:"requestDelay"`
	Links        []string `yaml:"links"`
	LegacyLinks  []string `yaml:"legacylinks"`

	Caps     CapsBlock   `yaml:"caps"`
	Settings []Setting   `yaml:"settings"`
	Search   SearchBlock `yaml:"search"`
}

// CapsBlock describes what search modes and categories the index supports.
type CapsBlock struct {
	CategoryMappings []CategoryMapping   `yaml:"categorymappings"`
	Modes            map[string][]string `yaml:"modes"` // search, tv-search, movie-search -> supported params
	AllowRawSearch   bool                `yaml:"allowrawsearch"`
}

// CategoryMapping maps an index-native category id to a canonical
// category, given either by numeric id or by name ("TV/HD").
type CategoryMapping struct {
	ID      string `yaml:"id"`
	Cat     string `yaml:"cat"`
	Desc    string `yaml:"desc"`
	Default bool   `yaml:"default"`
}

// Setting defines a user-configurable option for the index.
type Setting struct {
	Name    string            `yaml:"name" json:"name"`
	Type    string            `yaml:"type" json:"type"` // text, password, checkbox, select, info
	Label   string            `yaml:"label" json:"label"`
	Default string            `yaml:"default" json:"default,omitempty"`
	Options map[string]string `yaml:"options" json:"options,omitempty"`
}

// SearchBlock defines how to build search requests and parse results.
type SearchBlock struct {
	Paths                []SearchPath             `yaml:"paths"`
	Inputs               map[string]string        `yaml:"inputs"`
	KeywordsFilters      []Filter                 `yaml:"keywordsfilters"`
	PreprocessingFilters []Filter                 `yaml:"preprocessingfilters"`
	Headers              map[string]StringOrArray `yaml:"headers"`
	AllowEmptyInputs     bool                     `yaml:"allowEmptyInputs"`
	Rows                 RowSelector              `yaml:"rows"`
	Fields               map[string]Field         `yaml:"fields"`
	Error                []ErrorSelector          `yaml:"error"`
}

// SearchPath defines one search endpoint. A path may be restricted to a
// native category subset; prefixing the list with "!" inverts the
// restriction into an exclusion. Path-local inputs override the block's
// global inputs on key collision unless InheritInputs is false.
type SearchPath struct {
	Path          string            `yaml:"path"`
	Categories    []string          `yaml:"categories"`
	Inputs        map[string]string `yaml:"inputs"`
	InheritInputs *bool             `yaml:"inheritinputs"`
	Method        string            `yaml:"method"` // GET (default) or POST
	Response      *ResponseConfig   `yaml:"response"`
}

// ResponseConfig specifies the response format for a path.
type ResponseConfig struct {
	Type             string `yaml:"type"` // json, html (default)
	NoResultsMessage string `yaml:"noresultsmessage"`
}

// RowSelector defines how to find result rows in a response.
type RowSelector struct {
	Selector  string `yaml:"selector"`
	Attribute string `yaml:"attribute"` // for JSON: nested object per row
	After     int    `yaml:"after"`     // skip N leading rows
	Remove    string `yaml:"remove"`
}

// Field defines how to extract one value from a result row.
type Field struct {
	Selector  string            `yaml:"selector"`
	Attribute string            `yaml:"attribute"`
	Text      string            `yaml:"text"`
	Remove    string            `yaml:"remove"`
	Optional  bool              `yaml:"optional"`
	Default   string            `yaml:"default"`
	Filters   []Filter          `yaml:"filters"`
	Case      map[string]string `yaml:"case"`
}

// ErrorSelector detects an error page and extracts its message.
type ErrorSelector struct {
	Selector string          `yaml:"selector"`
	Message  *TextOrSelector `yaml:"message"`
}

// TextOrSelector is either static text or a selector.
type TextOrSelector struct {
	Text     string `yaml:"text"`
	Selector string `yaml:"selector"`
}

// Filter transforms extracted values.
type Filter struct {
	Name string      `yaml:"name"`
	Args interface{} `yaml:"args"` // string, []string, or nil
}

// Parse parses a YAML index definition from bytes.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition YAML: %w", err)
	}
	if def.ID == "" {
		return nil, fmt.Errorf("definition missing id")
	}
	if len(def.Search.Paths) == 0 {
		return nil, fmt.Errorf("definition %s has no search paths", def.ID)
	}
	return &def, nil
}

// ParseFile parses a YAML index definition from a file.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	return Parse(data)
}

// BaseURL returns the primary URL for this index.
func (d *Definition) BaseURL() string {
	if len(d.Links) > 0 {
		return d.Links[0]
	}
	return ""
}

// GetProtocol returns the declared protocol, defaulting to torrent.
func (d *Definition) GetProtocol() types.Protocol {
	switch d.Protocol {
	case "usenet":
		return types.ProtocolUsenet
	case "streaming":
		return types.ProtocolStreaming
	default:
		return types.ProtocolTorrent
	}
}

// GetPrivacy returns the privacy level, defaulting to public.
func (d *Definition) GetPrivacy() types.Privacy {
	switch d.Type {
	case "private":
		return types.PrivacyPrivate
	case "semi-private":
		return types.PrivacySemiPrivate
	default:
		return types.PrivacyPublic
	}
}

// modeNames maps definition mode keys to search types.
var modeNames = map[string]types.SearchType{
	"search":       types.SearchTypeBasic,
	"tv-search":    types.SearchTypeTV,
	"movie-search": types.SearchTypeMovie,
}

// Capabilities converts the definition's caps block into the runtime
// capability declaration consumed by the capability matcher.
func (d *Definition) Capabilities() types.Capabilities {
	caps := types.Capabilities{
		Modes:          make(map[types.SearchType][]string),
		AllowRawSearch: d.Caps.AllowRawSearch,
	}

	for mode, params := range d.Caps.Modes {
		searchType, ok := modeNames[mode]
		if !ok {
			continue
		}
		caps.Modes[searchType] = params
	}

	for _, m := range d.Caps.CategoryMappings {
		canonical, ok := resolveCanonical(m.Cat)
		if !ok {
			continue
		}
		caps.Categories = append(caps.Categories, types.NativeCategory{
			ID:          m.ID,
			CanonicalID: canonical,
			Name:        m.Desc,
			Default:     m.Default,
		})
	}

	return caps
}

// resolveCanonical accepts either a numeric canonical id or a canonical
// category name.
func resolveCanonical(cat string) (int, bool) {
	if id, err := strconv.Atoi(cat); err == nil {
		return id, true
	}
	return indexer.CategoryIDByName(cat)
}
