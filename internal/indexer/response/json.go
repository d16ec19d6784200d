package response

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/definition"
)

// JSONSelector provides dot-notation path extraction from JSON data.
type JSONSelector struct {
	data interface{}
}

// NewJSONSelector creates a JSON selector from raw JSON bytes.
func NewJSONSelector(jsonBytes []byte) (*JSONSelector, error) {
	var data interface{}
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &JSONSelector{data: data}, nil
}

// NewJSONSelectorFromData creates a JSON selector from parsed data.
func NewJSONSelectorFromData(data interface{}) *JSONSelector {
	return &JSONSelector{data: data}
}

// Select extracts a value using dot notation, e.g. "results[0].name".
func (s *JSONSelector) Select(path string) (interface{}, error) {
	if path == "" || path == "." {
		return s.data, nil
	}
	return selectPath(s.data, path)
}

// SelectString extracts a value and converts it to string.
func (s *JSONSelector) SelectString(path string) (string, error) {
	val, err := s.Select(path)
	if err != nil {
		return "", err
	}
	return jsonToString(val), nil
}

// SelectArray extracts an array value.
func (s *JSONSelector) SelectArray(path string) ([]interface{}, error) {
	val, err := s.Select(path)
	if err != nil {
		return nil, err
	}
	if arr, ok := val.([]interface{}); ok {
		return arr, nil
	}
	return nil, fmt.Errorf("value at path %s is not an array", path)
}

func selectPath(data interface{}, path string) (interface{}, error) {
	if data == nil {
		return nil, fmt.Errorf("nil data")
	}

	current := data
	for _, seg := range parseJSONPath(path) {
		if current == nil {
			return nil, fmt.Errorf("null value at path segment: %s", seg)
		}

		if idx, isIndex := parseArrayIndex(seg); isIndex {
			arr, ok := current.([]interface{})
			if !ok {
				return nil, fmt.Errorf("expected array at %s", seg)
			}
			if idx < 0 {
				idx = len(arr) + idx
			}
			if idx < 0 || idx >= len(arr) {
				return nil, fmt.Errorf("array index out of bounds: %d", idx)
			}
			current = arr[idx]
			continue
		}

		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("cannot access field %s on %T", seg, current)
		}
		val, exists := obj[seg]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", seg)
		}
		current = val
	}

	return current, nil
}

// parseJSONPath splits a dot-notation path into segments, with bracket
// indices becoming their own segments.
func parseJSONPath(path string) []string {
	var segments []string
	var current strings.Builder

	inBracket := false
	for _, r := range path {
		switch r {
		case '.':
			if inBracket {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				segments = append(segments, current.String())
				current.Reset()
			}
		case '[':
			if current.Len() > 0 {
				segments = append(segments, current.String())
				current.Reset()
			}
			inBracket = true
		case ']':
			if inBracket && current.Len() > 0 {
				segments = append(segments, current.String())
				current.Reset()
			}
			inBracket = false
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		segments = append(segments, current.String())
	}

	return segments
}

func parseArrayIndex(seg string) (int, bool) {
	if idx, err := strconv.Atoi(seg); err == nil {
		return idx, true
	}
	return 0, false
}

func jsonToString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ExtractJSONField extracts a value from JSON row data using a Field
// definition.
func ExtractJSONField(data interface{}, field *definition.Field, engine *definition.TemplateEngine, ctx *definition.TemplateContext) (string, error) {
	if field.Text != "" {
		return engine.Evaluate(field.Text, ctx)
	}

	selector := NewJSONSelectorFromData(data)

	value, err := selector.SelectString(field.Selector)
	if err != nil {
		if field.Optional || field.Default != "" {
			return field.Default, nil
		}
		return "", nil
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

func applyCase(value string, cases map[string]string) string {
	if len(cases) == 0 {
		return value
	}
	if mapped, ok := cases[value]; ok {
		return mapped
	}
	if defaultVal, ok := cases["*"]; ok {
		return defaultVal
	}
	return value
}
