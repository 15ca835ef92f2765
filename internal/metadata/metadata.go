// Package metadata reads the sidecar record that ships with a fitted pipeline:
// numeric feature ranges and defaults, the ordered class labels and the
// held-out accuracy.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Range bounds one numeric feature and names the value a form starts at.
type Range struct {
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Default float64 `json:"default" yaml:"default"`
}

// Metadata mirrors metadata.json / metadata.yaml.
type Metadata struct {
	Features     map[string]Range `json:"features" yaml:"features"`
	Classes      []string         `json:"classes" yaml:"classes"`
	TestAccuracy *float64         `json:"test_accuracy,omitempty" yaml:"test_accuracy,omitempty"`
}

// FeatureNames returns the range keys sorted.
func (m *Metadata) FeatureNames() []string {
	names := make([]string, 0, len(m.Features))
	for n := range m.Features {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Format selects the encoding Parse expects.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the format from a file extension. Anything that is not
// .yaml or .yml is read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ReadFile parses and validates the metadata file at path. A missing file is
// returned unwrapped so callers can test os.IsNotExist.
func ReadFile(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, err
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Parse decodes metadata without validating it. Both the canonical layout
// ({"features": {...}, "classes": [...]}) and the flat layout written by the
// training notebook ("bill_length_mm": [min, max], "bill_length_default": d)
// are accepted.
func Parse(data []byte, format Format) (*Metadata, error) {
	var raw map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidMetadata, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidMetadata, err)
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidMetadata)
	}

	if _, ok := raw["features"]; ok {
		return parseCanonical(data, format)
	}
	return parseFlat(raw)
}

func parseCanonical(data []byte, format Format) (*Metadata, error) {
	var m Metadata
	var err error
	if format == FormatYAML {
		err = yaml.Unmarshal(data, &m)
	} else {
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode features: %v", ErrInvalidMetadata, err)
	}
	if m.Features == nil {
		m.Features = map[string]Range{}
	}
	return &m, nil
}

func parseFlat(raw map[string]any) (*Metadata, error) {
	m := &Metadata{Features: map[string]Range{}}

	if v, ok := raw["classes"]; ok {
		classes, err := stringList(v)
		if err != nil {
			return nil, &FieldError{Field: "classes", Reason: err.Error()}
		}
		m.Classes = classes
	}
	if v, ok := raw["test_accuracy"]; ok && v != nil {
		acc, ok := number(v)
		if !ok {
			return nil, &FieldError{Field: "test_accuracy", Reason: fmt.Sprintf("not a number: %v", v)}
		}
		m.TestAccuracy = &acc
	}

	for key, v := range raw {
		list, ok := v.([]any)
		if !ok || key == "classes" {
			continue
		}
		if len(list) != 2 {
			return nil, &FieldError{Field: key, Reason: fmt.Sprintf("range needs [min, max], got %d values", len(list))}
		}
		lo, okLo := number(list[0])
		hi, okHi := number(list[1])
		if !okLo || !okHi {
			return nil, &FieldError{Field: key, Reason: "range bounds must be numbers"}
		}
		def, ok := flatDefault(raw, key)
		if !ok {
			return nil, &FieldError{Field: key + ".default", Reason: "no default value"}
		}
		m.Features[key] = Range{Min: lo, Max: hi, Default: def}
	}
	return m, nil
}

// flatDefault finds the default for a flat range key. The notebook drops the
// unit suffix, so bill_length_mm pairs with bill_length_default.
func flatDefault(raw map[string]any, key string) (float64, bool) {
	candidates := []string{key + "_default"}
	if i := strings.LastIndex(key, "_"); i > 0 {
		candidates = append(candidates, key[:i]+"_default")
	}
	for _, c := range candidates {
		if v, ok := raw[c]; ok {
			return number(v)
		}
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func stringList(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("entry %d is %T, not a string", i, item)
		}
		out = append(out, s)
	}
	return out, nil
}
