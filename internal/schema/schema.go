package schema

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrSchemaViolation is returned when a record is missing a feature, carries an
	// extra one, or holds a value of the wrong kind.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrUnknownCategory is returned when a categorical level was never seen in
	// training and the feature declares no fallback level.
	ErrUnknownCategory = errors.New("unknown category")
)

// Kind is the value kind of a feature.
type Kind string

const (
	KindCategorical Kind = "categorical"
	KindInteger     Kind = "integer"
	KindNumeric     Kind = "numeric"
)

// Feature describes one input column as it was seen at training time.
type Feature struct {
	Name string `json:"name" yaml:"name"`
	Kind Kind   `json:"kind" yaml:"kind"`
	// Levels lists the categorical levels observed in training, in encoder order.
	Levels []string `json:"levels,omitempty" yaml:"levels,omitempty"`
	// Other names the level unseen values fall back to. Empty means reject.
	Other string   `json:"other,omitempty" yaml:"other,omitempty"`
	Min   *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max   *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Schema is the ordered feature list a pipeline was fitted on.
type Schema struct {
	Features []Feature `json:"features" yaml:"features"`
}

// FieldError reports which feature a record failed on.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: feature %q: %s", e.Err, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return e.Err }

func violation(field, format string, args ...any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...), Err: ErrSchemaViolation}
}

// Names returns the feature names in schema order.
func (s Schema) Names() []string {
	out := make([]string, 0, len(s.Features))
	for _, f := range s.Features {
		out = append(out, f.Name)
	}
	return out
}

// Lookup returns the feature with the given name.
func (s Schema) Lookup(name string) (Feature, bool) {
	for _, f := range s.Features {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}

// Validate checks the schema definition itself.
func (s Schema) Validate() error {
	if len(s.Features) == 0 {
		return errors.New("schema has no features")
	}
	seen := make(map[string]struct{}, len(s.Features))
	for i, f := range s.Features {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("feature %d has empty name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("feature %q declared twice", name)
		}
		seen[name] = struct{}{}

		switch f.Kind {
		case KindCategorical:
			if len(f.Levels) == 0 {
				return fmt.Errorf("categorical feature %q has no levels", name)
			}
			if f.Other != "" && !slices.Contains(f.Levels, f.Other) {
				return fmt.Errorf("categorical feature %q: other level %q is not a known level", name, f.Other)
			}
		case KindInteger, KindNumeric:
			if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
				return fmt.Errorf("feature %q: min %v greater than max %v", name, *f.Min, *f.Max)
			}
		default:
			return fmt.Errorf("feature %q has unknown kind %q", name, f.Kind)
		}
	}
	return nil
}

// Check validates rec against the schema and returns the record the pipeline
// should score. Unseen categorical levels are replaced with the feature's
// fallback level when one is declared.
func (s Schema) Check(rec Record) (Record, error) {
	out := make(Record, len(s.Features))
	for _, f := range s.Features {
		v, ok := rec[f.Name]
		if !ok {
			return nil, violation(f.Name, "missing")
		}
		nv, err := f.check(v)
		if err != nil {
			return nil, err
		}
		out[f.Name] = nv
	}

	if len(rec) != len(s.Features) {
		var extra []string
		for k := range rec {
			if _, ok := s.Lookup(k); !ok {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		if len(extra) > 0 {
			return nil, violation(extra[0], "not part of the schema")
		}
	}
	return out, nil
}

func (f Feature) check(v Value) (Value, error) {
	switch f.Kind {
	case KindCategorical:
		s, ok := v.Str()
		if !ok {
			return Value{}, violation(f.Name, "expected a categorical string, got %s", v.kindName())
		}
		if slices.Contains(f.Levels, s) {
			return v, nil
		}
		if f.Other != "" {
			return String(f.Other), nil
		}
		return Value{}, &FieldError{Field: f.Name, Reason: fmt.Sprintf("level %q was not seen in training", s), Err: ErrUnknownCategory}

	case KindInteger:
		n, ok := v.Float()
		if !ok {
			return Value{}, violation(f.Name, "expected an integer, got %s", v.kindName())
		}
		if math.IsNaN(n) || math.IsInf(n, 0) || math.Trunc(n) != n {
			return Value{}, violation(f.Name, "expected an integer, got %v", n)
		}
		return v, f.checkRange(n)

	case KindNumeric:
		n, ok := v.Float()
		if !ok {
			return Value{}, violation(f.Name, "expected a number, got %s", v.kindName())
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return Value{}, violation(f.Name, "expected a finite number, got %v", n)
		}
		return v, f.checkRange(n)
	}
	return Value{}, violation(f.Name, "unknown kind %q", f.Kind)
}

func (f Feature) checkRange(n float64) error {
	if f.Min != nil && n < *f.Min {
		return violation(f.Name, "%v below minimum %v", n, *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return violation(f.Name, "%v above maximum %v", n, *f.Max)
	}
	return nil
}

// ParseValue converts raw text (CLI flags, form fields) into a value of the
// feature's kind.
func (f Feature) ParseValue(raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	if f.Kind == KindCategorical {
		return String(raw), nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Value{}, violation(f.Name, "cannot parse %q as a number", raw)
	}
	return Number(n), nil
}
