package metadata

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidMetadata marks a metadata record that cannot drive a form or a
// prediction.
var ErrInvalidMetadata = errors.New("invalid metadata")

// FieldError names the offending metadata field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidMetadata, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidMetadata }

// Validate checks every range satisfies min <= default <= max, the class list
// is non-empty and unique, and test accuracy, when present, is in [0, 1].
func Validate(m *Metadata) error {
	if m == nil {
		return fmt.Errorf("%w: metadata is nil", ErrInvalidMetadata)
	}

	for _, name := range m.FeatureNames() {
		r := m.Features[name]
		for _, v := range []float64{r.Min, r.Max, r.Default} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &FieldError{Field: "features." + name, Reason: "bounds must be finite"}
			}
		}
		if r.Min > r.Max {
			return &FieldError{Field: "features." + name, Reason: fmt.Sprintf("min %v exceeds max %v", r.Min, r.Max)}
		}
		if r.Default < r.Min || r.Default > r.Max {
			return &FieldError{Field: "features." + name + ".default", Reason: fmt.Sprintf("%v outside [%v, %v]", r.Default, r.Min, r.Max)}
		}
	}

	if len(m.Classes) == 0 {
		return &FieldError{Field: "classes", Reason: "must not be empty"}
	}
	seen := make(map[string]struct{}, len(m.Classes))
	for i, c := range m.Classes {
		if strings.TrimSpace(c) == "" {
			return &FieldError{Field: fmt.Sprintf("classes[%d]", i), Reason: "empty label"}
		}
		if _, dup := seen[c]; dup {
			return &FieldError{Field: fmt.Sprintf("classes[%d]", i), Reason: fmt.Sprintf("duplicate label %q", c)}
		}
		seen[c] = struct{}{}
	}

	if acc := m.TestAccuracy; acc != nil {
		if math.IsNaN(*acc) || *acc < 0 || *acc > 1 {
			return &FieldError{Field: "test_accuracy", Reason: fmt.Sprintf("%v outside [0, 1]", *acc)}
		}
	}
	return nil
}
