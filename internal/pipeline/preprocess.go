package pipeline

import (
	"fmt"
	"slices"

	"github.com/ayemaqu/pedrisk/internal/schema"
)

// Column is the fitted transform for one feature. Categorical columns are
// one-hot encoded over Levels; integer and numeric columns are standardized
// with (x - Mean) / Scale.
type Column struct {
	Feature string
	Kind    schema.Kind
	Levels  []string
	Mean    float64
	Scale   float64
}

// Preprocess is the ordered list of fitted column transforms.
type Preprocess struct {
	Columns []Column
}

// Width is the length of the transformed feature vector.
func (p Preprocess) Width() int {
	n := 0
	for _, c := range p.Columns {
		n += c.width()
	}
	return n
}

func (c Column) width() int {
	if c.Kind == schema.KindCategorical {
		return len(c.Levels)
	}
	return 1
}

// validate requires exactly one column per schema feature, with matching kind
// and an encoding for every training level.
func (p Preprocess) validate(s schema.Schema) error {
	if len(p.Columns) != len(s.Features) {
		return fmt.Errorf("%d columns for %d schema features", len(p.Columns), len(s.Features))
	}
	seen := make(map[string]bool, len(p.Columns))
	for _, c := range p.Columns {
		f, ok := s.Lookup(c.Feature)
		if !ok {
			return fmt.Errorf("column %q is not in the schema", c.Feature)
		}
		if seen[c.Feature] {
			return fmt.Errorf("column %q appears more than once", c.Feature)
		}
		seen[c.Feature] = true
		if f.Kind != c.Kind {
			return fmt.Errorf("column %q is %s but the schema says %s", c.Feature, c.Kind, f.Kind)
		}
		if c.Kind == schema.KindCategorical {
			for _, lvl := range f.Levels {
				if !slices.Contains(c.Levels, lvl) {
					return fmt.Errorf("column %q has no encoding for level %q", c.Feature, lvl)
				}
			}
		}
	}
	return nil
}

// Transform encodes one checked record into the scorer's input vector.
func (p Preprocess) Transform(rec schema.Record) ([]float64, error) {
	x := make([]float64, 0, p.Width())
	for _, c := range p.Columns {
		v, ok := rec[c.Feature]
		if !ok {
			return nil, fmt.Errorf("%w: feature %q missing", schema.ErrSchemaViolation, c.Feature)
		}
		if c.Kind == schema.KindCategorical {
			s, ok := v.Str()
			if !ok {
				return nil, fmt.Errorf("%w: feature %q is not categorical", schema.ErrSchemaViolation, c.Feature)
			}
			idx := slices.Index(c.Levels, s)
			if idx < 0 {
				return nil, fmt.Errorf("%w: feature %q level %q", schema.ErrUnknownCategory, c.Feature, s)
			}
			for i := range c.Levels {
				if i == idx {
					x = append(x, 1)
				} else {
					x = append(x, 0)
				}
			}
			continue
		}

		n, ok := v.Float()
		if !ok {
			return nil, fmt.Errorf("%w: feature %q is not numeric", schema.ErrSchemaViolation, c.Feature)
		}
		scale := c.Scale
		if scale == 0 {
			scale = 1
		}
		x = append(x, (n-c.Mean)/scale)
	}
	return x, nil
}
