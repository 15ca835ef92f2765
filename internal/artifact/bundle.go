package artifact

import (
	"fmt"

	"github.com/ayemaqu/pedrisk/internal/metadata"
	"github.com/ayemaqu/pedrisk/internal/pipeline"
	"github.com/ayemaqu/pedrisk/internal/schema"
)

// Bundle is a pipeline paired with the metadata it was trained alongside.
type Bundle struct {
	Pipeline pipeline.Pipeline
	Metadata *metadata.Metadata
	// Version is set when the bundle came from a versioned artifact root.
	Version string
}

// checkCoupling rejects metadata whose class order differs from the
// pipeline's, or whose ranges name features the pipeline cannot take as
// numbers.
func checkCoupling(p pipeline.Pipeline, m *metadata.Metadata) error {
	classes := p.Classes()
	if len(classes) != len(m.Classes) {
		return fmt.Errorf("%w: pipeline has %d classes %v, metadata has %d %v",
			ErrMetadataMismatch, len(classes), classes, len(m.Classes), m.Classes)
	}
	for i := range classes {
		if classes[i] != m.Classes[i] {
			return fmt.Errorf("%w: class %d is %q in the pipeline but %q in metadata",
				ErrMetadataMismatch, i, classes[i], m.Classes[i])
		}
	}

	s := p.Schema()
	for _, name := range m.FeatureNames() {
		f, ok := s.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: metadata range for %q, which the pipeline does not take", ErrMetadataMismatch, name)
		}
		if f.Kind == schema.KindCategorical {
			return fmt.Errorf("%w: metadata range for categorical feature %q", ErrMetadataMismatch, name)
		}
		r := m.Features[name]
		if f.Min != nil && r.Min < *f.Min {
			return fmt.Errorf("%w: metadata minimum %v for %q is below the pipeline bound %v",
				ErrMetadataMismatch, r.Min, name, *f.Min)
		}
		if f.Max != nil && r.Max > *f.Max {
			return fmt.Errorf("%w: metadata maximum %v for %q is above the pipeline bound %v",
				ErrMetadataMismatch, r.Max, name, *f.Max)
		}
	}
	return nil
}
