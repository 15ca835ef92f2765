package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ayemaqu/pedrisk/internal/schema"
)

// FormatVersion is the artifact envelope version this package reads and writes.
const FormatVersion = 1

// ErrInvalid is returned when an artifact decodes but does not describe a
// usable pipeline.
var ErrInvalid = errors.New("invalid pipeline artifact")

// ErrRuntimeUnavailable is returned when an ONNX scorer cannot be opened
// because the onnxruntime shared library is missing or fails to initialize.
var ErrRuntimeUnavailable = errors.New("onnxruntime unavailable")

const (
	ScorerLogistic = "logistic"
	ScorerONNX     = "onnx"
)

// Definition is the serialized form of a fitted pipeline: the training schema, the
// class order, the fitted preprocessing and the scorer parameters.
type Definition struct {
	FormatVersion int
	Name          string
	Version       string
	Schema        schema.Schema
	Classes       []string
	Preprocess    Preprocess
	Scorer        ScorerDefinition
	// Calibration holds Platt parameters applied to logistic decision values.
	Calibration *Calibration
}

// ScorerDefinition holds either logistic regression weights or an ONNX graph that maps
// the preprocessed vector to class probabilities.
type ScorerDefinition struct {
	Kind      string
	Coef      [][]float64
	Intercept []float64

	ONNX       []byte
	InputName  string
	OutputName string
}

// Pipeline is a loaded, immutable pipeline artifact.
type Pipeline interface {
	Name() string
	Version() string
	Schema() schema.Schema
	// Classes returns the class labels in the order PredictProba emits them.
	Classes() []string
	// PredictProba scores a batch of records already checked against Schema.
	PredictProba(records []schema.Record) ([][]float64, error)
	Close() error
}

type scorer interface {
	// score returns decision values for logistic scorers and probabilities for
	// scorers that report probabilities().
	score(x []float64) ([]float64, error)
	probabilities() bool
	close() error
}

type handle struct {
	name        string
	version     string
	schema      schema.Schema
	classes     []string
	pre         Preprocess
	scorer      scorer
	calibration *Calibration
}

// Open binds a decoded definition to a scorer. runtimeDir is searched for the
// onnxruntime shared library when the scorer is an ONNX graph.
func Open(definition *Definition, runtimeDir string) (Pipeline, error) {
	if err := definition.Validate(); err != nil {
		return nil, err
	}

	var sc scorer
	switch definition.Scorer.Kind {
	case ScorerLogistic:
		sc = &logistic{coef: definition.Scorer.Coef, intercept: definition.Scorer.Intercept}
	case ScorerONNX:
		o, err := newONNXScorer(definition.Scorer, definition.Preprocess.Width(), len(definition.Classes), runtimeDir)
		if err != nil {
			return nil, fmt.Errorf("open onnx scorer: %w", err)
		}
		sc = o
	}

	return &handle{
		name:        definition.Name,
		version:     definition.Version,
		schema:      definition.Schema,
		classes:     append([]string(nil), definition.Classes...),
		pre:         definition.Preprocess,
		scorer:      sc,
		calibration: definition.Calibration,
	}, nil
}

// Validate checks that the definition is internally consistent: the preprocessor
// covers exactly the schema, and the scorer shape matches classes and width.
func (s *Definition) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: definition is nil", ErrInvalid)
	}
	if s.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: format version %d, want %d", ErrInvalid, s.FormatVersion, FormatVersion)
	}
	if err := s.Schema.Validate(); err != nil {
		return fmt.Errorf("%w: schema: %v", ErrInvalid, err)
	}
	if len(s.Classes) < 2 {
		return fmt.Errorf("%w: need at least two classes, got %d", ErrInvalid, len(s.Classes))
	}
	seen := make(map[string]struct{}, len(s.Classes))
	for _, c := range s.Classes {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: empty class label", ErrInvalid)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: duplicate class label %q", ErrInvalid, c)
		}
		seen[c] = struct{}{}
	}
	if err := s.Preprocess.validate(s.Schema); err != nil {
		return fmt.Errorf("%w: preprocess: %v", ErrInvalid, err)
	}

	width := s.Preprocess.Width()
	switch s.Scorer.Kind {
	case ScorerLogistic:
		rows := len(s.Classes)
		if rows == 2 {
			rows = 1
		}
		if len(s.Scorer.Coef) != rows || len(s.Scorer.Intercept) != rows {
			return fmt.Errorf("%w: logistic scorer needs %d coefficient rows for %d classes, got %d/%d",
				ErrInvalid, rows, len(s.Classes), len(s.Scorer.Coef), len(s.Scorer.Intercept))
		}
		for i, row := range s.Scorer.Coef {
			if len(row) != width {
				return fmt.Errorf("%w: coefficient row %d has width %d, want %d", ErrInvalid, i, len(row), width)
			}
		}
		if c := s.Calibration; c != nil {
			if len(c.A) != rows || len(c.B) != rows {
				return fmt.Errorf("%w: calibration needs %d parameter pairs, got %d/%d", ErrInvalid, rows, len(c.A), len(c.B))
			}
		}
	case ScorerONNX:
		if len(s.Scorer.ONNX) == 0 {
			return fmt.Errorf("%w: onnx scorer has no graph", ErrInvalid)
		}
		if s.Calibration != nil {
			return fmt.Errorf("%w: onnx graphs carry their own calibration", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown scorer kind %q", ErrInvalid, s.Scorer.Kind)
	}
	return nil
}

func (h *handle) Name() string          { return h.name }
func (h *handle) Version() string       { return h.version }
func (h *handle) Schema() schema.Schema { return h.schema }

func (h *handle) Classes() []string {
	return append([]string(nil), h.classes...)
}

func (h *handle) PredictProba(records []schema.Record) ([][]float64, error) {
	out := make([][]float64, 0, len(records))
	for i, rec := range records {
		x, err := h.pre.Transform(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		raw, err := h.scorer.score(x)
		if err != nil {
			return nil, fmt.Errorf("record %d: score: %w", i, err)
		}
		var probs []float64
		if h.scorer.probabilities() {
			probs, err = normalize(raw, len(h.classes))
		} else {
			probs, err = h.finalize(raw)
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, probs)
	}
	return out, nil
}

// finalize turns logistic decision values into class probabilities, applying
// Platt calibration when the artifact carries it.
func (h *handle) finalize(decision []float64) ([]float64, error) {
	k := len(h.classes)
	if k == 2 {
		var p1 float64
		if h.calibration != nil {
			p1 = h.calibration.apply(0, decision[0])
		} else {
			p1 = sigmoid(decision[0])
		}
		return []float64{1 - p1, p1}, nil
	}
	if h.calibration == nil {
		return softmax(decision), nil
	}
	q := make([]float64, k)
	for i, f := range decision {
		q[i] = h.calibration.apply(i, f)
	}
	return normalize(q, k)
}

func (h *handle) Close() error {
	if h.scorer == nil {
		return nil
	}
	return h.scorer.close()
}

// normalize rescales non-negative scores to sum to one. An all-zero row
// becomes uniform.
func normalize(p []float64, k int) ([]float64, error) {
	if len(p) != k {
		return nil, fmt.Errorf("scorer returned %d values for %d classes", len(p), k)
	}
	sum := 0.0
	for i, v := range p {
		if math.IsNaN(v) || v < 0 {
			return nil, fmt.Errorf("scorer returned invalid probability %v for class %d", v, i)
		}
		sum += v
	}
	out := make([]float64, k)
	if sum == 0 {
		for i := range out {
			out[i] = 1 / float64(k)
		}
		return out, nil
	}
	for i, v := range p {
		out[i] = v / sum
	}
	return out, nil
}
