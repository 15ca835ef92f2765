// Package decision maps a class probability distribution onto an outcome.
package decision

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/ayemaqu/pedrisk/internal/inference"
)

var (
	// ErrNoThresholdConfigured is returned when a threshold rule is built
	// without a threshold. There is no implicit 0.5.
	ErrNoThresholdConfigured = errors.New("no threshold configured")
	// ErrInvalidRule is returned for a rule configuration that cannot decide.
	ErrInvalidRule = errors.New("invalid decision rule")
)

// Kind names a rule variant.
type Kind string

const (
	KindThreshold Kind = "threshold"
	KindArgmax    Kind = "argmax"
)

// Labels a threshold rule reports.
const (
	LabelHighRisk = "high risk"
	LabelLowRisk  = "low risk"
)

// Config is the serialized form of a rule.
type Config struct {
	Kind          Kind     `yaml:"kind" json:"kind"`
	PositiveClass string   `yaml:"positive_class,omitempty" json:"positive_class,omitempty"`
	Threshold     *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// Outcome is the decision for one distribution. It is computed per request
// and never stored.
type Outcome struct {
	Rule     Kind   `json:"rule"`
	Label    string `json:"label"`
	Positive bool   `json:"positive"`
	// Class is the class whose probability drove the decision.
	Class       string  `json:"class"`
	Probability float64 `json:"probability"`
	// Threshold is set for threshold rules so callers can always show it.
	Threshold *float64 `json:"threshold,omitempty"`
}

// Rule decides on a distribution. Implementations are pure.
type Rule interface {
	Kind() Kind
	// Check reports whether the rule can decide over classes.
	Check(classes []string) error
	Decide(d inference.Distribution) (Outcome, error)
}

// New builds the rule cfg describes.
func New(cfg Config) (Rule, error) {
	switch cfg.Kind {
	case KindThreshold:
		r, err := NewThreshold(cfg.PositiveClass, cfg.Threshold)
		if err != nil {
			return nil, err
		}
		return r, nil
	case KindArgmax:
		return Argmax{}, nil
	case "":
		return nil, fmt.Errorf("%w: rule kind is empty", ErrInvalidRule)
	default:
		return nil, fmt.Errorf("%w: unknown rule kind %q", ErrInvalidRule, cfg.Kind)
	}
}

// Threshold flags the positive class when its probability is strictly
// greater than the threshold.
type Threshold struct {
	positive  string
	threshold float64
}

// NewThreshold builds a threshold rule. A nil threshold is an error.
func NewThreshold(positiveClass string, threshold *float64) (*Threshold, error) {
	if threshold == nil {
		return nil, ErrNoThresholdConfigured
	}
	t := *threshold
	if math.IsNaN(t) || t < 0 || t > 1 {
		return nil, fmt.Errorf("%w: threshold %v outside [0, 1]", ErrInvalidRule, t)
	}
	if strings.TrimSpace(positiveClass) == "" {
		return nil, fmt.Errorf("%w: threshold rule needs a positive class", ErrInvalidRule)
	}
	return &Threshold{positive: positiveClass, threshold: t}, nil
}

func (r *Threshold) Kind() Kind { return KindThreshold }

// Value returns the configured threshold.
func (r *Threshold) Value() float64 { return r.threshold }

// PositiveClass returns the class the threshold applies to.
func (r *Threshold) PositiveClass() string { return r.positive }

func (r *Threshold) Check(classes []string) error {
	if !slices.Contains(classes, r.positive) {
		return fmt.Errorf("%w: positive class %q not in %v", ErrInvalidRule, r.positive, classes)
	}
	return nil
}

func (r *Threshold) Decide(d inference.Distribution) (Outcome, error) {
	p, ok := d.Probability(r.positive)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: positive class %q not in distribution %v", ErrInvalidRule, r.positive, d.Labels())
	}
	t := r.threshold
	out := Outcome{
		Rule:        KindThreshold,
		Label:       LabelLowRisk,
		Class:       r.positive,
		Probability: p,
		Threshold:   &t,
	}
	if p > t {
		out.Positive = true
		out.Label = LabelHighRisk
	}
	return out, nil
}

// Argmax picks the most probable class. Exact ties go to the class listed
// first.
type Argmax struct{}

func (Argmax) Kind() Kind { return KindArgmax }

func (Argmax) Check(classes []string) error {
	if len(classes) == 0 {
		return fmt.Errorf("%w: argmax over no classes", ErrInvalidRule)
	}
	return nil
}

func (Argmax) Decide(d inference.Distribution) (Outcome, error) {
	if len(d) == 0 {
		return Outcome{}, fmt.Errorf("%w: empty distribution", ErrInvalidRule)
	}
	best := 0
	for i := 1; i < len(d); i++ {
		if d[i].Probability > d[best].Probability {
			best = i
		}
	}
	return Outcome{
		Rule:        KindArgmax,
		Label:       d[best].Label,
		Class:       d[best].Label,
		Probability: d[best].Probability,
	}, nil
}
