// Package inference turns raw feature records into class probability
// distributions using a loaded pipeline.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ayemaqu/pedrisk/internal/pipeline"
	"github.com/ayemaqu/pedrisk/internal/schema"
)

// Tolerance is how far a distribution may sum away from one.
const Tolerance = 1e-6

// ErrInvalidDistribution is returned when a pipeline emits probabilities that
// are negative, the wrong length, or do not sum to one.
var ErrInvalidDistribution = errors.New("invalid probability distribution")

// Class is one label with its probability.
type Class struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Distribution is ordered by the pipeline's class order.
type Distribution []Class

// Labels returns the class labels in order.
func (d Distribution) Labels() []string {
	out := make([]string, len(d))
	for i, c := range d {
		out[i] = c.Label
	}
	return out
}

// Probability returns the probability of label.
func (d Distribution) Probability(label string) (float64, bool) {
	for _, c := range d {
		if c.Label == label {
			return c.Probability, true
		}
	}
	return 0, false
}

// Validate checks the distribution has k entries, none negative, summing to
// one within Tolerance.
func (d Distribution) Validate(k int) error {
	if len(d) != k {
		return fmt.Errorf("%w: %d entries for %d classes", ErrInvalidDistribution, len(d), k)
	}
	sum := 0.0
	for _, c := range d {
		if math.IsNaN(c.Probability) || c.Probability < 0 {
			return fmt.Errorf("%w: class %q has probability %v", ErrInvalidDistribution, c.Label, c.Probability)
		}
		sum += c.Probability
	}
	if math.Abs(sum-1) > Tolerance {
		return fmt.Errorf("%w: probabilities sum to %v", ErrInvalidDistribution, sum)
	}
	return nil
}

// Timings holds latency measurements for the stages of one prediction.
type Timings struct {
	Check time.Duration
	Score time.Duration
}

// Service validates records against a pipeline's schema and scores them. It
// holds no state beyond the read-only pipeline and is safe for concurrent use.
type Service struct {
	p pipeline.Pipeline
}

// NewService wraps a loaded pipeline.
func NewService(p pipeline.Pipeline) *Service {
	return &Service{p: p}
}

// Schema is the schema records must satisfy.
func (s *Service) Schema() schema.Schema { return s.p.Schema() }

// Classes is the order distributions are emitted in.
func (s *Service) Classes() []string { return s.p.Classes() }

// Predict scores one record.
func (s *Service) Predict(ctx context.Context, rec schema.Record) (Distribution, error) {
	out, _, err := s.predict(ctx, []schema.Record{rec})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// PredictTimed scores one record and reports how long each stage took.
func (s *Service) PredictTimed(ctx context.Context, rec schema.Record) (Distribution, Timings, error) {
	out, t, err := s.predict(ctx, []schema.Record{rec})
	if err != nil {
		return nil, t, err
	}
	return out[0], t, nil
}

// PredictBatch scores records in order. The first invalid record fails the
// whole batch; its error names the record index.
func (s *Service) PredictBatch(ctx context.Context, recs []schema.Record) ([]Distribution, error) {
	out, _, err := s.predict(ctx, recs)
	return out, err
}

func (s *Service) predict(ctx context.Context, recs []schema.Record) ([]Distribution, Timings, error) {
	var t Timings
	if err := ctx.Err(); err != nil {
		return nil, t, err
	}
	if len(recs) == 0 {
		return []Distribution{}, t, nil
	}

	start := time.Now()
	sch := s.p.Schema()
	checked := make([]schema.Record, len(recs))
	for i, rec := range recs {
		c, err := sch.Check(rec)
		if err != nil {
			if len(recs) == 1 {
				return nil, t, err
			}
			return nil, t, fmt.Errorf("record %d: %w", i, err)
		}
		checked[i] = c
	}
	t.Check = time.Since(start)

	start = time.Now()
	probs, err := s.p.PredictProba(checked)
	t.Score = time.Since(start)
	if err != nil {
		return nil, t, fmt.Errorf("predict %s: %w", s.p.Name(), err)
	}

	classes := s.p.Classes()
	out := make([]Distribution, len(probs))
	for i, row := range probs {
		if len(row) != len(classes) {
			return nil, t, fmt.Errorf("%w: %d probabilities for %d classes", ErrInvalidDistribution, len(row), len(classes))
		}
		d := make(Distribution, len(classes))
		for j, label := range classes {
			d[j] = Class{Label: label, Probability: row[j]}
		}
		if err := d.Validate(len(classes)); err != nil {
			return nil, t, err
		}
		out[i] = d
	}
	return out, t, nil
}
