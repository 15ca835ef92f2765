// Package variant builds the named deployments a process serves. Each
// variant pairs a loaded artifact bundle with the decision rule that turns its
// probabilities into an outcome.
package variant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ayemaqu/pedrisk/internal/artifact"
	"github.com/ayemaqu/pedrisk/internal/config"
	"github.com/ayemaqu/pedrisk/internal/decision"
	"github.com/ayemaqu/pedrisk/internal/events"
	"github.com/ayemaqu/pedrisk/internal/inference"
	"github.com/ayemaqu/pedrisk/internal/redact"
	"github.com/ayemaqu/pedrisk/internal/schema"
	"github.com/ayemaqu/pedrisk/internal/telemetry"
)

// ErrUnknownVariant is returned when no variant has the requested name.
var ErrUnknownVariant = errors.New("unknown variant")

// Error kinds reported to telemetry.
const (
	KindSchemaViolation = "schema_violation"
	KindUnknownCategory = "unknown_category"
	KindInternal        = "internal"
)

// Emitter is the part of events.Emitter a registry needs.
type Emitter interface {
	Emit(ev *events.Event)
}

// Variant is one loaded deployment.
type Variant struct {
	Name    string
	Title   string
	Version string
	Config  config.VariantConfig
	Bundle  *artifact.Bundle
	Service *inference.Service
	Rule    decision.Rule
}

// Result is the answer to one prediction request.
type Result struct {
	RequestID       string                 `json:"request_id"`
	Variant         string                 `json:"variant"`
	PipelineVersion string                 `json:"pipeline_version,omitempty"`
	Probabilities   inference.Distribution `json:"probabilities"`
	Outcome         decision.Outcome       `json:"outcome"`
}

// Options carries the shared collaborators of a registry. Loader is
// required; Emitter and Telemetry may be nil.
type Options struct {
	Loader    *artifact.Loader
	Emitter   Emitter
	Telemetry *telemetry.Provider
}

// Registry holds every variant by name. It is read-only after Build.
type Registry struct {
	variants  map[string]*Variant
	names     []string
	emitter   Emitter
	telemetry *telemetry.Provider
}

// Build loads every configured variant in parallel. Any failure aborts the
// whole build.
func Build(ctx context.Context, cfgs []config.VariantConfig, opts Options) (*Registry, error) {
	if opts.Loader == nil {
		return nil, errors.New("variant: loader is required")
	}
	built := make([]*Variant, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range cfgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			v, err := load(opts.Loader, c)
			if err != nil {
				return fmt.Errorf("variant %q: %w", c.Name, err)
			}
			ms := float64(time.Since(start)) / float64(time.Millisecond)
			opts.Telemetry.RecordArtifactLoad(gctx, c.Name, ms)
			redact.Logf("variant loaded name=%s version=%s rule=%s classes=%v load_ms=%.1f",
				v.Name, v.Version, v.Rule.Kind(), v.Service.Classes(), ms)
			built[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return newRegistry(built, opts)
}

// New assembles a registry from variants that are already loaded.
func New(variants []*Variant, opts Options) (*Registry, error) {
	return newRegistry(variants, opts)
}

func newRegistry(variants []*Variant, opts Options) (*Registry, error) {
	r := &Registry{
		variants:  make(map[string]*Variant, len(variants)),
		emitter:   opts.Emitter,
		telemetry: opts.Telemetry,
	}
	for _, v := range variants {
		if _, dup := r.variants[v.Name]; dup {
			return nil, fmt.Errorf("variant %q is defined more than once", v.Name)
		}
		r.variants[v.Name] = v
		r.names = append(r.names, v.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

func load(l *artifact.Loader, c config.VariantConfig) (*Variant, error) {
	var (
		b   *artifact.Bundle
		err error
	)
	if c.Root != "" {
		b, err = l.LoadRoot(c.Root)
	} else {
		b, err = l.Load(c.Pipeline, c.Metadata)
	}
	if err != nil {
		return nil, err
	}
	return Assemble(c, b)
}

// Assemble pairs a loaded bundle with the rule c configures and checks that
// the rule can decide over the bundle's classes.
func Assemble(c config.VariantConfig, b *artifact.Bundle) (*Variant, error) {
	rule, err := decision.New(c.Rule)
	if err != nil {
		return nil, err
	}
	if err := rule.Check(b.Pipeline.Classes()); err != nil {
		return nil, err
	}
	version := b.Version
	if version == "" {
		version = b.Pipeline.Version()
	}
	title := c.Title
	if title == "" {
		title = c.Name
	}
	return &Variant{
		Name:    c.Name,
		Title:   title,
		Version: version,
		Config:  c,
		Bundle:  b,
		Service: inference.NewService(b.Pipeline),
		Rule:    rule,
	}, nil
}

// Get returns the named variant.
func (r *Registry) Get(name string) (*Variant, error) {
	v, ok := r.variants[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return v, nil
}

// List returns the variants sorted by name.
func (r *Registry) List() []*Variant {
	out := make([]*Variant, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.variants[n])
	}
	return out
}

// Predict scores rec with the named variant, applies its rule and emits a
// decision event.
func (r *Registry) Predict(ctx context.Context, name string, rec schema.Record) (*Result, error) {
	return r.PredictWithID(ctx, name, "", rec)
}

// PredictWithID is Predict with a caller-supplied request id. An empty id is
// replaced by a fresh one.
func (r *Registry) PredictWithID(ctx context.Context, name, requestID string, rec schema.Record) (*Result, error) {
	v, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if requestID == "" {
		requestID = events.NewRequestID()
	}

	ctx, span := r.telemetry.Tracer().Start(ctx, "pedrisk.predict")
	defer span.End()
	span.SetAttributes(telemetry.SafeAttributes(map[string]any{
		"variant":     v.Name,
		"version":     v.Version,
		"rule":        string(v.Rule.Kind()),
		"request_id":  requestID,
		"class_count": len(v.Service.Classes()),
	})...)

	res, err := r.predict(ctx, v, requestID, rec)
	if err != nil {
		kind := ErrorKind(err)
		r.telemetry.RecordError(ctx, v.Name, kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		return nil, err
	}
	span.SetAttributes(telemetry.SafeAttributes(map[string]any{
		"outcome.label":       res.Outcome.Label,
		"outcome.positive":    res.Outcome.Positive,
		"outcome.probability": res.Outcome.Probability,
	})...)
	return res, nil
}

func (r *Registry) predict(ctx context.Context, v *Variant, requestID string, rec schema.Record) (*Result, error) {
	start := time.Now()
	dist, timings, err := v.Service.PredictTimed(ctx, rec)
	if err != nil {
		return nil, err
	}
	out, err := v.Rule.Decide(dist)
	if err != nil {
		return nil, err
	}
	total := time.Since(start)
	r.telemetry.RecordPrediction(ctx, v.Name, string(out.Rule), out.Label, float64(total)/float64(time.Millisecond))
	if r.emitter != nil {
		r.emitter.Emit(events.BuildEvent(events.BuildParams{
			RequestID:       requestID,
			Variant:         v.Name,
			PipelineVersion: v.Version,
			Outcome:         out,
			Distribution:    dist,
			Timings:         timings,
			Total:           total,
		}))
	}
	return &Result{
		RequestID:       requestID,
		Variant:         v.Name,
		PipelineVersion: v.Version,
		Probabilities:   dist,
		Outcome:         out,
	}, nil
}

// ErrorKind classifies a prediction error for metrics and HTTP mapping.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, schema.ErrUnknownCategory):
		return KindUnknownCategory
	case errors.Is(err, schema.ErrSchemaViolation):
		return KindSchemaViolation
	default:
		return KindInternal
	}
}
