package pipeline_test

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ayemaqu/pedrisk/internal/pipeline"
	"github.com/ayemaqu/pedrisk/internal/pipeline/pipelinetest"
	"github.com/ayemaqu/pedrisk/internal/schema"
)

func sum(p []float64) float64 {
	s := 0.0
	for _, v := range p {
		s += v
	}
	return s
}

func TestBinaryCalibratedProbabilities(t *testing.T) {
	definition := pipelinetest.InjuryDefinition()
	p := pipelinetest.Open(t, definition)

	rec := pipelinetest.InjuryRecord()
	got, err := p.PredictProba([]schema.Record{rec})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("expected one row of two probabilities, got %v", got)
	}

	x, err := definition.Preprocess.Transform(rec)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	f := definition.Scorer.Intercept[0]
	for i, w := range definition.Scorer.Coef[0] {
		f += w * x[i]
	}
	want := 1 / (1 + math.Exp(definition.Calibration.A[0]*f+definition.Calibration.B[0]))

	if math.Abs(got[0][1]-want) > 1e-12 {
		t.Fatalf("positive probability = %v, want %v", got[0][1], want)
	}
	if math.Abs(sum(got[0])-1) > 1e-9 {
		t.Fatalf("probabilities do not sum to one: %v", got[0])
	}
}

func TestTransformOneHotAndScaling(t *testing.T) {
	definition := pipelinetest.InjuryDefinition()
	x, err := definition.Preprocess.Transform(pipelinetest.InjuryRecord())
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if len(x) != definition.Preprocess.Width() {
		t.Fatalf("vector width %d, want %d", len(x), definition.Preprocess.Width())
	}
	// "Failure to Yield Right-of-Way" is the second cause level.
	if x[1] != 1 || x[0] != 0 {
		t.Fatalf("unexpected cause encoding: %v", x[:11])
	}
	if want := (18 - 13.4) / 5.6; math.Abs(x[11]-want) > 1e-12 {
		t.Fatalf("hour scaled to %v, want %v", x[11], want)
	}
}

func TestMultinomialPicksExpectedSpecies(t *testing.T) {
	p := pipelinetest.Open(t, pipelinetest.SpeciesDefinition())

	cases := []struct {
		bill, flipper float64
		want          string
	}{
		{39, 190, "Adelie"},
		{50, 195, "Chinstrap"},
		{47, 220, "Gentoo"},
	}
	for _, tc := range cases {
		got, err := p.PredictProba([]schema.Record{pipelinetest.SpeciesRecord(tc.bill, tc.flipper)})
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		best := 0
		for i, v := range got[0] {
			if v > got[0][best] {
				best = i
			}
		}
		if label := p.Classes()[best]; label != tc.want {
			t.Fatalf("bill=%v flipper=%v: got %s (%v), want %s", tc.bill, tc.flipper, label, got[0], tc.want)
		}
		if math.Abs(sum(got[0])-1) > 1e-9 {
			t.Fatalf("probabilities do not sum to one: %v", got[0])
		}
	}
}

func TestCalibratedMultinomialNormalizes(t *testing.T) {
	definition := pipelinetest.SpeciesDefinition()
	definition.Calibration = &pipeline.Calibration{A: []float64{-1.2, -0.8, -1.0}, B: []float64{0.1, 0.0, -0.2}}
	p := pipelinetest.Open(t, definition)

	got, err := p.PredictProba([]schema.Record{pipelinetest.SpeciesRecord(44, 201)})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if math.Abs(sum(got[0])-1) > 1e-9 {
		t.Fatalf("calibrated probabilities do not sum to one: %v", got[0])
	}
}

func TestPredictProbaIsDeterministic(t *testing.T) {
	p := pipelinetest.Open(t, pipelinetest.InjuryDefinition())
	batch := []schema.Record{pipelinetest.InjuryRecord(), pipelinetest.InjuryRecord()}

	first, err := p.PredictProba(batch)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	second, err := p.PredictProba(batch)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated predictions differ (-first +second):\n%s", diff)
	}
}

func TestClassesReturnsCopy(t *testing.T) {
	p := pipelinetest.Open(t, pipelinetest.SpeciesDefinition())
	c := p.Classes()
	c[0] = "mutated"
	if p.Classes()[0] != "Adelie" {
		t.Fatalf("pipeline class order must not be mutable through Classes()")
	}
}

func TestOpenRejectsInconsistentDefinitions(t *testing.T) {
	cases := map[string]func(*pipeline.Definition){
		"format version":  func(s *pipeline.Definition) { s.FormatVersion = 99 },
		"one class":       func(s *pipeline.Definition) { s.Classes = []string{"1"} },
		"duplicate class": func(s *pipeline.Definition) { s.Classes = []string{"1", "1"} },
		"missing column":  func(s *pipeline.Definition) { s.Preprocess.Columns = s.Preprocess.Columns[:3] },
		"kind drift": func(s *pipeline.Definition) {
			s.Preprocess.Columns[1].Kind = schema.KindNumeric
		},
		"level without encoding": func(s *pipeline.Definition) {
			s.Preprocess.Columns[3].Levels = s.Preprocess.Columns[3].Levels[:4]
		},
		"coefficient width": func(s *pipeline.Definition) { s.Scorer.Coef[0] = s.Scorer.Coef[0][:10] },
		"calibration size":  func(s *pipeline.Definition) { s.Calibration.A = []float64{1, 2} },
		"unknown scorer":    func(s *pipeline.Definition) { s.Scorer.Kind = "forest" },
		"onnx with calibration": func(s *pipeline.Definition) {
			s.Scorer = pipeline.ScorerDefinition{Kind: pipeline.ScorerONNX, ONNX: []byte{1}}
		},
		"onnx without graph": func(s *pipeline.Definition) {
			s.Scorer = pipeline.ScorerDefinition{Kind: pipeline.ScorerONNX}
			s.Calibration = nil
		},
	}

	for name, edit := range cases {
		t.Run(name, func(t *testing.T) {
			definition := pipelinetest.InjuryDefinition()
			edit(definition)
			if _, err := pipeline.Open(definition, ""); !errors.Is(err, pipeline.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestOpenRejectsDuplicateColumn(t *testing.T) {
	definition := pipelinetest.SpeciesDefinition()
	definition.Preprocess.Columns[1] = definition.Preprocess.Columns[0]

	_, err := pipeline.Open(definition, "")
	if !errors.Is(err, pipeline.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "more than once") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestOpenRejectsUnreadableGraph(t *testing.T) {
	definition := pipelinetest.InjuryDefinition()
	definition.Scorer = pipeline.ScorerDefinition{Kind: pipeline.ScorerONNX, ONNX: []byte("not an onnx graph")}
	definition.Calibration = nil

	_, err := pipeline.Open(definition, t.TempDir())
	if errors.Is(err, pipeline.ErrRuntimeUnavailable) {
		t.Skipf("onnxruntime not installed: %v", err)
	}
	if !errors.Is(err, pipeline.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for an unreadable graph, got %v", err)
	}
}

func TestWriteFileReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pipeline.bin")
	want := pipelinetest.InjuryDefinition()
	pipelinetest.WriteFile(t, path, want)

	got, err := pipeline.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("decoded definition differs (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestDecodeRejectsForeignData(t *testing.T) {
	if _, err := pipeline.Decode(bytes.NewReader([]byte("\x80\x04\x95joblib pickle"))); !errors.Is(err, pipeline.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for foreign header, got %v", err)
	}

	var buf bytes.Buffer
	if err := pipeline.Encode(&buf, pipelinetest.SpeciesDefinition()); err != nil {
		t.Fatalf("encode: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()/2]
	if _, err := pipeline.Decode(bytes.NewReader(truncated)); !errors.Is(err, pipeline.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for truncated artifact, got %v", err)
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := pipeline.ReadFile(filepath.Join(t.TempDir(), "nope.bin"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
