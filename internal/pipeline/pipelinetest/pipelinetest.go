// Package pipelinetest builds small fitted pipeline artifacts for tests.
package pipelinetest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/ayemaqu/pedrisk/internal/metadata"
	"github.com/ayemaqu/pedrisk/internal/pipeline"
	"github.com/ayemaqu/pedrisk/internal/schema"
)

// InjuryDefinition returns a calibrated binary pipeline over schema.InjuryRisk with
// classes ["0", "1"], where "1" means a pedestrian was injured.
func InjuryDefinition() *pipeline.Definition {
	s := schema.InjuryRisk()
	cause, _ := s.Lookup("cf1_clean")
	veh, _ := s.Lookup("veh_group")
	boro, _ := s.Lookup("BoroName")

	coef := make([]float64, 0, 26)
	// cf1_clean
	coef = append(coef, 0.42, 0.95, -0.30, 0.61, 0.18, 0.52, 0.37, -0.12, 0.88, 0.21, 0.0)
	// hour
	coef = append(coef, 0.15)
	// veh_group
	coef = append(coef, 0.05, 0.12, -0.22, 0.31, -0.48, 0.02, 0.27, 0.66, 0.0)
	// BoroName
	coef = append(coef, 0.10, -0.05, 0.44, 0.19, -0.35)

	return &pipeline.Definition{
		FormatVersion: pipeline.FormatVersion,
		Name:          "injury",
		Version:       "v1",
		Schema:        s,
		Classes:       []string{"0", "1"},
		Preprocess: pipeline.Preprocess{Columns: []pipeline.Column{
			{Feature: "cf1_clean", Kind: schema.KindCategorical, Levels: cause.Levels},
			{Feature: "hour", Kind: schema.KindInteger, Mean: 13.4, Scale: 5.6},
			{Feature: "veh_group", Kind: schema.KindCategorical, Levels: veh.Levels},
			{Feature: "BoroName", Kind: schema.KindCategorical, Levels: boro.Levels},
		}},
		Scorer: pipeline.ScorerDefinition{
			Kind:      pipeline.ScorerLogistic,
			Coef:      [][]float64{coef},
			Intercept: []float64{-3.1},
		},
		Calibration: &pipeline.Calibration{A: []float64{-0.92}, B: []float64{0.35}},
	}
}

// SpeciesDefinition returns an uncalibrated multinomial pipeline over schema.Species
// with classes ["Adelie", "Chinstrap", "Gentoo"].
func SpeciesDefinition() *pipeline.Definition {
	return &pipeline.Definition{
		FormatVersion: pipeline.FormatVersion,
		Name:          "species",
		Version:       "v1",
		Schema:        schema.Species(),
		Classes:       []string{"Adelie", "Chinstrap", "Gentoo"},
		Preprocess: pipeline.Preprocess{Columns: []pipeline.Column{
			{Feature: "bill_length_mm", Kind: schema.KindNumeric, Mean: 43.9, Scale: 5.46},
			{Feature: "flipper_length_mm", Kind: schema.KindNumeric, Mean: 200.9, Scale: 14.06},
		}},
		Scorer: pipeline.ScorerDefinition{
			Kind: pipeline.ScorerLogistic,
			Coef: [][]float64{
				{-3.0, -1.0},
				{2.5, -1.5},
				{0.5, 2.5},
			},
			Intercept: []float64{0.5, -0.8, 0.3},
		},
	}
}

// InjuryRecord returns a record that satisfies schema.InjuryRisk.
func InjuryRecord() schema.Record {
	return schema.Record{
		"cf1_clean": schema.String("Failure to Yield Right-of-Way"),
		"hour":      schema.Int(18),
		"veh_group": schema.String("SUV"),
		"BoroName":  schema.String("Manhattan"),
	}
}

// SpeciesRecord returns a record that satisfies schema.Species.
func SpeciesRecord(bill, flipper float64) schema.Record {
	return schema.Record{
		"bill_length_mm":    schema.Number(bill),
		"flipper_length_mm": schema.Number(flipper),
	}
}

// Open opens definition and closes it when the test ends.
func Open(t testing.TB, definition *pipeline.Definition) pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Open(definition, "")
	if err != nil {
		t.Fatalf("open pipeline: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// WriteFile writes definition to path, failing the test on error.
func WriteFile(t testing.TB, path string, definition *pipeline.Definition) {
	t.Helper()
	if err := pipeline.WriteFile(path, definition); err != nil {
		t.Fatalf("write pipeline artifact: %v", err)
	}
}

// RandomRecord draws a record that satisfies s. Categorical features take one
// of their training levels; bounded numbers stay inside their bounds.
func RandomRecord(f *gofakeit.Faker, s schema.Schema) schema.Record {
	rec := make(schema.Record, len(s.Features))
	for _, feat := range s.Features {
		lo, hi := 0.0, 100.0
		if feat.Min != nil {
			lo = *feat.Min
		}
		if feat.Max != nil {
			hi = *feat.Max
		}
		switch feat.Kind {
		case schema.KindCategorical:
			rec[feat.Name] = schema.String(f.RandomString(feat.Levels))
		case schema.KindInteger:
			rec[feat.Name] = schema.Int(f.Number(int(lo), int(hi)))
		default:
			rec[feat.Name] = schema.Number(f.Float64Range(lo, hi))
		}
	}
	return rec
}

// InjuryMetadata returns metadata matching InjuryDefinition.
func InjuryMetadata() *metadata.Metadata {
	return &metadata.Metadata{
		Features: map[string]metadata.Range{"hour": {Min: 0, Max: 23, Default: 17}},
		Classes:  []string{"0", "1"},
	}
}

// SpeciesMetadata returns metadata matching SpeciesDefinition.
func SpeciesMetadata() *metadata.Metadata {
	acc := 0.95
	return &metadata.Metadata{
		Features: map[string]metadata.Range{
			"bill_length_mm":    {Min: 32.1, Max: 59.6, Default: 43.9},
			"flipper_length_mm": {Min: 172, Max: 231, Default: 197},
		},
		Classes:      []string{"Adelie", "Chinstrap", "Gentoo"},
		TestAccuracy: &acc,
	}
}

// WriteMetadata writes m to path as JSON.
func WriteMetadata(t testing.TB, path string, m *metadata.Metadata) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("encode metadata: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
}

// WriteBundle writes pipeline.bin and metadata.json into dir and returns
// their paths.
func WriteBundle(t testing.TB, dir string, definition *pipeline.Definition, m *metadata.Metadata) (pipelinePath, metadataPath string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	pipelinePath = filepath.Join(dir, "pipeline.bin")
	metadataPath = filepath.Join(dir, "metadata.json")
	WriteFile(t, pipelinePath, definition)
	WriteMetadata(t, metadataPath, m)
	return pipelinePath, metadataPath
}
