package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ptr(v float64) *float64 { return &v }

func speciesMetadata() *Metadata {
	return &Metadata{
		Features: map[string]Range{
			"bill_length_mm":    {Min: 32.1, Max: 59.6, Default: 43.9},
			"flipper_length_mm": {Min: 172, Max: 231, Default: 197},
		},
		Classes:      []string{"Adelie", "Chinstrap", "Gentoo"},
		TestAccuracy: ptr(0.9565),
	}
}

func TestParseCanonicalJSON(t *testing.T) {
	data := []byte(`{
  "features": {
    "bill_length_mm": {"min": 32.1, "max": 59.6, "default": 43.9},
    "flipper_length_mm": {"min": 172, "max": 231, "default": 197}
  },
  "classes": ["Adelie", "Chinstrap", "Gentoo"],
  "test_accuracy": 0.9565
}`)
	got, err := Parse(data, FormatJSON)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff(speciesMetadata(), got); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlatJSON(t *testing.T) {
	data := []byte(`{
  "bill_length_mm": [32.1, 59.6],
  "flipper_length_mm": [172.0, 231.0],
  "bill_length_default": 43.9,
  "flipper_length_default": 197.0,
  "classes": ["Adelie", "Chinstrap", "Gentoo"],
  "test_accuracy": 0.9565
}`)
	got, err := Parse(data, FormatJSON)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff(speciesMetadata(), got); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
features:
  bill_length_mm: {min: 32.1, max: 59.6, default: 43.9}
  flipper_length_mm: {min: 172, max: 231, default: 197}
classes: [Adelie, Chinstrap, Gentoo]
test_accuracy: 0.9565
`)
	got, err := Parse(data, FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff(speciesMetadata(), got); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlatYAMLWithIntegers(t *testing.T) {
	data := []byte(`
hour: [0, 23]
hour_default: 17
classes: ["0", "1"]
`)
	got, err := Parse(data, FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := &Metadata{
		Features: map[string]Range{"hour": {Min: 0, Max: 23, Default: 17}},
		Classes:  []string{"0", "1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlatRejectsMalformedRanges(t *testing.T) {
	cases := map[string]string{
		"three bounds":    `{"x": [1, 2, 3], "x_default": 2, "classes": ["a"]}`,
		"string bound":    `{"x": ["lo", 2], "x_default": 2, "classes": ["a"]}`,
		"missing default": `{"x": [1, 2], "classes": ["a"]}`,
		"classes type":    `{"classes": [1, 2]}`,
		"accuracy type":   `{"classes": ["a"], "test_accuracy": "high"}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), FormatJSON)
			if !errors.Is(err, ErrInvalidMetadata) {
				t.Fatalf("expected ErrInvalidMetadata, got %v", err)
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json"), FormatJSON); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}
	if _, err := Parse([]byte("[1, 2]"), FormatJSON); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata for a list document, got %v", err)
	}
	if _, err := Parse([]byte(""), FormatYAML); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata for an empty document, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(speciesMetadata()); err != nil {
		t.Fatalf("valid metadata rejected: %v", err)
	}

	cases := []struct {
		name  string
		edit  func(*Metadata)
		field string
	}{
		{"min above max", func(m *Metadata) {
			m.Features["bill_length_mm"] = Range{Min: 60, Max: 30, Default: 40}
		}, "features.bill_length_mm"},
		{"default outside", func(m *Metadata) {
			m.Features["flipper_length_mm"] = Range{Min: 172, Max: 231, Default: 250}
		}, "features.flipper_length_mm.default"},
		{"no classes", func(m *Metadata) { m.Classes = nil }, "classes"},
		{"duplicate class", func(m *Metadata) { m.Classes = []string{"Adelie", "Adelie"} }, "classes[1]"},
		{"blank class", func(m *Metadata) { m.Classes = []string{"Adelie", " "} }, "classes[1]"},
		{"accuracy above one", func(m *Metadata) { m.TestAccuracy = ptr(1.2) }, "test_accuracy"},
		{"negative accuracy", func(m *Metadata) { m.TestAccuracy = ptr(-0.1) }, "test_accuracy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := speciesMetadata()
			tc.edit(m)
			err := Validate(m)
			if !errors.Is(err, ErrInvalidMetadata) {
				t.Fatalf("expected ErrInvalidMetadata, got %v", err)
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %T", err)
			}
			if fe.Field != tc.field {
				t.Fatalf("field = %q, want %q", fe.Field, tc.field)
			}
		})
	}
}

func TestValidateAllowsMissingAccuracy(t *testing.T) {
	m := speciesMetadata()
	m.TestAccuracy = nil
	if err := Validate(m); err != nil {
		t.Fatalf("metadata without accuracy rejected: %v", err)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.yml")
	if err := os.WriteFile(path, []byte("classes: [\"0\", \"1\"]\nhour: [0, 23]\nhour_default: 12\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := m.Features["hour"].Default; got != 12 {
		t.Fatalf("hour default = %v, want 12", got)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"classes": []}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFile(bad); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}

	if _, err := ReadFile(filepath.Join(dir, "missing.json")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
