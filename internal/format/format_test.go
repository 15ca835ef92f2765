package format_test

import (
	"strings"
	"testing"

	"github.com/ayemaqu/pedrisk/internal/artifact"
	"github.com/ayemaqu/pedrisk/internal/decision"
	"github.com/ayemaqu/pedrisk/internal/format"
	"github.com/ayemaqu/pedrisk/internal/inference"
	"github.com/ayemaqu/pedrisk/internal/pipeline/pipelinetest"
	"github.com/ayemaqu/pedrisk/internal/variant"
)

func injuryResult() *variant.Result {
	th := 0.07
	return &variant.Result{
		RequestID:       "req-42",
		Variant:         "injury",
		PipelineVersion: "v3",
		Probabilities: inference.Distribution{
			{Label: "0", Probability: 0.9275},
			{Label: "1", Probability: 0.0725},
		},
		Outcome: decision.Outcome{
			Rule:        decision.KindThreshold,
			Label:       decision.LabelHighRisk,
			Positive:    true,
			Class:       "1",
			Probability: 0.0725,
			Threshold:   &th,
		},
	}
}

func TestPredictionASCII(t *testing.T) {
	out := format.Prediction(injuryResult(), format.ASCII)
	for _, want := range []string{"injury v3", "7.25%", "92.75%", "high risk", "threshold > 7.00%", "req-42", "───"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestPredictionMarkdown(t *testing.T) {
	res := injuryResult()
	res.Outcome = decision.Outcome{Rule: decision.KindArgmax, Label: "0", Class: "0", Probability: 0.9275}
	out := format.Prediction(res, format.Markdown)
	if !strings.Contains(out, "| Class") {
		t.Errorf("expected markdown header:\n%s", out)
	}
	if strings.Contains(out, "threshold") {
		t.Errorf("argmax outcome should not mention a threshold:\n%s", out)
	}
}

func TestBundle(t *testing.T) {
	b := &artifact.Bundle{
		Pipeline: pipelinetest.Open(t, pipelinetest.SpeciesDefinition()),
		Metadata: pipelinetest.SpeciesMetadata(),
	}
	out := format.Bundle(b, format.ASCII)
	for _, want := range []string{"species v1", "bill_length_mm", "[32.1, 59.6]", "43.9", "Adelie, Chinstrap, Gentoo", "test accuracy: 95.00%"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	b = &artifact.Bundle{
		Pipeline: pipelinetest.Open(t, pipelinetest.InjuryDefinition()),
		Metadata: pipelinetest.InjuryMetadata(),
		Version:  "v9",
	}
	out = format.Bundle(b, format.Markdown)
	for _, want := range []string{"BoroName", "categorical", "Manhattan", "[0, 23]", "17"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "test accuracy") {
		t.Errorf("accuracy printed without one in metadata:\n%s", out)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]format.Mode{"": format.ASCII, "table": format.ASCII, "MD": format.Markdown, "markdown": format.Markdown} {
		got, err := format.ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := format.ParseMode("csv"); err == nil {
		t.Errorf("expected error for csv")
	}
}

func TestHelpers(t *testing.T) {
	if got := format.Percent(0.07); got != "7.00%" {
		t.Errorf("Percent = %q", got)
	}
	if got := format.Number(172); got != "172" {
		t.Errorf("Number = %q", got)
	}
	if got := format.Truncate("abcdefgh", 6); got != "abc..." {
		t.Errorf("Truncate = %q", got)
	}
}
