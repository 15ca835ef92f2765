package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayemaqu/pedrisk/internal/decision"
	"github.com/ayemaqu/pedrisk/internal/events"
	"github.com/ayemaqu/pedrisk/internal/inference"
)

func TestHandleDecision(t *testing.T) {
	th := 0.07
	ev := events.BuildEvent(events.BuildParams{
		Variant: "injury",
		Outcome: decision.Outcome{Rule: decision.KindThreshold, Label: decision.LabelLowRisk, Class: "1", Probability: 0.03, Threshold: &th},
		Distribution: inference.Distribution{
			{Label: "0", Probability: 0.97},
			{Label: "1", Probability: 0.03},
		},
	})
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	rr := httptest.NewRecorder()
	handleDecision(rr, httptest.NewRequest(http.MethodPost, "/decisions", strings.NewReader(string(body))))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handleDecision(rr, httptest.NewRequest(http.MethodPost, "/decisions", strings.NewReader("not json")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
