// Package events delivers decision records to external sinks off the request
// path.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ayemaqu/pedrisk/internal/decision"
	"github.com/ayemaqu/pedrisk/internal/inference"
	"github.com/ayemaqu/pedrisk/internal/redact"
)

// SchemaVersion is the version stamped on every event.
const SchemaVersion = "1"

// TimingMs holds per-stage latency in milliseconds.
type TimingMs struct {
	Check float64 `json:"check"`
	Score float64 `json:"score"`
	Total float64 `json:"total"`
}

// Event is one decision as seen by downstream consumers.
type Event struct {
	Version         string                 `json:"version"`
	Timestamp       time.Time              `json:"timestamp"`
	RequestID       string                 `json:"request_id"`
	Variant         string                 `json:"variant"`
	PipelineVersion string                 `json:"pipeline_version,omitempty"`
	Outcome         decision.Outcome       `json:"outcome"`
	Probabilities   inference.Distribution `json:"probabilities"`
	TimingMs        TimingMs               `json:"timing_ms"`
}

// BuildParams collects the inputs of one decision event.
type BuildParams struct {
	RequestID       string
	Variant         string
	PipelineVersion string
	Outcome         decision.Outcome
	Distribution    inference.Distribution
	Timings         inference.Timings
	Total           time.Duration
}

// BuildEvent assembles an event, generating a request id when none is given.
func BuildEvent(p BuildParams) *Event {
	probs := make(inference.Distribution, len(p.Distribution))
	copy(probs, p.Distribution)
	return &Event{
		Version:         SchemaVersion,
		Timestamp:       time.Now().UTC(),
		RequestID:       ensureRequestID(p.RequestID),
		Variant:         p.Variant,
		PipelineVersion: p.PipelineVersion,
		Outcome:         p.Outcome,
		Probabilities:   probs,
		TimingMs: TimingMs{
			Check: durationMillis(p.Timings.Check),
			Score: durationMillis(p.Timings.Score),
			Total: durationMillis(p.Total),
		},
	}
}

// NewRequestID returns a random request id.
func NewRequestID() string {
	return uuid.NewString()
}

// LogEmitter writes every event to the process log. serve falls back to it
// when no sinks are configured.
type LogEmitter struct{}

// Emit logs ev synchronously.
func (LogEmitter) Emit(ev *Event) { LogEvent(ev) }

// LogEvent prints a redacted JSON representation of the event.
func LogEvent(ev *Event) {
	if ev == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		redact.Logf("events: failed to marshal event: %v", err)
		return
	}
	redact.Logf("decision: %s", string(data))
}

func ensureRequestID(id string) string {
	if id != "" {
		return id
	}
	return NewRequestID()
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
