package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// StdoutSink writes one JSON object per line. Collection and retention are
// left to whatever reads the stream.
type StdoutSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewStdoutSink writes to w, or os.Stdout when w is nil.
func NewStdoutSink(w io.Writer) *StdoutSink {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutSink{w: w, enc: json.NewEncoder(w)}
}

func (s *StdoutSink) Name() string { return "stdout" }

func (s *StdoutSink) Deliver(_ context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(ev); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (s *StdoutSink) Close(context.Context) error { return nil }
