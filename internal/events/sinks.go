package events

import (
	"fmt"
	"strings"
	"time"
)

// Sink types accepted in configuration.
const (
	SinkStdout  = "stdout"
	SinkWebhook = "webhook"
)

// SinkConfig is the serialized form of one sink.
type SinkConfig struct {
	Type      string            `yaml:"type"`
	URL       string            `yaml:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	TimeoutMs int               `yaml:"timeout_ms,omitempty"`
	// AllowPrivateNetworks permits webhook hosts on loopback or private
	// ranges. Config validation rejects them otherwise.
	AllowPrivateNetworks bool `yaml:"allow_private_networks,omitempty"`
}

// NewSinks builds sinks from configuration.
func NewSinks(cfgs []SinkConfig) ([]Sink, error) {
	sinks := make([]Sink, 0, len(cfgs))
	for i, c := range cfgs {
		switch strings.ToLower(strings.TrimSpace(c.Type)) {
		case SinkStdout:
			sinks = append(sinks, NewStdoutSink(nil))
		case SinkWebhook:
			s, err := NewWebhookSink(c.URL, c.Headers, time.Duration(c.TimeoutMs)*time.Millisecond)
			if err != nil {
				return nil, fmt.Errorf("event sink %d: %w", i, err)
			}
			sinks = append(sinks, s)
		default:
			return nil, fmt.Errorf("event sink %d has unknown type %q", i, c.Type)
		}
	}
	return sinks, nil
}
