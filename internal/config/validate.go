package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ayemaqu/pedrisk/internal/decision"
	"github.com/ayemaqu/pedrisk/internal/events"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}

	if len(cfg.Variants) == 0 {
		return errors.New("at least one variant must be configured")
	}

	seen := make(map[string]bool, len(cfg.Variants))
	for i, v := range cfg.Variants {
		if strings.TrimSpace(v.Name) == "" {
			return fmt.Errorf("variant %d: name must be set", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("variant %q is defined more than once", v.Name)
		}
		seen[v.Name] = true
		if err := validateVariantConfig(v); err != nil {
			return err
		}
	}

	if err := validateEventsConfig(cfg.Events); err != nil {
		return err
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateVariantConfig(v VariantConfig) error {
	hasRoot := strings.TrimSpace(v.Root) != ""
	hasPaths := strings.TrimSpace(v.Pipeline) != "" || strings.TrimSpace(v.Metadata) != ""
	switch {
	case hasRoot && hasPaths:
		return fmt.Errorf("variant %q: set either root or pipeline/metadata, not both", v.Name)
	case !hasRoot && (strings.TrimSpace(v.Pipeline) == "" || strings.TrimSpace(v.Metadata) == ""):
		return fmt.Errorf("variant %q: pipeline and metadata paths must be set", v.Name)
	}

	switch v.Rule.Kind {
	case decision.KindThreshold:
		if v.Rule.Threshold == nil {
			return fmt.Errorf("variant %q: rule.threshold must be set for threshold rules", v.Name)
		}
		if t := *v.Rule.Threshold; !(t >= 0 && t <= 1) {
			return fmt.Errorf("variant %q: rule.threshold must be within [0,1], got %v", v.Name, t)
		}
		if strings.TrimSpace(v.Rule.PositiveClass) == "" {
			return fmt.Errorf("variant %q: rule.positive_class must be set for threshold rules", v.Name)
		}
	case decision.KindArgmax:
	case "":
		return fmt.Errorf("variant %q: rule.kind must be set", v.Name)
	default:
		return fmt.Errorf("variant %q: unknown rule.kind %q", v.Name, v.Rule.Kind)
	}
	return nil
}

func validateEventsConfig(e EventsConfig) error {
	for i, s := range e.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case events.SinkStdout:
		case events.SinkWebhook:
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("event sink %d (webhook) missing url", i)
			}
			u, err := url.Parse(s.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("event sink %d (webhook) has invalid url", i)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("event sink %d (webhook) url must be http or https", i)
			}
			if err := blockPrivateHost(u.Host, s.AllowPrivateNetworks); err != nil {
				return fmt.Errorf("event sink %d (webhook) url blocked: %w", i, err)
			}
		default:
			return fmt.Errorf("event sink %d has unknown type %q", i, s.Type)
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	if t.Protocol != "" {
		switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
		}
	}
	return nil
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if strings.EqualFold(strings.TrimSpace(host), "localhost") {
		return errors.New("private network host localhost blocked")
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
		return fmt.Errorf("private network IP %s blocked", ip.String())
	}
	return nil
}
