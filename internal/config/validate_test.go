package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayemaqu/pedrisk/internal/decision"
	"github.com/ayemaqu/pedrisk/internal/events"
)

func ptr(f float64) *float64 { return &f }

func injuryVariant() VariantConfig {
	return VariantConfig{
		Name:     "injury",
		Pipeline: "artifacts/injury/pipeline.bin",
		Metadata: "artifacts/injury/metadata.json",
		Rule:     decision.Config{Kind: decision.KindThreshold, PositiveClass: "1", Threshold: ptr(0.07)},
	}
}

func TestValidateFailures(t *testing.T) {
	withVariant := func(mut func(*VariantConfig)) *Config {
		v := injuryVariant()
		mut(&v)
		return &Config{Server: ServerConfig{Addr: ":8080"}, Variants: []VariantConfig{v}}
	}

	cases := []struct {
		name string
		cfg  *Config
		want string
	}{
		{
			name: "missing server addr",
			cfg:  &Config{Server: ServerConfig{Addr: ""}},
			want: "server.addr",
		},
		{
			name: "no variants",
			cfg:  &Config{Server: ServerConfig{Addr: ":8080"}},
			want: "variant",
		},
		{
			name: "duplicate variant",
			cfg: &Config{
				Server:   ServerConfig{Addr: ":8080"},
				Variants: []VariantConfig{injuryVariant(), injuryVariant()},
			},
			want: "more than once",
		},
		{
			name: "missing name",
			cfg:  withVariant(func(v *VariantConfig) { v.Name = "" }),
			want: "name must be set",
		},
		{
			name: "missing metadata path",
			cfg:  withVariant(func(v *VariantConfig) { v.Metadata = "" }),
			want: "metadata",
		},
		{
			name: "root and paths together",
			cfg:  withVariant(func(v *VariantConfig) { v.Root = "artifacts/injury" }),
			want: "either root",
		},
		{
			name: "unknown rule",
			cfg:  withVariant(func(v *VariantConfig) { v.Rule.Kind = "majority" }),
			want: "unknown rule.kind",
		},
		{
			name: "missing rule kind",
			cfg:  withVariant(func(v *VariantConfig) { v.Rule.Kind = "" }),
			want: "rule.kind",
		},
		{
			name: "threshold rule without threshold",
			cfg:  withVariant(func(v *VariantConfig) { v.Rule.Threshold = nil }),
			want: "rule.threshold",
		},
		{
			name: "threshold out of range",
			cfg:  withVariant(func(v *VariantConfig) { v.Rule.Threshold = ptr(1.5) }),
			want: "within [0,1]",
		},
		{
			name: "threshold rule without positive class",
			cfg:  withVariant(func(v *VariantConfig) { v.Rule.PositiveClass = "" }),
			want: "positive_class",
		},
		{
			name: "unknown sink",
			cfg: &Config{
				Server:   ServerConfig{Addr: ":8080"},
				Variants: []VariantConfig{injuryVariant()},
				Events:   EventsConfig{Sinks: []events.SinkConfig{{Type: "kafka"}}},
			},
			want: "unknown type",
		},
		{
			name: "invalid webhook url",
			cfg: &Config{
				Server:   ServerConfig{Addr: ":8080"},
				Variants: []VariantConfig{injuryVariant()},
				Events:   EventsConfig{Sinks: []events.SinkConfig{{Type: "webhook", URL: "::://bad"}}},
			},
			want: "invalid url",
		},
		{
			name: "webhook url blocked private",
			cfg: &Config{
				Server:   ServerConfig{Addr: ":8080"},
				Variants: []VariantConfig{injuryVariant()},
				Events:   EventsConfig{Sinks: []events.SinkConfig{{Type: "webhook", URL: "http://127.0.0.1:9000/hook"}}},
			},
			want: "blocked",
		},
		{
			name: "telemetry protocol",
			cfg: &Config{
				Server:    ServerConfig{Addr: ":8080"},
				Variants:  []VariantConfig{injuryVariant()},
				Telemetry: TelemetryConfig{Enabled: true, Endpoint: "localhost:4317", Protocol: "udp"},
			},
			want: "telemetry.protocol",
		},
		{
			name: "telemetry endpoint",
			cfg: &Config{
				Server:    ServerConfig{Addr: ":8080"},
				Variants:  []VariantConfig{injuryVariant()},
				Telemetry: TelemetryConfig{Enabled: true},
			},
			want: "endpoint",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(tc.cfg); err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			} else if !contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not contain %q", err.Error(), tc.want)
			}
		})
	}
}

func TestValidateOK(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Addr: ":8080"},
		Variants: []VariantConfig{
			injuryVariant(),
			{Name: "species", Root: "artifacts/species", Rule: decision.Config{Kind: decision.KindArgmax}},
		},
		Events: EventsConfig{Sinks: []events.SinkConfig{
			{Type: "stdout"},
			{Type: "webhook", URL: "https://hooks.example.com/pedrisk"},
		}},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	loopbackOK := &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Variants: []VariantConfig{injuryVariant()},
		Events: EventsConfig{Sinks: []events.SinkConfig{
			{Type: "webhook", URL: "http://127.0.0.1:9000/hook", AllowPrivateNetworks: true},
		}},
	}
	if err := Validate(loopbackOK); err != nil {
		t.Fatalf("expected loopback allowed when allow_private_networks=true, got %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvAddr, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Events.QueueSize != 1000 || cfg.Telemetry.Protocol != "grpc" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pedrisk.yaml")
	data := `
server:
  addr: ":9090"
variants:
  - name: " injury "
    pipeline: artifacts/injury/pipeline.bin
    metadata: artifacts/injury/metadata.json
    rule:
      kind: Threshold
      positive_class: "1"
      threshold: 0.07
  - name: species
    root: artifacts/species
    rule:
      kind: argmax
events:
  sinks:
    - type: stdout
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(EnvAddr, "127.0.0.1:7000")
	t.Setenv(EnvManifestKey, "dVGYro4CAM0jPHlI")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7000" {
		t.Fatalf("addr = %q, want env override", cfg.Server.Addr)
	}
	if cfg.Artifacts.ManifestPublicKey != "dVGYro4CAM0jPHlI" {
		t.Fatalf("manifest key not taken from env")
	}
	v, ok := cfg.Variant("injury")
	if !ok {
		t.Fatalf("injury variant not found after trimming")
	}
	if v.Rule.Kind != decision.KindThreshold || v.Rule.Threshold == nil || *v.Rule.Threshold != 0.07 {
		t.Fatalf("unexpected rule %+v", v.Rule)
	}
	if v.Title != "injury" {
		t.Fatalf("title = %q, want name fallback", v.Title)
	}
	if _, ok := cfg.Variant("missing"); ok {
		t.Fatalf("unexpected variant")
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("variants: [::"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func contains(s, sub string) bool {
	return s != "" && sub != "" && strings.Contains(s, sub)
}
