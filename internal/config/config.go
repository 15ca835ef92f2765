package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ayemaqu/pedrisk/internal/decision"
	"github.com/ayemaqu/pedrisk/internal/events"
)

// Environment variables that override file values.
const (
	EnvAddr             = "PEDRISK_ADDR"
	EnvManifestKey      = "PEDRISK_MANIFEST_PUBLIC_KEY"
	EnvTelemetryEnabled = "PEDRISK_TELEMETRY_ENABLED"
)

// Config holds pedrisk configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Variants  []VariantConfig `yaml:"variants"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr              string `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	MaxBodyBytes      int64  `yaml:"max_body_bytes"`
	MaxInFlight       int    `yaml:"max_in_flight_requests"`
	ReadTimeoutMs     int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs    int    `yaml:"write_timeout_ms"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms"`
}

type ArtifactsConfig struct {
	// ManifestPublicKey is a base64 ed25519 key that verifies manifest.sig.
	ManifestPublicKey string `yaml:"manifest_public_key"`
	// RuntimeDir is searched for the onnxruntime shared library.
	RuntimeDir string `yaml:"runtime_dir"`
}

// VariantConfig names one deployed pipeline. Either Root (a versioned
// artifact directory with state.json) or Pipeline + Metadata must be set.
type VariantConfig struct {
	Name     string          `yaml:"name"`
	Title    string          `yaml:"title"`
	Root     string          `yaml:"root"`
	Pipeline string          `yaml:"pipeline"`
	Metadata string          `yaml:"metadata"`
	Rule     decision.Config `yaml:"rule"`
}

type EventsConfig struct {
	QueueSize         int                 `yaml:"queue_size"`
	Workers           int                 `yaml:"workers"`
	ShutdownTimeoutMs int                 `yaml:"shutdown_timeout_ms"`
	Sinks             []events.SinkConfig `yaml:"sinks"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

// Load reads configuration from a YAML file and applies environment
// overrides. If the file doesn't exist, it returns the default config.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			MaxBodyBytes:      64 << 10,
			MaxInFlight:       64,
			ReadTimeoutMs:     5000,
			WriteTimeoutMs:    10000,
			ShutdownTimeoutMs: 5000,
		},
		Events: EventsConfig{
			QueueSize:         1000,
			Workers:           2,
			ShutdownTimeoutMs: 2000,
		},
		Telemetry: TelemetryConfig{
			Protocol: "grpc",
		},
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvManifestKey)); v != "" {
		cfg.Artifacts.ManifestPublicKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryEnabled)); v != "" {
		cfg.Telemetry.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 64 << 10
	}
	if cfg.Server.MaxInFlight <= 0 {
		cfg.Server.MaxInFlight = 64
	}
	if cfg.Events.QueueSize <= 0 {
		cfg.Events.QueueSize = 1000
	}
	if cfg.Events.Workers <= 0 {
		cfg.Events.Workers = 2
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	for i := range cfg.Variants {
		v := &cfg.Variants[i]
		v.Name = strings.TrimSpace(v.Name)
		if v.Title == "" {
			v.Title = v.Name
		}
		v.Rule.Kind = decision.Kind(strings.ToLower(strings.TrimSpace(string(v.Rule.Kind))))
	}
}

// Variant returns the variant called name.
func (c *Config) Variant(name string) (VariantConfig, bool) {
	for _, v := range c.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return VariantConfig{}, false
}
