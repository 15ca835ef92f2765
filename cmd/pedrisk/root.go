package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ayemaqu/pedrisk/internal/artifact"
	"github.com/ayemaqu/pedrisk/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	envFile    string
}

var rootCmd = &cobra.Command{
	Use:   "pedrisk",
	Short: "Score crash records with fitted risk pipelines",
	Long: "pedrisk loads fitted classification pipelines and their metadata,\n" +
		"scores feature records and applies a threshold or argmax decision rule.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: loadEnvFile,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "pedrisk.yaml", "Path to pedrisk config file")
	f.StringVar(&rootFlags.envFile, "env-file", ".env", "Optional .env file loaded before the config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.Version = version
}

// loadEnvFile applies the .env file, if any. Variables already set in the
// environment win.
func loadEnvFile(_ *cobra.Command, _ []string) error {
	path := strings.TrimSpace(rootFlags.envFile)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLoader(cfg config.ArtifactsConfig) (*artifact.Loader, error) {
	pub, err := artifact.DecodePublicKey(cfg.ManifestPublicKey)
	if err != nil {
		return nil, err
	}
	return artifact.NewLoader(artifact.Options{RuntimeDir: cfg.RuntimeDir, PublicKey: pub}), nil
}
