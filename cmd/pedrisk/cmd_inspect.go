package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayemaqu/pedrisk/internal/artifact"
	"github.com/ayemaqu/pedrisk/internal/config"
	"github.com/ayemaqu/pedrisk/internal/format"
)

var inspectFlags struct {
	pipeline string
	metadata string
	root     string
	format   string
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the schema, classes, ranges and accuracy of an artifact pair",
	RunE:  runInspect,
}

func init() {
	f := inspectCmd.Flags()
	f.StringVar(&inspectFlags.pipeline, "pipeline", "", "Pipeline artifact path")
	f.StringVar(&inspectFlags.metadata, "metadata", "", "Metadata file path")
	f.StringVar(&inspectFlags.root, "root", "", "Versioned artifact root (instead of --pipeline/--metadata)")
	f.StringVar(&inspectFlags.format, "format", "table", "Output format: table or markdown")

	inspectCmd.MarkFlagsRequiredTogether("pipeline", "metadata")
	inspectCmd.MarkFlagsMutuallyExclusive("root", "pipeline")
}

func runInspect(cmd *cobra.Command, _ []string) error {
	mode, err := format.ParseMode(inspectFlags.format)
	if err != nil {
		return err
	}
	if inspectFlags.root == "" && inspectFlags.pipeline == "" {
		return errors.New("either --root or --pipeline and --metadata is required")
	}

	// The config only contributes the manifest key and runtime dir here, so a
	// missing or partial file is fine.
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	loader, err := newLoader(cfg.Artifacts)
	if err != nil {
		return err
	}
	defer loader.Close()

	var b *artifact.Bundle
	if inspectFlags.root != "" {
		b, err = loader.LoadRoot(inspectFlags.root)
	} else {
		b, err = loader.Load(inspectFlags.pipeline, inspectFlags.metadata)
	}
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), format.Bundle(b, mode))
	return nil
}
