package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayemaqu/pedrisk/internal/artifact"
	"github.com/ayemaqu/pedrisk/internal/pipeline"
)

var manifestFlags struct {
	signKeyEnv string
}

var manifestCmd = &cobra.Command{
	Use:   "manifest <dir>",
	Short: "Write manifest.json (and optionally manifest.sig) for an artifact directory",
	Long: `Hashes the pipeline and metadata files in <dir> into manifest.json. When
the environment variable named by --sign-key-env holds a base64 ed25519 key,
manifest.sig is written too.`,
	Args: cobra.ExactArgs(1),
	RunE: runManifest,
}

func init() {
	manifestCmd.Flags().StringVar(&manifestFlags.signKeyEnv, "sign-key-env", "PEDRISK_MANIFEST_SIGNING_KEY", "Environment variable holding the signing key")
}

func runManifest(cmd *cobra.Command, args []string) error {
	dir := args[0]
	var names []string
	for _, name := range []string{artifact.PipelineFile, artifact.MetadataFile, artifact.MetadataYAMLFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: no artifacts in %s", artifact.ErrArtifactNotFound, dir)
	}

	m, err := artifact.BuildManifest(dir, names...)
	if err != nil {
		return err
	}
	m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	if definition, err := pipeline.ReadFile(filepath.Join(dir, artifact.PipelineFile)); err == nil {
		m.Model, m.Version = definition.Name, definition.Version
	}

	var priv ed25519.PrivateKey
	if raw := strings.TrimSpace(os.Getenv(manifestFlags.signKeyEnv)); raw != "" {
		if priv, err = artifact.DecodePrivateKey(raw); err != nil {
			return err
		}
	}
	if err := artifact.WriteManifest(dir, m, priv); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, f := range m.Files {
		fmt.Fprintf(out, "%s  %s  %d\n", f.SHA256, f.Path, f.Size)
	}
	if priv != nil {
		fmt.Fprintln(out, "signed manifest.sig")
	}
	return nil
}
