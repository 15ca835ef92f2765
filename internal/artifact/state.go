package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File names inside one version directory of an artifact root.
const (
	PipelineFile     = "pipeline.bin"
	MetadataFile     = "metadata.json"
	MetadataYAMLFile = "metadata.yaml"
)

// State tracks the active and previous versions under an artifact root.
type State struct {
	CurrentVersion  string `json:"current_version"`
	PreviousVersion string `json:"previous_version,omitempty"`
}

// Paths locates the artifacts of one resolved version.
type Paths struct {
	Version  string
	Pipeline string
	Metadata string
}

func stateFilePath(root string) string {
	return filepath.Join(root, "state.json")
}

// LoadState reads <root>/state.json.
func LoadState(root string) (State, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return State{}, errors.New("artifact root is empty")
	}

	data, err := os.ReadFile(stateFilePath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, fmt.Errorf("%w: %s", ErrStateNotFound, root)
		}
		return State{}, fmt.Errorf("read artifact state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("%w: decode %s: %v", ErrArtifactCorrupt, stateFilePath(root), err)
	}
	if strings.TrimSpace(state.CurrentVersion) == "" {
		return State{}, fmt.Errorf("%w: %s has no current_version", ErrArtifactCorrupt, stateFilePath(root))
	}
	return state, nil
}

// SaveState writes <root>/state.json atomically.
func SaveState(root string, state State) error {
	root = strings.TrimSpace(root)
	if root == "" {
		return errors.New("artifact root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create artifact root: %w", err)
	}

	state.CurrentVersion = strings.TrimSpace(state.CurrentVersion)
	state.PreviousVersion = strings.TrimSpace(state.PreviousVersion)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact state: %w", err)
	}

	tmpFile, err := os.CreateTemp(root, "state.json.tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		tmpFile.Close()
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), stateFilePath(root)); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// ResolveRoot returns the artifact paths of the version state.json points at.
func ResolveRoot(root string) (Paths, error) {
	state, err := LoadState(root)
	if err != nil {
		return Paths{}, err
	}
	return versionPaths(root, state.CurrentVersion)
}

// Activate points state.json at version, keeping the previously active version
// so it can be restored. The version directory must hold a pipeline and metadata.
func Activate(root, version string) (State, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return State{}, errors.New("version is empty")
	}
	if _, err := versionPaths(root, version); err != nil {
		return State{}, err
	}

	prev, err := LoadState(root)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return State{}, err
	}
	next := State{CurrentVersion: version, PreviousVersion: prev.CurrentVersion}
	if prev.CurrentVersion == version {
		next.PreviousVersion = prev.PreviousVersion
	}
	if err := SaveState(root, next); err != nil {
		return State{}, err
	}
	return next, nil
}

func versionPaths(root, version string) (Paths, error) {
	dir, err := resolveBundlePath(root, version)
	if err != nil {
		return Paths{}, fmt.Errorf("%w: version %q: %v", ErrArtifactNotFound, version, err)
	}
	if !versionDirLooksValid(dir) {
		return Paths{}, fmt.Errorf("%w: %s has no %s and metadata", ErrArtifactNotFound, dir, PipelineFile)
	}
	meta := filepath.Join(dir, MetadataFile)
	if _, err := os.Stat(meta); err != nil {
		meta = filepath.Join(dir, MetadataYAMLFile)
	}
	return Paths{
		Version:  version,
		Pipeline: filepath.Join(dir, PipelineFile),
		Metadata: meta,
	}, nil
}

func versionDirLooksValid(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, PipelineFile)); err != nil {
		return false
	}
	for _, name := range []string{MetadataFile, MetadataYAMLFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}
