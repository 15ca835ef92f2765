package artifact

import "errors"

var (
	// ErrArtifactNotFound is returned when an artifact path does not resolve to a file.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrArtifactCorrupt is returned when an artifact exists but cannot be decoded
	// or fails its manifest checks.
	ErrArtifactCorrupt = errors.New("artifact corrupt")
	// ErrMetadataMismatch is returned when metadata disagrees with the pipeline it
	// ships with.
	ErrMetadataMismatch = errors.New("metadata does not match pipeline")
	// ErrStateNotFound is returned when an artifact root has no state.json.
	ErrStateNotFound = errors.New("artifact state not found")
)
