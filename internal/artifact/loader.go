// Package artifact loads fitted pipelines and their metadata from disk, once
// per path, and checks that the two agree.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ayemaqu/pedrisk/internal/metadata"
	"github.com/ayemaqu/pedrisk/internal/pipeline"
	"github.com/ayemaqu/pedrisk/internal/redact"
)

// Options configures a Loader.
type Options struct {
	// RuntimeDir is searched for the onnxruntime shared library.
	RuntimeDir string
	// PublicKey makes manifest.json and manifest.sig mandatory and verifies the
	// signature. Nil skips signature checks.
	PublicKey []byte
}

// Loader caches loaded artifacts per cleaned absolute path for its lifetime.
// Concurrent first loads of the same path are collapsed into one read.
type Loader struct {
	opts Options

	mu        sync.Mutex
	pipelines map[string]pipeline.Pipeline
	metas     map[string]*metadata.Metadata
	group     singleflight.Group
}

// NewLoader returns an empty loader.
func NewLoader(opts Options) *Loader {
	return &Loader{
		opts:      opts,
		pipelines: make(map[string]pipeline.Pipeline),
		metas:     make(map[string]*metadata.Metadata),
	}
}

// LoadPipeline returns the pipeline at path, decoding it on first use.
func (l *Loader) LoadPipeline(path string) (pipeline.Pipeline, error) {
	key, err := cacheKey(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if p, ok := l.pipelines[key]; ok {
		l.mu.Unlock()
		return p, nil
	}
	l.mu.Unlock()

	v, err, _ := l.group.Do("pipeline:"+key, func() (any, error) {
		l.mu.Lock()
		if p, ok := l.pipelines[key]; ok {
			l.mu.Unlock()
			return p, nil
		}
		l.mu.Unlock()

		p, err := l.readPipeline(key)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.pipelines[key] = p
		l.mu.Unlock()
		redact.Logf("artifact pipeline loaded path=%s name=%s version=%s classes=%v", key, p.Name(), p.Version(), p.Classes())
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(pipeline.Pipeline), nil
}

// LoadMetadata returns the validated metadata at path, parsing it on first use.
func (l *Loader) LoadMetadata(path string) (*metadata.Metadata, error) {
	key, err := cacheKey(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if m, ok := l.metas[key]; ok {
		l.mu.Unlock()
		return m, nil
	}
	l.mu.Unlock()

	v, err, _ := l.group.Do("metadata:"+key, func() (any, error) {
		l.mu.Lock()
		if m, ok := l.metas[key]; ok {
			l.mu.Unlock()
			return m, nil
		}
		l.mu.Unlock()

		m, err := l.readMetadata(key)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.metas[key] = m
		l.mu.Unlock()
		redact.Logf("artifact metadata loaded path=%s classes=%v features=%v", key, m.Classes, m.FeatureNames())
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*metadata.Metadata), nil
}

// Load loads a pipeline and its metadata and checks that they agree.
func (l *Loader) Load(pipelinePath, metadataPath string) (*Bundle, error) {
	p, err := l.LoadPipeline(pipelinePath)
	if err != nil {
		return nil, err
	}
	m, err := l.LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}
	if err := checkCoupling(p, m); err != nil {
		return nil, fmt.Errorf("%s + %s: %w", pipelinePath, metadataPath, err)
	}
	return &Bundle{Pipeline: p, Metadata: m}, nil
}

// LoadRoot resolves the active version under a versioned artifact root and
// loads it.
func (l *Loader) LoadRoot(root string) (*Bundle, error) {
	paths, err := ResolveRoot(root)
	if err != nil {
		return nil, err
	}
	b, err := l.Load(paths.Pipeline, paths.Metadata)
	if err != nil {
		return nil, err
	}
	b.Version = paths.Version
	return b, nil
}

// Close releases every cached pipeline. The loader must not be used afterwards.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for key, p := range l.pipelines {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(l.pipelines, key)
	}
	return errors.Join(errs...)
}

func (l *Loader) readPipeline(path string) (pipeline.Pipeline, error) {
	if err := l.checkFile(path); err != nil {
		return nil, err
	}
	definition, err := pipeline.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, path, err)
	}
	p, err := pipeline.Open(definition, l.opts.RuntimeDir)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalid) {
			return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, path, err)
		}
		return nil, fmt.Errorf("open pipeline %s: %w", path, err)
	}
	return p, nil
}

func (l *Loader) readMetadata(path string) (*metadata.Metadata, error) {
	if err := l.checkFile(path); err != nil {
		return nil, err
	}
	m, err := metadata.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifactCorrupt, path, err)
	}
	return m, nil
}

// checkFile confirms path is a regular file and, when its directory carries a
// manifest, that the file matches it.
func (l *Loader) checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrArtifactNotFound, path)
	}
	if err := verifyAgainstManifest(path, l.opts.PublicKey); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, path, err)
	}
	return nil
}

func cacheKey(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrArtifactNotFound)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}
