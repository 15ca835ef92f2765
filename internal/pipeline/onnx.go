package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var runtimeMu sync.Mutex

// onnxScorer runs an embedded ONNX graph over the preprocessed vector. The
// session is bound to preallocated tensors, so runs are serialized.
type onnxScorer struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	classes int

	mu sync.Mutex
}

func newONNXScorer(definition ScorerDefinition, width, classes int, runtimeDir string) (*onnxScorer, error) {
	if err := initRuntime(runtimeDir); err != nil {
		return nil, err
	}

	inName := definition.InputName
	if inName == "" {
		inName = "input"
	}
	outName := definition.OutputName
	if outName == "" {
		outName = "probabilities"
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(width)))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(classes)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		definition.ONNX,
		[]string{inName},
		[]string{outName},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("%w: create onnx session: %v", ErrInvalid, err)
	}

	return &onnxScorer{
		session: session,
		input:   input,
		output:  output,
		classes: classes,
	}, nil
}

func (o *onnxScorer) score(x []float64) ([]float64, error) {
	if o == nil || o.session == nil {
		return nil, errors.New("onnx scorer not initialized")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	in := o.input.GetData()
	for i, v := range x {
		in[i] = float32(v)
	}
	if err := o.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	raw := o.output.GetData()
	out := make([]float64, o.classes)
	for i := range out {
		out[i] = float64(raw[i])
	}
	return out, nil
}

func (o *onnxScorer) probabilities() bool { return true }

func (o *onnxScorer) close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	if o.session != nil {
		errs = append(errs, o.session.Destroy())
		o.session = nil
	}
	if o.input != nil {
		errs = append(errs, o.input.Destroy())
	}
	if o.output != nil {
		errs = append(errs, o.output.Destroy())
	}
	return errors.Join(errs...)
}

func initRuntime(runtimeDir string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	libPath := resolveSharedLibraryPath(runtimeDir)
	if libPath == "" {
		return fmt.Errorf("%w: shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime", ErrRuntimeUnavailable)
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("%w: initialize: %v", ErrRuntimeUnavailable, err)
	}
	return nil
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime shared library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins; otherwise common names/locations are probed.
func resolveSharedLibraryPath(dir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	var dirs []string
	if dir != "" {
		dirs = append(dirs, dir, filepath.Join(dir, "lib"))
	}
	dirs = append(dirs, ".", "/opt/homebrew/lib", "/usr/local/lib", "/usr/lib")

	for _, d := range dirs {
		for _, name := range names {
			candidate := filepath.Join(d, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
