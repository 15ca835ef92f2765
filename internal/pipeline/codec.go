package pipeline

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// magic prefixes every pipeline artifact so foreign files are rejected before
// decompression.
var magic = []byte("PEDRISK\x00")

// Encode writes definition as magic + zstd(gob(definition)).
func Encode(w io.Writer, definition *Definition) error {
	if definition == nil {
		return fmt.Errorf("%w: definition is nil", ErrInvalid)
	}
	if _, err := w.Write(magic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(definition); err != nil {
		zw.Close()
		return fmt.Errorf("encode pipeline: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush zstd stream: %w", err)
	}
	return nil
}

// Decode reads an artifact written by Encode. The decoded definition is not
// validated; Open does that.
func Decode(r io.Reader) (*Definition, error) {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalid, err)
	}
	if !bytes.Equal(head, magic) {
		return nil, fmt.Errorf("%w: not a pedrisk pipeline artifact", ErrInvalid)
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open zstd stream: %v", ErrInvalid, err)
	}
	defer zr.Close()

	var definition Definition
	if err := gob.NewDecoder(zr).Decode(&definition); err != nil {
		return nil, fmt.Errorf("%w: decode pipeline: %v", ErrInvalid, err)
	}
	return &definition, nil
}

// ReadFile decodes the artifact at path. A missing file is returned as the
// underlying *fs.PathError so callers can test os.IsNotExist.
func ReadFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// WriteFile writes the artifact atomically.
func WriteFile(path string, definition *Definition) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, definition); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}
