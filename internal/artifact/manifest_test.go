package artifact

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayemaqu/pedrisk/internal/pipeline/pipelinetest"
)

func writeManifest(t *testing.T, dir string, m Manifest) []byte {
	t.Helper()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		t.Fatalf("encode manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return data
}

func TestManifestVerifiedOnLoad(t *testing.T) {
	dir, pp, mp := speciesDir(t)
	m, err := BuildManifest(dir, PipelineFile, MetadataFile)
	if err != nil {
		t.Fatalf("build manifest: %v", err)
	}
	writeManifest(t, dir, m)

	if _, err := newLoader(t).Load(pp, mp); err != nil {
		t.Fatalf("load with a matching manifest: %v", err)
	}
}

func TestManifestDigestMismatch(t *testing.T) {
	dir, pp, _ := speciesDir(t)
	m, err := BuildManifest(dir, PipelineFile)
	if err != nil {
		t.Fatalf("build manifest: %v", err)
	}
	m.Files[0].SHA256 = strings.Repeat("0", 64)
	writeManifest(t, dir, m)

	if _, err := newLoader(t).LoadPipeline(pp); !errors.Is(err, ErrArtifactCorrupt) {
		t.Fatalf("expected ErrArtifactCorrupt, got %v", err)
	}
}

func TestManifestSizeMismatch(t *testing.T) {
	dir, pp, _ := speciesDir(t)
	m, err := BuildManifest(dir, PipelineFile)
	if err != nil {
		t.Fatalf("build manifest: %v", err)
	}
	m.Files[0].Size++
	writeManifest(t, dir, m)

	if _, err := newLoader(t).LoadPipeline(pp); !errors.Is(err, ErrArtifactCorrupt) {
		t.Fatalf("expected ErrArtifactCorrupt, got %v", err)
	}
}

func TestManifestMustListLoadedFile(t *testing.T) {
	dir, _, mp := speciesDir(t)
	m, err := BuildManifest(dir, PipelineFile)
	if err != nil {
		t.Fatalf("build manifest: %v", err)
	}
	writeManifest(t, dir, m)

	if _, err := newLoader(t).LoadMetadata(mp); !errors.Is(err, ErrArtifactCorrupt) {
		t.Fatalf("expected ErrArtifactCorrupt for an unlisted file, got %v", err)
	}
}

func TestManifestSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	dir, pp, _ := speciesDir(t)
	m, err := BuildManifest(dir, PipelineFile)
	if err != nil {
		t.Fatalf("build manifest: %v", err)
	}
	data := writeManifest(t, dir, m)

	sig, _ := json.Marshal(ManifestSignature{
		Algorithm: "ed25519",
		Signature: base64.StdEncoding.EncodeToString(ed25519.Sign(priv, data)),
	})
	if err := os.WriteFile(filepath.Join(dir, signatureName), sig, 0o644); err != nil {
		t.Fatalf("write signature: %v", err)
	}

	if _, err := NewLoader(Options{PublicKey: pub}).LoadPipeline(pp); err != nil {
		t.Fatalf("load with a valid signature: %v", err)
	}

	otherPub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := NewLoader(Options{PublicKey: otherPub}).LoadPipeline(pp); !errors.Is(err, ErrArtifactCorrupt) {
		t.Fatalf("expected ErrArtifactCorrupt for a foreign key, got %v", err)
	}

	// Without a configured key the signature is not checked.
	if _, err := NewLoader(Options{}).LoadPipeline(pp); err != nil {
		t.Fatalf("load without a key: %v", err)
	}
}

func TestPublicKeyRequiresSignedManifest(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	dir, pp, _ := speciesDir(t)
	m, err := BuildManifest(dir, PipelineFile)
	if err != nil {
		t.Fatalf("build manifest: %v", err)
	}
	if err := WriteManifest(dir, m, priv); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	// Swap the pipeline, rebuild an unsigned manifest over it and drop the signature.
	def := pipelinetest.SpeciesDefinition()
	def.Scorer.Intercept[0] += 100
	pipelinetest.WriteFile(t, pp, def)
	m, err = BuildManifest(dir, PipelineFile)
	if err != nil {
		t.Fatalf("rebuild manifest: %v", err)
	}
	writeManifest(t, dir, m)
	if err := os.Remove(filepath.Join(dir, signatureName)); err != nil {
		t.Fatalf("remove signature: %v", err)
	}

	if _, err := NewLoader(Options{PublicKey: pub}).LoadPipeline(pp); !errors.Is(err, ErrArtifactCorrupt) {
		t.Fatalf("expected ErrArtifactCorrupt without manifest.sig, got %v", err)
	}

	if err := os.Remove(filepath.Join(dir, manifestName)); err != nil {
		t.Fatalf("remove manifest: %v", err)
	}
	if _, err := NewLoader(Options{PublicKey: pub}).LoadPipeline(pp); !errors.Is(err, ErrArtifactCorrupt) {
		t.Fatalf("expected ErrArtifactCorrupt without manifest.json, got %v", err)
	}

	// Without a key an unverified directory still loads.
	if _, err := NewLoader(Options{}).LoadPipeline(pp); err != nil {
		t.Fatalf("load without a key: %v", err)
	}
}

func TestDecodePublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	got, err := DecodePublicKey(base64.RawURLEncoding.EncodeToString(pub))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ed25519.PublicKey(got).Equal(pub) {
		t.Fatalf("decoded key differs")
	}
	if got, err := DecodePublicKey(" "); err != nil || got != nil {
		t.Fatalf("blank key should decode to nil, got %v %v", got, err)
	}
	if _, err := DecodePublicKey(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatalf("expected a short key to be rejected")
	}
}

func TestResolveBundlePathBlocksTraversal(t *testing.T) {
	for _, rel := range []string{"../evil", "a/../../evil", "/abs/path", ""} {
		if _, err := resolveBundlePath("/tmp/bundle", rel); err == nil {
			t.Fatalf("expected %q to be rejected", rel)
		}
	}
}

func TestResolveBundlePathAllowsSafe(t *testing.T) {
	got, err := resolveBundlePath("/tmp/bundle", "v2/pipeline.bin")
	if err != nil {
		t.Fatalf("expected safe path, got %v", err)
	}
	if got != filepath.Join("/tmp/bundle", "v2", "pipeline.bin") {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestWriteManifestSigned(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	dir, pp, mp := speciesDir(t)
	m, err := BuildManifest(dir, PipelineFile, MetadataFile)
	if err != nil {
		t.Fatalf("build manifest: %v", err)
	}
	key, err := DecodePrivateKey(base64.StdEncoding.EncodeToString(priv.Seed()))
	if err != nil {
		t.Fatalf("decode seed: %v", err)
	}
	if err := WriteManifest(dir, m, key); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	if _, err := NewLoader(Options{PublicKey: pub}).Load(pp, mp); err != nil {
		t.Fatalf("load signed bundle: %v", err)
	}

	if _, err := DecodePrivateKey(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatalf("expected error for a short key")
	}
}
