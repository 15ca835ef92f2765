package artifact

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	manifestName  = "manifest.json"
	signatureName = "manifest.sig"
)

// ManifestFile describes one file entry in manifest.json.
type ManifestFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest mirrors manifest.json.
type Manifest struct {
	Model     string         `json:"model,omitempty"`
	Version   string         `json:"version,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	Files     []ManifestFile `json:"files"`
}

// ManifestSignature holds manifest.sig contents when written as JSON. A bare
// base64 or hex string is accepted too.
type ManifestSignature struct {
	Algorithm string `json:"algorithm"`
	Signature string `json:"signature"`
}

// verifyAgainstManifest checks path against the manifest in its directory.
// Without a public key a missing manifest means there is nothing to check.
// With one, both manifest.json and manifest.sig are required and the
// signature must verify. A listed file must match its size and digest.
func verifyAgainstManifest(path string, publicKey []byte) error {
	dir := filepath.Dir(path)
	manifestBytes, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			if len(publicKey) > 0 {
				return fmt.Errorf("%s is required when a manifest public key is configured", manifestName)
			}
			return nil
		}
		return fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}

	if len(publicKey) > 0 {
		sigEncoded, sigAlg, err := readSignatureFile(filepath.Join(dir, signatureName))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%s is required when a manifest public key is configured", signatureName)
			}
			return err
		}
		if err := verifyManifest(manifestBytes, sigEncoded, sigAlg, publicKey); err != nil {
			return err
		}
	}

	base := filepath.Base(path)
	for _, f := range manifest.Files {
		local, err := resolveBundlePath(dir, filepath.FromSlash(f.Path))
		if err != nil {
			return fmt.Errorf("resolve path %s: %w", f.Path, err)
		}
		if local != filepath.Join(dir, base) {
			continue
		}
		return checkDigest(local, f)
	}
	return fmt.Errorf("%s is not listed in %s", base, manifestName)
}

func checkDigest(local string, f ManifestFile) error {
	fh, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer fh.Close()

	h := sha256.New()
	n, err := io.Copy(h, fh)
	if err != nil {
		return fmt.Errorf("hash %s: %w", f.Path, err)
	}
	if f.Size > 0 && n != f.Size {
		return fmt.Errorf("size mismatch for %s: expected %d got %d", f.Path, f.Size, n)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if f.SHA256 != "" && !strings.EqualFold(sum, f.SHA256) {
		return fmt.Errorf("sha256 mismatch for %s: expected %s got %s", f.Path, f.SHA256, sum)
	}
	return nil
}

// BuildManifest hashes the named files under dir.
func BuildManifest(dir string, names ...string) (Manifest, error) {
	m := Manifest{}
	for _, name := range names {
		local, err := resolveBundlePath(dir, filepath.FromSlash(name))
		if err != nil {
			return Manifest{}, err
		}
		fh, err := os.Open(local)
		if err != nil {
			return Manifest{}, fmt.Errorf("open %s: %w", name, err)
		}
		h := sha256.New()
		n, err := io.Copy(h, fh)
		fh.Close()
		if err != nil {
			return Manifest{}, fmt.Errorf("hash %s: %w", name, err)
		}
		m.Files = append(m.Files, ManifestFile{Path: filepath.ToSlash(name), SHA256: hex.EncodeToString(h.Sum(nil)), Size: n})
	}
	return m, nil
}

// WriteManifest writes m as manifest.json under dir. With a private key it
// also writes manifest.sig over the exact bytes written.
func WriteManifest(dir string, m Manifest, priv ed25519.PrivateKey) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if priv == nil {
		return nil
	}
	sig, err := json.Marshal(ManifestSignature{
		Algorithm: "ed25519",
		Signature: base64.StdEncoding.EncodeToString(ed25519.Sign(priv, data)),
	})
	if err != nil {
		return fmt.Errorf("encode manifest signature: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, signatureName), sig, 0o644); err != nil {
		return fmt.Errorf("write manifest signature: %w", err)
	}
	return nil
}

func readSignatureFile(path string) (encoded string, alg string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", err
		}
		return "", "", fmt.Errorf("read manifest signature: %w", err)
	}
	var sig ManifestSignature
	if jsonErr := json.Unmarshal(data, &sig); jsonErr == nil && strings.TrimSpace(sig.Signature) != "" {
		return strings.TrimSpace(sig.Signature), sig.Algorithm, nil
	}
	return strings.TrimSpace(string(data)), "ed25519", nil
}

func verifyManifest(manifestBytes []byte, sigEncoded, sigAlgorithm string, pk []byte) error {
	if len(pk) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid manifest public key length: %d", len(pk))
	}
	alg := strings.ToLower(strings.TrimSpace(sigAlgorithm))
	if alg == "" {
		alg = "ed25519"
	}
	if alg != "ed25519" {
		return fmt.Errorf("unsupported signature algorithm %q", alg)
	}

	sig, err := decodeSignature(sigEncoded)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if !ed25519.Verify(pk, manifestBytes, sig) {
		return errors.New("manifest signature verification failed")
	}
	return nil
}

func decodeSignature(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, errors.New("signature is empty")
	}
	if b, err := hex.DecodeString(v); err == nil && len(b) == ed25519.SignatureSize {
		return b, nil
	}
	for _, dec := range []func(string) ([]byte, error){
		base64.StdEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
	} {
		if b, err := dec(v); err == nil && len(b) == ed25519.SignatureSize {
			return b, nil
		}
	}
	return nil, fmt.Errorf("unable to decode signature to %d bytes", ed25519.SignatureSize)
}

// DecodePublicKey accepts a base64 (standard or URL, padded or raw) encoded
// ed25519 public key.
func DecodePublicKey(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	decoders := []func(string) ([]byte, error){
		base64.StdEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
		base64.URLEncoding.DecodeString,
		base64.RawURLEncoding.DecodeString,
	}
	for _, dec := range decoders {
		if b, err := dec(v); err == nil {
			if len(b) != ed25519.PublicKeySize {
				return nil, fmt.Errorf("manifest public key is %d bytes, want %d", len(b), ed25519.PublicKeySize)
			}
			return b, nil
		}
	}
	return nil, errors.New("unable to decode manifest public key")
}

// DecodePrivateKey accepts a base64 encoded ed25519 private key or seed.
func DecodePrivateKey(v string) (ed25519.PrivateKey, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}
	switch len(b) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(b), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(b), nil
	default:
		return nil, fmt.Errorf("signing key is %d bytes, want %d or %d", len(b), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

// resolveBundlePath joins rel onto base, refusing absolute paths and paths
// that escape base.
func resolveBundlePath(base, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("empty path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute path %q not allowed", rel)
	}
	cleanBase := filepath.Clean(base)
	joined := filepath.Join(cleanBase, rel)
	r, err := filepath.Rel(cleanBase, joined)
	if err != nil {
		return "", err
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", rel, base)
	}
	return joined, nil
}
