// Package hashing implements the content-addressed hash engine (C1):
// deterministic hashing of structured manifests, and an on-disk hash
// manifest store under .moon/cache/hashes.
//
// Grounded on the original internal/fs hashing helpers (HashFileHashes,
// HashTask: accumulate named content blocks, serialize, hash) but
// realized over an explicit wire contract: an ordered JSON document of
// {name, data} blocks, SHA-256 over its canonical bytes, rather than a
// capnproto+xxhash scheme — see DESIGN.md.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moonrepo/moon/internal/statestore"
)

// NamedContent is one labeled, serialized content block within a manifest.
type NamedContent struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// Manifest is the on-disk hash manifest document: an ordered list of
// named content blocks. json.Marshal preserves slice order and sorts any
// nested map keys, which together satisfy the "canonical JSON"
// requirement this manifest format needs.
type Manifest struct {
	Contents []NamedContent `json:"contents"`
}

// Hasher accumulates labeled content blocks under a single label, then
// produces a digest via SaveManifest.
type Hasher struct {
	label    string
	contents []NamedContent
}

// CreateHasher returns a new accumulator identified by label (used only
// for diagnostics/logging, not hashed).
func CreateHasher(label string) *Hasher {
	return &Hasher{label: label}
}

// HashContent pushes a labeled content block, serializing value with
// encoding/json (which sorts map keys and uses canonical number forms).
func (h *Hasher) HashContent(name string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("hashing: marshal content %q: %w", name, err)
	}
	h.contents = append(h.contents, NamedContent{Name: name, Data: data})
	return nil
}

// Label returns the hasher's diagnostic label.
func (h *Hasher) Label() string {
	return h.label
}

// manifestDigest computes the 64-char lowercase hex SHA-256 digest of a
// manifest's canonical JSON bytes, and returns those bytes alongside it so
// callers can write them without re-marshaling.
func manifestDigest(m Manifest) (digest string, bytes []byte, err error) {
	bytes, err = json.Marshal(m)
	if err != nil {
		return "", nil, fmt.Errorf("hashing: marshal manifest: %w", err)
	}
	sum := sha256.Sum256(bytes)
	return hex.EncodeToString(sum[:]), bytes, nil
}

// Store is the hash engine's on-disk presence: a cache root under which
// hashes/<digest>.json manifests and outputs/<digest>.tar.gz archives
// live.
type Store struct {
	cacheDir string
}

// NewStore returns a Store rooted at cacheDir (typically
// "<workspace>/.moon/cache").
func NewStore(cacheDir string) *Store {
	return &Store{cacheDir: cacheDir}
}

// HashesDir returns the directory manifests are written to.
func (s *Store) HashesDir() string {
	return filepath.Join(s.cacheDir, "hashes")
}

// OutputsDir returns the directory archives are written to.
func (s *Store) OutputsDir() string {
	return filepath.Join(s.cacheDir, "outputs")
}

// GetArchivePath returns the archive path for digest.
func (s *Store) GetArchivePath(digest string) string {
	return filepath.Join(s.OutputsDir(), digest+".tar.gz")
}

// ManifestPath returns the manifest path for digest.
func (s *Store) ManifestPath(digest string) string {
	return filepath.Join(s.HashesDir(), digest+".json")
}

// SaveManifest writes the hasher's accumulated content to
// hashes/<digest>.json atomically if absent, and returns the digest. Two
// manifests with identical content blocks in identical order hash to the
// same digest.
func (s *Store) SaveManifest(h *Hasher) (string, error) {
	manifest := Manifest{Contents: h.contents}
	digest, bytes, err := manifestDigest(manifest)
	if err != nil {
		return "", err
	}

	path := s.ManifestPath(digest)
	if _, err := os.Stat(path); err == nil {
		return digest, nil // already written, digest is the cache key
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("hashing: stat manifest: %w", err)
	}

	if err := statestore.AtomicWriteFile(path, bytes, 0o644); err != nil {
		return "", fmt.Errorf("hashing: write manifest: %w", err)
	}
	return digest, nil
}

// SaveManifestWithoutHasher is a convenience for single-content hashes,
// e.g. change detection in execute_if_changed.
func (s *Store) SaveManifestWithoutHasher(name string, value interface{}) (string, error) {
	h := CreateHasher(name)
	if err := h.HashContent(name, value); err != nil {
		return "", err
	}
	return s.SaveManifest(h)
}
