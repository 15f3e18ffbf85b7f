// Package manifest lists capture artifacts with their SHA-256 digests so a
// recording and the reports derived from it can be handed over and checked
// as one set.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/gflink/internal/common"
)

const ShaAlgo = "sha256"

var ErrNoItems = errors.New("manifest has no items")

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time  `json:"createdAt"`
	ShaAlgo   string     `json:"shaAlgo"`
	Items     []Item     `json:"items"`
	Signature *Signature `json:"signature,omitempty"`
}

type Signature struct {
	Type          string `json:"type"`
	CertSubject   string `json:"certSubject,omitempty"`
	Issuer        string `json:"issuer,omitempty"`
	SignatureFile string `json:"signatureFile,omitempty"`
}

// ItemType classifies an artifact by extension.
func ItemType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gfl", ".bin", ".cap":
		return "capture"
	case ".yaml", ".yml", ".toml":
		return "mission"
	case ".jsonl", ".ndjson":
		return "diagnostics"
	case ".json":
		return "json"
	case ".pdf":
		return "pdf"
	}
	return "other"
}

// Build hashes every path. Paths are recorded as given.
func Build(paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: ShaAlgo}
	for _, p := range paths {
		digest, size, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{Path: p, Size: size, Sha256: digest, Type: ItemType(p)})
	}
	return m, nil
}

// Marshal renders m the way it is signed and stored.
func Marshal(m Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func Save(m Manifest, out string) error {
	b, err := Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

func Load(path string) (Manifest, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, data, nil
}

// Verify re-hashes every item. Relative item paths resolve against root;
// items may not escape it.
func Verify(m Manifest, root string) error {
	if m.ShaAlgo != ShaAlgo {
		return fmt.Errorf("unsupported manifest algorithm %q", m.ShaAlgo)
	}
	if len(m.Items) == 0 {
		return ErrNoItems
	}
	for _, item := range m.Items {
		if strings.TrimSpace(item.Path) == "" {
			return errors.New("manifest item missing path")
		}
		path := filepath.Clean(item.Path)
		if !filepath.IsAbs(path) {
			if path == ".." || strings.HasPrefix(path, ".."+string(filepath.Separator)) {
				return fmt.Errorf("manifest item %q escapes root", item.Path)
			}
			path = filepath.Join(root, path)
		}
		digest, size, err := common.Sha256OfFile(path)
		if err != nil {
			return fmt.Errorf("manifest item %q: %w", item.Path, err)
		}
		if digest != item.Sha256 {
			return fmt.Errorf("manifest mismatch for %s", item.Path)
		}
		if size != item.Size {
			return fmt.Errorf("manifest size mismatch for %s", item.Path)
		}
	}
	return nil
}
