// Package manifest reads and writes the YAML summary of a prefetch run.
package manifest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// FileName is the manifest's default name inside the asset directory.
const FileName = "manifest.yaml"

// Manifest maps every registered URL to its local file.
type Manifest struct {
	RunID       string    `yaml:"run_id"`
	GeneratedAt time.Time `yaml:"generated_at"`
	Entries     []Entry   `yaml:"entries"`
}

// Entry is one registered URL.
type Entry struct {
	URL     string `yaml:"url"`
	File    string `yaml:"file"`
	Bytes   int64  `yaml:"bytes"`
	Status  string `yaml:"status"`
	Hash    string `yaml:"hash,omitempty"`
	BlobURI string `yaml:"blob_uri,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// Lookup returns the entry for url.
func (m Manifest) Lookup(url string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.URL == url {
			return e, true
		}
	}
	return Entry{}, false
}

// Write stores m at path, replacing any previous manifest atomically.
func Write(fs afero.Fs, path string, m Manifest) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	tmp, err := afero.TempFile(fs, dir, filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("create manifest temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// Read loads the manifest at path.
func Read(fs afero.Fs, path string) (Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}
