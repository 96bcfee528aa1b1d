// Package sha256 fingerprints finished preview files.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// Hasher produces hex SHA-256 digests.
type Hasher struct {
	fs afero.Fs
}

// New returns a Hasher reading files from fs.
func New(fs afero.Fs) *Hasher {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Hasher{fs: fs}
}

// HashReader digests everything r yields.
func (h *Hasher) HashReader(r io.Reader) (string, error) {
	sum := sha256.New()
	if _, err := io.Copy(sum, r); err != nil {
		return "", fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// HashFile digests the file at path.
func (h *Hasher) HashFile(path string) (string, error) {
	f, err := h.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s for hashing: %w", path, err)
	}
	defer f.Close()
	return h.HashReader(f)
}
