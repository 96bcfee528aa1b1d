package asset

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// ErrInvalidThreshold is returned when a validity threshold is not positive.
var ErrInvalidThreshold = errors.New("validity threshold must be > 0")

// Inspect reports the state of path. A missing file is not an error.
func Inspect(fs afero.Fs, path string, minBytes int64) (Local, error) {
	if minBytes <= 0 {
		return Local{Path: path}, ErrInvalidThreshold
	}
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Local{Path: path}, nil
		}
		return Local{Path: path}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Local{Path: path}, fmt.Errorf("asset path %s is a directory", path)
	}
	return Local{
		Path:      path,
		SizeBytes: info.Size(),
		Exists:    true,
		Validated: info.Size() >= minBytes,
	}, nil
}

// IsValid reports whether path exists and holds at least minBytes bytes.
func IsValid(fs afero.Fs, path string, minBytes int64) bool {
	local, err := Inspect(fs, path, minBytes)
	return err == nil && local.Validated
}

// EnsureValid inspects path and deletes it when it exists but is below minBytes.
// The returned bool is true when the asset has to be fetched again.
func EnsureValid(fs afero.Fs, path string, minBytes int64) (Local, bool, error) {
	local, err := Inspect(fs, path, minBytes)
	if err != nil {
		return local, false, err
	}
	if local.Validated {
		return local, false, nil
	}
	if local.Exists {
		if err := fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return local, false, fmt.Errorf("remove undersized asset %s: %w", path, err)
		}
		local.Exists = false
		local.SizeBytes = 0
	}
	return local, true, nil
}
