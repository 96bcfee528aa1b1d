// Package placeholder writes local SVG stand-ins for preview screenshots that
// have not been (or could not be) downloaded.
package placeholder

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Extension is appended to a base name to form the placeholder file name.
const Extension = ".svg"

const svgTemplate = `<svg width="1200" height="630" xmlns="http://www.w3.org/2000/svg">
  <rect width="1200" height="630" fill="#f3f4f6"/>
  <text x="50%%" y="45%%" font-family="Arial, sans-serif" font-size="32" fill="#6b7280" text-anchor="middle" dominant-baseline="middle">
    %s
  </text>
  <text x="50%%" y="55%%" font-family="Arial, sans-serif" font-size="18" fill="#9ca3af" text-anchor="middle" dominant-baseline="middle">
    Placeholder - Replace with actual screenshot
  </text>
</svg>`

// Label turns a base name like "www-npmjs-com" back into "www.npmjs.com".
func Label(base string) string {
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, "-", ".")
}

// SVG renders the 1200x630 placeholder for base.
func SVG(base string) []byte {
	return []byte(fmt.Sprintf(svgTemplate, html.EscapeString(Label(base))))
}

// Writer creates placeholder files in a directory.
type Writer struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// NewWriter returns a Writer targeting dir.
func NewWriter(fs afero.Fs, dir string, logger *zap.Logger) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{fs: fs, dir: dir, logger: logger}
}

// Write creates <base>.svg unless it already exists. It reports the path and
// whether a file was written.
func (w *Writer) Write(base string) (string, bool, error) {
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		return "", false, errors.New("placeholder base name is required")
	}
	path := filepath.Join(w.dir, base+Extension)

	if _, err := w.fs.Stat(path); err == nil {
		w.logger.Debug("placeholder exists", zap.String("path", path))
		return path, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", false, fmt.Errorf("stat %s: %w", path, err)
	}

	if err := w.fs.MkdirAll(w.dir, 0o750); err != nil {
		return "", false, fmt.Errorf("create placeholder dir: %w", err)
	}
	if err := afero.WriteFile(w.fs, path, SVG(base), 0o644); err != nil {
		return "", false, fmt.Errorf("write placeholder %s: %w", path, err)
	}
	w.logger.Info("placeholder written", zap.String("path", path))
	return path, true, nil
}

// Report summarizes WriteAll.
type Report struct {
	Written  int
	Existing int
}

// WriteAll writes a placeholder per base name and stops at the first error.
func (w *Writer) WriteAll(bases []string) (Report, error) {
	var report Report
	for _, base := range bases {
		_, created, err := w.Write(base)
		if err != nil {
			return report, err
		}
		if created {
			report.Written++
		} else {
			report.Existing++
		}
	}
	return report, nil
}
