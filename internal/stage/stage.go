// Package stage copies build artifacts into the standalone server directory.
package stage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrRootMissing means the standalone output has not been built yet.
var ErrRootMissing = errors.New("standalone directory does not exist")

// Pair is one source tree and where it lands below the standalone root.
type Pair struct {
	Src string `mapstructure:"src"`
	Dst string `mapstructure:"dst"`
}

// Plan lists the copies for one stage run. Dst paths are relative to Root.
type Plan struct {
	Root  string `mapstructure:"root"`
	Pairs []Pair `mapstructure:"pairs"`
}

// DefaultPlan mirrors the Next.js standalone layout.
func DefaultPlan() Plan {
	return Plan{
		Root: ".next/standalone",
		Pairs: []Pair{
			{Src: ".next/static", Dst: ".next/static"},
			{Src: "public", Dst: "public"},
		},
	}
}

// Report summarizes a Run.
type Report struct {
	Copied  []string
	Skipped []string
	Files   int
}

// Run copies every pair of plan. Missing sources are skipped with a warning.
func Run(fs afero.Fs, plan Plan, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var report Report
	ok, err := afero.DirExists(fs, plan.Root)
	if err != nil {
		return report, fmt.Errorf("stat standalone root: %w", err)
	}
	if !ok {
		return report, fmt.Errorf("%w: %s", ErrRootMissing, plan.Root)
	}

	for _, pair := range plan.Pairs {
		exists, err := afero.Exists(fs, pair.Src)
		if err != nil {
			return report, fmt.Errorf("stat %s: %w", pair.Src, err)
		}
		if !exists {
			logger.Warn("stage source missing, skipping", zap.String("src", pair.Src))
			report.Skipped = append(report.Skipped, pair.Src)
			continue
		}
		dst := filepath.Join(plan.Root, pair.Dst)
		n, err := CopyTree(fs, pair.Src, dst)
		if err != nil {
			return report, err
		}
		logger.Info("staged", zap.String("src", pair.Src), zap.String("dst", dst), zap.Int("files", n))
		report.Copied = append(report.Copied, pair.Src)
		report.Files += n
	}
	return report, nil
}

// CopyTree recursively copies src into dst, creating directories as needed and
// overwriting existing files. It returns the number of files copied.
func CopyTree(fs afero.Fs, src, dst string) (int, error) {
	copied := 0
	err := afero.Walk(fs, src, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			if err := fs.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			return nil
		}
		if err := copyFile(fs, path, target, info.Mode().Perm()); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return copied, nil
}

func copyFile(fs afero.Fs, src, dst string, perm os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := fs.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}
