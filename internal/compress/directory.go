package compress

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var rasterFile = regexp.MustCompile(`(?i)\.(png|jpe?g|webp)$`)

// DirReport summarizes a Directory run.
type DirReport struct {
	Files      int
	Succeeded  int
	Compressed int
	SavedBytes int64
}

// Directory compresses every raster image directly inside dir, in name order.
// Per-file failures are logged and counted, never returned.
func Directory(ctx context.Context, fs afero.Fs, dir string, c Compressor, logger *zap.Logger) (DirReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return DirReport{}, fmt.Errorf("read image dir %s: %w", dir, err)
	}

	var report DirReport
	for _, entry := range entries {
		if entry.IsDir() || !rasterFile.MatchString(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("compress directory canceled: %w", err)
		}
		report.Files++
		path := filepath.Join(dir, entry.Name())
		res, err := c.Compress(ctx, path)
		if err != nil {
			logger.Error("compression failed", zap.String("path", path), zap.Error(err))
			continue
		}
		report.Succeeded++
		if res == nil {
			logger.Info("already optimal, skipped", zap.String("file", entry.Name()))
			continue
		}
		report.Compressed++
		report.SavedBytes += res.Saved()
		logger.Info("compressed",
			zap.String("file", entry.Name()),
			zap.Int64("original_bytes", res.OriginalBytes),
			zap.Int64("compressed_bytes", res.CompressedBytes),
			zap.String("saved", fmt.Sprintf("%.1f%%", percent(res.Saved(), res.OriginalBytes))),
		)
	}
	return report, nil
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
