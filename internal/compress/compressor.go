// Package compress shrinks raster images in place. A file is only replaced when
// the re-encoded variant is strictly smaller, and the temporary output never
// outlives a call.
package compress

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// tmpSuffix marks the in-progress output written next to the original.
const tmpSuffix = ".tmp"

// Result reports the sizes of a successful in-place compression.
type Result struct {
	OriginalBytes   int64
	CompressedBytes int64
}

// Saved returns the number of bytes removed.
func (r Result) Saved() int64 {
	return r.OriginalBytes - r.CompressedBytes
}

// Compressor compresses the image at path. A nil Result with a nil error means
// nothing changed.
type Compressor interface {
	Compress(ctx context.Context, path string) (*Result, error)
}

// Config tunes resizing and the size-tiered quality rule.
type Config struct {
	// MaxDimension bounds width and height; larger images are fit inside it.
	MaxDimension int
	// DefaultQuality applies to inputs at or below MediumThreshold bytes.
	DefaultQuality int
	// MediumQuality applies above MediumThreshold bytes.
	MediumQuality int
	// LowQuality applies above LowThreshold bytes.
	LowQuality      int
	MediumThreshold int64
	LowThreshold    int64
	// MinOutputBytes keeps a compressed file from falling below the asset
	// validity threshold; zero disables the floor.
	MinOutputBytes int64
}

// DefaultConfig returns the 2000px bound and 80/75/70 quality tiers at 1MB/2MB.
func DefaultConfig() Config {
	return Config{
		MaxDimension:    2000,
		DefaultQuality:  80,
		MediumQuality:   75,
		LowQuality:      70,
		MediumThreshold: 1_000_000,
		LowThreshold:    2_000_000,
	}
}

// ImageCompressor is the Codec-backed Compressor.
type ImageCompressor struct {
	fs     afero.Fs
	codec  Codec
	cfg    Config
	logger *zap.Logger
}

// NewImageCompressor builds an ImageCompressor without probing the codec; use New for that.
func NewImageCompressor(fs afero.Fs, codec Codec, cfg Config, logger *zap.Logger) *ImageCompressor {
	defaults := DefaultConfig()
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = defaults.MaxDimension
	}
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = defaults.DefaultQuality
	}
	if cfg.MediumQuality <= 0 {
		cfg.MediumQuality = defaults.MediumQuality
	}
	if cfg.LowQuality <= 0 {
		cfg.LowQuality = defaults.LowQuality
	}
	if cfg.MediumThreshold <= 0 {
		cfg.MediumThreshold = defaults.MediumThreshold
	}
	if cfg.LowThreshold <= 0 {
		cfg.LowThreshold = defaults.LowThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageCompressor{fs: fs, codec: codec, cfg: cfg, logger: logger}
}

// Quality picks the encoder quality for an input of size bytes.
func (c *ImageCompressor) Quality(size int64) int {
	switch {
	case size > c.cfg.LowThreshold:
		return c.cfg.LowQuality
	case size > c.cfg.MediumThreshold:
		return c.cfg.MediumQuality
	default:
		return c.cfg.DefaultQuality
	}
}

// Compress re-encodes path and swaps it in when the result is strictly smaller.
func (c *ImageCompressor) Compress(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compress canceled: %w", err)
	}
	format, ok := FormatFromPath(path)
	if !ok {
		c.logger.Debug("skipping compression for unsupported format", zap.String("path", path))
		return nil, nil
	}

	info, err := c.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	originalSize := info.Size()

	img, err := c.decode(path)
	if err != nil {
		return nil, err
	}
	img = c.fit(img)

	tmpPath := path + tmpSuffix
	defer c.removeTemp(tmpPath)

	outSize, err := c.encode(tmpPath, img, format, c.Quality(originalSize))
	if err != nil {
		return nil, err
	}

	if outSize >= originalSize || (c.cfg.MinOutputBytes > 0 && outSize < c.cfg.MinOutputBytes) {
		c.logger.Debug("compression kept original",
			zap.String("path", path),
			zap.Int64("original_bytes", originalSize),
			zap.Int64("compressed_bytes", outSize),
		)
		return nil, nil
	}
	if err := c.fs.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("replace %s: %w", path, err)
	}
	return &Result{OriginalBytes: originalSize, CompressedBytes: outSize}, nil
}

func (c *ImageCompressor) decode(path string) (image.Image, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			c.logger.Warn("close source image", zap.String("path", path), zap.Error(cerr))
		}
	}()
	img, err := c.codec.Decode(f)
	if err != nil {
		return nil, &CodecError{Op: "decode", Path: path, Err: err}
	}
	return img, nil
}

// fit shrinks img to the configured bound, preserving aspect ratio. Smaller images are untouched.
func (c *ImageCompressor) fit(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= c.cfg.MaxDimension && b.Dy() <= c.cfg.MaxDimension {
		return img
	}
	return imaging.Fit(img, c.cfg.MaxDimension, c.cfg.MaxDimension, imaging.Lanczos)
}

func (c *ImageCompressor) encode(tmpPath string, img image.Image, format Format, quality int) (int64, error) {
	out, err := c.fs.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmpPath, err)
	}
	encErr := c.codec.Encode(out, img, format, quality)
	closeErr := out.Close()
	if encErr != nil {
		if errors.Is(encErr, ErrFormatUnsupported) {
			return 0, encErr
		}
		return 0, &CodecError{Op: "encode", Path: tmpPath, Err: encErr}
	}
	if closeErr != nil {
		return 0, fmt.Errorf("close %s: %w", tmpPath, closeErr)
	}
	info, err := c.fs.Stat(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", tmpPath, err)
	}
	return info.Size(), nil
}

func (c *ImageCompressor) removeTemp(tmpPath string) {
	if err := c.fs.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("failed to remove temp image", zap.String("path", tmpPath), zap.Error(err))
	}
}
