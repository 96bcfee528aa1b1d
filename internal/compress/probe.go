package compress

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Noop is the Compressor used when no codec is available. It never changes a file.
type Noop struct{}

// Compress always reports no change.
func (Noop) Compress(context.Context, string) (*Result, error) {
	return nil, nil
}

// Probe round-trips a tiny PNG through codec.
func Probe(codec Codec) error {
	if codec == nil {
		return fmt.Errorf("%w: no codec configured", ErrCodecUnavailable)
	}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := codec.Encode(&buf, img, FormatPNG, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrCodecUnavailable, err)
	}
	decoded, err := codec.Decode(&buf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCodecUnavailable, err)
	}
	if decoded.Bounds().Dx() != 2 || decoded.Bounds().Dy() != 2 {
		return fmt.Errorf("%w: probe image came back as %v", ErrCodecUnavailable, decoded.Bounds())
	}
	return nil
}

// New probes codec and returns an ImageCompressor, or Noop together with an
// error wrapping ErrCodecUnavailable. Callers can keep using the returned
// Compressor either way.
func New(fs afero.Fs, codec Codec, cfg Config, logger *zap.Logger) (Compressor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := Probe(codec); err != nil {
		logger.Warn("image compression disabled", zap.Error(err))
		return Noop{}, err
	}
	return NewImageCompressor(fs, codec, cfg, logger), nil
}
