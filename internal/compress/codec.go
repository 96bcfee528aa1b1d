package compress

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the lossy+lossless WebP decoder with image.Decode
)

// Format identifies a raster encoding by its canonical name.
type Format string

// Supported formats.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// ErrFormatUnsupported is returned by a Codec that cannot encode the requested format.
var ErrFormatUnsupported = errors.New("image format not supported")

// FormatFromPath maps a file extension onto a Format.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, true
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".webp":
		return FormatWebP, true
	default:
		return "", false
	}
}

// Codec decodes and re-encodes raster images.
type Codec interface {
	Decode(r io.Reader) (image.Image, error)
	Encode(w io.Writer, img image.Image, format Format, quality int) error
}

// ImagingCodec implements Codec on top of github.com/disintegration/imaging.
// WebP is written by nativewebp, which only produces lossless VP8L.
type ImagingCodec struct{}

// Decode reads an image, honoring EXIF orientation.
func (ImagingCodec) Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Encode writes img in format. PNG ignores quality and uses the strongest
// deflate level; WebP ignores it too since the encoder is lossless.
func (ImagingCodec) Encode(w io.Writer, img image.Image, format Format, quality int) error {
	var err error
	switch format {
	case FormatPNG:
		err = imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case FormatJPEG:
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatWebP:
		err = nativewebp.Encode(w, img, nil)
	default:
		return fmt.Errorf("%w: %s", ErrFormatUnsupported, format)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}
