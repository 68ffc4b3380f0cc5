package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support

	"media-migrator/internal/logging"
)

const (
	// DefaultMaxWidth is the widest image the canonical tier stores.
	DefaultMaxWidth = 1920

	// DefaultQuality is the JPEG quality used when none is configured.
	DefaultQuality = 82

	// MaxImagePixels rejects inputs that would need more than ~200MB to
	// decode into RGBA.
	MaxImagePixels = 50_000_000
)

// ErrTooLarge is returned for images whose pixel count exceeds MaxImagePixels.
var ErrTooLarge = errors.New("image exceeds pixel limit")

var log = logging.With("media")

// Options control one transform.
type Options struct {
	MaxWidth int
	Quality  int
}

// Normalize fills zero or out-of-range fields with defaults.
func (o Options) Normalize() Options {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.Quality < 1 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Result is the encoded output plus the dimensions before and after.
// Original dimensions are measured after orientation is applied.
type Result struct {
	Data           []byte
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
	OriginalSize   int64
	Size           int64
}

// OriginalDimensions formats the input size as WxH.
func (r *Result) OriginalDimensions() string {
	return fmt.Sprintf("%dx%d", r.OriginalWidth, r.OriginalHeight)
}

// ProcessedDimensions formats the output size as WxH.
func (r *Result) ProcessedDimensions() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Transformer turns source bytes into canonical JPEG bytes.
type Transformer interface {
	Transform(data []byte, opts Options) (*Result, error)
}

// Func adapts a function to Transformer.
type Func func(data []byte, opts Options) (*Result, error)

// Transform calls f.
func (f Func) Transform(data []byte, opts Options) (*Result, error) {
	return f(data, opts)
}

// NewTransformer returns the libvips backend when preferVips is set and
// libvips starts, otherwise the pure Go backend.
func NewTransformer(preferVips bool) Transformer {
	if preferVips {
		if err := InitVips(); err == nil && IsVipsAvailable() {
			log.Info("Using libvips image backend")
			return Func(ProcessVips)
		} else if err != nil {
			log.Warn("libvips unavailable, falling back to pure Go backend: %v", err)
		}
	}
	log.Info("Using pure Go image backend")
	return Func(Process)
}

// Process decodes data, applies EXIF orientation, downscales to
// opts.MaxWidth when wider (preserving aspect ratio) and encodes JPEG.
func Process(data []byte, opts Options) (*Result, error) {
	opts = opts.Normalize()

	if err := checkPixels(data); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	res := &Result{
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
		OriginalSize:   int64(len(data)),
	}

	if res.OriginalWidth > opts.MaxWidth {
		img = imaging.Resize(img, opts.MaxWidth, 0, imaging.Lanczos)
	}
	img = flatten(img)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	out := img.Bounds()
	res.Data = buf.Bytes()
	res.Width = out.Dx()
	res.Height = out.Dy()
	res.Size = int64(buf.Len())

	log.Debug("Transformed %s -> %s (%d -> %d bytes)",
		res.OriginalDimensions(), res.ProcessedDimensions(), res.OriginalSize, res.Size)
	return res, nil
}

// checkPixels reads only the header to reject decompression bombs.
func checkPixels(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// flatten composites images with transparency onto white; JPEG has no alpha.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
