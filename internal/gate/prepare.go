package gate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"math"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultQuality      = 70
	DefaultMaxDimension = 2048
	DefaultMaxPixels    = 50_000_000
)

var (
	// ErrUnsupportedImage is returned for payloads that do not decode as a
	// supported raster format.
	ErrUnsupportedImage = errors.New("unsupported image format")
	// ErrImageTooLarge is returned when the declared pixel count exceeds the
	// limit. It is detected from the header, before any pixel is decoded.
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// PrepareOptions control re-encoding. Zero values select the defaults.
type PrepareOptions struct {
	Quality      int
	MaxDimension int
	MaxPixels    int
}

// Prepared is a storage-ready JPEG.
type Prepared struct {
	Data         []byte
	Width        int
	Height       int
	SourceFormat string
}

// PrepareForStorage decodes data, flattens transparency onto white, bounds
// the largest side by MaxDimension and re-encodes it as JPEG.
func PrepareForStorage(data []byte, opts PrepareOptions) (*Prepared, error) {
	if opts.Quality < 1 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if err := CheckDimensions(data, opts.MaxPixels); err != nil {
		return nil, err
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	out := resizeToFit(flatten(src), opts.MaxDimension)

	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, out, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	b := out.Bounds()
	return &Prepared{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy(), SourceFormat: format}, nil
}

// CheckDimensions reads only the image header and rejects images declaring
// more than maxPixels pixels. A non-positive maxPixels selects DefaultMaxPixels.
func CheckDimensions(data []byte, maxPixels int) error {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// flatten composites src over an opaque white canvas anchored at the origin.
func flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func resizeToFit(src *image.RGBA, maxSide int) *image.RGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxSide && h <= maxSide {
		return src
	}

	scale := float64(maxSide) / float64(w)
	if h > w {
		scale = float64(maxSide) / float64(h)
	}
	newW := max(1, int(math.Round(float64(w)*scale)))
	newH := max(1, int(math.Round(float64(h)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Src, nil)
	return dst
}
