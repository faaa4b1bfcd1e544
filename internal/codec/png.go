package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/corona10/goimagehash"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrEmptyInput is returned when there are no bytes to decode.
var ErrEmptyInput = errors.New("no image data")

// DefaultMaxDistance tolerates the small hash drift caused by resampling
// different color models of the same picture.
const DefaultMaxDistance = 10

// Compression names accepted by ParseCompression.
const (
	CompressionDefault = "default"
	CompressionNone    = "none"
	CompressionSpeed   = "speed"
	CompressionBest    = "best"
)

// PNG decodes any registered image format and encodes to PNG.
type PNG struct {
	encoder png.Encoder
	// MaxDistance is the largest perceptual hash distance Verify accepts.
	MaxDistance int
}

// NewPNG creates a codec with the given compression level.
func NewPNG(level png.CompressionLevel) *PNG {
	return &PNG{
		encoder:     png.Encoder{CompressionLevel: level},
		MaxDistance: DefaultMaxDistance,
	}
}

// ParseCompression maps a compression name to a png level.
func ParseCompression(name string) (png.CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CompressionDefault:
		return png.DefaultCompression, nil
	case CompressionNone:
		return png.NoCompression, nil
	case CompressionSpeed:
		return png.BestSpeed, nil
	case CompressionBest:
		return png.BestCompression, nil
	default:
		return 0, fmt.Errorf("unknown png compression %q", name)
	}
}

// Decode reads an image from its complete encoded bytes.
func (c *PNG) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode image: %s image has no pixels", format)
	}
	return img, nil
}

// Encode writes img as PNG.
func (c *PNG) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Verify decodes the encoded PNG again and compares its perceptual hash and
// bounds with the source image.
func (c *PNG) Verify(src image.Image, encoded []byte) error {
	out, err := png.Decode(bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("re-read png: %w", err)
	}
	if src.Bounds().Size() != out.Bounds().Size() {
		return fmt.Errorf("png size %v differs from source %v", out.Bounds().Size(), src.Bounds().Size())
	}

	want, err := goimagehash.PerceptionHash(src)
	if err != nil {
		return fmt.Errorf("hash source image: %w", err)
	}
	got, err := goimagehash.PerceptionHash(out)
	if err != nil {
		return fmt.Errorf("hash png: %w", err)
	}
	distance, err := want.Distance(got)
	if err != nil {
		return fmt.Errorf("compare hashes: %w", err)
	}
	if distance > c.MaxDistance {
		return fmt.Errorf("png differs from source (hash distance %d)", distance)
	}
	return nil
}
