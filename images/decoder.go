// Package images decodes uploaded photos and derives the small
// representations the sandbox needs: a comparison fingerprint and a preview.
package images

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"pault.ag/go/cbeff/jpeg2000"
)

// Format names returned by Decode.
const (
	FormatJPEG     = "jpeg"
	FormatJPEG2000 = "jpeg2000"
)

var ErrUnsupportedFormat = errors.New("unsupported or invalid image format")

// Decode tries JPEG first, then JPEG 2000 (common for identity document
// photos), then every format registered with the image package.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrUnsupportedFormat
	}

	if img, err := jpeg.Decode(bytes.NewReader(data)); err == nil {
		return img, FormatJPEG, nil
	}

	if img, err := jpeg2000.Parse(data); err == nil {
		return img, FormatJPEG2000, nil
	}

	if img, format, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, format, nil
	}

	return nil, "", ErrUnsupportedFormat
}
