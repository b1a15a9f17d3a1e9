// Package raster converts between encoded image files and the 8 bit
// non-premultiplied RGBA buffers the engine works on.
//
// Decoding accepts anything the registered decoders understand (PNG, JPEG,
// GIF, WebP, BMP, TIFF). Encoding is lossless only so that reconstructed
// pixels reach the caller exactly as computed.
package raster

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeError reports an input that is not a decodable image
type DecodeError struct {
	Format string // detected format, empty when unknown
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("decode %s image: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode reads an encoded image into a fresh NRGBA buffer with its origin at (0,0).
// The detected format name is returned alongside.
func Decode(data []byte) (*image.NRGBA, string, error) {
	if len(data) == 0 {
		return nil, "", &DecodeError{Err: fmt.Errorf("empty input")}
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, &DecodeError{Format: format, Err: err}
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, format, &DecodeError{Format: format, Err: fmt.Errorf("invalid dimensions: %dx%d", b.Dx(), b.Dy())}
	}
	return ToNRGBA(src), format, nil
}

// ToNRGBA copies img into a new NRGBA buffer anchored at (0,0)
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+4*b.Dx()], src.Pix[si:si+4*b.Dx()])
		}
		return dst
	}
	draw.Copy(dst, image.Point{}, img, b, draw.Src, nil)
	return dst
}

// Sniff reports the media type of data and whether it looks like an image
func Sniff(data []byte) (string, bool) {
	mt := http.DetectContentType(data)
	if strings.HasPrefix(mt, "image/") {
		return mt, true
	}
	// tiff and a few others are not sniffed by net/http
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return "image/" + format, true
	}
	return mt, false
}

// DataURL renders data as a data: URL for previews
func DataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
