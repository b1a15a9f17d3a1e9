package raster

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"sort"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Codec defines a lossless output encoding for reconstructed images
type Codec interface {
	// Encode writes img to w
	Encode(w io.Writer, img image.Image) error
	// Name returns the codec identifier (e.g., "png")
	Name() string
	// Extension returns the file extension without the dot
	Extension() string
	// MediaType returns the MIME type of the encoded output
	MediaType() string
}

// pngCodec implements Codec for PNG, the default output
type pngCodec struct {
	enc png.Encoder
}

func (c *pngCodec) Encode(w io.Writer, img image.Image) error {
	return c.enc.Encode(w, img)
}

func (c *pngCodec) Name() string      { return "png" }
func (c *pngCodec) Extension() string { return "png" }
func (c *pngCodec) MediaType() string { return "image/png" }

// tiffCodec implements Codec for deflate compressed TIFF
type tiffCodec struct{}

func (c *tiffCodec) Encode(w io.Writer, img image.Image) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

func (c *tiffCodec) Name() string      { return "tiff" }
func (c *tiffCodec) Extension() string { return "tiff" }
func (c *tiffCodec) MediaType() string { return "image/tiff" }

// bmpCodec implements Codec for uncompressed BMP
type bmpCodec struct{}

func (c *bmpCodec) Encode(w io.Writer, img image.Image) error {
	return bmp.Encode(w, img)
}

func (c *bmpCodec) Name() string      { return "bmp" }
func (c *bmpCodec) Extension() string { return "bmp" }
func (c *bmpCodec) MediaType() string { return "image/bmp" }

var (
	CodecPNG  Codec = &pngCodec{enc: png.Encoder{CompressionLevel: png.BestCompression}}
	CodecTIFF Codec = &tiffCodec{}
	CodecBMP  Codec = &bmpCodec{}
)

// codecsByName maps codec names to implementations
var codecsByName = map[string]Codec{
	"png":  CodecPNG,
	"tiff": CodecTIFF,
	"tif":  CodecTIFF, // alias
	"bmp":  CodecBMP,
}

// CodecByName looks up an output codec, ok is false for unknown names
func CodecByName(name string) (Codec, bool) {
	c, ok := codecsByName[name]
	return c, ok
}

// CodecNames lists the registered codec names
func CodecNames() []string {
	names := make([]string, 0, len(codecsByName))
	for n := range codecsByName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Encode renders img with the codec into a byte slice
func Encode(c Codec, img image.Image) ([]byte, error) {
	if c == nil {
		c = CodecPNG
	}
	var buf bytes.Buffer
	if err := c.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
