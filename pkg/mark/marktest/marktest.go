// Package marktest builds synthetic overlays and composited images for tests.
package marktest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing/fstest"

	"github.com/jpfielding/unmark.go/pkg/mark"
)

// Diamond renders a white diamond centered in a pitch x pitch tile. Opacity
// is peak at the center and falls off linearly to zero at 0.3*pitch.
func Diamond(pitch int, peak float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, pitch, pitch))
	c := float64(pitch-1) / 2
	r := 0.3 * float64(pitch)
	for y := 0; y < pitch; y++ {
		for x := 0; x < pitch; x++ {
			d := (math.Abs(float64(x)-c) + math.Abs(float64(y)-c)) / r
			v := math.Max(0, 1-d)
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: uint8(math.Round(255 * peak * v))})
		}
	}
	return img
}

// Block renders a tile that is transparent except for a size x size square
// in its top left corner with the given color
func Block(pitch, size int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, pitch, pitch))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// MustPattern wraps mark.NewPattern for tests
func MustPattern(name string, img image.Image) *mark.Pattern {
	p, err := mark.NewPattern(name, img)
	if err != nil {
		panic(err)
	}
	return p
}

// Composite tiles p over a copy of base with the grid origin at (phaseX,
// phaseY), rounding the blended channels the way an 8 bit renderer would
func Composite(base *image.NRGBA, p *mark.Pattern, phaseX, phaseY int) *image.NRGBA {
	b := base.Bounds()
	out := image.NewNRGBA(b)
	copy(out.Pix, base.Pix)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			cell := p.Cell(x, y, phaseX, phaseY)
			if p.Alpha8(cell) == 0 {
				continue
			}
			a := p.Alpha(cell)
			m := p.Color(cell)
			o := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := a*m[c] + (1-a)*float64(out.Pix[o+c])
				out.Pix[o+c] = uint8(math.Round(v))
			}
		}
	}
	return out
}

// Gradient fills a w x h image with a smooth color ramp
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(40 + x/2),
				G: uint8(60 + y/3),
				B: uint8(90 + (x+y)/4),
				A: 255,
			})
		}
	}
	return img
}

// Ramp is a smooth ramp scaled to the image size, usable at any size
func Ramp(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(40 + 150*x/w),
				G: uint8(60 + 100*y/h),
				B: uint8(90 + 80*(x+y)/(w+h)),
				A: 255,
			})
		}
	}
	return img
}

// Checkerboard alternates black and white squares of the given size
func Checkerboard(w, h, size int) *image.NRGBA {
	img := Solid(w, h, color.NRGBA{A: 255})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/size+y/size)%2 == 1 {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	return img
}

// Dots places white disks of radius r on a dark gray grid of the given pitch
func Dots(w, h, pitch int, r float64) *image.NRGBA {
	img := Solid(w, h, color.NRGBA{R: 60, G: 60, B: 60, A: 255})
	c := float64(pitch-1) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x%pitch)-c, float64(y%pitch)-c
			if dx*dx+dy*dy <= r*r {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	return img
}

// Clone returns a deep copy of img
func Clone(img *image.NRGBA) *image.NRGBA {
	out := &image.NRGBA{
		Pix:    make([]uint8, len(img.Pix)),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	copy(out.Pix, img.Pix)
	return out
}

// Solid fills a w x h image with c
func Solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// PNG encodes img, panicking on failure
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Assets builds an in memory asset directory holding the small and large tiles
// under the default asset names
func Assets(small, large image.Image) fstest.MapFS {
	return fstest.MapFS{
		mark.SmallAsset: &fstest.MapFile{Data: PNG(small)},
		mark.LargeAsset: &fstest.MapFile{Data: PNG(large)},
	}
}

// Store serves the diamond overlay at pitches 48 and 96
func Store(peak float64) *mark.Store {
	return mark.NewStore(Assets(Diamond(48, peak), Diamond(96, peak)), mark.SmallAsset, mark.LargeAsset)
}
