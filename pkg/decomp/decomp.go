// Package decomp undoes the alpha composite of a located overlay.
//
// Each pixel under an overlay cell with opacity a and color M was rendered as
// O = a*M + (1-a)*U. Given the tiling phase, U is recovered per pixel as
// (O - a*M) / (1-a). Cells at or above the opaque limit carry no trace of U;
// those pixels are filled from the nearest recovered pixels instead.
package decomp

import (
	"image"
	"math"

	"github.com/jpfielding/unmark.go/pkg/match"
)

// Options tunes reconstruction
type Options struct {
	// Opacity at or above which a pixel is treated as unrecoverable.
	OpaqueAlpha float64
}

// DefaultOptions matches the reverse blend limit used for the shipped assets
func DefaultOptions() Options {
	return Options{OpaqueAlpha: 0.99}
}

// Reconstruct inverts the composite with DefaultOptions
func Reconstruct(img *image.NRGBA, m match.TilingMatch) *image.NRGBA {
	return DefaultOptions().Reconstruct(img, m)
}

// Reconstruct rewrites img in place and returns it. Pixels under fully
// transparent cells are left untouched. The alpha channel of img is kept.
func (o Options) Reconstruct(img *image.NRGBA, m match.TilingMatch) *image.NRGBA {
	p := m.Pattern
	if img == nil || p == nil {
		return img
	}
	limit := o.OpaqueAlpha
	if limit <= 0 || limit >= 1 {
		limit = DefaultOptions().OpaqueAlpha
	}

	b := img.Bounds()
	var opaque []image.Point
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cell := p.Cell(x-b.Min.X, y-b.Min.Y, m.PhaseX, m.PhaseY)
			if p.Alpha8(cell) == 0 {
				continue
			}
			a := p.Alpha(cell)
			if a >= limit {
				opaque = append(opaque, image.Pt(x, y))
				continue
			}
			unblend(img.Pix[img.PixOffset(x, y):], a, p.Color(cell))
		}
	}
	if len(opaque) == 0 {
		return img
	}

	// recovered marks the pixels the fill may read from
	recovered := func(x, y int) bool {
		cell := p.Cell(x-b.Min.X, y-b.Min.Y, m.PhaseX, m.PhaseY)
		return p.Alpha(cell) < limit
	}
	reach := max(p.Width(), p.Height())
	for _, pt := range opaque {
		if fill(img, pt, reach, recovered) {
			continue
		}
		cell := p.Cell(pt.X-b.Min.X, pt.Y-b.Min.Y, m.PhaseX, m.PhaseY)
		unblend(img.Pix[img.PixOffset(pt.X, pt.Y):], limit, p.Color(cell))
	}
	return img
}

// unblend solves O = a*M + (1-a)*U for U over the rgb channels of px
func unblend(px []uint8, a float64, m [3]float64) {
	inv := 1 - a
	for c := 0; c < 3; c++ {
		u := (float64(px[c]) - a*m[c]) / inv
		px[c] = uint8(math.Round(math.Max(0, math.Min(255, u))))
	}
}

var directions = [4]image.Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// fill sets pt to the inverse distance weighted mean of the nearest recovered
// pixel in each axis direction, searching at most reach steps. It reports
// false when no direction finds one.
func fill(img *image.NRGBA, pt image.Point, reach int, recovered func(x, y int) bool) bool {
	b := img.Bounds()
	var sum [3]float64
	var weight float64
	for _, dir := range directions {
		for d := 1; d <= reach; d++ {
			q := pt.Add(dir.Mul(d))
			if !q.In(b) {
				break
			}
			if !recovered(q.X, q.Y) {
				continue
			}
			w := 1 / float64(d)
			o := img.PixOffset(q.X, q.Y)
			for c := 0; c < 3; c++ {
				sum[c] += w * float64(img.Pix[o+c])
			}
			weight += w
			break
		}
	}
	if weight == 0 {
		return false
	}
	o := img.PixOffset(pt.X, pt.Y)
	for c := 0; c < 3; c++ {
		img.Pix[o+c] = uint8(math.Round(sum[c] / weight))
	}
	return true
}
