// Package mark holds the reference overlay graphics the engine removes.
//
// A Pattern is one tile of the overlay: a small RGBA image whose alpha is the
// per-pixel opacity the overlay was composited with. Two patterns describe
// the same graphic at two pitches. Patterns are immutable once built and are
// shared by every concurrent job.
package mark

import (
	"fmt"
	"image"
	"image/color"

	"github.com/jpfielding/unmark.go/pkg/raster"
)

// Pattern is one immutable tile of the overlay graphic
type Pattern struct {
	name   string
	width  int
	height int
	pix    []uint8      // non-premultiplied RGBA, row major
	alpha  []float64    // per cell opacity in [0,1]
	color  [][3]float64 // per cell mark color in [0,255]
	peak   uint8        // highest alpha in the tile
	filled int          // cells with non-zero alpha
}

// NewPattern builds a pattern from a decoded image.
//
// An image without any transparency is read as an overlay captured on a
// black background: the brightest channel is the opacity and the mark color
// is white.
func NewPattern(name string, img image.Image) (*Pattern, error) {
	if img == nil {
		return nil, fmt.Errorf("nil pattern image")
	}
	src := raster.ToNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid pattern dimensions: %dx%d", w, h)
	}
	if src.Opaque() {
		for i := 0; i < len(src.Pix); i += 4 {
			m := max(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
			src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 255, 255, 255, m
		}
	}

	p := &Pattern{
		name:   name,
		width:  w,
		height: h,
		pix:    src.Pix,
		alpha:  make([]float64, w*h),
		color:  make([][3]float64, w*h),
	}
	if len(p.pix) != 4*w*h {
		return nil, fmt.Errorf("pattern %s: have %d samples, want %d", name, len(p.pix)/4, w*h)
	}
	for i := range p.alpha {
		o := i * 4
		a := p.pix[o+3]
		p.alpha[i] = float64(a) / 255
		p.color[i] = [3]float64{float64(p.pix[o]), float64(p.pix[o+1]), float64(p.pix[o+2])}
		if a > 0 {
			p.filled++
		}
		p.peak = max(p.peak, a)
	}
	if p.filled == 0 {
		return nil, fmt.Errorf("pattern %s is fully transparent", name)
	}
	return p, nil
}

// Name is the asset name the pattern was loaded from
func (p *Pattern) Name() string { return p.name }

// Width is the horizontal pitch of the tiling
func (p *Pattern) Width() int { return p.width }

// Height is the vertical pitch of the tiling
func (p *Pattern) Height() int { return p.height }

// Bounds returns the tile rectangle anchored at (0,0)
func (p *Pattern) Bounds() image.Rectangle { return image.Rect(0, 0, p.width, p.height) }

// At returns the overlay color and opacity of a cell
func (p *Pattern) At(x, y int) color.NRGBA {
	o := 4 * (y*p.width + x)
	return color.NRGBA{R: p.pix[o], G: p.pix[o+1], B: p.pix[o+2], A: p.pix[o+3]}
}

// Alpha8 is the raw opacity of cell index i (row major)
func (p *Pattern) Alpha8(i int) uint8 { return p.pix[4*i+3] }

// Alpha is the opacity of cell index i in [0,1]
func (p *Pattern) Alpha(i int) float64 { return p.alpha[i] }

// Color is the overlay color of cell index i, per channel in [0,255]
func (p *Pattern) Color(i int) [3]float64 { return p.color[i] }

// Cell maps an image coordinate to the tile cell index for a tiling whose
// origin is at (phaseX, phaseY)
func (p *Pattern) Cell(x, y, phaseX, phaseY int) int {
	cx := (x - phaseX) % p.width
	if cx < 0 {
		cx += p.width
	}
	cy := (y - phaseY) % p.height
	if cy < 0 {
		cy += p.height
	}
	return cy*p.width + cx
}

// Peak is the highest opacity found in the tile
func (p *Pattern) Peak() uint8 { return p.peak }

// Coverage is the fraction of cells with any opacity
func (p *Pattern) Coverage() float64 { return float64(p.filled) / float64(p.width*p.height) }

// Image returns a copy of the tile as an NRGBA image
func (p *Pattern) Image() *image.NRGBA {
	img := image.NewNRGBA(p.Bounds())
	copy(img.Pix, p.pix)
	return img
}

// String for logs
func (p *Pattern) String() string {
	return fmt.Sprintf("%s(%dx%d)", p.name, p.width, p.height)
}
