package match

import (
	"image"
	"math"
	"sort"

	"github.com/jpfielding/unmark.go/pkg/mark"
)

// probe is a pattern cell with known distances to the nearest fully
// transparent cell in each axis direction, 0 when the direction has none
type probe struct {
	cx, cy      int
	a           float64
	m           [3]float64
	left, right int
	up, down    int
}

func (pr probe) usable() bool {
	return (pr.left > 0 && pr.right > 0) || (pr.up > 0 && pr.down > 0)
}

func newProbe(p *mark.Pattern, cell int) probe {
	w := p.Width()
	cx, cy := cell%w, cell/w
	return probe{
		cx:    cx,
		cy:    cy,
		a:     p.Alpha(cell),
		m:     p.Color(cell),
		left:  clearDistance(p, cx, cy, -1, 0),
		right: clearDistance(p, cx, cy, 1, 0),
		up:    clearDistance(p, cx, cy, 0, -1),
		down:  clearDistance(p, cx, cy, 0, 1),
	}
}

// clearDistance walks from (cx,cy) in direction (sx,sy), wrapping within the
// tile, and returns the steps to the first zero opacity cell
func clearDistance(p *mark.Pattern, cx, cy, sx, sy int) int {
	n := p.Width()
	if sy != 0 {
		n = p.Height()
	}
	for d := 1; d < n; d++ {
		if p.Alpha8(p.Cell(cx+d*sx, cy+d*sy, 0, 0)) == 0 {
			return d
		}
	}
	return 0
}

// coarseProbes are the limit most opaque usable cells, ties by cell order
func coarseProbes(p *mark.Pattern, limit int) []probe {
	cells := make([]int, 0, p.Width()*p.Height())
	for i := 0; i < p.Width()*p.Height(); i++ {
		if p.Alpha8(i) > 0 {
			cells = append(cells, i)
		}
	}
	sort.SliceStable(cells, func(i, j int) bool {
		return p.Alpha8(cells[i]) > p.Alpha8(cells[j])
	})
	probes := make([]probe, 0, limit)
	for _, c := range cells {
		if len(probes) >= limit {
			break
		}
		if pr := newProbe(p, c); pr.usable() {
			probes = append(probes, pr)
		}
	}
	return probes
}

// refineProbes spreads up to limit usable probes evenly over the cells whose
// opacity is at least frac of the peak
func refineProbes(p *mark.Pattern, limit int, frac float64) []probe {
	floor := uint8(math.Max(1, math.Ceil(frac*float64(p.Peak()))))
	var all []probe
	for i := 0; i < p.Width()*p.Height(); i++ {
		if p.Alpha8(i) < floor {
			continue
		}
		if pr := newProbe(p, i); pr.usable() {
			all = append(all, pr)
		}
	}
	if limit <= 0 || len(all) <= limit {
		return all
	}
	probes := make([]probe, 0, limit)
	for k := 0; k < limit; k++ {
		probes = append(probes, all[k*len(all)/limit])
	}
	return probes
}

// scorer evaluates phases of one pattern against one image
type scorer struct {
	img     *image.NRGBA
	pattern *mark.Pattern
	opts    Options
}

// tiles returns the first tile origin along an axis of the given length and
// the number of tiles that touch it
func tiles(phase, pitch, length int) (first, count int) {
	first = phase % pitch
	if first > 0 {
		first -= pitch
	}
	count = (length - first + pitch - 1) / pitch
	return first, count
}

// score returns the confidence of phase (dx,dy) and the number of samples used
func (s *scorer) score(dx, dy int, probes []probe) (float64, int) {
	img := s.img
	W, H := img.Rect.Dx(), img.Rect.Dy()
	pw, ph := s.pattern.Width(), s.pattern.Height()

	ox0, nx := tiles(dx, pw, W)
	oy0, ny := tiles(dy, ph, H)
	step := 1
	if s.opts.MaxTiles > 0 && nx*ny > s.opts.MaxTiles {
		step = int(math.Ceil(math.Sqrt(float64(nx*ny) / float64(s.opts.MaxTiles))))
	}

	var sseNull, sseModel float64
	var lf lift
	n := 0
	for ty := 0; ty < ny; ty += step {
		oy := oy0 + ty*ph
		for tx := 0; tx < nx; tx += step {
			ox := ox0 + tx*pw
			for _, pr := range probes {
				px, py := ox+pr.cx, oy+pr.cy
				if px < 0 || py < 0 || px >= W || py >= H {
					continue
				}
				var bg [3]float64
				pairs := 0
				if pr.left > 0 && pr.right > 0 && px-pr.left >= 0 && px+pr.right < W {
					l := img.PixOffset(px-pr.left, py)
					r := img.PixOffset(px+pr.right, py)
					wl := float64(pr.right) / float64(pr.left+pr.right)
					for c := 0; c < 3; c++ {
						bg[c] += wl*float64(img.Pix[l+c]) + (1-wl)*float64(img.Pix[r+c])
					}
					pairs++
				}
				if pr.up > 0 && pr.down > 0 && py-pr.up >= 0 && py+pr.down < H {
					u := img.PixOffset(px, py-pr.up)
					d := img.PixOffset(px, py+pr.down)
					wu := float64(pr.down) / float64(pr.up+pr.down)
					for c := 0; c < 3; c++ {
						bg[c] += wu*float64(img.Pix[u+c]) + (1-wu)*float64(img.Pix[d+c])
					}
					pairs++
				}
				if pairs == 0 {
					continue
				}
				o := img.PixOffset(px, py)
				var seen, want float64
				for c := 0; c < 3; c++ {
					b := bg[c] / float64(pairs)
					null := float64(img.Pix[o+c]) - b
					pred := pr.a * (pr.m[c] - b)
					model := null - pred
					sseNull += null * null
					sseModel += model * model
					lf.cross += null * pred
					lf.pred += pred * pred
					seen += null
					want += pred
				}
				lf.add(want, seen)
				n++
			}
		}
	}

	if n < s.opts.MinSamples || n == 0 {
		return 0, n
	}
	if sseNull < float64(3*n)*s.opts.MinContrast*s.opts.MinContrast || sseNull == 0 {
		return 0, n
	}
	if !lf.fits(s.opts) {
		return 0, n
	}
	conf := 1 - sseModel/sseNull
	return math.Max(0, math.Min(1, conf)), n
}

// lift compares the observed brightening O-B with the predicted a*(M-B).
// The per channel sums give the fitted gain, the per sample channel totals
// give the correlation.
type lift struct {
	cross, pred float64 // sum(obs*pred), sum(pred^2) over channels

	n             float64
	sx, sy        float64
	sxx, syy, sxy float64
}

func (l *lift) add(pred, obs float64) {
	l.n++
	l.sx += pred
	l.sy += obs
	l.sxx += pred * pred
	l.syy += obs * obs
	l.sxy += pred * obs
}

// gain is the least squares factor mapping predicted onto observed lift
func (l *lift) gain() float64 {
	if l.pred == 0 {
		return 0
	}
	return l.cross / l.pred
}

// correlation of predicted and observed sample totals. ok is false when the
// prediction is too flat for the correlation to say anything.
func (l *lift) correlation(minStd float64) (r float64, ok bool) {
	if l.n < 2 {
		return 0, false
	}
	mx, my := l.sx/l.n, l.sy/l.n
	vx := l.sxx/l.n - mx*mx
	vy := l.syy/l.n - my*my
	if vx <= 0 || math.Sqrt(vx) < minStd {
		return 0, false
	}
	if vy <= 0 {
		return 0, true
	}
	return (l.sxy/l.n - mx*my) / math.Sqrt(vx*vy), true
}

// fits reports whether the lift looks like the overlay was composited here
func (l *lift) fits(opts Options) bool {
	if opts.GainTolerance > 0 && math.Abs(l.gain()-1) > opts.GainTolerance {
		return false
	}
	if opts.MinCorrelation > 0 {
		if r, ok := l.correlation(opts.MinContrast); ok && r < opts.MinCorrelation {
			return false
		}
	}
	return true
}
