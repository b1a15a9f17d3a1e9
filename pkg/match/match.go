// Package match locates a tiled overlay in an image.
//
// For every candidate pattern and every phase of its tiling grid the matcher
// compares the image at tile aligned probe positions against what an overlay
// composited over the local background would look like there. The local
// background at a probe is interpolated from the nearest positions where the
// pattern is fully transparent, so it is read from untouched pixels of the
// image itself.
//
// The confidence of a phase is the share of the residual energy the overlay
// model explains over a "nothing composited here" model:
//
//	confidence = 1 - sum((O - E)^2) / sum((O - B)^2),  E = a*M + (1-a)*B
//
// where O is the observed value, B the interpolated background, a and M the
// pattern opacity and color. A phase that lines up with a real overlay scores
// close to 1, plain content scores at or below 0.
//
// Periodic content that is merely brighter than its surroundings can explain
// part of that energy too. Two gates reject it: the least squares gain of the
// observed lift O-B against the predicted lift a*(M-B) must be close to 1, and
// the two must correlate across samples wherever the prediction varies.
package match

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"

	"github.com/jpfielding/unmark.go/pkg/mark"
	"github.com/jpfielding/unmark.go/pkg/raster"
)

// Options tunes detection
type Options struct {
	// Minimum confidence for a candidate to count as present.
	MinConfidence float64
	// Candidates within this confidence of the best one are treated as tied.
	TieMargin float64
	// Ties favor the smallest pitch when the shorter image edge is below
	// this many pixels, and the largest pitch otherwise.
	SmallEdgeLimit int
	// Upper bound on tile instances sampled per phase.
	MaxTiles int
	// Number of highest opacity cells used to scan every phase.
	CoarseProbes int
	// Number of cells used to rescore the best phases.
	RefineProbes int
	// Cells at or above this fraction of the peak opacity may be refine probes.
	RefineAlphaFrac float64
	// Phases per candidate carried from the coarse scan to the rescoring.
	Finalists int
	// Fewer samples than this inside the image yield zero confidence.
	MinSamples int
	// Root mean square of the background residual, per channel, below which a
	// phase carries no information.
	MinContrast float64
	// Largest accepted deviation from 1 of the fitted overlay gain.
	GainTolerance float64
	// Minimum correlation of observed and predicted lift across samples.
	MinCorrelation float64
}

// DefaultOptions are tuned on the shipped 48 and 96 pixel assets
func DefaultOptions() Options {
	return Options{
		MinConfidence:   0.7,
		TieMargin:       0.05,
		SmallEdgeLimit:  1024,
		MaxTiles:        64,
		CoarseProbes:    24,
		RefineProbes:    256,
		RefineAlphaFrac: 0.25,
		Finalists:       8,
		MinSamples:      8,
		MinContrast:     2.0,
		GainTolerance:   0.3,
		MinCorrelation:  0.5,
	}
}

// TilingMatch is where and how strongly a pattern was found
type TilingMatch struct {
	Pattern    *mark.Pattern
	PhaseX     int // grid origin, in [0, Pattern.Width())
	PhaseY     int // grid origin, in [0, Pattern.Height())
	Confidence float64
	Samples    int // probe samples behind Confidence
}

func (m TilingMatch) String() string {
	name := "none"
	if m.Pattern != nil {
		name = m.Pattern.String()
	}
	return fmt.Sprintf("%s phase=(%d,%d) confidence=%.3f samples=%d", name, m.PhaseX, m.PhaseY, m.Confidence, m.Samples)
}

// NoPatternFoundError reports that no candidate reached the threshold
type NoPatternFoundError struct {
	Best      float64 // highest confidence of any candidate
	Threshold float64
}

func (e *NoPatternFoundError) Error() string {
	return fmt.Sprintf("no overlay found: best confidence %.3f below %.3f", e.Best, e.Threshold)
}

// Match finds the candidate pattern tiled across img and the phase of its grid
func Match(img *image.NRGBA, candidates []*mark.Pattern, opts Options) (TilingMatch, error) {
	if img == nil {
		return TilingMatch{}, fmt.Errorf("nil image provided")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return TilingMatch{}, fmt.Errorf("invalid image dimensions %dx%d", b.Dx(), b.Dy())
	}
	if b.Min != (image.Point{}) {
		img = raster.ToNRGBA(img)
	}

	scores := make([]TilingMatch, 0, len(candidates))
	for _, p := range candidates {
		if p == nil {
			continue
		}
		m := search(img, p, opts)
		slog.Debug("candidate scored",
			slog.String("pattern", p.String()),
			slog.Int("phase_x", m.PhaseX),
			slog.Int("phase_y", m.PhaseY),
			slog.Float64("confidence", m.Confidence),
			slog.Int("samples", m.Samples))
		scores = append(scores, m)
	}
	return resolve(scores, b.Dx(), b.Dy(), opts)
}

// resolve applies the threshold and the pitch tie-break to per candidate bests
func resolve(scores []TilingMatch, width, height int, opts Options) (TilingMatch, error) {
	best := 0.0
	var accepted []TilingMatch
	for _, s := range scores {
		best = math.Max(best, s.Confidence)
		if s.Pattern != nil && s.Confidence >= opts.MinConfidence {
			accepted = append(accepted, s)
		}
	}
	if len(accepted) == 0 {
		return TilingMatch{}, &NoPatternFoundError{Best: best, Threshold: opts.MinConfidence}
	}

	tied := accepted[:0]
	for _, s := range accepted {
		if best-s.Confidence <= opts.TieMargin {
			tied = append(tied, s)
		}
	}
	sort.SliceStable(tied, func(i, j int) bool {
		return pitchArea(tied[i].Pattern) < pitchArea(tied[j].Pattern)
	})
	if min(width, height) < opts.SmallEdgeLimit {
		return tied[0], nil
	}
	return tied[len(tied)-1], nil
}

func pitchArea(p *mark.Pattern) int { return p.Width() * p.Height() }

type phaseScore struct {
	dx, dy int
	conf   float64
}

// search scans every phase of p with the coarse probes and rescores the
// strongest phases with the refine probes
func search(img *image.NRGBA, p *mark.Pattern, opts Options) TilingMatch {
	none := TilingMatch{Pattern: p}
	coarse := coarseProbes(p, opts.CoarseProbes)
	if len(coarse) == 0 {
		return none
	}
	s := scorer{img: img, pattern: p, opts: opts}

	finalists := make([]phaseScore, 0, opts.Finalists+1)
	for dy := 0; dy < p.Height(); dy++ {
		for dx := 0; dx < p.Width(); dx++ {
			conf, _ := s.score(dx, dy, coarse)
			if conf <= 0 {
				continue
			}
			finalists = insertTop(finalists, phaseScore{dx: dx, dy: dy, conf: conf}, opts.Finalists)
		}
	}

	refine := refineProbes(p, opts.RefineProbes, opts.RefineAlphaFrac)
	if len(refine) == 0 {
		refine = coarse
	}
	best := none
	for _, f := range finalists {
		conf, n := s.score(f.dx, f.dy, refine)
		if conf > best.Confidence {
			best = TilingMatch{Pattern: p, PhaseX: f.dx, PhaseY: f.dy, Confidence: conf, Samples: n}
		}
	}
	return best
}

// insertTop keeps top sorted by descending confidence, holding at most limit
// entries. Equal scores keep their arrival order.
func insertTop(top []phaseScore, ps phaseScore, limit int) []phaseScore {
	if limit <= 0 {
		limit = 1
	}
	i := sort.Search(len(top), func(i int) bool { return top[i].conf < ps.conf })
	if i >= limit {
		return top
	}
	top = append(top, phaseScore{})
	copy(top[i+1:], top[i:])
	top[i] = ps
	if len(top) > limit {
		top = top[:limit]
	}
	return top
}
