package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/jpfielding/unmark.go/pkg/mark"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

// NewPatternsCmd prints the reference patterns the engine would load
func NewPatternsCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "show the loaded reference patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := patternStore(cmd).Load()
			if err != nil {
				return err
			}
			for _, p := range set.Candidates() {
				printPattern(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	return cmd
}

func printPattern(w io.Writer, p *mark.Pattern) {
	mean, std := alphaStats(p)
	fmt.Fprintf(w, "%s: %dx%d peak=%d coverage=%.1f%% alpha=%.3f±%.3f color=%s\n",
		p.Name(), p.Width(), p.Height(), p.Peak(), 100*p.Coverage(), mean, std, markColor(p).Hex())
}

// alphaStats summarizes the opacity of the covered cells
func alphaStats(p *mark.Pattern) (mean, std float64) {
	var alphas []float64
	for i := range p.Width() * p.Height() {
		if p.Alpha8(i) > 0 {
			alphas = append(alphas, p.Alpha(i))
		}
	}
	if len(alphas) < 2 {
		return stat.Mean(alphas, nil), 0
	}
	return stat.MeanStdDev(alphas, nil)
}

// markColor is the opacity weighted mean mark color, black for an empty tile
func markColor(p *mark.Pattern) colorful.Color {
	var sum [3]float64
	var weight float64
	for i := range p.Width() * p.Height() {
		a := p.Alpha(i)
		c := p.Color(i)
		for k := range sum {
			sum[k] += a * c[k]
		}
		weight += a
	}
	if weight == 0 {
		return colorful.Color{}
	}
	return colorful.Color{R: sum[0] / weight / 255, G: sum[1] / weight / 255, B: sum[2] / weight / 255}.Clamped()
}
