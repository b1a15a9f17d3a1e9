package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jpfielding/unmark.go/pkg/engine"
	"github.com/jpfielding/unmark.go/pkg/match"
	"github.com/spf13/cobra"
)

// detection is the json view of one detect result
type detection struct {
	File       string  `json:"file"`
	Pattern    string  `json:"pattern,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	PhaseX     int     `json:"phaseX"`
	PhaseY     int     `json:"phaseY"`
	Confidence float64 `json:"confidence"`
	Samples    int     `json:"samples"`
	Error      string  `json:"error,omitempty"`
}

func newDetection(file string, m match.TilingMatch, err error) detection {
	d := detection{File: file}
	if err != nil {
		d.Error = err.Error()
		return d
	}
	d.Pattern = m.Pattern.Name()
	d.Width, d.Height = m.Pattern.Width(), m.Pattern.Height()
	d.PhaseX, d.PhaseY = m.PhaseX, m.PhaseY
	d.Confidence = m.Confidence
	d.Samples = m.Samples
	return d
}

// NewDetectCmd reports the overlay match of each input without cleaning
func NewDetectCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect [file|dir|-]...",
		Short: "report overlay pitch, phase and confidence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := engineOptions(cmd, "")
			if err != nil {
				return err
			}
			eng, err := engine.Create(patternStore(cmd), opts)
			if err != nil {
				return err
			}
			inputs, err := readInputs(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			var found []detection
			for _, in := range inputs {
				if err := ctx.Err(); err != nil {
					return err
				}
				m, err := eng.Detect(ctx, in.Data)
				found = append(found, newDetection(in.Name, m, err))
			}
			format, _ := cmd.Flags().GetString("format")
			return printDetections(cmd.OutOrStdout(), format, found)
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("format", "f", "json", "output format (text|json)")
	pf.Float64("min-confidence", 0, "Minimum detection confidence (default from the matcher)")
	return cmd
}

func printDetections(w io.Writer, format string, found []detection) error {
	switch format {
	case "text":
		for _, d := range found {
			if d.Error != "" {
				fmt.Fprintf(w, "%s: %s\n", d.File, d.Error)
				continue
			}
			fmt.Fprintf(w, "%s: %s %dx%d phase=%d,%d confidence=%.3f samples=%d\n",
				d.File, d.Pattern, d.Width, d.Height, d.PhaseX, d.PhaseY, d.Confidence, d.Samples)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(found)
	}
	return fmt.Errorf("unknown format %q, want text or json", format)
}
