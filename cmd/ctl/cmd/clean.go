package cmd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jpfielding/unmark.go/pkg/bundle"
	"github.com/jpfielding/unmark.go/pkg/engine"
	"github.com/jpfielding/unmark.go/pkg/raster"
	"github.com/spf13/cobra"
)

// NewCleanCmd removes the overlay from every input and writes the results
func NewCleanCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [file|dir|-]...",
		Short: "remove the tiled overlay from images",
		Long:  "Detects the overlay pitch and phase in each image, reconstructs the covered pixels and writes clean_<name> files or a zip bundle.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			opts, err := engineOptions(cmd, format)
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
			if len(inputs) == 0 {
				return fmt.Errorf("no images found in %s", strings.Join(args, ", "))
			}
			if skip, _ := cmd.Flags().GetBool("dedupe"); skip {
				var dropped []string
				inputs, dropped = dedupe(inputs)
				for _, name := range dropped {
					slog.InfoContext(ctx, "skipping duplicate", "file", name)
				}
			}

			workers, _ := cmd.Flags().GetInt("workers")
			start := time.Now()
			results := eng.ProcessAll(ctx, inputs, workers)

			var entries []bundle.Entry
			for _, r := range results {
				if !r.OK() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", r.Name, r.Err)
					continue
				}
				m := r.Cleaned.Match
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s phase=%d,%d confidence=%.3f)\n",
					r.Name, r.OutputName, m.Pattern, m.PhaseX, m.PhaseY, m.Confidence)
				entries = append(entries, bundle.Entry{Name: r.OutputName, Data: r.Cleaned.Blob, Modified: start})
			}
			slog.InfoContext(ctx, "batch finished",
				"files", len(results), "cleaned", len(entries), "elapsed", time.Since(start).String())
			if len(entries) == 0 {
				return fmt.Errorf("no image could be cleaned")
			}

			if zipPath, _ := cmd.Flags().GetString("zip"); zipPath != "" {
				return writeBundle(cmd, zipPath, start, entries)
			}
			outDir, _ := cmd.Flags().GetString("out")
			return writeFiles(outDir, entries)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("out", "o", ".", "Directory for cleaned files")
	pf.String("zip", "", "Write one zip archive instead of files, 'auto' names it cleaned_images_<ms>.zip in --out")
	pf.IntP("workers", "w", 0, "Concurrent images (default GOMAXPROCS)")
	pf.Bool("dedupe", false, "Clean byte-identical inputs only once")
	pf.StringP("format", "f", "png", "Output format ("+strings.Join(raster.CodecNames(), "|")+")")
	pf.Float64("min-confidence", 0, "Minimum detection confidence (default from the matcher)")
	return cmd
}

// engineOptions applies the shared flags, an empty codec name keeps PNG
func engineOptions(cmd *cobra.Command, codecName string) (engine.Options, error) {
	opts := engine.DefaultOptions()
	if codecName != "" {
		codec, ok := raster.CodecByName(strings.ToLower(codecName))
		if !ok {
			return opts, fmt.Errorf("unknown format %q, want one of %s", codecName, strings.Join(raster.CodecNames(), ", "))
		}
		opts.Codec = codec
	}
	if mc, err := cmd.Flags().GetFloat64("min-confidence"); err == nil && mc > 0 {
		if mc > 1 {
			return opts, fmt.Errorf("min-confidence %v is outside (0,1]", mc)
		}
		opts.Match.MinConfidence = mc
	}
	return opts, nil
}

func writeFiles(dir string, entries []bundle.Entry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for i, name := range bundle.Names(entries) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, entries[i].Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

func writeBundle(cmd *cobra.Command, zipPath string, t time.Time, entries []bundle.Entry) error {
	if zipPath == "auto" {
		outDir, _ := cmd.Flags().GetString("out")
		zipPath = filepath.Join(outDir, bundle.ArchiveName(t))
	}
	var buf bytes.Buffer
	if err := bundle.Write(&buf, entries); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(zipPath), err)
	}
	if err := os.WriteFile(zipPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", zipPath, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), zipPath)
	return nil
}
