package engine

import (
	"context"
	"log/slog"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/jpfielding/unmark.go/pkg/logging"
	"github.com/jpfielding/unmark.go/pkg/raster"
)

// Input is one named file of a batch
type Input struct {
	Name string
	Data []byte
}

// Result is the outcome of one batch item, exactly one of Cleaned and Err is set
type Result struct {
	Name       string
	OutputName string
	Cleaned    *CleanedResult
	Err        error
}

// OK reports whether the item was cleaned
func (r Result) OK() bool { return r.Err == nil && r.Cleaned != nil }

// OutputName derives the cleaned file name, "photo.jpg" becomes "clean_photo.png"
func OutputName(name string, codec raster.Codec) string {
	if codec == nil {
		codec = raster.CodecPNG
	}
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return "clean_" + base + "." + codec.Extension()
}

// ProcessAll cleans every input with at most workers concurrent jobs. Results
// keep the order of inputs and a failing item never stops the others.
func (e *Engine) ProcessAll(ctx context.Context, inputs []Input, workers int) []Result {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]Result, len(inputs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, in := range inputs {
		results[i] = Result{Name: in.Name, OutputName: OutputName(in.Name, e.opts.Codec)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return
			}
			defer func() { <-sem }()

			jctx := logging.AppendCtx(ctx, slog.String("file", in.Name))
			cleaned, err := e.Process(jctx, in.Data)
			if err != nil {
				slog.WarnContext(jctx, "failed to process", slog.Any("error", err))
				results[i].Err = err
				return
			}
			slog.InfoContext(jctx, "cleaned",
				slog.String("output", results[i].OutputName),
				slog.String("pattern", cleaned.Match.Pattern.String()),
				slog.Float64("confidence", cleaned.Match.Confidence))
			results[i].Cleaned = cleaned
		}()
	}
	wg.Wait()
	return results
}
