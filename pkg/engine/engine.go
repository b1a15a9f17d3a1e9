// Package engine removes the tiled overlay from encoded images.
//
// An Engine loads the reference patterns once and then serves any number of
// concurrent Process calls; each call owns its own pixel buffers.
//
//	eng, err := engine.Create(mark.DefaultStore(), engine.DefaultOptions())
//	if err != nil {
//		log.Fatal(err)
//	}
//	res, err := eng.Process(ctx, data)
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpfielding/unmark.go/pkg/decomp"
	"github.com/jpfielding/unmark.go/pkg/logging"
	"github.com/jpfielding/unmark.go/pkg/mark"
	"github.com/jpfielding/unmark.go/pkg/match"
	"github.com/jpfielding/unmark.go/pkg/raster"
	"github.com/jpfielding/unmark.go/pkg/util"
)

// Loader supplies the reference pattern pair, mark.Store implements it
type Loader interface {
	Load() (mark.Set, error)
}

// Options configures every stage of the engine
type Options struct {
	Match  match.Options
	Decomp decomp.Options
	Codec  raster.Codec // output encoding, lossless
}

// DefaultOptions writes PNG with the default detection and reconstruction settings
func DefaultOptions() Options {
	return Options{
		Match:  match.DefaultOptions(),
		Decomp: decomp.DefaultOptions(),
		Codec:  raster.CodecPNG,
	}
}

// CleanedResult is the output of one Process call
type CleanedResult struct {
	ID          string // content id of the input
	Blob        []byte // encoded cleaned image
	MediaType   string // media type of Blob
	OriginalSrc string // data URL of the input, for previews
	Width       int
	Height      int
	Match       match.TilingMatch
}

// Engine is safe for concurrent use once initialized
type Engine struct {
	store Loader
	opts  Options

	once sync.Once
	set  mark.Set
	err  error
}

// New returns an engine that loads its patterns from store on first use
func New(store Loader, opts Options) *Engine {
	if opts.Codec == nil {
		opts.Codec = raster.CodecPNG
	}
	return &Engine{store: store, opts: opts}
}

// Create is New followed by Initialize
func Create(store Loader, opts Options) (*Engine, error) {
	e := New(store, opts)
	if err := e.Initialize(); err != nil {
		return nil, err
	}
	return e, nil
}

// Initialize loads the reference patterns. It runs once, later calls return
// the first outcome.
func (e *Engine) Initialize() error {
	e.once.Do(func() {
		if e.store == nil {
			e.err = &mark.AssetLoadError{Err: fmt.Errorf("no pattern store")}
			return
		}
		e.set, e.err = e.store.Load()
	})
	return e.err
}

// Patterns returns the loaded reference patterns
func (e *Engine) Patterns() (mark.Set, error) {
	if err := e.Initialize(); err != nil {
		return mark.Set{}, err
	}
	return e.set, nil
}

// Codec is the output encoding
func (e *Engine) Codec() raster.Codec { return e.opts.Codec }

// Process decodes data, locates the overlay, reconstructs the covered pixels
// and encodes the result. Errors are *raster.DecodeError,
// *match.NoPatternFoundError, *mark.AssetLoadError or the context error.
func (e *Engine) Process(ctx context.Context, data []byte) (*CleanedResult, error) {
	if err := e.Initialize(); err != nil {
		return nil, err
	}
	id := util.ContentID(data)
	ctx = logging.AppendCtx(ctx, slog.String("job", id))

	img, format, err := raster.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	slog.DebugContext(ctx, "decoded", "format", format, "width", b.Dx(), "height", b.Dy())

	m, err := match.Match(img, e.set.Candidates(), e.opts.Match)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "matched", "match", m.String())

	e.opts.Decomp.Reconstruct(img, m)

	blob, err := raster.Encode(e.opts.Codec, img)
	if err != nil {
		return nil, fmt.Errorf("%s encode: %w", e.opts.Codec.Name(), err)
	}
	mt, _ := raster.Sniff(data)
	return &CleanedResult{
		ID:          id,
		Blob:        blob,
		MediaType:   e.opts.Codec.MediaType(),
		OriginalSrc: raster.DataURL(mt, data),
		Width:       b.Dx(),
		Height:      b.Dy(),
		Match:       m,
	}, nil
}

// Detect runs only the decode and match stages
func (e *Engine) Detect(ctx context.Context, data []byte) (match.TilingMatch, error) {
	if err := e.Initialize(); err != nil {
		return match.TilingMatch{}, err
	}
	img, _, err := raster.Decode(data)
	if err != nil {
		return match.TilingMatch{}, err
	}
	if err := ctx.Err(); err != nil {
		return match.TilingMatch{}, err
	}
	return match.Match(img, e.set.Candidates(), e.opts.Match)
}
