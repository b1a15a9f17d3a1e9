package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/jpfielding/unmark.go/pkg/mark"
	"github.com/jpfielding/unmark.go/pkg/mark/marktest"
	"github.com/jpfielding/unmark.go/pkg/match"
	"github.com/jpfielding/unmark.go/pkg/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxError(t *testing.T, got, want *image.NRGBA) int {
	t.Helper()
	require.Equal(t, want.Bounds(), got.Bounds())
	worst := 0
	for i := range want.Pix {
		d := int(got.Pix[i]) - int(want.Pix[i])
		worst = max(worst, d, -d)
	}
	return worst
}

func decodePNG(t *testing.T, blob []byte) *image.NRGBA {
	t.Helper()
	img, format, err := raster.Decode(blob)
	require.NoError(t, err)
	require.Equal(t, "png", format)
	return img
}

func TestProcess_RemovesOverlay(t *testing.T) {
	eng, err := Create(marktest.Store(0.6), DefaultOptions())
	require.NoError(t, err)
	set, err := eng.Patterns()
	require.NoError(t, err)

	base := marktest.Gradient(250, 210)
	in := marktest.PNG(marktest.Composite(base, set.Small, 21, 6))

	res, err := eng.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Same(t, set.Small, res.Match.Pattern)
	assert.Equal(t, 21, res.Match.PhaseX)
	assert.Equal(t, 6, res.Match.PhaseY)
	assert.Equal(t, 250, res.Width)
	assert.Equal(t, 210, res.Height)
	assert.Equal(t, "image/png", res.MediaType)
	assert.True(t, strings.HasPrefix(res.OriginalSrc, "data:image/png;base64,"))
	assert.Len(t, res.ID, 36)

	assert.LessOrEqual(t, maxError(t, decodePNG(t, res.Blob), base), 3)
}

func TestProcess_BlockScenario(t *testing.T) {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 128}
	store := mark.NewStore(marktest.Assets(marktest.Block(48, 8, white), marktest.Block(96, 16, white)),
		mark.SmallAsset, mark.LargeAsset)
	eng := New(store, DefaultOptions())
	set, err := eng.Patterns()
	require.NoError(t, err)

	gray := color.NRGBA{R: 100, G: 100, B: 100, A: 255}
	in := marktest.Composite(marktest.Solid(64, 64, gray), set.Small, 0, 0)
	res, err := eng.Process(context.Background(), marktest.PNG(in))
	require.NoError(t, err)
	assert.Same(t, set.Small, res.Match.Pattern)

	out := decodePNG(t, res.Blob)
	assert.InDelta(t, 100, int(out.NRGBAAt(4, 4).R), 1)
	assert.Equal(t, in.NRGBAAt(60, 60), out.NRGBAAt(60, 60))
}

func TestProcess_Deterministic(t *testing.T) {
	eng := New(marktest.Store(0.6), DefaultOptions())
	set, err := eng.Patterns()
	require.NoError(t, err)
	in := marktest.PNG(marktest.Composite(marktest.Gradient(200, 200), set.Small, 3, 44))

	a, err := eng.Process(context.Background(), in)
	require.NoError(t, err)
	b, err := eng.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, a.Blob, b.Blob)
	assert.Equal(t, a.ID, b.ID)
}

func TestProcess_ZeroAlphaPixelsIdentical(t *testing.T) {
	eng := New(marktest.Store(0.6), DefaultOptions())
	set, err := eng.Patterns()
	require.NoError(t, err)
	in := marktest.Composite(marktest.Gradient(180, 150), set.Small, 30, 12)

	res, err := eng.Process(context.Background(), marktest.PNG(in))
	require.NoError(t, err)
	out := decodePNG(t, res.Blob)
	p := res.Match.Pattern
	for y := 0; y < 150; y++ {
		for x := 0; x < 180; x++ {
			if p.Alpha8(p.Cell(x, y, res.Match.PhaseX, res.Match.PhaseY)) == 0 {
				require.Equal(t, in.NRGBAAt(x, y), out.NRGBAAt(x, y), "(%d,%d)", x, y)
			}
		}
	}
}

func TestProcess_ShippedAssets(t *testing.T) {
	eng, err := Create(mark.DefaultStore(), DefaultOptions())
	require.NoError(t, err)
	set, err := eng.Patterns()
	require.NoError(t, err)
	require.Equal(t, 48, set.Small.Width())
	require.Equal(t, 96, set.Large.Width())

	base := marktest.Gradient(300, 260)
	in := marktest.PNG(marktest.Composite(base, set.Small, 11, 29))
	res, err := eng.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Same(t, set.Small, res.Match.Pattern)
	assert.Equal(t, 11, res.Match.PhaseX)
	assert.Equal(t, 29, res.Match.PhaseY)
	assert.LessOrEqual(t, maxError(t, decodePNG(t, res.Blob), base), 3)
}

func TestProcess_Errors(t *testing.T) {
	eng := New(marktest.Store(0.6), DefaultOptions())

	_, err := eng.Process(context.Background(), []byte("not an image"))
	var de *raster.DecodeError
	assert.True(t, errors.As(err, &de), "got %v", err)

	_, err = eng.Process(context.Background(), marktest.PNG(marktest.Gradient(160, 120)))
	var nf *match.NoPatternFoundError
	assert.True(t, errors.As(err, &nf), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = eng.Process(ctx, marktest.PNG(marktest.Gradient(32, 32)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInitialize_AssetLoadError(t *testing.T) {
	tests := []struct {
		name  string
		store Loader
	}{
		{"Empty", mark.NewStore(fstest.MapFS{}, mark.SmallAsset, mark.LargeAsset)},
		{"Nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create(tt.store, DefaultOptions())
			var ae *mark.AssetLoadError
			require.True(t, errors.As(err, &ae), "got %v", err)

			eng := New(tt.store, DefaultOptions())
			_, err = eng.Process(context.Background(), marktest.PNG(marktest.Gradient(8, 8)))
			assert.True(t, errors.As(err, &ae))
		})
	}
}

type countingLoader struct {
	calls atomic.Int32
	inner Loader
}

func (c *countingLoader) Load() (mark.Set, error) {
	c.calls.Add(1)
	return c.inner.Load()
}

func TestInitialize_Once(t *testing.T) {
	l := &countingLoader{inner: marktest.Store(0.6)}
	eng := New(l, DefaultOptions())
	for range 3 {
		require.NoError(t, eng.Initialize())
	}
	assert.Equal(t, int32(1), l.calls.Load())
}

func TestNew_DefaultsCodec(t *testing.T) {
	eng := New(marktest.Store(0.6), Options{Match: match.DefaultOptions()})
	assert.Equal(t, raster.CodecPNG, eng.Codec())
}

func TestDetect(t *testing.T) {
	eng := New(marktest.Store(0.6), DefaultOptions())
	set, err := eng.Patterns()
	require.NoError(t, err)
	m, err := eng.Detect(context.Background(), marktest.PNG(marktest.Composite(marktest.Gradient(200, 180), set.Small, 40, 2)))
	require.NoError(t, err)
	assert.Same(t, set.Small, m.Pattern)
	assert.Equal(t, 40, m.PhaseX)
	assert.Equal(t, 2, m.PhaseY)
}
