package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jpfielding/unmark.go/pkg/engine"
	"github.com/jpfielding/unmark.go/pkg/mark"
	"github.com/jpfielding/unmark.go/pkg/mark/marktest"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot(context.Background(), "abc123")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "ERROR"))
	err := root.Execute()
	return out.String(), err
}

// markedDir writes one overlaid image made with the embedded small pattern
// plus a file that is not an image
func markedDir(t *testing.T) string {
	t.Helper()
	set, err := mark.DefaultStore().Load()
	require.NoError(t, err)
	dir := t.TempDir()
	img := marktest.Composite(marktest.Gradient(220, 200), set.Small, 5, 17)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shot.png"), marktest.PNG(img), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	return dir
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "abc123\n", out)
}

func TestPatterns(t *testing.T) {
	out, err := run(t, "patterns")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "48x48")
	assert.Contains(t, lines[0], "color=#ffffff")
	assert.Contains(t, lines[1], "96x96")
}

func TestPatterns_MissingAssets(t *testing.T) {
	_, err := run(t, "patterns", "--assets", t.TempDir())
	var ae *mark.AssetLoadError
	assert.ErrorAs(t, err, &ae)
}

func TestDetect(t *testing.T) {
	out, err := run(t, "detect", markedDir(t))
	require.NoError(t, err)
	var found []detection
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "shot.png", found[0].File)
	assert.Equal(t, 48, found[0].Width)
	assert.Equal(t, 5, found[0].PhaseX)
	assert.Equal(t, 17, found[0].PhaseY)
	assert.Empty(t, found[0].Error)

	out, err = run(t, "detect", "--format", "text", markedDir(t))
	require.NoError(t, err)
	assert.Contains(t, out, "phase=5,17")
}

func TestClean_Files(t *testing.T) {
	outDir := t.TempDir()
	out, err := run(t, "clean", markedDir(t), "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "shot.png -> clean_shot.png")
	data, err := os.ReadFile(filepath.Join(outDir, "clean_shot.png"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestClean_Zip(t *testing.T) {
	outDir := t.TempDir()
	out, err := run(t, "clean", markedDir(t), "--out", outDir, "--zip", "auto", "--format", "tiff")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	zipPath := lines[len(lines)-1]
	assert.True(t, strings.HasPrefix(filepath.Base(zipPath), "cleaned_images_"))

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "clean_shot.tiff", zr.File[0].Name)
}

func TestClean_Failures(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain.png")
	require.NoError(t, os.WriteFile(plain, marktest.PNG(marktest.Gradient(120, 100)), 0o644))

	_, err := run(t, "clean", plain, "--out", t.TempDir())
	assert.Error(t, err)

	_, err = run(t, "clean", plain, "--format", "gif")
	assert.ErrorContains(t, err, "unknown format")

	_, err = run(t, "clean", plain, "--min-confidence", "1.5")
	assert.Error(t, err)
}

func TestPatternSummary(t *testing.T) {
	p := marktest.MustPattern("b", marktest.Block(4, 2, color.NRGBA{R: 255, G: 0, B: 0, A: 128}))
	mean, std := alphaStats(p)
	assert.InDelta(t, 128.0/255, mean, 1e-9)
	assert.InDelta(t, 0, std, 1e-9)
	assert.Equal(t, "#ff0000", markColor(p).Hex())

	var out bytes.Buffer
	printPattern(&out, p)
	assert.Equal(t, "b: 4x4 peak=128 coverage=25.0% alpha=0.502±0.000 color=#ff0000\n", out.String())
}

func TestReadInputs(t *testing.T) {
	dir := markedDir(t)
	inputs, err := readInputs(nil, []string{dir, filepath.Join(dir, "notes.txt")})
	require.NoError(t, err)
	// the walk skips the text file, naming it directly keeps it
	require.Len(t, inputs, 2)
	assert.Equal(t, "shot.png", inputs[0].Name)
	assert.Equal(t, "notes.txt", inputs[1].Name)

	inputs, err = readInputs(strings.NewReader("raw"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), inputs[0].Data)

	_, err = readInputs(nil, []string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}

func TestDedupe(t *testing.T) {
	inputs := []engine.Input{
		{Name: "a.png", Data: []byte("same")},
		{Name: "b.png", Data: []byte("other")},
		{Name: "copy-of-a.png", Data: []byte("same")},
	}
	kept, dropped := dedupe(inputs)
	require.Len(t, kept, 2)
	assert.Equal(t, "a.png", kept[0].Name)
	assert.Equal(t, "b.png", kept[1].Name)
	assert.Equal(t, []string{"copy-of-a.png"}, dropped)
	assert.Equal(t, "copy-of-a.png", inputs[2].Name)
}

func TestClean_Dedupe(t *testing.T) {
	dir := markedDir(t)
	data, err := os.ReadFile(filepath.Join(dir, "shot.png"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "again.png"), data, 0o644))

	out, err := run(t, "clean", dir, "--out", t.TempDir(), "--dedupe")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, " -> "))

	out, err = run(t, "clean", dir, "--out", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, " -> "))
}
