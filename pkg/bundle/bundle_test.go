package bundle

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = b
	}
	return out
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	entries := []Entry{
		{Name: "clean_a.png", Data: []byte("first")},
		{Name: "clean_b.tiff", Data: bytes.Repeat([]byte{7}, 4096)},
		{Name: "x/clean_a.png", Data: []byte("second")},
		{Name: "clean_a.png", Data: []byte("third")},
	}
	require.NoError(t, Write(&buf, entries))

	files := readAll(t, buf.Bytes())
	assert.Equal(t, map[string][]byte{
		"clean_a.png":   []byte("first"),
		"clean_b.tiff":  bytes.Repeat([]byte{7}, 4096),
		"clean_a_1.png": []byte("second"),
		"clean_a_2.png": []byte("third"),
	}, files)
}

func TestWrite_Reproducible(t *testing.T) {
	entries := []Entry{{Name: "clean_a.png", Data: []byte("data")}}
	var a, b bytes.Buffer
	require.NoError(t, Write(&a, entries))
	require.NoError(t, Write(&b, entries))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))
	assert.Empty(t, readAll(t, buf.Bytes()))
}

func TestNames(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"Unique", []string{"a.png", "b.png"}, []string{"a.png", "b.png"}},
		{"Dupes", []string{"a.png", "a.png", "a_1.png"}, []string{"a.png", "a_1.png", "a_1_1.png"}},
		{"Paths", []string{`C:\x\a.png`, "/tmp/b.png", ""}, []string{"a.png", "b.png", "image"}},
		// decomposed e + combining acute becomes a single rune
		{"NFC", []string{"cafe\u0301.png", "caf\u00e9.png"}, []string{"caf\u00e9.png", "caf\u00e9_1.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := make([]Entry, len(tt.input))
			for i, n := range tt.input {
				entries[i] = Entry{Name: n}
			}
			assert.Equal(t, tt.want, Names(entries))
		})
	}
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "cleaned_images_1700000000123.zip", ArchiveName(time.UnixMilli(1700000000123)))
}
