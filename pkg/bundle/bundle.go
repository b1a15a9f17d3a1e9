// Package bundle packs cleaned images into a single zip archive.
package bundle

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/unicode/norm"
)

// Entry is one file of an archive
type Entry struct {
	Name     string
	Data     []byte
	Modified time.Time // zero means the archive epoch
}

// epoch keeps archives reproducible when callers leave Modified unset
var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// ArchiveName is the default download name for a batch finished at t
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("cleaned_images_%d.zip", t.UnixMilli())
}

// Write zips entries into w in order. Names are NFC normalized and reduced to
// their base name; repeated names get a numeric suffix before the extension.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	names := Names(entries)
	for i, e := range entries {
		mod := e.Modified
		if mod.IsZero() {
			mod = epoch
		}
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names[i],
			Method:   method(names[i]),
			Modified: mod,
		})
		if err != nil {
			return fmt.Errorf("zip %s: %w", names[i], err)
		}
		if _, err := f.Write(e.Data); err != nil {
			return fmt.Errorf("zip %s: %w", names[i], err)
		}
	}
	return zw.Close()
}

// Names returns the archive names Write will use for entries
func Names(entries []Entry) []string {
	out := make([]string, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		name := clean(e.Name)
		if seen[name] {
			ext := path.Ext(name)
			stem := strings.TrimSuffix(name, ext)
			for n := 1; ; n++ {
				candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
				if !seen[candidate] {
					name = candidate
					break
				}
			}
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

func clean(name string) string {
	name = norm.NFC.String(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}

// method stores already compressed formats
func method(name string) uint16 {
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif":
		return zip.Store
	}
	return zip.Deflate
}
