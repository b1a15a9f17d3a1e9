package mark

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/jpfielding/unmark.go/pkg/raster"
)

// Asset file names shipped with the engine, one per pitch
const (
	SmallAsset = "bg_48.png"
	LargeAsset = "bg_96.png"
)

//go:embed assets/bg_48.png assets/bg_96.png
var embedded embed.FS

// AssetLoadError reports a reference asset that could not be used
type AssetLoadError struct {
	Path string
	Err  error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("load reference asset %s: %v", e.Path, e.Err)
}

func (e *AssetLoadError) Unwrap() error { return e.Err }

// Set is the pair of reference patterns, Small has the smaller pitch
type Set struct {
	Small *Pattern
	Large *Pattern
}

// Candidates lists the patterns in increasing pitch
func (s Set) Candidates() []*Pattern {
	return []*Pattern{s.Small, s.Large}
}

// Store loads the two reference assets from a file system once
type Store struct {
	fsys  fs.FS
	small string
	large string

	once sync.Once
	set  Set
	err  error
}

// NewStore reads the small and large assets at the given paths of fsys
func NewStore(fsys fs.FS, smallPath, largePath string) *Store {
	return &Store{fsys: fsys, small: smallPath, large: largePath}
}

// DefaultStore serves the assets embedded in the binary
func DefaultStore() *Store {
	return NewStore(embedded, "assets/"+SmallAsset, "assets/"+LargeAsset)
}

// DirStore reads bg_48.png and bg_96.png from dir
func DirStore(dir string) *Store {
	return NewStore(os.DirFS(dir), SmallAsset, LargeAsset)
}

// Load decodes both assets. The first result, success or failure, is kept
// for the lifetime of the Store.
func (s *Store) Load() (Set, error) {
	s.once.Do(func() {
		s.set, s.err = s.load()
	})
	return s.set, s.err
}

func (s *Store) load() (Set, error) {
	small, err := s.read(s.small)
	if err != nil {
		return Set{}, err
	}
	large, err := s.read(s.large)
	if err != nil {
		return Set{}, err
	}
	if small.width >= large.width || small.height >= large.height {
		return Set{}, &AssetLoadError{
			Path: s.large,
			Err:  fmt.Errorf("pitch %dx%d is not larger than %dx%d", large.width, large.height, small.width, small.height),
		}
	}
	slog.Debug("loaded reference patterns",
		slog.String("small", small.String()),
		slog.String("large", large.String()))
	return Set{Small: small, Large: large}, nil
}

func (s *Store) read(path string) (*Pattern, error) {
	if s.fsys == nil {
		return nil, &AssetLoadError{Path: path, Err: fmt.Errorf("no asset file system")}
	}
	data, err := fs.ReadFile(s.fsys, path)
	if err != nil {
		return nil, &AssetLoadError{Path: path, Err: err}
	}
	img, _, err := raster.Decode(data)
	if err != nil {
		return nil, &AssetLoadError{Path: path, Err: err}
	}
	p, err := NewPattern(path, img)
	if err != nil {
		return nil, &AssetLoadError{Path: path, Err: err}
	}
	return p, nil
}
