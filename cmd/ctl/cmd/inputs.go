package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jpfielding/unmark.go/pkg/engine"
	"github.com/jpfielding/unmark.go/pkg/raster"
	"github.com/jpfielding/unmark.go/pkg/util"
)

// readInputs loads each named file, or every image below a named directory.
// "-" reads a single image from stdin.
func readInputs(stdin io.Reader, args []string) ([]engine.Input, error) {
	var inputs []engine.Input
	for _, arg := range args {
		if arg == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return nil, fmt.Errorf("failed to read stdin: %w", err)
			}
			inputs = append(inputs, engine.Input{Name: "stdin", Data: data})
			continue
		}
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		if !info.IsDir() {
			data, err := os.ReadFile(arg)
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %w", err)
			}
			inputs = append(inputs, engine.Input{Name: filepath.Base(arg), Data: data})
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			// directories may hold anything, keep only what looks like an image
			if _, ok := raster.Sniff(data); !ok {
				slog.Debug("skipping non-image", "path", path)
				return nil
			}
			inputs = append(inputs, engine.Input{Name: filepath.Base(path), Data: data})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", arg, err)
		}
	}
	return inputs, nil
}

// dedupe drops inputs whose bytes repeat an earlier input and returns the
// names of the dropped ones
func dedupe(inputs []engine.Input) ([]engine.Input, []string) {
	seen := make(map[string]bool, len(inputs))
	kept := make([]engine.Input, 0, len(inputs))
	var dropped []string
	for _, in := range inputs {
		id := util.ContentID(in.Data)
		if seen[id] {
			dropped = append(dropped, in.Name)
			continue
		}
		seen[id] = true
		kept = append(kept, in)
	}
	return kept, dropped
}
