package fixture

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Source yields the files of a runnable fixture keyed by slash-separated
// path relative to the fixture root.
type Source interface {
	Name() string
	Files(ctx context.Context) (map[string][]byte, error)
}

// DirSource reads a fixture from a local directory.
type DirSource struct {
	Root string
}

func (d DirSource) Name() string { return d.Root }

func (d DirSource) Files(ctx context.Context) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", d.Root, err)
	}
	return files, nil
}
