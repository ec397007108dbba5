// Package fs implements a snapshot store over a local directory of batch files.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"estatehub/internal/snapshot/core"
)

// Store implements core.Store for files directly under root.
type Store struct {
	root string
}

// New returns a store rooted at dir. The directory must exist.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "./seed-data"
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot dir: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("snapshot dir %s is not a directory", dir)
	}
	return &Store{root: dir}, nil
}

// Driver returns the snapshot driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root returns the configured directory.
func (s *Store) Root() string { return s.root }

// sanitizeName forbids traversal and nested paths; batches live directly under root.
func sanitizeName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("empty snapshot name")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid snapshot name %q", name)
	}
	return name, nil
}

// Open opens the named batch file.
func (s *Store) Open(_ context.Context, name string) (io.ReadCloser, error) {
	clean, err := sanitizeName(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, clean))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("snapshot %s: %w", name, core.ErrNotExist)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// List returns regular file names under root.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
