// Package memory implements an in-memory snapshot store for tests and dry runs.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"estatehub/internal/snapshot/core"
)

// Store implements core.Store backed by process memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

// New returns a store seeded with a copy of objs.
func New(objs map[string][]byte) *Store {
	s := &Store{objs: make(map[string][]byte, len(objs))}
	for name, data := range objs {
		s.objs[name] = append([]byte(nil), data...)
	}
	return s
}

// Driver returns the snapshot driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put adds or replaces an object.
func (s *Store) Put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[name] = append([]byte(nil), data...)
}

// Open returns a reader over a copy of the named object.
func (s *Store) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.objs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory snapshot %s: %w", name, core.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// List returns all object names.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.objs))
	for name := range s.objs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
