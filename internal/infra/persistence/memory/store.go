// Package memory provides an in-memory target store for tests and dry runs.
// It emulates the relational behavior the seed pipeline relies on: numeric
// sequences, generated opaque keys, unique columns and foreign-key checks
// that can be suspended.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"estatehub/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.Store      = (*Store)(nil)
	_ domain.TierLookup = (*Store)(nil)
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory store closed")

// Row is a stored row keyed by column name. The primary key is under "id".
type Row map[string]any

type table struct {
	spec domain.TableSpec
	rows map[domain.Key]Row
	seq  int64
}

// Store is an in-memory domain.Store.
type Store struct {
	mu        sync.RWMutex
	tables    map[string]*table
	order     []string
	suspended int
	closed    bool
}

// NewStore returns an empty store with the marketplace schema.
func NewStore() *Store {
	return NewStoreWithSchema(domain.Schema())
}

// NewStoreWithSchema returns an empty store holding tables.
func NewStoreWithSchema(tables []domain.TableSpec) *Store {
	s := &Store{tables: make(map[string]*table, len(tables))}
	for _, spec := range tables {
		s.tables[spec.Name] = &table{spec: spec, rows: make(map[domain.Key]Row)}
		s.order = append(s.order, spec.Name)
	}
	return s
}

func (s *Store) table(name string) (*table, error) {
	if s.closed {
		return nil, ErrClosed
	}
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", name)
	}
	return t, nil
}

// Ping implements domain.Store.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// DeleteAll implements domain.Store. Rows still referenced from another table
// block the delete unless constraints are suspended. The sequence restarts
// at 1, as sqlite's does once its sqlite_sequence row is dropped.
func (s *Store) DeleteAll(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(name)
	if err != nil {
		return err
	}
	if s.suspended == 0 {
		if ref, col, ok := s.referencedLocked(name); ok {
			return fmt.Errorf("delete %s: rows still referenced by %s.%s", name, ref, col)
		}
	}
	clear(t.rows)
	t.seq = 0
	return nil
}

// referencedLocked reports a table/column still pointing at rows of name.
func (s *Store) referencedLocked(name string) (string, string, bool) {
	target := s.tables[name]
	if len(target.rows) == 0 {
		return "", "", false
	}
	for _, other := range s.order {
		t := s.tables[other]
		for _, fk := range t.spec.ForeignKeys {
			if fk.RefTable != name {
				continue
			}
			for _, row := range t.rows {
				if k, ok := keyOf(row[fk.Column]); ok {
					if _, exists := target.rows[k]; exists {
						return other, fk.Column, true
					}
				}
			}
		}
	}
	return "", "", false
}

// Insert implements domain.Store.
func (s *Store) Insert(_ context.Context, rec domain.Record) (domain.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(rec.Table)
	if err != nil {
		return domain.Key{}, err
	}
	row := make(Row, len(rec.Columns)+1)
	for _, c := range rec.Columns {
		if c.Name == "id" {
			return domain.Key{}, fmt.Errorf("insert %s: id is assigned by the store", rec.Table)
		}
		row[c.Name] = c.Value
	}
	if err := s.checkRowLocked(t, row, domain.Key{}); err != nil {
		return domain.Key{}, fmt.Errorf("insert %s: %w", rec.Table, err)
	}
	var key domain.Key
	switch t.spec.Keys {
	case domain.KeyOpaque:
		key = domain.OpaqueKey(uuid.NewString())
	default:
		t.seq++
		key = domain.SeqKey(t.seq)
	}
	if _, dup := t.rows[key]; dup {
		if t.spec.Keys == domain.KeySequence {
			t.seq--
		}
		return domain.Key{}, fmt.Errorf("insert %s: duplicate primary key %s", rec.Table, key)
	}
	row["id"] = key
	t.rows[key] = row
	return key, nil
}

// checkRowLocked enforces unique column sets and, unless suspended, foreign
// keys. self is skipped in uniqueness checks.
func (s *Store) checkRowLocked(t *table, row Row, self domain.Key) error {
	for _, cols := range t.spec.Unique {
		for k, other := range t.rows {
			if k == self {
				continue
			}
			if sameValues(row, other, cols) {
				return fmt.Errorf("unique constraint on %v violated", cols)
			}
		}
	}
	if s.suspended > 0 {
		return nil
	}
	for _, fk := range t.spec.ForeignKeys {
		v, present := row[fk.Column]
		if !present || v == nil {
			continue
		}
		k, ok := keyOf(v)
		if !ok {
			return fmt.Errorf("column %s: unsupported key value %T", fk.Column, v)
		}
		if _, exists := s.tables[fk.RefTable].rows[k]; !exists {
			return fmt.Errorf("foreign key %s -> %s(%s) violated", fk.Column, fk.RefTable, k)
		}
	}
	return nil
}

func sameValues(a, b Row, cols []string) bool {
	for _, c := range cols {
		av, aok := a[c]
		bv, bok := b[c]
		if !aok || !bok || av == nil || bv == nil || av != bv {
			return false
		}
	}
	return true
}

func keyOf(v any) (domain.Key, bool) {
	switch val := v.(type) {
	case domain.Key:
		return val, !val.IsZero()
	case int64:
		return domain.SeqKey(val), true
	case int:
		return domain.SeqKey(int64(val)), true
	case string:
		return domain.OpaqueKey(val), val != ""
	default:
		return domain.Key{}, false
	}
}

// Update implements domain.Store.
func (s *Store) Update(_ context.Context, name string, key domain.Key, cols []domain.Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(name)
	if err != nil {
		return err
	}
	row, ok := t.rows[key]
	if !ok {
		return fmt.Errorf("update %s: no row %s", name, key)
	}
	next := make(Row, len(row)+len(cols))
	for k, v := range row {
		next[k] = v
	}
	for _, c := range cols {
		if c.Name == "id" {
			return fmt.Errorf("update %s: id is immutable", name)
		}
		next[c.Name] = c.Value
	}
	if err := s.checkRowLocked(t, next, key); err != nil {
		return fmt.Errorf("update %s: %w", name, err)
	}
	t.rows[key] = next
	return nil
}

// SuspendConstraints implements domain.Store. Suspensions nest.
func (s *Store) SuspendConstraints(context.Context) (func(context.Context) error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.suspended++
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			s.mu.Lock()
			s.suspended--
			s.mu.Unlock()
		})
		return nil
	}, nil
}

// MaxKey implements domain.Store.
func (s *Store) MaxKey(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(name)
	if err != nil {
		return 0, err
	}
	if t.spec.Keys != domain.KeySequence {
		return 0, domain.ErrNoSequence
	}
	var maxKey int64
	for k := range t.rows {
		if n, ok := k.Seq(); ok && n > maxKey {
			maxKey = n
		}
	}
	return maxKey, nil
}

// SetSequence implements domain.Store.
func (s *Store) SetSequence(_ context.Context, name string, next int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(name)
	if err != nil {
		return err
	}
	if t.spec.Keys != domain.KeySequence {
		return domain.ErrNoSequence
	}
	if next < 1 {
		return fmt.Errorf("set sequence %s: next must be positive, got %d", name, next)
	}
	t.seq = next - 1
	return nil
}

// Close implements domain.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// LookupTier implements domain.TierLookup.
func (s *Store) LookupTier(_ context.Context, email string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts, err := s.table(domain.TableAccounts)
	if err != nil {
		return "", false, err
	}
	for _, row := range accounts.rows {
		if row["email"] != email {
			continue
		}
		tierKey, ok := keyOf(row["tierId"])
		if !ok {
			return "", true, nil
		}
		tiers, err := s.table(domain.TableTiers)
		if err != nil {
			return "", false, err
		}
		if tier, ok := tiers.rows[tierKey]; ok {
			name, _ := tier["name"].(string)
			return name, true, nil
		}
		return "", true, nil
	}
	return "", false, nil
}

// Rows returns copies of the rows of name ordered by key.
func (s *Store) Rows(name string) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil
	}
	keys := make([]domain.Key, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aok := keys[i].Seq()
		b, bok := keys[j].Seq()
		if aok && bok {
			return a < b
		}
		return keys[i].String() < keys[j].String()
	})
	out := make([]Row, 0, len(keys))
	for _, k := range keys {
		row := make(Row, len(t.rows[k]))
		for c, v := range t.rows[k] {
			row[c] = v
		}
		out = append(out, row)
	}
	return out
}

// Count returns the number of rows in name.
func (s *Store) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[name]; ok {
		return len(t.rows)
	}
	return 0
}

// Tables returns the table names in schema order.
func (s *Store) Tables() []string {
	return slices.Clone(s.order)
}
