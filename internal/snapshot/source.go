package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"estatehub/pkg/domain"
)

// BatchSuffix is appended to an entity name to form its object name.
const BatchSuffix = ".json"

// Source decodes entity batches from a Store.
type Source struct {
	store Store
}

// NewSource wraps store.
func NewSource(store Store) *Source {
	return &Source{store: store}
}

// Store returns the underlying snapshot store.
func (s *Source) Store() Store { return s.store }

// BatchName returns the object name holding entity's records.
func BatchName(entity string) string { return entity + BatchSuffix }

// Batch reads and decodes the named batch. A missing object yields an empty
// batch. Numbers are decoded as json.Number so integer ids stay distinct from
// string keys.
func (s *Source) Batch(ctx context.Context, name string) ([]domain.RawRecord, error) {
	rc, err := s.store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open batch %s: %w", name, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read batch %s: %w", name, err)
	}
	return DecodeBatch(data)
}

// DecodeBatch parses a JSON array of objects. Blank input is an empty batch.
func DecodeBatch(data []byte) ([]domain.RawRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []domain.RawRecord
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode batch: trailing data after array")
	}
	out := records[:0]
	for _, r := range records {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}
