package seed

import (
	"sort"
	"sync"

	"estatehub/pkg/domain"
)

// Resolver looks up store keys by source key. The Transformer only needs this
// read side of the Registry.
type Resolver interface {
	Resolve(t domain.EntityType, sourceKey string) (domain.Key, bool)
}

// Registry maps (EntityType, source key) pairs to store keys for one run.
// Each entity type has its own lock so concurrent writers of one type never
// contend with readers of another.
type Registry struct {
	mu     sync.RWMutex
	shards map[domain.EntityType]*registryShard
}

type registryShard struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

// registryEntry is either a resolved key or a pending reservation held while
// the owning record is being inserted.
type registryEntry struct {
	key     domain.Key
	pending bool
}

var _ Resolver = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{shards: make(map[domain.EntityType]*registryShard)}
}

func (r *Registry) shard(t domain.EntityType, create bool) *registryShard {
	r.mu.RLock()
	s := r.shards[t]
	r.mu.RUnlock()
	if s != nil || !create {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s = r.shards[t]; s == nil {
		s = &registryShard{entries: make(map[string]registryEntry)}
		r.shards[t] = s
	}
	return s
}

// Reserve claims sourceKeys for a record about to be inserted. It fails
// without claiming anything when any key is already mapped or reserved.
func (r *Registry) Reserve(t domain.EntityType, sourceKeys ...string) error {
	s := r.shard(t, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range sourceKeys {
		if _, taken := s.entries[k]; taken {
			return duplicatef("%s source key %q is already registered", t, k)
		}
		for _, prev := range sourceKeys[:i] {
			if prev == k {
				return duplicatef("%s source key %q appears twice in one record", t, k)
			}
		}
	}
	for _, k := range sourceKeys {
		s.entries[k] = registryEntry{pending: true}
	}
	return nil
}

// Release drops pending reservations, leaving resolved entries untouched.
func (r *Registry) Release(t domain.EntityType, sourceKeys ...string) {
	s := r.shard(t, false)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range sourceKeys {
		if e, ok := s.entries[k]; ok && e.pending {
			delete(s.entries, k)
		}
	}
}

// Remember maps sourceKey to key. Remembering the same mapping twice is a
// no-op; mapping an already resolved source key to a different store key
// fails with ErrDuplicateSourceKey.
func (r *Registry) Remember(t domain.EntityType, sourceKey string, key domain.Key) error {
	if key.IsZero() {
		return malformedf("%s source key %q: empty store key", t, sourceKey)
	}
	s := r.shard(t, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[sourceKey]; ok && !e.pending {
		if e.key == key {
			return nil
		}
		return duplicatef("%s source key %q already maps to %s, refusing %s", t, sourceKey, e.key, key)
	}
	s.entries[sourceKey] = registryEntry{key: key}
	return nil
}

// Resolve returns the store key mapped to sourceKey. Pending reservations do
// not resolve.
func (r *Registry) Resolve(t domain.EntityType, sourceKey string) (domain.Key, bool) {
	s := r.shard(t, false)
	if s == nil {
		return domain.Key{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[sourceKey]
	if !ok || e.pending {
		return domain.Key{}, false
	}
	return e.key, true
}

// Count returns the number of resolved source keys for t.
func (r *Registry) Count(t domain.EntityType) int {
	s := r.shard(t, false)
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if !e.pending {
			n++
		}
	}
	return n
}

// DistinctKeys returns the number of distinct store keys registered for t.
func (r *Registry) DistinctKeys(t domain.EntityType) int {
	s := r.shard(t, false)
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[domain.Key]struct{}, len(s.entries))
	for _, e := range s.entries {
		if !e.pending {
			seen[e.key] = struct{}{}
		}
	}
	return len(seen)
}

// Keys returns the resolved source keys of t in ascending order.
func (r *Registry) Keys(t domain.EntityType) []string {
	s := r.shard(t, false)
	if s == nil {
		return nil
	}
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if !e.pending {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Types returns the entity types holding at least one resolved entry,
// sorted by name. Types with only released or pending reservations are
// left out.
func (r *Registry) Types() []domain.EntityType {
	r.mu.RLock()
	names := make([]domain.EntityType, 0, len(r.shards))
	for t := range r.shards {
		names = append(names, t)
	}
	r.mu.RUnlock()
	out := names[:0]
	for _, t := range names {
		if r.Count(t) > 0 {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
