// Package domain defines the marketplace entity types, store keys, record
// shapes and the persistence contract shared by the seed pipeline and the
// store adapters.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// EntityType identifies a kind of record loaded into one table of the target store.
type EntityType string

// Marketplace entity types.
const (
	// EntityTier identifies an account subscription tier.
	EntityTier EntityType = "Tier"
	// EntityRegion identifies a top-level region.
	EntityRegion EntityType = "Region"
	// EntitySubRegion identifies a region subdivision whose code embeds its parent code.
	EntitySubRegion EntityType = "SubRegion"
	// EntityAccount identifies a marketplace user account.
	EntityAccount EntityType = "Account"
	// EntityListing identifies a property listing.
	EntityListing EntityType = "Listing"
	// EntityListingMedia identifies an image or video attached to a listing.
	EntityListingMedia EntityType = "ListingMedia"
	// EntityConversation identifies a buyer/seller thread about a listing.
	EntityConversation EntityType = "Conversation"
	// EntityMessage identifies a single message in a conversation.
	EntityMessage EntityType = "Message"
	// EntityFavorite identifies a listing saved by an account.
	EntityFavorite EntityType = "Favorite"
)

// KeyStrategy describes how the target store assigns primary keys for a table.
type KeyStrategy int

const (
	// KeySequence tables use a numeric auto-increment key.
	KeySequence KeyStrategy = iota
	// KeyOpaque tables use client-generated opaque identifiers.
	KeyOpaque
)

func (k KeyStrategy) String() string {
	switch k {
	case KeySequence:
		return "sequence"
	case KeyOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("KeyStrategy(%d)", int(k))
	}
}

// Key is a store-assigned identifier: either a sequence number or an opaque id.
// The zero Key is "no key".
type Key struct {
	seq    int64
	opaque string
}

// SeqKey wraps a numeric auto-increment key.
func SeqKey(n int64) Key { return Key{seq: n} }

// OpaqueKey wraps an opaque identifier such as a UUID.
func OpaqueKey(id string) Key { return Key{opaque: id} }

// IsZero reports whether k carries no identifier.
func (k Key) IsZero() bool { return k.seq == 0 && k.opaque == "" }

// Seq returns the numeric key and true when k is a sequence key.
func (k Key) Seq() (int64, bool) {
	if k.opaque != "" || k.seq == 0 {
		return 0, false
	}
	return k.seq, true
}

// Value returns the driver value stored in foreign-key columns.
func (k Key) Value() any {
	if k.opaque != "" {
		return k.opaque
	}
	return k.seq
}

func (k Key) String() string {
	if k.opaque != "" {
		return k.opaque
	}
	return strconv.FormatInt(k.seq, 10)
}

// MarshalJSON encodes the key as a JSON number or string.
func (k Key) MarshalJSON() ([]byte, error) { return json.Marshal(k.Value()) }

// RawRecord is an untyped record as authored in a snapshot batch.
// Numbers are kept as json.Number so legacy numeric ids stay distinguishable.
type RawRecord map[string]any

// Clone returns a shallow copy of the record.
func (r RawRecord) Clone() RawRecord {
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fields returns the record's field names in ascending order.
func (r RawRecord) Fields() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Column is a single normalized column assignment.
type Column struct {
	Name  string
	Value any
}

// Record is a normalized row ready for insertion into Table.
type Record struct {
	Table   string
	Columns []Column
}

// Set assigns a column value, replacing an existing assignment of the same name.
func (r *Record) Set(name string, value any) {
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			r.Columns[i].Value = value
			return
		}
	}
	r.Columns = append(r.Columns, Column{Name: name, Value: value})
}

// Unset removes the assignment of name, if any.
func (r *Record) Unset(name string) {
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			r.Columns = append(r.Columns[:i], r.Columns[i+1:]...)
			return
		}
	}
}

// Get returns the value assigned to name.
func (r Record) Get(name string) (any, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}

// Has reports whether name is assigned.
func (r Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the assigned column names in insertion order.
func (r Record) Names() []string {
	out := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = c.Name
	}
	return out
}

// SQLValue converts a normalized column value into a database/sql driver value.
// Keys collapse to their underlying id and structured payloads are JSON encoded.
func SQLValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case Key:
		return val.Value(), nil
	case MediaPayload:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", val.Kind(), err)
		}
		return string(b), nil
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode json column: %w", err)
		}
		return string(b), nil
	default:
		return v, nil
	}
}
