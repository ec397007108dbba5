package domain

import (
	"context"
	"errors"
)

// Store is the target relational store the seed pipeline fills. Implementations
// must be safe for concurrent Insert calls.
type Store interface {
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	// DeleteAll removes every row of table.
	DeleteAll(ctx context.Context, table string) error
	// Insert writes rec and returns the key assigned by the store.
	Insert(ctx context.Context, rec Record) (Key, error)
	// Update assigns columns on the row identified by key.
	Update(ctx context.Context, table string, key Key, cols []Column) error
	// SuspendConstraints relaxes referential-integrity enforcement until the
	// returned restore function is called.
	SuspendConstraints(ctx context.Context) (restore func(context.Context) error, err error)
	// MaxKey returns the highest numeric key present in table, or ErrNoSequence
	// when the table is not keyed by a numeric sequence.
	MaxKey(ctx context.Context, table string) (int64, error)
	// SetSequence makes next the value the table's sequence hands out next.
	SetSequence(ctx context.Context, table string, next int64) error
	Close() error
}

// TierLookup resolves the current subscription tier of an account by email.
type TierLookup interface {
	LookupTier(ctx context.Context, email string) (tier string, found bool, err error)
}

// ErrNoSequence is returned by MaxKey for tables without a numeric sequence.
var ErrNoSequence = errors.New("store: table has no numeric sequence")

// ForeignKey declares that Column holds a key of RefTable.
type ForeignKey struct {
	Column   string
	RefTable string
}

// TableSpec describes one target table.
type TableSpec struct {
	Name        string
	Keys        KeyStrategy
	ForeignKeys []ForeignKey
	// Unique lists column sets that must be unique across rows.
	Unique [][]string
}

// Table names of the marketplace schema.
const (
	TableTiers         = "tiers"
	TableRegions       = "regions"
	TableSubRegions    = "sub_regions"
	TableAccounts      = "accounts"
	TableListings      = "listings"
	TableListingMedia  = "listing_media"
	TableConversations = "conversations"
	TableMessages      = "messages"
	TableFavorites     = "favorites"
)

// Schema returns the marketplace tables, parents before children.
func Schema() []TableSpec {
	return []TableSpec{
		{Name: TableTiers, Keys: KeySequence, Unique: [][]string{{"name"}}},
		{Name: TableRegions, Keys: KeySequence, Unique: [][]string{{"code"}}},
		{Name: TableSubRegions, Keys: KeySequence, Unique: [][]string{{"code"}}, ForeignKeys: []ForeignKey{
			{Column: "regionId", RefTable: TableRegions},
		}},
		{Name: TableAccounts, Keys: KeyOpaque, Unique: [][]string{{"email"}}, ForeignKeys: []ForeignKey{
			{Column: "tierId", RefTable: TableTiers},
		}},
		{Name: TableListings, Keys: KeySequence, Unique: [][]string{{"slug"}, {"externalId"}}, ForeignKeys: []ForeignKey{
			{Column: "ownerId", RefTable: TableAccounts},
			{Column: "subRegionId", RefTable: TableSubRegions},
		}},
		{Name: TableListingMedia, Keys: KeySequence, ForeignKeys: []ForeignKey{
			{Column: "listingId", RefTable: TableListings},
		}},
		{Name: TableConversations, Keys: KeyOpaque, ForeignKeys: []ForeignKey{
			{Column: "listingId", RefTable: TableListings},
			{Column: "buyerId", RefTable: TableAccounts},
			{Column: "sellerId", RefTable: TableAccounts},
		}},
		{Name: TableMessages, Keys: KeyOpaque, ForeignKeys: []ForeignKey{
			{Column: "conversationId", RefTable: TableConversations},
			{Column: "senderId", RefTable: TableAccounts},
		}},
		{Name: TableFavorites, Keys: KeySequence, Unique: [][]string{{"accountId", "propertyId"}}, ForeignKeys: []ForeignKey{
			{Column: "accountId", RefTable: TableAccounts},
			{Column: "propertyId", RefTable: TableListings},
		}},
	}
}

// LookupTable returns the TableSpec named name within tables.
func LookupTable(tables []TableSpec, name string) (TableSpec, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSpec{}, false
}
