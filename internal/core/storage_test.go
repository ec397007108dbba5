package core

import (
	"context"
	"path/filepath"
	"testing"

	"estatehub/internal/config"
	"estatehub/internal/infra/persistence/memory"
	"estatehub/internal/infra/persistence/sqlite"
)

func TestOpenTargetStoreMemory(t *testing.T) {
	store, err := OpenTargetStore(context.Background(), config.Storage{Driver: config.StorageMemory}, 4)
	if err != nil {
		t.Fatalf("OpenTargetStore: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", store)
	}
}

func TestOpenTargetStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "seed.db")
	store, err := OpenTargetStore(context.Background(), config.Storage{Driver: config.StorageSQLite, SQLitePath: path}, 4)
	if err != nil {
		t.Fatalf("OpenTargetStore: %v", err)
	}
	defer store.Close()
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected *sqlite.Store, got %T", store)
	}
	if sq.Path() != path {
		t.Fatalf("path = %s", sq.Path())
	}
}

func TestOpenTargetStoreUnknownDriver(t *testing.T) {
	store, err := OpenTargetStore(context.Background(), config.Storage{Driver: "mongo"}, 4)
	if err == nil || store != nil {
		t.Fatalf("expected error and nil store, got %v %v", store, err)
	}
}
