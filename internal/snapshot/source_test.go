package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"estatehub/internal/config"
)

func TestBatchMissingObjectIsEmpty(t *testing.T) {
	src := NewSource(NewMemory(nil))
	records, err := src.Batch(context.Background(), BatchName("Favorite"))
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty batch, got %d", len(records))
	}
}

func TestBatchKeepsNumbersDistinctFromStrings(t *testing.T) {
	store := NewMemory(map[string][]byte{
		"Favorite.json": []byte(`[{"accountEmail":"a@x.io","propertyId":42},{"accountEmail":"b@x.io","propertyId":"villa"}]`),
	})
	records, err := NewSource(store).Batch(context.Background(), "Favorite.json")
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if _, ok := records[0]["propertyId"].(json.Number); !ok {
		t.Fatalf("expected json.Number, got %T", records[0]["propertyId"])
	}
	if _, ok := records[1]["propertyId"].(string); !ok {
		t.Fatalf("expected string, got %T", records[1]["propertyId"])
	}
}

func TestDecodeBatchRejectsNonArray(t *testing.T) {
	for _, body := range []string{`{"code":"16"}`, `[{"code":"16"}] []`, `[1,2]`} {
		if _, err := DecodeBatch([]byte(body)); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
	records, err := DecodeBatch([]byte("  \n"))
	if err != nil || len(records) != 0 {
		t.Fatalf("blank input should be empty, got %v %v", records, err)
	}
	records, err = DecodeBatch([]byte(`[null,{"code":"16"}]`))
	if err != nil || len(records) != 1 {
		t.Fatalf("null entries should be dropped, got %v %v", records, err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Region.json"), []byte(`[{"code":"16"}]`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := Open(context.Background(), config.Snapshot{Driver: "fs", Dir: dir})
	if err != nil {
		t.Fatalf("Open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	records, err := NewSource(store).Batch(context.Background(), BatchName("Region"))
	if err != nil || len(records) != 1 || records[0]["code"] != "16" {
		t.Fatalf("unexpected batch %v %v", records, err)
	}

	mem, err := Open(context.Background(), config.Snapshot{Driver: "memory"})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("Open memory: %v", err)
	}
	if _, err := Open(context.Background(), config.Snapshot{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
