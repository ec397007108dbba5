package seed

import (
	"fmt"
	"sync"
	"testing"

	"estatehub/pkg/domain"
)

func TestRegistryRememberAndResolve(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Resolve(domain.EntityRegion, "16"); ok {
		t.Fatalf("empty registry should not resolve")
	}
	if err := reg.Remember(domain.EntityRegion, "16", domain.SeqKey(3)); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if err := reg.Remember(domain.EntityRegion, "16", domain.SeqKey(3)); err != nil {
		t.Fatalf("remembering the same mapping twice should be a no-op: %v", err)
	}
	err := reg.Remember(domain.EntityRegion, "16", domain.SeqKey(4))
	if Classify(err) != KindDuplicateSourceKey {
		t.Fatalf("expected DuplicateSourceKey, got %v", err)
	}
	key, ok := reg.Resolve(domain.EntityRegion, "16")
	if !ok || key != domain.SeqKey(3) {
		t.Fatalf("mapping must stay immutable, got %v %v", key, ok)
	}
	if _, ok := reg.Resolve(domain.EntitySubRegion, "16"); ok {
		t.Fatalf("types must not share source keys")
	}
}

func TestRegistryMultipleShapesShareKey(t *testing.T) {
	reg := NewRegistry()
	key := domain.SeqKey(9)
	for _, sk := range []string{"101", "casa-azul"} {
		if err := reg.Remember(domain.EntityListing, sk, key); err != nil {
			t.Fatalf("Remember %s: %v", sk, err)
		}
	}
	if reg.Count(domain.EntityListing) != 2 || reg.DistinctKeys(domain.EntityListing) != 1 {
		t.Fatalf("unexpected counts %d/%d", reg.Count(domain.EntityListing), reg.DistinctKeys(domain.EntityListing))
	}
	keys := reg.Keys(domain.EntityListing)
	if len(keys) != 2 || keys[0] != "101" || keys[1] != "casa-azul" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestRegistryReservations(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Reserve(domain.EntityAccount, "acc-1", "a@x.io"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, ok := reg.Resolve(domain.EntityAccount, "a@x.io"); ok {
		t.Fatalf("pending reservations must not resolve")
	}
	if err := reg.Reserve(domain.EntityAccount, "acc-2", "a@x.io"); Classify(err) != KindDuplicateSourceKey {
		t.Fatalf("expected duplicate on reserved key, got %v", err)
	}
	if _, ok := reg.Resolve(domain.EntityAccount, "acc-2"); ok || reg.Count(domain.EntityAccount) != 0 {
		t.Fatalf("failed reservation must not claim anything")
	}
	reg.Release(domain.EntityAccount, "acc-1", "a@x.io")
	if err := reg.Reserve(domain.EntityAccount, "acc-2", "a@x.io"); err != nil {
		t.Fatalf("released keys should be reservable: %v", err)
	}
	if err := reg.Remember(domain.EntityAccount, "a@x.io", domain.OpaqueKey("u-2")); err != nil {
		t.Fatalf("Remember over reservation: %v", err)
	}
	reg.Release(domain.EntityAccount, "a@x.io")
	if _, ok := reg.Resolve(domain.EntityAccount, "a@x.io"); !ok {
		t.Fatalf("Release must not drop resolved entries")
	}
	if err := reg.Reserve(domain.EntityFavorite, "x", "x"); Classify(err) != KindDuplicateSourceKey {
		t.Fatalf("expected duplicate within one record, got %v", err)
	}
}

func TestRegistryConcurrentWriters(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				sk := fmt.Sprintf("k%d", i)
				_ = reg.Remember(domain.EntityRegion, sk, domain.SeqKey(int64(i+1)))
				_, _ = reg.Resolve(domain.EntityRegion, sk)
				_ = reg.Remember(domain.EntityTier, fmt.Sprintf("w%d-%d", w, i), domain.SeqKey(int64(i+1)))
			}
		}(w)
	}
	wg.Wait()
	if reg.Count(domain.EntityRegion) != 100 || reg.Count(domain.EntityTier) != 800 {
		t.Fatalf("unexpected counts %d %d", reg.Count(domain.EntityRegion), reg.Count(domain.EntityTier))
	}
	if types := reg.Types(); len(types) != 2 || types[0] != domain.EntityRegion {
		t.Fatalf("unexpected types %v", types)
	}
}

func TestRememberRejectsZeroKey(t *testing.T) {
	if err := NewRegistry().Remember(domain.EntityRegion, "16", domain.Key{}); Classify(err) != KindMalformedRecord {
		t.Fatalf("expected MalformedRecord, got %v", err)
	}
}

func TestTypesSkipsReleasedReservations(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Reserve(domain.EntityListing, "casa-azul"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if types := reg.Types(); len(types) != 0 {
		t.Fatalf("pending reservation listed: %v", types)
	}
	reg.Release(domain.EntityListing, "casa-azul")
	if err := reg.Remember(domain.EntityRegion, "16", domain.SeqKey(1)); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if types := reg.Types(); len(types) != 1 || types[0] != domain.EntityRegion {
		t.Fatalf("unexpected types %v", types)
	}
}
