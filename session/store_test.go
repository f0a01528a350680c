package session

import (
	"sync"
	"testing"
)

func TestStoreEvictsOldestInserted(t *testing.T) {
	store, err := New[string](2)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	store.Put("a", "first")
	store.Put("b", "second")

	// Reading "a" must not protect it from eviction.
	if v, ok := store.Get("a"); !ok || v != "first" {
		t.Fatalf("expected first, got %q (%v)", v, ok)
	}

	store.Put("c", "third")

	if _, ok := store.Get("a"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", store.Len())
	}
	ids := store.IDs()
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestStoreOnRemoveHooks(t *testing.T) {
	store, err := New[int](1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	var mu sync.Mutex
	var removed []string
	store.OnRemove(func(id string) {
		mu.Lock()
		defer mu.Unlock()
		removed = append(removed, id)
	})

	store.Put("x", 1)
	store.Put("y", 2)
	if !store.Delete("y") {
		t.Fatal("expected delete to report presence")
	}
	if store.Delete("missing") {
		t.Fatal("expected delete of missing id to report false")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(removed) != 2 || removed[0] != "x" || removed[1] != "y" {
		t.Fatalf("unexpected removal order %v", removed)
	}
}

func TestStoreDefaultCapacity(t *testing.T) {
	store, err := New[int](0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for i := 0; i < DefaultCapacity+5; i++ {
		store.Put(string(rune('a'+i%26))+string(rune('0'+i/26)), i)
	}
	if store.Len() != DefaultCapacity {
		t.Fatalf("expected %d entries, got %d", DefaultCapacity, store.Len())
	}
}
