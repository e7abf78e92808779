package storage

import (
	"fmt"
	"sync"
	"testing"
)

// TestMemoryStore tests the in-memory store implementation
func TestMemoryStore(t *testing.T) {
	t.Run("new store is empty", func(t *testing.T) {
		store := NewMemoryStore()

		if store.Len() != 0 {
			t.Errorf("Expected empty store, got %d keys", store.Len())
		}

		// Get should return ErrKeyNotFound
		_, err := store.Get("nonexistent")
		if err != ErrKeyNotFound {
			t.Errorf("Expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("put and get values", func(t *testing.T) {
		store := NewMemoryStore()

		if err := store.Put("answer", 42); err != nil {
			t.Fatalf("Failed to put value: %v", err)
		}

		value, err := store.Get("answer")
		if err != nil {
			t.Fatalf("Failed to get value: %v", err)
		}
		if value != 42 {
			t.Errorf("Expected 42, got %d", value)
		}
	})

	t.Run("overwrite existing key", func(t *testing.T) {
		store := NewMemoryStore()

		_ = store.Put("x", 1)
		_ = store.Put("x", -7)

		value, err := store.Get("x")
		if err != nil {
			t.Fatalf("Failed to get value: %v", err)
		}
		if value != -7 {
			t.Errorf("Expected -7, got %d", value)
		}
		if store.Len() != 1 {
			t.Errorf("Expected 1 key, got %d", store.Len())
		}
	})

	t.Run("zero is a stored value, not a miss", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.Put("zero", 0)

		value, err := store.Get("zero")
		if err != nil {
			t.Fatalf("Expected stored zero, got error %v", err)
		}
		if value != 0 {
			t.Errorf("Expected 0, got %d", value)
		}
	})
}

// TestMemoryStoreConcurrency hammers the store from several goroutines
func TestMemoryStoreConcurrency(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i)
				_ = store.Put(key, i)
				if v, err := store.Get(key); err != nil || v != i {
					t.Errorf("Expected %d for %s, got %d (%v)", i, key, v, err)
				}
			}
		}(g)
	}
	wg.Wait()

	if store.Len() != 800 {
		t.Errorf("Expected 800 keys, got %d", store.Len())
	}
}
