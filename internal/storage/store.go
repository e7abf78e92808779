package storage

import (
	"errors"
	"sync"
)

// ErrKeyNotFound is returned when a key doesn't exist in the store
var ErrKeyNotFound = errors.New("key not found")

// Store defines the interface for a worker's key-value state
// All implementations must be thread-safe for concurrent access
type Store interface {
	// Get retrieves the value stored under key
	// Returns ErrKeyNotFound if the key doesn't exist
	Get(key string) (int, error)

	// Put stores value under key, overwriting any previous value
	Put(key string, value int) error

	// Len returns the number of stored keys
	Len() int
}

// MemoryStore implements Store with an in-memory map
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu   sync.RWMutex   // Protects concurrent access
	data map[string]int // Key-value storage
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]int),
	}
}

// Get retrieves a value by key
func (m *MemoryStore) Get(key string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists {
		return 0, ErrKeyNotFound
	}
	return value, nil
}

// Put stores a value with the given key
func (m *MemoryStore) Put(key string, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	return nil
}

// Len returns the number of stored keys
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data)
}
