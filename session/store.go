// Package session keeps recently uploaded reports in memory, keyed by an
// opaque session id.
package session

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCapacity = 100

// ErrNotFound is returned by callers when a session id is unknown or evicted.
var ErrNotFound = errors.New("session not found")

// Store is a bounded map from session id to value. Reads do not refresh an
// entry, so once the store is full the oldest inserted entry is evicted first.
// A Store is safe for concurrent use.
type Store[T any] struct {
	cache *lru.Cache[string, T]

	mu    sync.RWMutex
	hooks []func(id string)
}

// New creates a store holding at most capacity entries. A non-positive
// capacity selects DefaultCapacity.
func New[T any](capacity int) (*Store[T], error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store[T]{}
	cache, err := lru.NewWithEvict[string, T](capacity, s.evicted)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Put stores value under id, replacing any previous value.
func (s *Store[T]) Put(id string, value T) {
	s.cache.Add(id, value)
}

// Get returns the value stored under id.
func (s *Store[T]) Get(id string) (T, bool) {
	return s.cache.Peek(id)
}

// Delete removes id and reports whether it was present.
func (s *Store[T]) Delete(id string) bool {
	return s.cache.Remove(id)
}

// Len returns the number of stored entries.
func (s *Store[T]) Len() int {
	return s.cache.Len()
}

// IDs lists stored ids from oldest to newest.
func (s *Store[T]) IDs() []string {
	return s.cache.Keys()
}

// OnRemove registers fn to run whenever an entry leaves the store, through
// eviction or Delete.
func (s *Store[T]) OnRemove(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Store[T]) evicted(id string, _ T) {
	s.mu.RLock()
	hooks := append([]func(string){}, s.hooks...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
}
