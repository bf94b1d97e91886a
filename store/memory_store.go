package store

import (
	"context"
	"sync"
	"time"

	"github.com/viant/asyncauth/clock"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mux     sync.Mutex
	entries map[string]entry
	clock   clock.Clock
}

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryStore creates a MemoryStore. A nil clock uses the wall clock.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryStore{entries: map[string]entry{}, clock: clk}
}

func (s *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.entries[key] = s.newEntry(value, ttl)
	return nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if e, ok := s.entries[key]; ok && !e.expired(s.clock.Now()) {
		return false, nil
	}
	s.entries[key] = s.newEntry(value, ttl)
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.lookup(key)
}

func (s *MemoryStore) Take(_ context.Context, key string) (string, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	value, err := s.lookup(key)
	if err != nil {
		return "", err
	}
	delete(s.entries, key)
	return value, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	now := s.clock.Now()
	count := 0
	for _, e := range s.entries {
		if !e.expired(now) {
			count++
		}
	}
	return count
}

func (s *MemoryStore) newEntry(value string, ttl time.Duration) entry {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	return e
}

// lookup must be called with the lock held.
func (s *MemoryStore) lookup(key string) (string, error) {
	e, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if e.expired(s.clock.Now()) {
		delete(s.entries, key)
		return "", ErrNotFound
	}
	return e.value, nil
}
