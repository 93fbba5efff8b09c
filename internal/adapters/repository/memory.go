package repository

import (
	"context"
	"sync"

	"github.com/okian/skilift/internal/domain/model"
)

// MemoryStore keeps records in a map. Useful for tests and local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[string]model.Record
	writes int
	closed bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]model.Record)}
}

// Put upserts r.
func (s *MemoryStore) Put(ctx context.Context, r model.Record) error {
	if err := validate(r); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.rows[r.Key()] = r
	s.writes++
	return nil
}

// Get returns the record for the key.
func (s *MemoryStore) Get(_ context.Context, skierID int, daySeason string) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Record{}, ErrStoreClosed
	}
	r, ok := s.rows[model.Record{SkierID: skierID, DaySeason: daySeason}.Key()]
	if !ok {
		return model.Record{}, ErrNotFound
	}
	return r, nil
}

// Len returns the number of distinct keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Writes returns the number of successful Puts, overwrites included.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
