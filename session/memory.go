package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory Store. Sessions are lost on process
// restart; production deployments point the broker at Redis instead.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Record)}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[rec.Handle]; ok {
		return ErrHandleExists
	}
	s.data[rec.Handle] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, handle string) (Record, error) {
	s.mu.RLock()
	rec, ok := s.data[handle]
	s.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Expired(time.Now()) {
		s.mu.Lock()
		// Re-check under the write lock; a Touch may have extended it.
		if cur, ok := s.data[handle]; ok && cur.Expired(time.Now()) {
			delete(s.data, handle)
		}
		s.mu.Unlock()
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Touch(ctx context.Context, handle string, expiresAt time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[handle]
	if !ok || rec.Expired(time.Now()) {
		delete(s.data, handle)
		return Record{}, ErrNotFound
	}
	rec.ExpiresAt = expiresAt
	s.data[handle] = rec
	return rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, handle string) error {
	s.mu.Lock()
	delete(s.data, handle)
	s.mu.Unlock()
	return nil
}
