package repository

import (
	"context"
	"sync"

	"notes-sync-server/internal/domain"
)

// MemoryStore keeps records in a map. Values are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.NoteRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*domain.NoteRecord),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.NoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *domain.NoteRecord) error {
	if err := ctx.Err(); err != nil {
		return storeErr("put", rec.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := rec.Clone()
	c.ContentMissing = false
	s.records[rec.ID] = c
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*domain.NoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.NoteRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}
