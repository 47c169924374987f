package profile

import (
	"context"
	"sync"
)

// Store persists profile documents.
type Store interface {
	// Get returns ErrNotFound only when the id definitively has no document.
	Get(ctx context.Context, id string) (Document, error)
	// Upsert stores merge(existing) atomically with respect to other upserts
	// of the same id.
	Upsert(ctx context.Context, id string, merge MergeFunc) error
}

// MemoryStore keeps encoded documents in memory.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	data, ok := s.docs[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return Decode(data)
}

func (s *MemoryStore) Upsert(ctx context.Context, id string, merge MergeFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing Document
	if data, ok := s.docs[id]; ok {
		d, err := Decode(data)
		if err != nil {
			return err
		}
		existing = d
	}
	data, err := merge(existing).Encode()
	if err != nil {
		return err
	}
	s.docs[id] = data
	return nil
}

// Raw returns the stored bytes for an id.
func (s *MemoryStore) Raw(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[id]
	return append([]byte(nil), data...), ok
}

// Put stores raw bytes, bypassing the merge path. Used to seed documents
// written by other tools.
func (s *MemoryStore) Put(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = append([]byte(nil), data...)
}
