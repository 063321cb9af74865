package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the most recent records in a bounded ring
type MemoryStore struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
	nextID   int64
}

// NewMemoryStore creates a store holding at most capacity records
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) Record(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	r.ID = s.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	if len(s.records) >= s.capacity {
		// Drop the oldest entry
		copy(s.records, s.records[1:])
		s.records = s.records[:len(s.records)-1]
	}
	s.records = append(s.records, *r)
	return nil
}

// ListByRequest returns the records of a request, oldest first
func (s *MemoryStore) ListByRequest(ctx context.Context, requestID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, r := range s.records {
		if r.RequestID == requestID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Recent returns up to limit records, newest first
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]Record, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
