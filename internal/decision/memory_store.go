package decision

import (
	"context"
	"sync"

	"github.com/iliyamo/checkout-credits/internal/model"
)

// MemoryStore is the fallback used when Redis is unavailable.  Records live
// for the lifetime of the process.
type MemoryStore struct {
	namespace string

	mu      sync.Mutex
	records map[string]model.CreditDecision
}

func NewMemoryStore(namespace string) *MemoryStore {
	return &MemoryStore{namespace: namespace, records: make(map[string]model.CreditDecision)}
}

func (s *MemoryStore) Load(_ context.Context, bookingID string) (*model.CreditDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.records[Key(s.namespace, bookingID)]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *MemoryStore) Save(_ context.Context, bookingID string, d model.CreditDecision) error {
	s.mu.Lock()
	s.records[Key(s.namespace, bookingID)] = d
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, bookingID string) error {
	s.mu.Lock()
	delete(s.records, Key(s.namespace, bookingID))
	s.mu.Unlock()
	return nil
}
