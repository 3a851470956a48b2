package authz

import (
	"context"
	"sync"
)

// InMemoryOrganizerStore stores organizer accounts in memory for tests and
// single-node development setups.
type InMemoryOrganizerStore struct {
	mu         sync.RWMutex
	nextID     int64
	organizers map[string]*Organizer
}

// NewInMemoryStore constructs an empty in-memory organizer store.
func NewInMemoryStore() *InMemoryOrganizerStore {
	return &InMemoryOrganizerStore{
		nextID:     1,
		organizers: make(map[string]*Organizer),
	}
}

func (s *InMemoryOrganizerStore) FindByKeyID(_ context.Context, keyID string) (*Organizer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if organizer, ok := s.organizers[keyID]; ok {
		clone := *organizer
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryOrganizerStore) Save(_ context.Context, organizer *Organizer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if organizer.ID == 0 {
		organizer.ID = s.nextID
		s.nextID++
	}
	clone := *organizer
	s.organizers[organizer.KeyID] = &clone
	return nil
}

var _ OrganizerStore = (*InMemoryOrganizerStore)(nil)
