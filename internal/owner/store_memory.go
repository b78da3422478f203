package owner

import (
	"context"
	"strings"
	"sync"

	id "lifekey/pkg/domain"
	"lifekey/pkg/platform/sentinel"
)

// InMemoryStore is the map-backed owner store for tests and single-process
// runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[id.OwnerID]*Owner
	byEmail map[string]id.OwnerID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[id.OwnerID]*Owner),
		byEmail: make(map[string]id.OwnerID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, o *Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(o.Email)
	if _, exists := s.byEmail[key]; exists {
		return sentinel.ErrConflict
	}
	cp := *o
	s.byID[o.ID] = &cp
	s.byEmail[key] = o.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, ownerID id.OwnerID) (*Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[ownerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ownerID, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[ownerID]
	return &cp, nil
}
