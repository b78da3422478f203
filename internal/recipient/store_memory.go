package recipient

import (
	"context"
	"sort"
	"strings"
	"sync"

	id "lifekey/pkg/domain"
	"lifekey/pkg/platform/sentinel"
)

type ownerEmail struct {
	owner id.OwnerID
	email string
}

type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[id.RecipientID]*Recipient
	byEmail map[ownerEmail]id.RecipientID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[id.RecipientID]*Recipient),
		byEmail: make(map[ownerEmail]id.RecipientID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, r *Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerEmail{owner: r.OwnerID, email: strings.ToLower(r.Email)}
	if _, exists := s.byEmail[key]; exists {
		return sentinel.ErrConflict
	}
	s.byID[r.ID] = cloneRecipient(r)
	s.byEmail[key] = r.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, recipientID id.RecipientID) (*Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[recipientID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecipient(r), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID id.OwnerID) ([]*Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Recipient
	for _, r := range s.byID {
		if r.OwnerID == ownerID {
			out = append(out, cloneRecipient(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneRecipient(r *Recipient) *Recipient {
	cp := *r
	cp.PublicKey = append([]byte(nil), r.PublicKey...)
	return &cp
}
