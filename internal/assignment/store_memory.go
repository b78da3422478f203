package assignment

import (
	"context"
	"sync"

	id "lifekey/pkg/domain"
	"lifekey/pkg/platform/sentinel"
)

type tripleKey struct {
	policyID    id.PolicyID
	itemID      id.VaultItemID
	recipientID id.RecipientID
}

// InMemoryStore keeps assignments in maps for tests and single-node runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	byID     map[id.AssignmentID]*Assignment
	byTriple map[tripleKey]id.AssignmentID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[id.AssignmentID]*Assignment),
		byTriple: make(map[tripleKey]id.AssignmentID),
	}
}

func (s *InMemoryStore) Upsert(_ context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tripleKey{a.PolicyID, a.VaultItemID, a.RecipientID}
	if existingID, ok := s.byTriple[key]; ok {
		existing := s.byID[existingID]
		existing.Permission = a.Permission
		existing.WrappedKey = append([]byte(nil), a.WrappedKey...)
		existing.UpdatedAt = a.UpdatedAt
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
		return nil
	}
	s.byID[a.ID] = cloneAssignment(a)
	s.byTriple[key] = a.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, assignmentID id.AssignmentID) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[assignmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneAssignment(a), nil
}

func (s *InMemoryStore) ListByPolicy(_ context.Context, policyID id.PolicyID) ([]*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Assignment
	for _, a := range s.byID {
		if a.PolicyID == policyID {
			out = append(out, cloneAssignment(a))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByPolicyAndRecipient(_ context.Context, policyID id.PolicyID, recipientID id.RecipientID) ([]*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Assignment
	for _, a := range s.byID {
		if a.PolicyID == policyID && a.RecipientID == recipientID {
			out = append(out, cloneAssignment(a))
		}
	}
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, assignmentID id.AssignmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[assignmentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byTriple, tripleKey{a.PolicyID, a.VaultItemID, a.RecipientID})
	delete(s.byID, assignmentID)
	return nil
}

func cloneAssignment(a *Assignment) *Assignment {
	clone := *a
	clone.WrappedKey = append([]byte(nil), a.WrappedKey...)
	return &clone
}
