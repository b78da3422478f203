package claim

import (
	"context"
	"sync"

	id "lifekey/pkg/domain"
	"lifekey/pkg/platform/sentinel"
)

// InMemoryStore keeps claims in a map for tests and single-node runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	claims map[id.ClaimID]*Claim
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{claims: make(map[id.ClaimID]*Claim)}
}

func (s *InMemoryStore) Create(_ context.Context, c *Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.claims {
		if existing.PolicyID == c.PolicyID && existing.RecipientID == c.RecipientID && existing.Status != StatusRejected {
			return sentinel.ErrConflict
		}
	}
	s.claims[c.ID] = cloneClaim(c)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, claimID id.ClaimID) (*Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.claims[claimID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneClaim(c), nil
}

// FindByIDForUpdate reads like FindByID; the memory runner already serializes
// transactions under a single mutex, so no extra locking is needed here.
func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, claimID id.ClaimID) (*Claim, error) {
	return s.FindByID(ctx, claimID)
}

func (s *InMemoryStore) Update(_ context.Context, c *Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.claims[c.ID] = cloneClaim(c)
	return nil
}

func (s *InMemoryStore) ListByPolicy(_ context.Context, policyID id.PolicyID) ([]*Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Claim
	for _, c := range s.claims {
		if c.PolicyID == policyID {
			out = append(out, cloneClaim(c))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ExistsApprovedByPolicy(_ context.Context, policyID id.PolicyID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.claims {
		if c.PolicyID == policyID && c.Status == StatusApproved {
			return true, nil
		}
	}
	return false, nil
}

func cloneClaim(c *Claim) *Claim {
	clone := *c
	if c.ReviewedAt != nil {
		t := *c.ReviewedAt
		clone.ReviewedAt = &t
	}
	return &clone
}
