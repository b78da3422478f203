package release

import (
	"context"
	"sync"
	"time"

	id "lifekey/pkg/domain"
	"lifekey/pkg/platform/sentinel"
)

// InMemoryStore keeps releases in maps for tests and single-node runs. The
// mutex makes Consume an atomic check-and-set, matching the Postgres CAS.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[id.ReleaseID]*Release
	byToken map[string]id.ReleaseID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[id.ReleaseID]*Release),
		byToken: make(map[string]id.ReleaseID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, r *Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byToken[r.Token]; ok {
		return sentinel.ErrConflict
	}
	s.byID[r.ID] = cloneRelease(r)
	s.byToken[r.Token] = r.ID
	return nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	releaseID, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRelease(s.byID[releaseID]), nil
}

func (s *InMemoryStore) FindOpenByClaim(_ context.Context, claimID id.ClaimID) (*Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *Release
	for _, r := range s.byID {
		if r.ClaimID != claimID || r.ConsumedAt != nil {
			continue
		}
		if newest == nil || r.IssuedAt.After(newest.IssuedAt) {
			newest = r
		}
	}
	if newest == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneRelease(newest), nil
}

func (s *InMemoryStore) Consume(_ context.Context, releaseID id.ReleaseID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[releaseID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if r.ConsumedAt != nil {
		return sentinel.ErrAlreadyUsed
	}
	t := now
	r.ConsumedAt = &t
	return nil
}

func cloneRelease(r *Release) *Release {
	clone := *r
	clone.Items = make([]FrozenItem, len(r.Items))
	for i, item := range r.Items {
		clone.Items[i] = item
		clone.Items[i].WrappedKey = append([]byte(nil), item.WrappedKey...)
	}
	if r.ConsumedAt != nil {
		t := *r.ConsumedAt
		clone.ConsumedAt = &t
	}
	return &clone
}
