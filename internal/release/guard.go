package release

import (
	"context"
	"sync"
	"time"
)

// ConsumeGuard is a fast-path fence in front of the database CAS. Acquire
// returns false when another redemption already claimed the token. The
// database row remains the source of truth; a guard failure open (error)
// falls through to the CAS.
type ConsumeGuard interface {
	Acquire(ctx context.Context, token string, ttl time.Duration) (bool, error)
}

// MemoryGuard fences redemptions within a single process.
type MemoryGuard struct {
	mu    sync.Mutex
	taken map[string]time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{taken: make(map[string]time.Time)}
}

func (g *MemoryGuard) Acquire(_ context.Context, token string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if until, ok := g.taken[token]; ok && now.Before(until) {
		return false, nil
	}
	g.taken[token] = now.Add(ttl)
	return true, nil
}
