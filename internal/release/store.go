package release

import (
	"context"
	"time"

	id "lifekey/pkg/domain"
)

// Store persists releases. Consume is a compare-and-set on consumed_at:
// exactly one caller wins under concurrency, every other caller gets
// sentinel.ErrAlreadyUsed. FindOpenByClaim returns the newest unconsumed
// release for a claim, expired or not; expiry is the service's call because
// it owns the clock.
type Store interface {
	Create(ctx context.Context, r *Release) error
	FindByToken(ctx context.Context, token string) (*Release, error)
	FindOpenByClaim(ctx context.Context, claimID id.ClaimID) (*Release, error)
	Consume(ctx context.Context, releaseID id.ReleaseID, now time.Time) error
}
