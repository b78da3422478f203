package release

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/requestcontext"
)

// Issuer is the slice of the service the sweeper drives.
type Issuer interface {
	IssueReleases(ctx context.Context, claimID id.ClaimID) (*Release, error)
}

// Sweeper retries issuance for claims blocked by an active dispute window.
// It stands in for an external scheduler: handlers enqueue a claim when
// issuance returns a retryable error, and the sweeper re-attempts on a
// fixed interval until issuance settles one way or the other.
type Sweeper struct {
	issuer   Issuer
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[id.ClaimID]struct{}
}

func NewSweeper(issuer Issuer, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		issuer:   issuer,
		interval: interval,
		logger:   logger,
		pending:  make(map[id.ClaimID]struct{}),
	}
}

// Add enqueues a claim for retry. Duplicate adds collapse.
func (s *Sweeper) Add(claimID id.ClaimID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[claimID] = struct{}{}
}

// Run blocks until the context is cancelled, sweeping every interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	s.mu.Lock()
	batch := make([]id.ClaimID, 0, len(s.pending))
	for claimID := range s.pending {
		batch = append(batch, claimID)
	}
	s.mu.Unlock()

	ctx = requestcontext.WithActor(ctx, requestcontext.SystemActor)
	for _, claimID := range batch {
		_, err := s.issuer.IssueReleases(ctx, claimID)
		switch {
		case err == nil:
			s.remove(claimID)
			s.logger.InfoContext(ctx, "sweeper issued release", "claim_id", claimID.String())
		case dErrors.Retryable(err):
			// Window still open; keep it queued.
		default:
			s.remove(claimID)
			s.logger.WarnContext(ctx, "sweeper dropped claim", "claim_id", claimID.String(), "error", err)
		}
	}
}

func (s *Sweeper) remove(claimID id.ClaimID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, claimID)
}
