package release

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/requestcontext"
)

type scriptedIssuer struct {
	mu      sync.Mutex
	results map[id.ClaimID][]error
	actors  []requestcontext.Actor
}

func (i *scriptedIssuer) IssueReleases(ctx context.Context, claimID id.ClaimID) (*Release, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if actor, ok := requestcontext.ActorFrom(ctx); ok {
		i.actors = append(i.actors, actor)
	}
	queue := i.results[claimID]
	if len(queue) == 0 {
		return &Release{ID: id.ReleaseID(uuid.New()), ClaimID: claimID}, nil
	}
	err := queue[0]
	i.results[claimID] = queue[1:]
	if err != nil {
		return nil, err
	}
	return &Release{ID: id.ReleaseID(uuid.New()), ClaimID: claimID}, nil
}

func (s *Sweeper) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func TestSweeperRetriesUntilWindowCloses(t *testing.T) {
	claimID := id.ClaimID(uuid.New())
	windowOpen := dErrors.New(dErrors.CodeDisputeWindowActive, "dispute window has not elapsed")
	issuer := &scriptedIssuer{results: map[id.ClaimID][]error{
		claimID: {windowOpen, windowOpen, nil},
	}}
	sweeper := NewSweeper(issuer, time.Minute, slog.New(slog.DiscardHandler))

	sweeper.Add(claimID)
	sweeper.Add(claimID) // duplicate adds collapse

	ctx := context.Background()
	sweeper.sweep(ctx)
	assert.Equal(t, 1, sweeper.pendingCount(), "retryable failure keeps the claim queued")

	sweeper.sweep(ctx)
	assert.Equal(t, 1, sweeper.pendingCount())

	sweeper.sweep(ctx)
	assert.Equal(t, 0, sweeper.pendingCount(), "successful issuance drains the queue")

	require.NotEmpty(t, issuer.actors)
	for _, actor := range issuer.actors {
		assert.Equal(t, requestcontext.ActorSystem, actor.Kind)
	}
}

func TestSweeperDropsNonRetryableClaims(t *testing.T) {
	claimID := id.ClaimID(uuid.New())
	issuer := &scriptedIssuer{results: map[id.ClaimID][]error{
		claimID: {dErrors.New(dErrors.CodeNotFound, "claim not found")},
	}}
	sweeper := NewSweeper(issuer, time.Minute, slog.New(slog.DiscardHandler))

	sweeper.Add(claimID)
	sweeper.sweep(context.Background())
	assert.Equal(t, 0, sweeper.pendingCount(), "terminal errors are not retried")
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	issuer := &scriptedIssuer{results: map[id.ClaimID][]error{}}
	sweeper := NewSweeper(issuer, 5*time.Millisecond, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
