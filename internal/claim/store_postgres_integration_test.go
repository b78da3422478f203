//go:build integration

package claim_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lifekey/internal/claim"
	"lifekey/internal/owner"
	"lifekey/internal/policy"
	"lifekey/internal/recipient"
	id "lifekey/pkg/domain"
	"lifekey/pkg/platform/sentinel"
	"lifekey/pkg/platform/tx"
	"lifekey/pkg/testutil/containers"
)

type ClaimPostgresSuite struct {
	suite.Suite
	postgres   *containers.PostgresContainer
	store      *claim.PostgresStore
	owners     *owner.PostgresStore
	policies   *policy.PostgresStore
	recipients *recipient.PostgresStore

	policyID    id.PolicyID
	recipientID id.RecipientID
}

func TestClaimPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ClaimPostgresSuite))
}

func (s *ClaimPostgresSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = claim.NewPostgresStore(s.postgres.DB)
	s.owners = owner.NewPostgresStore(s.postgres.DB)
	s.policies = policy.NewPostgresStore(s.postgres.DB)
	s.recipients = recipient.NewPostgresStore(s.postgres.DB)
}

func (s *ClaimPostgresSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx,
		"release_items", "releases", "claims", "assignments",
		"vault_items", "recipients", "policies", "owners", "audit_events")
	s.Require().NoError(err)

	now := time.Now()
	o, err := owner.NewOwner(id.OwnerID(uuid.New()), "alex@example.com", "Alex Kim", now)
	s.Require().NoError(err)
	s.Require().NoError(s.owners.Create(ctx, o))

	p, err := policy.NewPolicy(id.PolicyID(uuid.New()), o.ID, 0, now)
	s.Require().NoError(err)
	s.Require().NoError(s.policies.Create(ctx, p))
	s.policyID = p.ID

	r, err := recipient.NewRecipient(id.RecipientID(uuid.New()), o.ID, "dana@example.com", "Dana Chen", "1990-04-02", now)
	s.Require().NoError(err)
	r.PublicKey = make([]byte, 32)
	s.Require().NoError(s.recipients.Create(ctx, r))
	s.recipientID = r.ID
}

func (s *ClaimPostgresSuite) newClaim() *claim.Claim {
	c, err := claim.NewClaim(id.ClaimID(uuid.New()), s.policyID, s.recipientID,
		"doc://death-cert", "doc://identity", time.Now())
	s.Require().NoError(err)
	return c
}

// TestOneOpenClaimUnderConcurrency drives the partial unique index: many
// simultaneous submissions for one (policy, recipient) must admit exactly
// one row.
func (s *ClaimPostgresSuite) TestOneOpenClaimUnderConcurrency() {
	ctx := context.Background()
	const attempts = 8

	var created, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, s.newClaim())
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(attempts-1), conflicts.Load())
}

func (s *ClaimPostgresSuite) TestRejectionFreesTheSlot() {
	ctx := context.Background()

	first := s.newClaim()
	s.Require().NoError(s.store.Create(ctx, first))

	err := s.store.Create(ctx, s.newClaim())
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	first.ApplyReject("admin:reviewer@example.com", time.Now())
	s.Require().NoError(s.store.Update(ctx, first))

	s.Require().NoError(s.store.Create(ctx, s.newClaim()))
}

func (s *ClaimPostgresSuite) TestUpdatePersistsReviewFields() {
	ctx := context.Background()

	c := s.newClaim()
	s.Require().NoError(s.store.Create(ctx, c))

	c.ApplyVerdict(claim.VerdictPassed, "doc://verification-report")
	reviewedAt := time.Now().UTC().Truncate(time.Microsecond)
	c.ApplyApprove("admin:reviewer@example.com", reviewedAt)
	s.Require().NoError(s.store.Update(ctx, c))

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(claim.StatusApproved, found.Status)
	s.Equal(claim.VerdictPassed, found.Verdict)
	s.Equal("doc://verification-report", found.EvidenceRef)
	s.Require().NotNil(found.ReviewedAt)
	s.WithinDuration(reviewedAt, *found.ReviewedAt, time.Millisecond)
	s.Equal("admin:reviewer@example.com", found.ReviewedBy)

	frozen, err := s.store.ExistsApprovedByPolicy(ctx, s.policyID)
	s.Require().NoError(err)
	s.True(frozen)
}

// TestRowLockSerializesReviews races two transactions over one pending
// claim. FindByIDForUpdate holds the row lock until commit, so the second
// transaction reads the settled status and must skip its write.
func (s *ClaimPostgresSuite) TestRowLockSerializesReviews() {
	ctx := context.Background()
	runner := tx.NewSQLRunner(s.postgres.DB)

	c := s.newClaim()
	c.ApplyVerdict(claim.VerdictPassed, "doc://verification-report")
	s.Require().NoError(s.store.Create(ctx, c))

	var writes atomic.Int32
	review := func(apply func(*claim.Claim)) error {
		return runner.RunInTx(ctx, func(txCtx context.Context) error {
			locked, err := s.store.FindByIDForUpdate(txCtx, c.ID)
			if err != nil {
				return err
			}
			if locked.Status != claim.StatusPending {
				return nil
			}
			apply(locked)
			if err := s.store.Update(txCtx, locked); err != nil {
				return err
			}
			writes.Add(1)
			return nil
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.NoError(review(func(c *claim.Claim) { c.ApplyApprove("admin:reviewer@example.com", time.Now()) }))
	}()
	go func() {
		defer wg.Done()
		s.NoError(review(func(c *claim.Claim) { c.ApplyReject("admin:reviewer@example.com", time.Now()) }))
	}()
	wg.Wait()

	s.Equal(int32(1), writes.Load(), "only one review may observe the pending state")

	settled, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Contains([]claim.Status{claim.StatusApproved, claim.StatusRejected}, settled.Status)
}
