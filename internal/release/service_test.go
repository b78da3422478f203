package release

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lifekey/internal/assignment"
	"lifekey/internal/audit"
	"lifekey/internal/claim"
	"lifekey/internal/envelope"
	"lifekey/internal/policy"
	"lifekey/internal/recipient"
	"lifekey/internal/vault"
	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/platform/tx"
	"lifekey/pkg/requestcontext"
)

// =============================================================================
// Release Service Test Suite
// =============================================================================
// Issuance and redemption are the system's end state: everything upstream
// (vault sealing, fan-out wrapping, claim approval) only matters if the
// recipient can open exactly one release exactly once. The suite wires the
// real services end to end over memory stores so the frozen snapshots carry
// genuine NaCl-wrapped keys, not fixtures.

type ReleaseServiceSuite struct {
	suite.Suite
	auditStore      *audit.InMemoryStore
	releases        *InMemoryStore
	itemStore       *vault.InMemoryStore
	recipientStore  *recipient.InMemoryStore
	assignmentStore *assignment.InMemoryStore

	policies    *policy.Service
	recipients  *recipient.Service
	items       *vault.Service
	claims      *claim.Service
	assignments *assignment.Service
	service     *Service

	ownerID      id.OwnerID
	policyID     id.PolicyID
	recipient    *recipient.Recipient
	recipientKey []byte
	loginItem    *vault.Item
	noteItem     *vault.Item
}

func TestReleaseServiceSuite(t *testing.T) {
	suite.Run(t, new(ReleaseServiceSuite))
}

func (s *ReleaseServiceSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	runner := tx.NewMemoryRunner()
	s.auditStore = audit.NewInMemoryStore()
	recorder := audit.NewRecorder(s.auditStore)
	env := envelope.NewManager([]byte("test-passphrase"), []byte("test-salt"))

	s.itemStore = vault.NewInMemoryStore()
	s.recipientStore = recipient.NewInMemoryStore()
	s.releases = NewInMemoryStore()

	s.policies = policy.NewService(policy.NewInMemoryStore(), recorder, runner, logger)
	s.recipients = recipient.NewService(s.recipientStore, recorder, runner, logger)
	s.items = vault.NewService(s.itemStore, env, recorder, runner, logger)
	s.claims = claim.NewService(claim.NewInMemoryStore(), s.policies, s.recipients, recorder, runner, logger)
	s.assignmentStore = assignment.NewInMemoryStore()
	s.assignments = assignment.NewService(s.assignmentStore, s.policies, s.items, s.recipients, s.claims, env, recorder, runner, logger)
	s.service = NewService(s.releases, s.claims, s.policies, s.assignments, s.itemStore, s.recipientStore, recorder, runner, logger)

	ctx := s.ownerContext()
	s.ownerID = id.OwnerID(uuid.New())

	p, err := s.policies.Create(ctx, s.ownerID, 0)
	s.Require().NoError(err)
	s.policyID = p.ID

	s.recipient, s.recipientKey, err = s.recipients.Add(ctx, s.ownerID, "dana@example.com", "Dana Chen", "1990-04-02")
	s.Require().NoError(err)

	s.loginItem, err = s.items.Create(ctx, s.ownerID, "Bank Login", vault.TypeLogin,
		map[string]string{"username": "dana", "password": "hunter2"})
	s.Require().NoError(err)
	s.noteItem, err = s.items.Create(ctx, s.ownerID, "Safe Combination", vault.TypeSecureNote,
		map[string]string{"note": "12-34-56"})
	s.Require().NoError(err)

	_, err = s.assignments.Assign(ctx, s.ownerID, s.policyID, s.loginItem.ID, s.recipient.ID, assignment.PermissionView)
	s.Require().NoError(err)
	_, err = s.assignments.Assign(ctx, s.ownerID, s.policyID, s.noteItem.ID, s.recipient.ID, assignment.PermissionExport)
	s.Require().NoError(err)
}

func (s *ReleaseServiceSuite) ownerContext() context.Context {
	ctx := requestcontext.WithActor(context.Background(), requestcontext.Actor{
		Kind:    requestcontext.ActorOwner,
		Subject: uuid.NewString(),
	})
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func (s *ReleaseServiceSuite) adminContextAt(t time.Time) context.Context {
	ctx := requestcontext.WithActor(context.Background(), requestcontext.Actor{
		Kind:    requestcontext.ActorAdmin,
		Subject: "reviewer@example.com",
	})
	return requestcontext.WithTime(ctx, t)
}

// approvedClaim walks a claim through submit, passed verdict, and approval
// against s.policyID. reviewedAt pins the approval instant the dispute
// window counts from.
func (s *ReleaseServiceSuite) approvedClaim(reviewedAt time.Time) *claim.Claim {
	return s.approvedClaimFor(s.policyID, reviewedAt)
}

func (s *ReleaseServiceSuite) approvedClaimFor(policyID id.PolicyID, reviewedAt time.Time) *claim.Claim {
	c, err := s.claims.Submit(context.Background(), policyID,
		"dana@example.com", "Dana Chen", "1990-04-02",
		"doc://death-cert", "doc://identity")
	s.Require().NoError(err)

	ctx := s.adminContextAt(reviewedAt)
	_, err = s.claims.AttachVerdict(ctx, c.ID, claim.VerdictPassed, "doc://verification-report")
	s.Require().NoError(err)
	c, err = s.claims.Approve(ctx, c.ID)
	s.Require().NoError(err)
	return c
}

func (s *ReleaseServiceSuite) auditActions() []audit.Action {
	var actions []audit.Action
	for _, e := range s.auditStore.All() {
		actions = append(actions, e.Action)
	}
	return actions
}

func countAction(actions []audit.Action, want audit.Action) int {
	n := 0
	for _, a := range actions {
		if a == want {
			n++
		}
	}
	return n
}

// =============================================================================
// Issuance Tests
// =============================================================================

func (s *ReleaseServiceSuite) TestIssueReleases() {
	reviewedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	s.Run("mints a release freezing the fan-out", func() {
		c := s.approvedClaim(reviewedAt)
		ctx := requestcontext.WithTime(context.Background(), reviewedAt.Add(time.Hour))

		r, err := s.service.IssueReleases(ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(c.ID, r.ClaimID)
		s.Equal(s.recipient.ID, r.RecipientID)
		s.NotEmpty(r.Token)
		s.Equal(DefaultValidity, r.ExpiresAt.Sub(r.IssuedAt))
		s.Len(r.Items, 2)
		for _, item := range r.Items {
			s.NotEmpty(item.WrappedKey)
		}
		s.Contains(s.auditActions(), audit.ActionReleaseIssued)
	})

	s.Run("re-issue returns the open release unchanged", func() {
		s.SetupTest()
		c := s.approvedClaim(reviewedAt)
		ctx := requestcontext.WithTime(context.Background(), reviewedAt.Add(time.Hour))

		first, err := s.service.IssueReleases(ctx, c.ID)
		s.Require().NoError(err)
		second, err := s.service.IssueReleases(ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(first.ID, second.ID)
		s.Equal(first.Token, second.Token)
		s.Equal(1, countAction(s.auditActions(), audit.ActionReleaseIssued))
	})

	s.Run("pending claim cannot issue", func() {
		s.SetupTest()
		c, err := s.claims.Submit(context.Background(), s.policyID,
			"dana@example.com", "Dana Chen", "1990-04-02",
			"doc://death-cert", "doc://identity")
		s.Require().NoError(err)

		_, err = s.service.IssueReleases(context.Background(), c.ID)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("dispute window blocks issuance and is retryable", func() {
		s.SetupTest()
		ctx := s.ownerContext()
		p, err := s.policies.Create(ctx, s.ownerID, 72*time.Hour)
		s.Require().NoError(err)
		_, err = s.assignments.Assign(ctx, s.ownerID, p.ID, s.loginItem.ID, s.recipient.ID, assignment.PermissionView)
		s.Require().NoError(err)
		c := s.approvedClaimFor(p.ID, reviewedAt)

		issueCtx := requestcontext.WithTime(context.Background(), reviewedAt.Add(time.Hour))
		_, err = s.service.IssueReleases(issueCtx, c.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeDisputeWindowActive))
		s.True(dErrors.Retryable(err))

		issueCtx = requestcontext.WithTime(context.Background(), reviewedAt.Add(72*time.Hour))
		_, err = s.service.IssueReleases(issueCtx, c.ID)
		s.NoError(err)
	})

	s.Run("recipient with no assignments gets nothing", func() {
		s.SetupTest()
		ctx := s.ownerContext()
		_, _, err := s.recipients.Add(ctx, s.ownerID, "sam@example.com", "Sam Ortiz", "1985-11-20")
		s.Require().NoError(err)

		c, err := s.claims.Submit(context.Background(), s.policyID,
			"sam@example.com", "Sam Ortiz", "1985-11-20",
			"doc://death-cert", "doc://identity")
		s.Require().NoError(err)
		adminCtx := s.adminContextAt(reviewedAt)
		_, err = s.claims.AttachVerdict(adminCtx, c.ID, claim.VerdictPassed, "")
		s.Require().NoError(err)
		_, err = s.claims.Approve(adminCtx, c.ID)
		s.Require().NoError(err)

		issueCtx := requestcontext.WithTime(context.Background(), reviewedAt.Add(time.Hour))
		_, err = s.service.IssueReleases(issueCtx, c.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNoAssignments))
	})

	s.Run("empty fan-out wins over an open dispute window", func() {
		s.SetupTest()
		ctx := s.ownerContext()
		p, err := s.policies.Create(ctx, s.ownerID, 72*time.Hour)
		s.Require().NoError(err)
		c := s.approvedClaimFor(p.ID, reviewedAt)

		// No assignments will ever appear on this policy; the scheduler must
		// see the permanent failure, not the retryable window.
		issueCtx := requestcontext.WithTime(context.Background(), reviewedAt.Add(time.Hour))
		_, err = s.service.IssueReleases(issueCtx, c.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNoAssignments))
		s.False(dErrors.Retryable(err))
	})
}

// =============================================================================
// Redemption Tests
// =============================================================================

func (s *ReleaseServiceSuite) issue() *Release {
	reviewedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := s.approvedClaim(reviewedAt)
	ctx := requestcontext.WithTime(context.Background(), reviewedAt.Add(time.Hour))
	r, err := s.service.IssueReleases(ctx, c.ID)
	s.Require().NoError(err)
	return r
}

func (s *ReleaseServiceSuite) TestViewRelease() {
	s.Run("decrypts the frozen items with the recipient key", func() {
		r := s.issue()
		ctx := requestcontext.WithTime(context.Background(), r.IssuedAt.Add(time.Minute))

		viewed, items, err := s.service.ViewRelease(ctx, r.Token, s.recipientKey)
		s.Require().NoError(err)
		s.NotNil(viewed.ConsumedAt)
		s.Require().Len(items, 2)

		byTitle := map[string]ViewedItem{}
		for _, item := range items {
			byTitle[item.Title] = item
		}
		s.Equal("hunter2", byTitle["Bank Login"].Payload["password"])
		s.Equal(assignment.PermissionView, byTitle["Bank Login"].Permission)
		s.Equal("12-34-56", byTitle["Safe Combination"].Payload["note"])
		s.Equal(assignment.PermissionExport, byTitle["Safe Combination"].Permission)

		viewer := requestcontext.Actor{Kind: requestcontext.ActorRecipient, Subject: s.recipient.ID.String()}
		var found bool
		for _, e := range s.auditStore.All() {
			if e.Action == audit.ActionReleaseViewed {
				found = true
				s.Equal(viewer.String(), e.Actor)
				s.Equal(s.ownerID, e.OwnerID)
			}
		}
		s.True(found)
	})

	s.Run("unknown token", func() {
		s.SetupTest()
		_, _, err := s.service.ViewRelease(context.Background(), "no-such-token", s.recipientKey)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("release expires strictly after the deadline", func() {
		s.SetupTest()
		r := s.issue()

		lateCtx := requestcontext.WithTime(context.Background(), r.ExpiresAt.Add(time.Second))
		_, _, err := s.service.ViewRelease(lateCtx, r.Token, s.recipientKey)
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))

		// At exactly ExpiresAt the token is still good.
		edgeCtx := requestcontext.WithTime(context.Background(), r.ExpiresAt)
		_, items, err := s.service.ViewRelease(edgeCtx, r.Token, s.recipientKey)
		s.Require().NoError(err)
		s.Len(items, 2)
	})

	s.Run("second view is rejected", func() {
		s.SetupTest()
		r := s.issue()
		ctx := requestcontext.WithTime(context.Background(), r.IssuedAt.Add(time.Minute))

		_, _, err := s.service.ViewRelease(ctx, r.Token, s.recipientKey)
		s.Require().NoError(err)
		_, _, err = s.service.ViewRelease(ctx, r.Token, s.recipientKey)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyConsumed))
	})

	s.Run("wrong private key leaves the token redeemable", func() {
		s.SetupTest()
		r := s.issue()
		ctx := requestcontext.WithTime(context.Background(), r.IssuedAt.Add(time.Minute))

		wrongKey := make([]byte, 32)
		_, err := rand.Read(wrongKey)
		s.Require().NoError(err)

		_, _, err = s.service.ViewRelease(ctx, r.Token, wrongKey)
		s.True(dErrors.HasCode(err, dErrors.CodeDecryptionFailed))

		// Nothing was consumed and nothing was audited as viewed; the
		// recipient can retry with the right key.
		stored, err := s.releases.FindByToken(context.Background(), r.Token)
		s.Require().NoError(err)
		s.Nil(stored.ConsumedAt)
		s.Equal(0, countAction(s.auditActions(), audit.ActionReleaseViewed))

		_, items, err := s.service.ViewRelease(ctx, r.Token, s.recipientKey)
		s.Require().NoError(err)
		s.Len(items, 2)
	})

	s.Run("frozen items ignore later store mutations", func() {
		s.SetupTest()
		r := s.issue()

		// Clobber the assignments' key copies at the store, below the
		// service's freeze guard; the release must keep redeeming from its
		// own snapshot.
		rows, err := s.assignmentStore.ListByPolicy(context.Background(), s.policyID)
		s.Require().NoError(err)
		for _, a := range rows {
			a.WrappedKey = []byte("garbage")
			s.Require().NoError(s.assignmentStore.Upsert(context.Background(), a))
		}

		ctx := requestcontext.WithTime(context.Background(), r.IssuedAt.Add(time.Minute))
		_, items, err := s.service.ViewRelease(ctx, r.Token, s.recipientKey)
		s.Require().NoError(err)
		s.Len(items, 2)
	})

	s.Run("release carries only the claiming recipient's fan-out", func() {
		s.SetupTest()
		ownerCtx := s.ownerContext()
		other, otherKey, err := s.recipients.Add(ownerCtx, s.ownerID, "sam@example.com", "Sam Ortiz", "1985-11-20")
		s.Require().NoError(err)
		_, err = s.assignments.Assign(ownerCtx, s.ownerID, s.policyID, s.loginItem.ID, other.ID, assignment.PermissionView)
		s.Require().NoError(err)

		reviewedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		c, err := s.claims.Submit(context.Background(), s.policyID,
			"sam@example.com", "Sam Ortiz", "1985-11-20",
			"doc://death-cert", "doc://identity")
		s.Require().NoError(err)
		adminCtx := s.adminContextAt(reviewedAt)
		_, err = s.claims.AttachVerdict(adminCtx, c.ID, claim.VerdictPassed, "")
		s.Require().NoError(err)
		_, err = s.claims.Approve(adminCtx, c.ID)
		s.Require().NoError(err)

		issueCtx := requestcontext.WithTime(context.Background(), reviewedAt.Add(time.Hour))
		r, err := s.service.IssueReleases(issueCtx, c.ID)
		s.Require().NoError(err)
		s.Require().Len(r.Items, 1)
		s.Equal(s.loginItem.ID, r.Items[0].VaultItemID)

		// Dana's private key cannot open Sam's copy, and the failed attempt
		// does not cost Sam the token.
		viewCtx := requestcontext.WithTime(context.Background(), r.IssuedAt.Add(time.Minute))
		_, _, err = s.service.ViewRelease(viewCtx, r.Token, s.recipientKey)
		s.True(dErrors.HasCode(err, dErrors.CodeDecryptionFailed))
		_, items, err := s.service.ViewRelease(viewCtx, r.Token, otherKey)
		s.Require().NoError(err)
		s.Len(items, 1)
	})

	s.Run("concurrent redemption admits exactly one winner", func() {
		s.SetupTest()
		r := s.issue()
		ctx := requestcontext.WithTime(context.Background(), r.IssuedAt.Add(time.Minute))

		const attempts = 8
		results := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, results[i] = s.service.ViewRelease(ctx, r.Token, s.recipientKey)
			}(i)
		}
		wg.Wait()

		var wins, losses int
		for _, err := range results {
			switch {
			case err == nil:
				wins++
			case dErrors.HasCode(err, dErrors.CodeAlreadyConsumed):
				losses++
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}
		s.Equal(1, wins)
		s.Equal(attempts-1, losses)
	})
}

// =============================================================================
// Consume Guard Tests
// =============================================================================

func (s *ReleaseServiceSuite) TestMemoryGuard() {
	guard := NewMemoryGuard()
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "tok-1", time.Minute)
	s.NoError(err)
	s.True(ok)

	ok, err = guard.Acquire(ctx, "tok-1", time.Minute)
	s.NoError(err)
	s.False(ok)

	ok, err = guard.Acquire(ctx, "tok-2", time.Minute)
	s.NoError(err)
	s.True(ok)
}

func (s *ReleaseServiceSuite) TestGuardRejectsSecondRedemption() {
	r := s.issue()
	ctx := requestcontext.WithTime(context.Background(), r.IssuedAt.Add(time.Minute))

	guarded := NewService(s.releases, s.claims, s.policies, s.assignments,
		s.itemStore, s.recipientStore, audit.NewRecorder(s.auditStore), tx.NewMemoryRunner(),
		slog.New(slog.DiscardHandler), WithGuard(NewMemoryGuard()))

	_, _, err := guarded.ViewRelease(ctx, r.Token, s.recipientKey)
	s.Require().NoError(err)
	_, _, err = guarded.ViewRelease(ctx, r.Token, s.recipientKey)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyConsumed))
}
