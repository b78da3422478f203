package assignment

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

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
// Assignment Service Test Suite
// =============================================================================
// Assignments carry the fan-out key material and drive the policy
// draft/active lifecycle, so the suite checks ownership scoping, the upsert
// triple, freeze-on-approval, and the activation edges together.

type AssignmentServiceSuite struct {
	suite.Suite
	env        *envelope.Manager
	store      *InMemoryStore
	policies   *policy.Service
	recipients *recipient.Service
	items      *vault.Service
	claims     *claim.Service
	service    *Service

	ownerID      id.OwnerID
	policyID     id.PolicyID
	itemID       id.VaultItemID
	recipientID  id.RecipientID
	recipientKey []byte
}

func TestAssignmentServiceSuite(t *testing.T) {
	suite.Run(t, new(AssignmentServiceSuite))
}

func (s *AssignmentServiceSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	runner := tx.NewMemoryRunner()
	recorder := audit.NewRecorder(audit.NewInMemoryStore())
	s.env = envelope.NewManager([]byte("test-passphrase"), []byte("test-salt"))

	s.store = NewInMemoryStore()
	s.policies = policy.NewService(policy.NewInMemoryStore(), recorder, runner, logger)
	s.recipients = recipient.NewService(recipient.NewInMemoryStore(), recorder, runner, logger)
	s.items = vault.NewService(vault.NewInMemoryStore(), s.env, recorder, runner, logger)
	s.claims = claim.NewService(claim.NewInMemoryStore(), s.policies, s.recipients, recorder, runner, logger)
	s.service = NewService(s.store, s.policies, s.items, s.recipients, s.claims, s.env, recorder, runner, logger)

	ctx := s.ownerContext()
	s.ownerID = id.OwnerID(uuid.New())

	p, err := s.policies.Create(ctx, s.ownerID, 0)
	s.Require().NoError(err)
	s.policyID = p.ID

	rcpt, priv, err := s.recipients.Add(ctx, s.ownerID, "dana@example.com", "Dana Chen", "1990-04-02")
	s.Require().NoError(err)
	s.recipientID = rcpt.ID
	s.recipientKey = priv

	item, err := s.items.Create(ctx, s.ownerID, "Bank Login", vault.TypeLogin,
		map[string]string{"username": "dana", "password": "hunter2"})
	s.Require().NoError(err)
	s.itemID = item.ID
}

func (s *AssignmentServiceSuite) ownerContext() context.Context {
	ctx := requestcontext.WithActor(context.Background(), requestcontext.Actor{
		Kind:    requestcontext.ActorOwner,
		Subject: uuid.NewString(),
	})
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func (s *AssignmentServiceSuite) approveClaimOnPolicy() {
	c, err := s.claims.Submit(context.Background(), s.policyID,
		"dana@example.com", "Dana Chen", "1990-04-02",
		"doc://death-cert", "doc://identity")
	s.Require().NoError(err)

	adminCtx := requestcontext.WithActor(context.Background(), requestcontext.Actor{
		Kind:    requestcontext.ActorAdmin,
		Subject: "reviewer@example.com",
	})
	_, err = s.claims.AttachVerdict(adminCtx, c.ID, claim.VerdictPassed, "")
	s.Require().NoError(err)
	_, err = s.claims.Approve(adminCtx, c.ID)
	s.Require().NoError(err)
}

// =============================================================================
// Assign Tests
// =============================================================================

func (s *AssignmentServiceSuite) TestAssign() {
	ctx := s.ownerContext()

	s.Run("wraps the content key for the recipient", func() {
		a, err := s.service.Assign(ctx, s.ownerID, s.policyID, s.itemID, s.recipientID, PermissionView)
		s.Require().NoError(err)
		s.Equal(PermissionView, a.Permission)
		s.NotEmpty(a.WrappedKey)

		// The wrapped copy must open to the same content key the owner
		// side holds for the item.
		rcpt, err := s.recipients.Get(ctx, s.ownerID, s.recipientID)
		s.Require().NoError(err)
		item, err := s.items.Get(ctx, s.ownerID, s.itemID)
		s.Require().NoError(err)
		ownerKey, err := s.env.UnwrapForOwner(item.WrappedKey)
		s.Require().NoError(err)
		recipientKey, err := envelope.UnwrapForRecipient(a.WrappedKey, rcpt.PublicKey, s.recipientKey)
		s.Require().NoError(err)
		s.Equal(ownerKey, recipientKey)
	})

	s.Run("first assignment activates a draft policy", func() {
		s.SetupTest()
		p, err := s.policies.Get(s.ownerContext(), s.ownerID, s.policyID)
		s.Require().NoError(err)
		s.Equal(policy.StatusDraft, p.Status)

		_, err = s.service.Assign(s.ownerContext(), s.ownerID, s.policyID, s.itemID, s.recipientID, PermissionView)
		s.Require().NoError(err)

		p, err = s.policies.Get(s.ownerContext(), s.ownerID, s.policyID)
		s.Require().NoError(err)
		s.Equal(policy.StatusActive, p.Status)
	})

	s.Run("re-assign updates permission in place", func() {
		s.SetupTest()
		ctx := s.ownerContext()
		first, err := s.service.Assign(ctx, s.ownerID, s.policyID, s.itemID, s.recipientID, PermissionView)
		s.Require().NoError(err)
		second, err := s.service.Assign(ctx, s.ownerID, s.policyID, s.itemID, s.recipientID, PermissionExport)
		s.Require().NoError(err)

		s.Equal(first.ID, second.ID)
		rows, err := s.store.ListByPolicy(ctx, s.policyID)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.Equal(PermissionExport, rows[0].Permission)
	})

	s.Run("cross-owner resources read as absent", func() {
		s.SetupTest()
		stranger := id.OwnerID(uuid.New())
		_, err := s.service.Assign(s.ownerContext(), stranger, s.policyID, s.itemID, s.recipientID, PermissionView)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid permission is rejected", func() {
		s.SetupTest()
		_, err := s.service.Assign(s.ownerContext(), s.ownerID, s.policyID, s.itemID, s.recipientID, Permission("admin"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("approved claim freezes the policy", func() {
		s.SetupTest()
		ctx := s.ownerContext()
		_, err := s.service.Assign(ctx, s.ownerID, s.policyID, s.itemID, s.recipientID, PermissionView)
		s.Require().NoError(err)
		s.approveClaimOnPolicy()

		_, err = s.service.Assign(ctx, s.ownerID, s.policyID, s.itemID, s.recipientID, PermissionExport)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})
}

// =============================================================================
// Remove Tests
// =============================================================================

func (s *AssignmentServiceSuite) TestRemove() {
	s.Run("removing the last assignment drafts the policy", func() {
		ctx := s.ownerContext()
		a, err := s.service.Assign(ctx, s.ownerID, s.policyID, s.itemID, s.recipientID, PermissionView)
		s.Require().NoError(err)

		s.Require().NoError(s.service.Remove(ctx, s.ownerID, a.ID))

		p, err := s.policies.Get(ctx, s.ownerID, s.policyID)
		s.Require().NoError(err)
		s.Equal(policy.StatusDraft, p.Status)
	})

	s.Run("policy stays active while assignments remain", func() {
		s.SetupTest()
		ctx := s.ownerContext()
		a, err := s.service.Assign(ctx, s.ownerID, s.policyID, s.itemID, s.recipientID, PermissionView)
		s.Require().NoError(err)
		other, err := s.items.Create(ctx, s.ownerID, "Safe Note", vault.TypeSecureNote,
			map[string]string{"note": "12-34-56"})
		s.Require().NoError(err)
		_, err = s.service.Assign(ctx, s.ownerID, s.policyID, other.ID, s.recipientID, PermissionView)
		s.Require().NoError(err)

		s.Require().NoError(s.service.Remove(ctx, s.ownerID, a.ID))

		p, err := s.policies.Get(ctx, s.ownerID, s.policyID)
		s.Require().NoError(err)
		s.Equal(policy.StatusActive, p.Status)
	})

	s.Run("cross-owner removal reads as absent", func() {
		s.SetupTest()
		ctx := s.ownerContext()
		a, err := s.service.Assign(ctx, s.ownerID, s.policyID, s.itemID, s.recipientID, PermissionView)
		s.Require().NoError(err)

		err = s.service.Remove(ctx, id.OwnerID(uuid.New()), a.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("frozen policy blocks removal", func() {
		s.SetupTest()
		ctx := s.ownerContext()
		a, err := s.service.Assign(ctx, s.ownerID, s.policyID, s.itemID, s.recipientID, PermissionView)
		s.Require().NoError(err)
		s.approveClaimOnPolicy()

		err = s.service.Remove(ctx, s.ownerID, a.ID)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})
}
