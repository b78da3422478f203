package claim

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"lifekey/internal/audit"
	"lifekey/internal/platform/metrics"
	"lifekey/internal/policy"
	"lifekey/internal/recipient"
	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/platform/sentinel"
	"lifekey/pkg/platform/tx"
	"lifekey/pkg/requestcontext"
)

var tracer = otel.Tracer("lifekey/internal/claim")

// PolicyFinder loads policies without owner scoping. Claims are submitted by
// recipients, who cannot present the owner's subject.
type PolicyFinder interface {
	Find(ctx context.Context, policyID id.PolicyID) (*policy.Policy, error)
}

// RecipientResolver matches an asserted identity against an owner's
// registered recipients.
type RecipientResolver interface {
	Resolve(ctx context.Context, ownerID id.OwnerID, email, legalName, dob string) (*recipient.Recipient, error)
}

// Service drives the claim state machine. Every transition persists the
// claim and its audit event in one transaction; a failed audit append aborts
// the transition.
type Service struct {
	claims     Store
	policies   PolicyFinder
	recipients RecipientResolver
	recorder   *audit.Recorder
	runner     tx.Runner
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(claims Store, policies PolicyFinder, recipients RecipientResolver, recorder *audit.Recorder, runner tx.Runner, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		claims:     claims,
		policies:   policies,
		recipients: recipients,
		recorder:   recorder,
		runner:     runner,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates a pending claim. The asserted identity must resolve against
// the policy owner's recipients; a mismatch leaves no record beyond the
// audit-free error response.
func (s *Service) Submit(ctx context.Context, policyID id.PolicyID, email, legalName, dob, deathCertRef, identityDocRef string) (*Claim, error) {
	ctx, span := tracer.Start(ctx, "claim.Submit")
	defer span.End()

	p, err := s.policies.Find(ctx, policyID)
	if err != nil {
		return nil, err
	}
	rcpt, err := s.recipients.Resolve(ctx, p.OwnerID, email, legalName, dob)
	if err != nil {
		return nil, err
	}

	c, err := NewClaim(id.ClaimID(uuid.New()), policyID, rcpt.ID, deathCertRef, identityDocRef, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	err = s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.claims.Create(txCtx, c); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "an open claim already exists for this policy and recipient")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create claim")
		}
		submitter := requestcontext.Actor{Kind: requestcontext.ActorRecipient, Subject: rcpt.ID.String()}
		return s.recorder.Record(txCtx, audit.Event{
			Actor:      submitter.String(),
			Action:     audit.ActionClaimSubmitted,
			TargetType: "claim",
			TargetID:   c.ID.String(),
			OwnerID:    p.OwnerID,
			Metadata: map[string]string{
				"policy_id":    policyID.String(),
				"recipient_id": rcpt.ID.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncClaimsSubmitted()
	return c, nil
}

// Get returns a claim by ID.
func (s *Service) Get(ctx context.Context, claimID id.ClaimID) (*Claim, error) {
	c, err := s.claims.FindByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	return c, nil
}

// AttachVerdict records the external verification outcome on a pending
// claim.
func (s *Service) AttachVerdict(ctx context.Context, claimID id.ClaimID, verdict Verdict, evidenceRef string) (*Claim, error) {
	ctx, span := tracer.Start(ctx, "claim.AttachVerdict")
	defer span.End()

	if _, err := ParseVerdict(string(verdict)); err != nil {
		return nil, err
	}

	var c *Claim
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		c, err = s.loadForUpdate(txCtx, claimID)
		if err != nil {
			return err
		}
		if err := c.CanAttachVerdict(); err != nil {
			return err
		}
		p, err := s.policies.Find(txCtx, c.PolicyID)
		if err != nil {
			return err
		}
		c.ApplyVerdict(verdict, evidenceRef)
		// Audit first: memory stores have no rollback, so the store write
		// goes last (see tx.MemoryRunner).
		err = s.recorder.Record(txCtx, audit.Event{
			Action:     audit.ActionClaimVerdictAttached,
			TargetType: "claim",
			TargetID:   c.ID.String(),
			OwnerID:    p.OwnerID,
			Metadata: map[string]string{
				"verdict": string(verdict),
			},
		})
		if err != nil {
			return err
		}
		if err := s.claims.Update(txCtx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update claim")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Approve moves a pending claim with a passed verdict to approved.
// Re-approving an approved claim succeeds without effect.
func (s *Service) Approve(ctx context.Context, claimID id.ClaimID) (*Claim, error) {
	ctx, span := tracer.Start(ctx, "claim.Approve")
	defer span.End()

	actor, _ := requestcontext.ActorFrom(ctx)

	var (
		c    *Claim
		noOp bool
	)
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		c, err = s.loadForUpdate(txCtx, claimID)
		if err != nil {
			return err
		}
		if c.Status == StatusApproved {
			noOp = true
			return nil
		}
		if err := c.CanApprove(); err != nil {
			return err
		}
		p, err := s.policies.Find(txCtx, c.PolicyID)
		if err != nil {
			return err
		}
		c.ApplyApprove(actor.String(), requestcontext.Now(txCtx))
		err = s.recorder.Record(txCtx, audit.Event{
			Action:     audit.ActionClaimApproved,
			TargetType: "claim",
			TargetID:   c.ID.String(),
			OwnerID:    p.OwnerID,
			Metadata: map[string]string{
				"policy_id": c.PolicyID.String(),
			},
		})
		if err != nil {
			return err
		}
		if err := s.claims.Update(txCtx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update claim")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !noOp {
		s.metrics.IncClaimsApproved()
	}
	return c, nil
}

// Reject moves a pending claim to rejected regardless of verdict.
// Re-rejecting a rejected claim succeeds without effect.
func (s *Service) Reject(ctx context.Context, claimID id.ClaimID) (*Claim, error) {
	ctx, span := tracer.Start(ctx, "claim.Reject")
	defer span.End()

	actor, _ := requestcontext.ActorFrom(ctx)

	var (
		c    *Claim
		noOp bool
	)
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		c, err = s.loadForUpdate(txCtx, claimID)
		if err != nil {
			return err
		}
		if c.Status == StatusRejected {
			noOp = true
			return nil
		}
		if err := c.CanReject(); err != nil {
			return err
		}
		p, err := s.policies.Find(txCtx, c.PolicyID)
		if err != nil {
			return err
		}
		c.ApplyReject(actor.String(), requestcontext.Now(txCtx))
		err = s.recorder.Record(txCtx, audit.Event{
			Action:     audit.ActionClaimRejected,
			TargetType: "claim",
			TargetID:   c.ID.String(),
			OwnerID:    p.OwnerID,
			Metadata: map[string]string{
				"policy_id": c.PolicyID.String(),
			},
		})
		if err != nil {
			return err
		}
		if err := s.claims.Update(txCtx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update claim")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !noOp {
		s.metrics.IncClaimsRejected()
	}
	return c, nil
}

// ExistsApprovedByPolicy reports whether a policy is frozen by an approved
// claim. The assignment service consults this before changing fan-out rows.
func (s *Service) ExistsApprovedByPolicy(ctx context.Context, policyID id.PolicyID) (bool, error) {
	return s.claims.ExistsApprovedByPolicy(ctx, policyID)
}

// loadForUpdate locks the claim row for the enclosing transaction, so a
// transition observes a status no concurrent review can change underneath it.
func (s *Service) loadForUpdate(ctx context.Context, claimID id.ClaimID) (*Claim, error) {
	c, err := s.claims.FindByIDForUpdate(ctx, claimID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	return c, nil
}
