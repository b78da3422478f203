package policy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lifekey/internal/audit"
	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/platform/sentinel"
	"lifekey/pkg/platform/tx"
	"lifekey/pkg/requestcontext"
)

// Service creates and lists release policies. A policy starts in draft and
// becomes active once it carries at least one assignment; the assignment
// service drives that transition through MarkActive and MarkDraft.
type Service struct {
	policies Store
	recorder *audit.Recorder
	runner   tx.Runner
	logger   *slog.Logger
}

func NewService(policies Store, recorder *audit.Recorder, runner tx.Runner, logger *slog.Logger) *Service {
	return &Service{
		policies: policies,
		recorder: recorder,
		runner:   runner,
		logger:   logger,
	}
}

// Create persists a draft policy and its audit event atomically.
func (s *Service) Create(ctx context.Context, ownerID id.OwnerID, disputeWindow time.Duration) (*Policy, error) {
	p, err := NewPolicy(id.PolicyID(uuid.New()), ownerID, disputeWindow, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	err = s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.policies.Create(txCtx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create policy")
		}
		return s.recorder.Record(txCtx, audit.Event{
			Action:     audit.ActionPolicyCreated,
			TargetType: "policy",
			TargetID:   p.ID.String(),
			OwnerID:    ownerID,
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a single policy, enforcing owner scoping.
func (s *Service) Get(ctx context.Context, ownerID id.OwnerID, policyID id.PolicyID) (*Policy, error) {
	p, err := s.policies.FindByID(ctx, policyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "policy not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	if p.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeNotFound, "policy not found")
	}
	return p, nil
}

// ListMine returns the owner's policies.
func (s *Service) ListMine(ctx context.Context, ownerID id.OwnerID) ([]*Policy, error) {
	policies, err := s.policies.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list policies")
	}
	return policies, nil
}

// Find loads a policy without owner scoping. Claim and release flows act on
// behalf of recipients and cannot present the owner's subject.
func (s *Service) Find(ctx context.Context, policyID id.PolicyID) (*Policy, error) {
	p, err := s.policies.FindByID(ctx, policyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "policy not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	return p, nil
}

// MarkActive moves a draft policy to active. Called inside the assignment
// transaction when the first assignment lands; a no-op for active policies.
func (s *Service) MarkActive(ctx context.Context, policyID id.PolicyID) error {
	p, err := s.policies.FindByID(ctx, policyID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	if p.Status == StatusActive {
		return nil
	}
	if err := s.policies.UpdateStatus(ctx, policyID, StatusActive); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate policy")
	}
	return nil
}

// MarkDraft moves a policy back to draft once its last assignment is removed.
func (s *Service) MarkDraft(ctx context.Context, policyID id.PolicyID) error {
	p, err := s.policies.FindByID(ctx, policyID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	if p.Status == StatusDraft {
		return nil
	}
	if err := s.policies.UpdateStatus(ctx, policyID, StatusDraft); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate policy")
	}
	return nil
}
