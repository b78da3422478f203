package assignment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"lifekey/internal/audit"
	"lifekey/internal/envelope"
	"lifekey/internal/policy"
	"lifekey/internal/recipient"
	"lifekey/internal/vault"
	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/platform/sentinel"
	"lifekey/pkg/platform/tx"
	"lifekey/pkg/requestcontext"
)

// PolicyService is the slice of the policy service the assignment flow
// needs: owner-scoped reads plus the draft/active transitions it drives.
type PolicyService interface {
	Get(ctx context.Context, ownerID id.OwnerID, policyID id.PolicyID) (*policy.Policy, error)
	MarkActive(ctx context.Context, policyID id.PolicyID) error
	MarkDraft(ctx context.Context, policyID id.PolicyID) error
}

// ItemGetter resolves vault items with owner scoping enforced.
type ItemGetter interface {
	Get(ctx context.Context, ownerID id.OwnerID, itemID id.VaultItemID) (*vault.Item, error)
}

// RecipientGetter resolves recipients with owner scoping enforced.
type RecipientGetter interface {
	Get(ctx context.Context, ownerID id.OwnerID, recipientID id.RecipientID) (*recipient.Recipient, error)
}

// ApprovalChecker reports whether any approved claim references a policy.
// Once one does, the policy's assignments are frozen.
type ApprovalChecker interface {
	ExistsApprovedByPolicy(ctx context.Context, policyID id.PolicyID) (bool, error)
}

// Service manages assignments. Creating one performs the key fan-out: the
// item's content key is unwrapped under the owner master key and re-wrapped
// under the recipient's public key, and that copy lives on the row.
type Service struct {
	assignments Store
	policies    PolicyService
	items       ItemGetter
	recipients  RecipientGetter
	approvals   ApprovalChecker
	envelope    *envelope.Manager
	recorder    *audit.Recorder
	runner      tx.Runner
	logger      *slog.Logger
}

func NewService(assignments Store, policies PolicyService, items ItemGetter, recipients RecipientGetter, approvals ApprovalChecker, env *envelope.Manager, recorder *audit.Recorder, runner tx.Runner, logger *slog.Logger) *Service {
	return &Service{
		assignments: assignments,
		policies:    policies,
		items:       items,
		recipients:  recipients,
		approvals:   approvals,
		envelope:    env,
		recorder:    recorder,
		runner:      runner,
		logger:      logger,
	}
}

// Assign upserts an assignment for (policy, item, recipient). All three must
// belong to the acting owner. The first assignment activates a draft policy.
func (s *Service) Assign(ctx context.Context, ownerID id.OwnerID, policyID id.PolicyID, itemID id.VaultItemID, recipientID id.RecipientID, permission Permission) (*Assignment, error) {
	p, err := s.policies.Get(ctx, ownerID, policyID)
	if err != nil {
		return nil, err
	}
	item, err := s.items.Get(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	rcpt, err := s.recipients.Get(ctx, ownerID, recipientID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotFrozen(ctx, policyID); err != nil {
		return nil, err
	}

	a, err := NewAssignment(id.AssignmentID(uuid.New()), policyID, itemID, recipientID, permission, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	contentKey, err := s.envelope.UnwrapForOwner(item.WrappedKey)
	if err != nil {
		return nil, err
	}
	a.WrappedKey, err = envelope.WrapForRecipient(contentKey, rcpt.PublicKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to wrap content key for recipient")
	}

	err = s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.assignments.Upsert(txCtx, a); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to upsert assignment")
		}
		if !p.IsActive() {
			if err := s.policies.MarkActive(txCtx, policyID); err != nil {
				return err
			}
		}
		return s.recorder.Record(txCtx, audit.Event{
			Action:     audit.ActionAssignmentCreated,
			TargetType: "assignment",
			TargetID:   a.ID.String(),
			OwnerID:    ownerID,
			Metadata: map[string]string{
				"policy_id":     policyID.String(),
				"vault_item_id": itemID.String(),
				"recipient_id":  recipientID.String(),
				"permission":    string(a.Permission),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Remove deletes an assignment. Removing the policy's last assignment moves
// the policy back to draft.
func (s *Service) Remove(ctx context.Context, ownerID id.OwnerID, assignmentID id.AssignmentID) error {
	a, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "assignment not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load assignment")
	}
	// Ownership rides on the policy; a cross-owner lookup reads as absence.
	if _, err := s.policies.Get(ctx, ownerID, a.PolicyID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "assignment not found")
		}
		return err
	}
	if err := s.ensureNotFrozen(ctx, a.PolicyID); err != nil {
		return err
	}

	return s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.assignments.Delete(txCtx, assignmentID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete assignment")
		}
		remaining, err := s.assignments.ListByPolicy(txCtx, a.PolicyID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list assignments")
		}
		if len(remaining) == 0 {
			if err := s.policies.MarkDraft(txCtx, a.PolicyID); err != nil {
				return err
			}
		}
		return s.recorder.Record(txCtx, audit.Event{
			Action:     audit.ActionAssignmentRemoved,
			TargetType: "assignment",
			TargetID:   assignmentID.String(),
			OwnerID:    ownerID,
			Metadata: map[string]string{
				"policy_id": a.PolicyID.String(),
			},
		})
	})
}

// ListForPolicyRecipient returns the fan-out rows the release issuer reads.
func (s *Service) ListForPolicyRecipient(ctx context.Context, policyID id.PolicyID, recipientID id.RecipientID) ([]*Assignment, error) {
	out, err := s.assignments.ListByPolicyAndRecipient(ctx, policyID, recipientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list assignments")
	}
	return out, nil
}

func (s *Service) ensureNotFrozen(ctx context.Context, policyID id.PolicyID) error {
	frozen, err := s.approvals.ExistsApprovedByPolicy(ctx, policyID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check claim approvals")
	}
	if frozen {
		return dErrors.New(dErrors.CodePreconditionFailed, "policy has an approved claim and can no longer change")
	}
	return nil
}
