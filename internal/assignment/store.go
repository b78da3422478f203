package assignment

import (
	"context"

	id "lifekey/pkg/domain"
)

// Store persists assignments. Upsert is keyed (policy, vault_item,
// recipient): when a row already exists for that triple its permission,
// wrapped key, and updated_at are replaced and the caller's struct is
// rewritten with the surviving ID and created_at. FindByID and Delete return
// sentinel.ErrNotFound for unknown IDs.
type Store interface {
	Upsert(ctx context.Context, a *Assignment) error
	FindByID(ctx context.Context, assignmentID id.AssignmentID) (*Assignment, error)
	ListByPolicy(ctx context.Context, policyID id.PolicyID) ([]*Assignment, error)
	ListByPolicyAndRecipient(ctx context.Context, policyID id.PolicyID, recipientID id.RecipientID) ([]*Assignment, error)
	Delete(ctx context.Context, assignmentID id.AssignmentID) error
}
