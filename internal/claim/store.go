package claim

import (
	"context"

	id "lifekey/pkg/domain"
)

// Store persists claims. Create returns sentinel.ErrConflict when a
// non-rejected claim already exists for the same (policy, recipient); a
// rejected claim does not block resubmission. Update replaces the mutable
// fields (status, verdict, evidence, review) of an existing row.
//
// FindByIDForUpdate must lock the row for the enclosing transaction so two
// concurrent reviews cannot both read the pending state and race each other
// into conflicting terminal states.
type Store interface {
	Create(ctx context.Context, c *Claim) error
	FindByID(ctx context.Context, claimID id.ClaimID) (*Claim, error)
	FindByIDForUpdate(ctx context.Context, claimID id.ClaimID) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	ListByPolicy(ctx context.Context, policyID id.PolicyID) ([]*Claim, error)
	ExistsApprovedByPolicy(ctx context.Context, policyID id.PolicyID) (bool, error)
}
