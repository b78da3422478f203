package policy

import (
	"context"

	id "lifekey/pkg/domain"
)

// Store persists policies. Unknown IDs surface as sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, p *Policy) error
	FindByID(ctx context.Context, policyID id.PolicyID) (*Policy, error)
	ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]*Policy, error)
	UpdateStatus(ctx context.Context, policyID id.PolicyID, status Status) error
}
