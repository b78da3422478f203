package owner

import (
	"context"

	id "lifekey/pkg/domain"
)

// Store persists owners. Implementations return sentinel.ErrNotFound for
// unknown owners and sentinel.ErrConflict when an email is already taken.
type Store interface {
	Create(ctx context.Context, o *Owner) error
	FindByID(ctx context.Context, ownerID id.OwnerID) (*Owner, error)
	FindByEmail(ctx context.Context, email string) (*Owner, error)
}
