package recipient

import (
	"context"

	id "lifekey/pkg/domain"
)

// Store persists recipients. Create returns sentinel.ErrConflict when the
// email is already registered for the owner (uniqueness is per owner, not
// global).
type Store interface {
	Create(ctx context.Context, r *Recipient) error
	FindByID(ctx context.Context, recipientID id.RecipientID) (*Recipient, error)
	ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]*Recipient, error)
}
