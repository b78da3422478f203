package vault

import (
	"context"

	id "lifekey/pkg/domain"
)

// Store persists vault items. Unknown IDs surface as sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, item *Item) error
	FindByID(ctx context.Context, itemID id.VaultItemID) (*Item, error)
	ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]*Item, error)
}
