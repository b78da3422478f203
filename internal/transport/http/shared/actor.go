package shared

import (
	"context"

	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/requestcontext"
)

// OwnerIDFrom resolves the acting owner from the authenticated context. Only
// owner tokens qualify; admins act on claims, not on vault contents.
func OwnerIDFrom(ctx context.Context) (id.OwnerID, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return id.OwnerID{}, dErrors.New(dErrors.CodeUnauthorized, "no authenticated actor")
	}
	if actor.Kind != requestcontext.ActorOwner {
		return id.OwnerID{}, dErrors.New(dErrors.CodeForbidden, "owner token required")
	}
	ownerID, err := id.ParseOwnerID(actor.Subject)
	if err != nil {
		return id.OwnerID{}, dErrors.New(dErrors.CodeUnauthorized, "malformed actor subject")
	}
	return ownerID, nil
}
