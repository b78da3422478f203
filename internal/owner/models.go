// Package owner manages the accounts that hold policies, recipients, and
// vault items. An owner record is created on first login and never deleted.
package owner

import (
	"strings"
	"time"

	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
)

// Owner is the account that configures a digital will.
type Owner struct {
	ID        id.OwnerID `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewOwner validates and builds an owner. Email is stored lowercased; it is
// the global login identity.
func NewOwner(ownerID id.OwnerID, email, name string, now time.Time) (*Owner, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "display name is required")
	}
	return &Owner{
		ID:        ownerID,
		Email:     email,
		Name:      name,
		CreatedAt: now,
	}, nil
}
