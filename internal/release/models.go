package release

import (
	"time"

	"lifekey/internal/assignment"
	"lifekey/internal/vault"
	id "lifekey/pkg/domain"
)

// FrozenItem is the issuance-time snapshot of one assignment. Later
// assignment edits never change what an issued release grants; only the
// wrapped key and descriptors captured here count at redemption.
type FrozenItem struct {
	VaultItemID id.VaultItemID        `json:"vault_item_id"`
	Title       string                `json:"title"`
	ItemType    vault.ItemType        `json:"item_type"`
	Permission  assignment.Permission `json:"permission"`
	WrappedKey  []byte                `json:"-"`
}

// Release is a single-use grant minted for an approved claim. The token is
// the only handle a recipient holds; it never appears in audit metadata.
type Release struct {
	ID          id.ReleaseID   `json:"id"`
	ClaimID     id.ClaimID     `json:"claim_id"`
	RecipientID id.RecipientID `json:"recipient_id"`
	Token       string         `json:"-"`
	Items       []FrozenItem   `json:"items"`
	IssuedAt    time.Time      `json:"issued_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	ConsumedAt  *time.Time     `json:"consumed_at,omitempty"`
}

// Open reports whether the release can still be redeemed at the given time.
// Expiry is exclusive: a release is redeemable at exactly ExpiresAt.
func (r *Release) Open(now time.Time) bool {
	return r.ConsumedAt == nil && !now.After(r.ExpiresAt)
}

// ViewedItem is one decrypted item returned to a redeeming recipient.
type ViewedItem struct {
	Title      string                `json:"title"`
	ItemType   vault.ItemType        `json:"item_type"`
	Permission assignment.Permission `json:"permission"`
	Payload    map[string]string     `json:"payload"`
}
