// Package vault manages encrypted vault items. The engine stores only
// ciphertext: each item's payload is sealed under a per-item content key, and
// the content key is persisted wrapped under the owner master key.
package vault

import (
	"strings"
	"time"

	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
)

// ItemType labels the payload shape for presentation only; the engine never
// validates it.
type ItemType string

const (
	TypeLogin        ItemType = "login"
	TypeCryptoWallet ItemType = "crypto_wallet"
	TypeSecureNote   ItemType = "secure_note"
)

// ParseItemType validates an item type at the trust boundary.
func ParseItemType(s string) (ItemType, error) {
	switch t := ItemType(s); t {
	case TypeLogin, TypeCryptoWallet, TypeSecureNote:
		return t, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "item type must be login, crypto_wallet, or secure_note")
	}
}

// Item is a vault item row. EncryptedPayload is the AEAD blob; WrappedKey is
// the content key wrapped under the owner master key. Plaintext never touches
// this struct.
type Item struct {
	ID               id.VaultItemID `json:"id"`
	OwnerID          id.OwnerID     `json:"owner_id"`
	Title            string         `json:"title"`
	Type             ItemType       `json:"type"`
	EncryptedPayload []byte         `json:"-"`
	WrappedKey       []byte         `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
}

// NewItem validates the cleartext metadata of a vault item.
func NewItem(itemID id.VaultItemID, ownerID id.OwnerID, title string, itemType ItemType, now time.Time) (*Item, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner is required")
	}
	return &Item{
		ID:        itemID,
		OwnerID:   ownerID,
		Title:     title,
		Type:      itemType,
		CreatedAt: now,
	}, nil
}
