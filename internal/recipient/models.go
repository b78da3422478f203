// Package recipient manages an owner's designated recipients. The recipient
// record is the identity anchor for claims: a claimant's asserted email,
// legal name, and date of birth must match a stored recipient exactly before
// a claim is admissible.
package recipient

import (
	"strings"
	"time"

	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
)

const dobLayout = "2006-01-02"

// Recipient is a designated beneficiary of an owner.
//
// PublicKey is the curve25519 half of the recipient's delivery keypair;
// assignment-time key wrapping seals content keys to it. The private half is
// handed out exactly once at registration and never stored.
type Recipient struct {
	ID        id.RecipientID `json:"id"`
	OwnerID   id.OwnerID     `json:"owner_id"`
	Email     string         `json:"email"`
	LegalName string         `json:"legal_name"`
	DOB       string         `json:"dob"`
	PublicKey []byte         `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewRecipient validates and builds a recipient. Email is lowercased so the
// per-owner uniqueness check and claim matching are case-insensitive.
func NewRecipient(recipientID id.RecipientID, ownerID id.OwnerID, email, legalName, dob string, now time.Time) (*Recipient, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	legalName = strings.TrimSpace(legalName)
	dob = strings.TrimSpace(dob)

	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	if legalName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "legal name is required")
	}
	if _, err := time.Parse(dobLayout, dob); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "date of birth must be YYYY-MM-DD")
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner is required")
	}
	return &Recipient{
		ID:        recipientID,
		OwnerID:   ownerID,
		Email:     email,
		LegalName: legalName,
		DOB:       dob,
		CreatedAt: now,
	}, nil
}

// Matches reports whether the asserted identity resolves to this recipient:
// case-insensitive on email, exact on legal name and date of birth.
func (r *Recipient) Matches(email, legalName, dob string) bool {
	return strings.EqualFold(strings.TrimSpace(email), r.Email) &&
		strings.TrimSpace(legalName) == r.LegalName &&
		strings.TrimSpace(dob) == r.DOB
}
