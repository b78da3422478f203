// Package domain holds typed identifiers shared across the application.
//
// Every entity gets its own UUID-backed type so a ClaimID can never be passed
// where a PolicyID is expected. Construct IDs from untrusted input with the
// Parse functions, which reject empty, malformed, and nil UUIDs at the trust
// boundary; direct casting bypasses validation and is reserved for code that
// already holds a valid uuid.UUID.
package domain

import (
	"github.com/google/uuid"

	dErrors "lifekey/pkg/domain-errors"
)

type (
	// OwnerID identifies the account that owns policies, recipients, and
	// vault items.
	OwnerID uuid.UUID

	// PolicyID identifies a digital-will policy.
	PolicyID uuid.UUID

	// RecipientID identifies a designated recipient of an owner.
	RecipientID uuid.UUID

	// VaultItemID identifies an encrypted vault item.
	VaultItemID uuid.UUID

	// AssignmentID identifies a (policy, vault item, recipient) grant.
	AssignmentID uuid.UUID

	// ClaimID identifies a recipient's claim against a policy.
	ClaimID uuid.UUID

	// ReleaseID identifies a one-time release authorization.
	ReleaseID uuid.UUID
)

func (id OwnerID) String() string      { return uuid.UUID(id).String() }
func (id PolicyID) String() string     { return uuid.UUID(id).String() }
func (id RecipientID) String() string  { return uuid.UUID(id).String() }
func (id VaultItemID) String() string  { return uuid.UUID(id).String() }
func (id AssignmentID) String() string { return uuid.UUID(id).String() }
func (id ClaimID) String() string      { return uuid.UUID(id).String() }
func (id ReleaseID) String() string    { return uuid.UUID(id).String() }

// The IDs marshal as canonical UUID strings. Without these methods the
// underlying [16]byte array would serialize as a JSON number array.
func (id OwnerID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id PolicyID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id RecipientID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id VaultItemID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id AssignmentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ClaimID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id ReleaseID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *OwnerID) UnmarshalText(b []byte) error {
	parsed, err := ParseOwnerID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *PolicyID) UnmarshalText(b []byte) error {
	parsed, err := ParsePolicyID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RecipientID) UnmarshalText(b []byte) error {
	parsed, err := ParseRecipientID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *VaultItemID) UnmarshalText(b []byte) error {
	parsed, err := ParseVaultItemID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *AssignmentID) UnmarshalText(b []byte) error {
	parsed, err := ParseAssignmentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ClaimID) UnmarshalText(b []byte) error {
	parsed, err := ParseClaimID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ReleaseID) UnmarshalText(b []byte) error {
	parsed, err := ParseReleaseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id OwnerID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id PolicyID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id RecipientID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id VaultItemID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id AssignmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ClaimID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ReleaseID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}

// ParseOwnerID validates s and returns a typed owner ID.
func ParseOwnerID(s string) (OwnerID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return OwnerID{}, err
	}
	return OwnerID(u), nil
}

// ParsePolicyID validates s and returns a typed policy ID.
func ParsePolicyID(s string) (PolicyID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return PolicyID{}, err
	}
	return PolicyID(u), nil
}

// ParseRecipientID validates s and returns a typed recipient ID.
func ParseRecipientID(s string) (RecipientID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return RecipientID{}, err
	}
	return RecipientID(u), nil
}

// ParseVaultItemID validates s and returns a typed vault item ID.
func ParseVaultItemID(s string) (VaultItemID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return VaultItemID{}, err
	}
	return VaultItemID(u), nil
}

// ParseAssignmentID validates s and returns a typed assignment ID.
func ParseAssignmentID(s string) (AssignmentID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return AssignmentID{}, err
	}
	return AssignmentID(u), nil
}

// ParseClaimID validates s and returns a typed claim ID.
func ParseClaimID(s string) (ClaimID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ClaimID{}, err
	}
	return ClaimID(u), nil
}

// ParseReleaseID validates s and returns a typed release ID.
func ParseReleaseID(s string) (ReleaseID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ReleaseID{}, err
	}
	return ReleaseID(u), nil
}
