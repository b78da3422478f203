package assignment

import (
	"time"

	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
)

// Permission is what a recipient may do with a released item.
type Permission string

const (
	PermissionView   Permission = "view"
	PermissionExport Permission = "export"
)

func ParsePermission(raw string) (Permission, error) {
	switch Permission(raw) {
	case PermissionView, PermissionExport:
		return Permission(raw), nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "permission must be view or export")
	}
}

// Assignment grants one recipient one vault item under one policy. The row
// carries the item's content key wrapped under the recipient's public key,
// produced at assignment time. The logical key is
// (policy, vault_item, recipient); re-assigning replaces the permission and
// the wrapped key in place.
type Assignment struct {
	ID          id.AssignmentID `json:"id"`
	PolicyID    id.PolicyID     `json:"policy_id"`
	VaultItemID id.VaultItemID  `json:"vault_item_id"`
	RecipientID id.RecipientID  `json:"recipient_id"`
	Permission  Permission      `json:"permission"`
	WrappedKey  []byte          `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewAssignment(assignmentID id.AssignmentID, policyID id.PolicyID, itemID id.VaultItemID, recipientID id.RecipientID, permission Permission, now time.Time) (*Assignment, error) {
	if _, err := ParsePermission(string(permission)); err != nil {
		return nil, err
	}
	return &Assignment{
		ID:          assignmentID,
		PolicyID:    policyID,
		VaultItemID: itemID,
		RecipientID: recipientID,
		Permission:  permission,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
