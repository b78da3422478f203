// Package audit provides the append-only event trail behind every
// state-changing operation.
//
// Events are immutable once appended; the canonical timeline orders by
// CreatedAt and then insertion sequence. The store append participates in the
// caller's transaction: when the append fails the causing operation must fail
// with it, so no state change ever commits without its trail.
package audit

import (
	"context"
	"time"

	id "lifekey/pkg/domain"
)

// Action names a state-changing operation.
type Action string

const (
	ActionPolicyCreated        Action = "POLICY_CREATED"
	ActionRecipientAdded       Action = "RECIPIENT_ADDED"
	ActionVaultItemCreated     Action = "VAULT_ITEM_CREATED"
	ActionAssignmentCreated    Action = "ASSIGNMENT_CREATED"
	ActionAssignmentRemoved    Action = "ASSIGNMENT_REMOVED"
	ActionClaimSubmitted       Action = "CLAIM_SUBMITTED"
	ActionClaimVerdictAttached Action = "CLAIM_VERDICT_ATTACHED"
	ActionClaimApproved        Action = "CLAIM_APPROVED"
	ActionClaimRejected        Action = "CLAIM_REJECTED"
	ActionReleaseIssued        Action = "RELEASE_ISSUED"
	ActionReleaseViewed        Action = "RELEASE_VIEWED"
)

// Event is a single immutable audit record.
type Event struct {
	// Actor is the audit label of who acted, e.g. "owner:<id>",
	// "recipient:<email>", "admin:<email>", or "system".
	Actor string `json:"actor"`

	Action     Action `json:"action"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`

	// OwnerID scopes the event to the estate it concerns so the owner
	// console can show a per-owner timeline.
	OwnerID id.OwnerID `json:"owner_id,omitempty"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store is the append-only persistence contract. Append joins an enclosing
// SQL transaction when one travels in the context.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]Event, error)
	ListByTarget(ctx context.Context, targetType, targetID string) ([]Event, error)
}

// Sink receives committed events for out-of-band fan-out (ops pipelines,
// SIEM). Delivery is best-effort and must never affect the causing operation.
type Sink interface {
	Publish(ctx context.Context, event Event)
	Close()
}
