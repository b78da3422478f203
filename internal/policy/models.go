// Package policy manages digital-will policies: the binding between an
// owner's vault items and recipients, plus the dispute window that gates
// release issuance after a claim is approved.
package policy

import (
	"time"

	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
)

// Status is the policy lifecycle state.
//
// A policy starts as draft and becomes active implicitly when it gains its
// first assignment; it reverts to draft when its last assignment is removed.
// A policy with zero assignments cannot authorize any claim.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
)

// Policy is an owner's digital-will configuration.
type Policy struct {
	ID            id.PolicyID   `json:"id"`
	OwnerID       id.OwnerID    `json:"owner_id"`
	Status        Status        `json:"status"`
	DisputeWindow time.Duration `json:"dispute_window"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NewPolicy validates and builds a draft policy.
func NewPolicy(policyID id.PolicyID, ownerID id.OwnerID, disputeWindow time.Duration, now time.Time) (*Policy, error) {
	if disputeWindow < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "dispute window must not be negative")
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner is required")
	}
	return &Policy{
		ID:            policyID,
		OwnerID:       ownerID,
		Status:        StatusDraft,
		DisputeWindow: disputeWindow,
		CreatedAt:     now,
	}, nil
}

// IsActive reports whether the policy can authorize claims.
func (p *Policy) IsActive() bool {
	return p.Status == StatusActive
}
