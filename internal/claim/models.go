package claim

import (
	"strings"
	"time"

	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
)

// Status is the claim lifecycle state. pending is the only non-terminal
// state; approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Verdict is the outcome of the external verification feed. A claim starts
// with no verdict; approval requires a passed one.
type Verdict string

const (
	VerdictNone   Verdict = "none"
	VerdictPassed Verdict = "passed"
	VerdictFailed Verdict = "failed"
)

func ParseVerdict(raw string) (Verdict, error) {
	switch Verdict(raw) {
	case VerdictPassed, VerdictFailed:
		return Verdict(raw), nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "verdict must be passed or failed")
	}
}

// Claim is a recipient's assertion that a policy's release condition is met.
// The asserted identity fields are what the recipient typed, kept for the
// record even though resolution already pinned RecipientID.
type Claim struct {
	ID             id.ClaimID     `json:"id"`
	PolicyID       id.PolicyID    `json:"policy_id"`
	RecipientID    id.RecipientID `json:"recipient_id"`
	Status         Status         `json:"status"`
	Verdict        Verdict        `json:"verdict"`
	EvidenceRef    string         `json:"evidence_ref,omitempty"`
	DeathCertRef   string         `json:"death_cert_ref"`
	IdentityDocRef string         `json:"identity_doc_ref"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
	ReviewedBy     string         `json:"reviewed_by,omitempty"`
}

// NewClaim builds a pending claim. Both document references are required;
// their content is opaque to the service.
func NewClaim(claimID id.ClaimID, policyID id.PolicyID, recipientID id.RecipientID, deathCertRef, identityDocRef string, now time.Time) (*Claim, error) {
	if strings.TrimSpace(deathCertRef) == "" || strings.TrimSpace(identityDocRef) == "" {
		return nil, dErrors.New(dErrors.CodeMissingDocuments, "death certificate and identity document references are required")
	}
	return &Claim{
		ID:             claimID,
		PolicyID:       policyID,
		RecipientID:    recipientID,
		Status:         StatusPending,
		Verdict:        VerdictNone,
		DeathCertRef:   deathCertRef,
		IdentityDocRef: identityDocRef,
		SubmittedAt:    now,
	}, nil
}

// CanAttachVerdict gates the external verification feed. Verdicts only land
// on pending claims; terminal states never change.
func (c *Claim) CanAttachVerdict() error {
	if c.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidTransition, "verdict can only attach to a pending claim")
	}
	return nil
}

func (c *Claim) ApplyVerdict(verdict Verdict, evidenceRef string) {
	c.Verdict = verdict
	c.EvidenceRef = evidenceRef
}

// CanApprove enforces the approval precondition: pending with a passed
// verdict. Approving an approved claim is a no-op the service short-circuits
// before calling this.
func (c *Claim) CanApprove() error {
	switch c.Status {
	case StatusRejected:
		return dErrors.New(dErrors.CodeInvalidTransition, "rejected claim cannot be approved")
	case StatusApproved:
		return nil
	}
	if c.Verdict != VerdictPassed {
		return dErrors.New(dErrors.CodePreconditionFailed, "claim requires a passed verification verdict before approval")
	}
	return nil
}

func (c *Claim) ApplyApprove(reviewer string, now time.Time) {
	c.Status = StatusApproved
	c.ReviewedBy = reviewer
	c.ReviewedAt = &now
}

// CanReject allows rejection from pending regardless of verdict. Rejecting a
// rejected claim is idempotent; an approved claim is final.
func (c *Claim) CanReject() error {
	if c.Status == StatusApproved {
		return dErrors.New(dErrors.CodeInvalidTransition, "approved claim cannot be rejected")
	}
	return nil
}

func (c *Claim) ApplyReject(reviewer string, now time.Time) {
	c.Status = StatusRejected
	c.ReviewedBy = reviewer
	c.ReviewedAt = &now
}

// IsTerminal reports whether the claim can still move.
func (c *Claim) IsTerminal() bool {
	return c.Status != StatusPending
}
