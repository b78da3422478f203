package release

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"lifekey/internal/assignment"
	"lifekey/internal/audit"
	"lifekey/internal/claim"
	"lifekey/internal/envelope"
	"lifekey/internal/platform/metrics"
	"lifekey/internal/policy"
	"lifekey/internal/recipient"
	"lifekey/internal/vault"
	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/platform/sentinel"
	"lifekey/pkg/platform/tx"
	"lifekey/pkg/requestcontext"
)

var tracer = otel.Tracer("lifekey/internal/release")

// DefaultValidity bounds how long an issued release stays redeemable.
const DefaultValidity = 6 * time.Hour

// ClaimGetter loads claims for issuance checks.
type ClaimGetter interface {
	Get(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error)
}

// PolicyFinder loads policies without owner scoping; issuance needs the
// dispute window.
type PolicyFinder interface {
	Find(ctx context.Context, policyID id.PolicyID) (*policy.Policy, error)
}

// AssignmentLister resolves the fan-out rows for (policy, recipient).
type AssignmentLister interface {
	ListForPolicyRecipient(ctx context.Context, policyID id.PolicyID, recipientID id.RecipientID) ([]*assignment.Assignment, error)
}

// ItemFinder loads vault items by ID. Redemption reads ciphertext for items
// whose owner is no longer the acting party, so the lookup is unscoped.
type ItemFinder interface {
	FindByID(ctx context.Context, itemID id.VaultItemID) (*vault.Item, error)
}

// RecipientFinder loads recipients by ID for their public key.
type RecipientFinder interface {
	FindByID(ctx context.Context, recipientID id.RecipientID) (*recipient.Recipient, error)
}

// Service issues and redeems releases.
type Service struct {
	releases    Store
	claims      ClaimGetter
	policies    PolicyFinder
	assignments AssignmentLister
	items       ItemFinder
	recipients  RecipientFinder
	recorder    *audit.Recorder
	runner      tx.Runner
	validity    time.Duration
	guard       ConsumeGuard
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Service)

// WithValidity overrides the default redemption window.
func WithValidity(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.validity = d
		}
	}
}

// WithGuard attaches a cross-instance consume fence.
func WithGuard(g ConsumeGuard) Option {
	return func(s *Service) { s.guard = g }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(releases Store, claims ClaimGetter, policies PolicyFinder, assignments AssignmentLister, items ItemFinder, recipients RecipientFinder, recorder *audit.Recorder, runner tx.Runner, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		releases:    releases,
		claims:      claims,
		policies:    policies,
		assignments: assignments,
		items:       items,
		recipients:  recipients,
		recorder:    recorder,
		runner:      runner,
		validity:    DefaultValidity,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueReleases mints a release for an approved claim. Re-issuing while an
// open release exists returns it as-is, so the external scheduler can call
// this repeatedly without double-granting.
func (s *Service) IssueReleases(ctx context.Context, claimID id.ClaimID) (*Release, error) {
	ctx, span := tracer.Start(ctx, "release.Issue")
	defer span.End()

	c, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if c.Status != claim.StatusApproved {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "only approved claims can issue releases")
	}

	p, err := s.policies.Find(ctx, c.PolicyID)
	if err != nil {
		return nil, err
	}

	// An empty fan-out is permanent for this claim, so report it ahead of the
	// dispute window; the scheduler drops the claim instead of retrying it
	// until the window closes.
	fanOut, err := s.assignments.ListForPolicyRecipient(ctx, c.PolicyID, c.RecipientID)
	if err != nil {
		return nil, err
	}
	if len(fanOut) == 0 {
		return nil, dErrors.New(dErrors.CodeNoAssignments, "policy has no assignments for this recipient")
	}

	now := requestcontext.Now(ctx)
	if c.ReviewedAt != nil && now.Before(c.ReviewedAt.Add(p.DisputeWindow)) {
		return nil, dErrors.New(dErrors.CodeDisputeWindowActive, "dispute window has not elapsed")
	}

	if existing, err := s.releases.FindOpenByClaim(ctx, claimID); err == nil && existing.Open(now) {
		return existing, nil
	} else if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up existing release")
	}

	items := make([]FrozenItem, 0, len(fanOut))
	for _, a := range fanOut {
		item, err := s.items.FindByID(ctx, a.VaultItemID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load vault item")
		}
		items = append(items, FrozenItem{
			VaultItemID: a.VaultItemID,
			Title:       item.Title,
			ItemType:    item.Type,
			Permission:  a.Permission,
			WrappedKey:  append([]byte(nil), a.WrappedKey...),
		})
	}

	token, err := newToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint release token")
	}
	r := &Release{
		ID:          id.ReleaseID(uuid.New()),
		ClaimID:     claimID,
		RecipientID: c.RecipientID,
		Token:       token,
		Items:       items,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.validity),
	}

	err = s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.releases.Create(txCtx, r); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create release")
		}
		return s.recorder.Record(txCtx, audit.Event{
			Action:     audit.ActionReleaseIssued,
			TargetType: "release",
			TargetID:   r.ID.String(),
			OwnerID:    p.OwnerID,
			Metadata: map[string]string{
				"claim_id":   claimID.String(),
				"item_count": strconv.Itoa(len(items)),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncReleasesIssued()
	return r, nil
}

// ViewRelease redeems a token. The frozen items are decrypted with the
// presented recipient private key before the token is consumed; a failed
// decryption leaves the release open, so a mistyped key does not destroy the
// recipient's only chance to read the items.
func (s *Service) ViewRelease(ctx context.Context, token string, recipientPriv []byte) (*Release, []ViewedItem, error) {
	ctx, span := tracer.Start(ctx, "release.View")
	defer span.End()

	r, err := s.releases.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "release not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load release")
	}

	now := requestcontext.Now(ctx)
	if now.After(r.ExpiresAt) {
		return nil, nil, dErrors.New(dErrors.CodeExpired, "release has expired")
	}
	if r.ConsumedAt != nil {
		return nil, nil, dErrors.New(dErrors.CodeAlreadyConsumed, "release has already been viewed")
	}

	rcpt, err := s.recipients.FindByID(ctx, r.RecipientID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load recipient")
	}

	// Decryption is pure computation, so it runs before consumption; nothing
	// is burned until every item opens.
	viewed := make([]ViewedItem, 0, len(r.Items))
	for _, frozen := range r.Items {
		item, err := s.items.FindByID(ctx, frozen.VaultItemID)
		if err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load vault item")
		}
		contentKey, err := envelope.UnwrapForRecipient(frozen.WrappedKey, rcpt.PublicKey, recipientPriv)
		if err != nil {
			s.metrics.IncDecryptFailures()
			return nil, nil, err
		}
		payload, err := envelope.OpenPayload(contentKey, item.EncryptedPayload)
		if err != nil {
			s.metrics.IncDecryptFailures()
			return nil, nil, err
		}
		viewed = append(viewed, ViewedItem{
			Title:      frozen.Title,
			ItemType:   frozen.ItemType,
			Permission: frozen.Permission,
			Payload:    payload,
		})
	}

	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, token, r.ExpiresAt.Sub(now))
		if err != nil {
			// Fence unavailable; the database CAS still arbitrates.
			s.logger.WarnContext(ctx, "consume guard unavailable", "error", err)
		} else if !ok {
			return nil, nil, dErrors.New(dErrors.CodeAlreadyConsumed, "release has already been viewed")
		}
	}

	c, err := s.claims.Get(ctx, r.ClaimID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.policies.Find(ctx, c.PolicyID)
	if err != nil {
		return nil, nil, err
	}

	viewer := requestcontext.Actor{Kind: requestcontext.ActorRecipient, Subject: r.RecipientID.String()}
	err = s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.releases.Consume(txCtx, r.ID, now); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeAlreadyConsumed, "release has already been viewed")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume release")
		}
		return s.recorder.Record(txCtx, audit.Event{
			Actor:      viewer.String(),
			Action:     audit.ActionReleaseViewed,
			TargetType: "release",
			TargetID:   r.ID.String(),
			OwnerID:    p.OwnerID,
			Metadata: map[string]string{
				"claim_id": r.ClaimID.String(),
			},
		})
	})
	if err != nil {
		return nil, nil, err
	}
	t := now
	r.ConsumedAt = &t

	s.metrics.IncReleasesViewed()
	return r, viewed, nil
}
