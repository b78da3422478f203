package recipient

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"lifekey/internal/audit"
	"lifekey/internal/envelope"
	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/platform/sentinel"
	"lifekey/pkg/platform/tx"
	"lifekey/pkg/requestcontext"
)

// Service registers and lists recipients.
type Service struct {
	recipients Store
	recorder   *audit.Recorder
	runner     tx.Runner
	logger     *slog.Logger
}

func NewService(recipients Store, recorder *audit.Recorder, runner tx.Runner, logger *slog.Logger) *Service {
	return &Service{
		recipients: recipients,
		recorder:   recorder,
		runner:     runner,
		logger:     logger,
	}
}

// Add registers a recipient and generates their delivery keypair. The private
// key is returned exactly once for out-of-band handover; the server keeps
// only the public half.
func (s *Service) Add(ctx context.Context, ownerID id.OwnerID, email, legalName, dob string) (*Recipient, []byte, error) {
	r, err := NewRecipient(id.RecipientID(uuid.New()), ownerID, email, legalName, dob, requestcontext.Now(ctx))
	if err != nil {
		return nil, nil, err
	}

	pair, err := envelope.GenerateKeyPair()
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate recipient keypair")
	}
	r.PublicKey = pair.Public

	err = s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.recipients.Create(txCtx, r); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a recipient with this email already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create recipient")
		}
		return s.recorder.Record(txCtx, audit.Event{
			Action:     audit.ActionRecipientAdded,
			TargetType: "recipient",
			TargetID:   r.ID.String(),
			OwnerID:    ownerID,
			Metadata:   map[string]string{"email": r.Email},
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return r, pair.Private, nil
}

// Get returns a recipient, enforcing owner scoping.
func (s *Service) Get(ctx context.Context, ownerID id.OwnerID, recipientID id.RecipientID) (*Recipient, error) {
	r, err := s.recipients.FindByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "recipient not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load recipient")
	}
	if r.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeNotFound, "recipient not found")
	}
	return r, nil
}

// ListMine returns the owner's recipients.
func (s *Service) ListMine(ctx context.Context, ownerID id.OwnerID) ([]*Recipient, error) {
	out, err := s.recipients.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list recipients")
	}
	return out, nil
}

// Resolve finds the recipient of the given owner whose identity matches the
// asserted (email, legal name, dob) triple. Claim submission uses this as its
// admissibility gate.
func (s *Service) Resolve(ctx context.Context, ownerID id.OwnerID, email, legalName, dob string) (*Recipient, error) {
	all, err := s.recipients.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list recipients")
	}
	for _, r := range all {
		if r.Matches(email, legalName, dob) {
			return r, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeRecipientMismatch, "asserted identity does not match any recipient of this policy's owner")
}
