package owner

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/platform/sentinel"
	"lifekey/pkg/requestcontext"
)

// Service handles the login-time owner upsert. The authentication edge calls
// FirstLogin after it has verified the credential; an unknown email creates
// the account.
type Service struct {
	owners Store
	logger *slog.Logger
}

func NewService(owners Store, logger *slog.Logger) *Service {
	return &Service{owners: owners, logger: logger}
}

// FirstLogin returns the owner for email, creating the record when none
// exists yet.
func (s *Service) FirstLogin(ctx context.Context, email, name string) (*Owner, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := s.owners.FindByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up owner")
	}

	o, err := NewOwner(id.OwnerID(uuid.New()), email, name, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.owners.Create(ctx, o); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a create race; the winner's record is authoritative.
			return s.Get(ctx, email)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create owner")
	}
	s.logger.InfoContext(ctx, "owner created", "owner_id", o.ID.String())
	return o, nil
}

// Get fetches an owner by email.
func (s *Service) Get(ctx context.Context, email string) (*Owner, error) {
	o, err := s.owners.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "owner not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up owner")
	}
	return o, nil
}

// GetByID fetches an owner by ID.
func (s *Service) GetByID(ctx context.Context, ownerID id.OwnerID) (*Owner, error) {
	o, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "owner not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up owner")
	}
	return o, nil
}
