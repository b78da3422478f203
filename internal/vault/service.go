package vault

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

// Service creates and lists vault items. Payloads are sealed before they
// reach the store; the plaintext lives only inside the Create call.
type Service struct {
	items    Store
	envelope *envelope.Manager
	recorder *audit.Recorder
	runner   tx.Runner
	logger   *slog.Logger
}

func NewService(items Store, env *envelope.Manager, recorder *audit.Recorder, runner tx.Runner, logger *slog.Logger) *Service {
	return &Service{
		items:    items,
		envelope: env,
		recorder: recorder,
		runner:   runner,
		logger:   logger,
	}
}

// Create seals the payload under a fresh content key, wraps the key under the
// owner master key, and persists item + audit event atomically.
func (s *Service) Create(ctx context.Context, ownerID id.OwnerID, title string, itemType ItemType, payload map[string]string) (*Item, error) {
	item, err := NewItem(id.VaultItemID(uuid.New()), ownerID, title, itemType, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "payload must not be empty")
	}

	contentKey, err := envelope.NewContentKey()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate content key")
	}
	item.EncryptedPayload, err = envelope.SealPayload(contentKey, payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal payload")
	}
	item.WrappedKey, err = s.envelope.WrapForOwner(contentKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to wrap content key")
	}

	err = s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.items.Create(txCtx, item); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create vault item")
		}
		return s.recorder.Record(txCtx, audit.Event{
			Action:     audit.ActionVaultItemCreated,
			TargetType: "vault_item",
			TargetID:   item.ID.String(),
			OwnerID:    ownerID,
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Get returns a single item, enforcing owner scoping.
func (s *Service) Get(ctx context.Context, ownerID id.OwnerID, itemID id.VaultItemID) (*Item, error) {
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "vault item not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load vault item")
	}
	if item.OwnerID != ownerID {
		// Cross-owner lookups read as absence, not as denial.
		return nil, dErrors.New(dErrors.CodeNotFound, "vault item not found")
	}
	return item, nil
}

// ListMine returns the owner's items, ciphertext omitted by the handler.
func (s *Service) ListMine(ctx context.Context, ownerID id.OwnerID) ([]*Item, error) {
	items, err := s.items.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list vault items")
	}
	return items, nil
}
