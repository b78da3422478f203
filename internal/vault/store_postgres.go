package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "lifekey/pkg/domain"
	"lifekey/pkg/platform/sentinel"
	txcontext "lifekey/pkg/platform/tx"
)

// PostgresStore persists vault items in the vault_items table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, item *Item) error {
	const query = `
		INSERT INTO vault_items (id, owner_id, title, type, encrypted_payload, wrapped_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(item.ID),
		uuid.UUID(item.OwnerID),
		item.Title,
		string(item.Type),
		item.EncryptedPayload,
		item.WrappedKey,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert vault item: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, itemID id.VaultItemID) (*Item, error) {
	const query = `
		SELECT id, owner_id, title, type, encrypted_payload, wrapped_key, created_at
		FROM vault_items WHERE id = $1
	`
	return scanItem(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(itemID)))
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]*Item, error) {
	const query = `
		SELECT id, owner_id, title, type, encrypted_payload, wrapped_key, created_at
		FROM vault_items WHERE owner_id = $1 ORDER BY created_at
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list vault items: %w", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInto(sc rowScanner) (*Item, error) {
	var (
		item     Item
		itemID   uuid.UUID
		ownerID  uuid.UUID
		itemType string
	)
	if err := sc.Scan(&itemID, &ownerID, &item.Title, &itemType, &item.EncryptedPayload, &item.WrappedKey, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.ID = id.VaultItemID(itemID)
	item.OwnerID = id.OwnerID(ownerID)
	item.Type = ItemType(itemType)
	return &item, nil
}

func scanItem(row *sql.Row) (*Item, error) {
	item, err := scanInto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan vault item: %w", err)
	}
	return item, nil
}

func scanItemRow(rows *sql.Rows) (*Item, error) {
	item, err := scanInto(rows)
	if err != nil {
		return nil, fmt.Errorf("scan vault item: %w", err)
	}
	return item, nil
}
