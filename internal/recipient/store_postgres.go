package recipient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "lifekey/pkg/domain"
	"lifekey/pkg/platform/sentinel"
	txcontext "lifekey/pkg/platform/tx"
)

// PostgresStore persists recipients in the recipients table. Per-owner email
// uniqueness is enforced by a unique index on (owner_id, email).
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

func (s *PostgresStore) Create(ctx context.Context, r *Recipient) error {
	const query = `
		INSERT INTO recipients (id, owner_id, email, legal_name, dob, public_key, created_at)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(r.ID),
		uuid.UUID(r.OwnerID),
		r.Email,
		r.LegalName,
		r.DOB,
		r.PublicKey,
		r.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert recipient: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, recipientID id.RecipientID) (*Recipient, error) {
	const query = `
		SELECT id, owner_id, email, legal_name, dob, public_key, created_at
		FROM recipients WHERE id = $1
	`
	r, err := scanRecipient(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(recipientID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find recipient: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]*Recipient, error) {
	const query = `
		SELECT id, owner_id, email, legal_name, dob, public_key, created_at
		FROM recipients WHERE owner_id = $1 ORDER BY created_at
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []*Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipient(sc rowScanner) (*Recipient, error) {
	var (
		r           Recipient
		recipientID uuid.UUID
		ownerID     uuid.UUID
	)
	if err := sc.Scan(&recipientID, &ownerID, &r.Email, &r.LegalName, &r.DOB, &r.PublicKey, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ID = id.RecipientID(recipientID)
	r.OwnerID = id.OwnerID(ownerID)
	return &r, nil
}
