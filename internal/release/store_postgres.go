package release

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lifekey/internal/assignment"
	"lifekey/internal/vault"
	id "lifekey/pkg/domain"
	"lifekey/pkg/platform/sentinel"
	txcontext "lifekey/pkg/platform/tx"
)

// PostgresStore persists releases in two tables: releases for the grant and
// release_items for the frozen snapshot rows. Consume is a conditional
// UPDATE so the single-use property holds across instances sharing the
// database.
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

func (s *PostgresStore) Create(ctx context.Context, r *Release) error {
	const insertRelease = `
		INSERT INTO releases (id, claim_id, recipient_id, token, issued_at, expires_at, consumed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.runner(ctx).ExecContext(ctx, insertRelease,
		uuid.UUID(r.ID),
		uuid.UUID(r.ClaimID),
		uuid.UUID(r.RecipientID),
		r.Token,
		r.IssuedAt,
		r.ExpiresAt,
		r.ConsumedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert release: %w", err)
	}

	const insertItem = `
		INSERT INTO release_items (release_id, position, vault_item_id, title, item_type, permission, wrapped_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i, item := range r.Items {
		_, err := s.runner(ctx).ExecContext(ctx, insertItem,
			uuid.UUID(r.ID),
			i,
			uuid.UUID(item.VaultItemID),
			item.Title,
			string(item.ItemType),
			string(item.Permission),
			item.WrappedKey,
		)
		if err != nil {
			return fmt.Errorf("insert release item: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*Release, error) {
	const query = `
		SELECT id, claim_id, recipient_id, token, issued_at, expires_at, consumed_at
		FROM releases WHERE token = $1
	`
	return s.findOne(ctx, query, token)
}

func (s *PostgresStore) FindOpenByClaim(ctx context.Context, claimID id.ClaimID) (*Release, error) {
	const query = `
		SELECT id, claim_id, recipient_id, token, issued_at, expires_at, consumed_at
		FROM releases
		WHERE claim_id = $1 AND consumed_at IS NULL
		ORDER BY issued_at DESC LIMIT 1
	`
	return s.findOne(ctx, query, uuid.UUID(claimID))
}

func (s *PostgresStore) Consume(ctx context.Context, releaseID id.ReleaseID, now time.Time) error {
	const query = `UPDATE releases SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`
	res, err := s.runner(ctx).ExecContext(ctx, query, uuid.UUID(releaseID), now)
	if err != nil {
		return fmt.Errorf("consume release: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume release: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Lost the CAS or the release never existed; tell them apart.
	const exists = `SELECT EXISTS (SELECT 1 FROM releases WHERE id = $1)`
	var found bool
	if err := s.runner(ctx).QueryRowContext(ctx, exists, uuid.UUID(releaseID)).Scan(&found); err != nil {
		return fmt.Errorf("consume release: %w", err)
	}
	if !found {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrAlreadyUsed
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*Release, error) {
	r, err := scanRelease(s.runner(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find release: %w", err)
	}
	items, err := s.loadItems(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Items = items
	return r, nil
}

func (s *PostgresStore) loadItems(ctx context.Context, releaseID id.ReleaseID) ([]FrozenItem, error) {
	const query = `
		SELECT vault_item_id, title, item_type, permission, wrapped_key
		FROM release_items WHERE release_id = $1 ORDER BY position
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(releaseID))
	if err != nil {
		return nil, fmt.Errorf("list release items: %w", err)
	}
	defer rows.Close()

	var out []FrozenItem
	for rows.Next() {
		var (
			item     FrozenItem
			itemID   uuid.UUID
			itemType string
			perm     string
		)
		if err := rows.Scan(&itemID, &item.Title, &itemType, &perm, &item.WrappedKey); err != nil {
			return nil, fmt.Errorf("scan release item: %w", err)
		}
		item.VaultItemID = id.VaultItemID(itemID)
		item.ItemType = vault.ItemType(itemType)
		item.Permission = assignment.Permission(perm)
		out = append(out, item)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func scanRelease(sc interface{ Scan(dest ...any) error }) (*Release, error) {
	var (
		r           Release
		releaseID   uuid.UUID
		claimID     uuid.UUID
		recipientID uuid.UUID
		consumedAt  sql.NullTime
	)
	if err := sc.Scan(&releaseID, &claimID, &recipientID, &r.Token, &r.IssuedAt, &r.ExpiresAt, &consumedAt); err != nil {
		return nil, err
	}
	r.ID = id.ReleaseID(releaseID)
	r.ClaimID = id.ClaimID(claimID)
	r.RecipientID = id.RecipientID(recipientID)
	if consumedAt.Valid {
		t := consumedAt.Time
		r.ConsumedAt = &t
	}
	return &r, nil
}
