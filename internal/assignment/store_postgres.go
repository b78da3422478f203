package assignment

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

// PostgresStore persists assignments with a unique index on
// (policy_id, vault_item_id, recipient_id) backing the upsert.
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

func (s *PostgresStore) Upsert(ctx context.Context, a *Assignment) error {
	const query = `
		INSERT INTO assignments (id, policy_id, vault_item_id, recipient_id, permission, wrapped_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (policy_id, vault_item_id, recipient_id) DO UPDATE
		SET permission = EXCLUDED.permission,
		    wrapped_key = EXCLUDED.wrapped_key,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	var assignmentID uuid.UUID
	err := s.runner(ctx).QueryRowContext(ctx, query,
		uuid.UUID(a.ID),
		uuid.UUID(a.PolicyID),
		uuid.UUID(a.VaultItemID),
		uuid.UUID(a.RecipientID),
		string(a.Permission),
		a.WrappedKey,
		a.CreatedAt,
		a.UpdatedAt,
	).Scan(&assignmentID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert assignment: %w", err)
	}
	a.ID = id.AssignmentID(assignmentID)
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, assignmentID id.AssignmentID) (*Assignment, error) {
	const query = `
		SELECT id, policy_id, vault_item_id, recipient_id, permission, wrapped_key, created_at, updated_at
		FROM assignments WHERE id = $1
	`
	a, err := scanAssignment(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(assignmentID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListByPolicy(ctx context.Context, policyID id.PolicyID) ([]*Assignment, error) {
	const query = `
		SELECT id, policy_id, vault_item_id, recipient_id, permission, wrapped_key, created_at, updated_at
		FROM assignments WHERE policy_id = $1 ORDER BY created_at
	`
	return s.list(ctx, query, uuid.UUID(policyID))
}

func (s *PostgresStore) ListByPolicyAndRecipient(ctx context.Context, policyID id.PolicyID, recipientID id.RecipientID) ([]*Assignment, error) {
	const query = `
		SELECT id, policy_id, vault_item_id, recipient_id, permission, wrapped_key, created_at, updated_at
		FROM assignments WHERE policy_id = $1 AND recipient_id = $2 ORDER BY created_at
	`
	return s.list(ctx, query, uuid.UUID(policyID), uuid.UUID(recipientID))
}

func (s *PostgresStore) Delete(ctx context.Context, assignmentID id.AssignmentID) error {
	const query = `DELETE FROM assignments WHERE id = $1`
	res, err := s.runner(ctx).ExecContext(ctx, query, uuid.UUID(assignmentID))
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Assignment, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(sc rowScanner) (*Assignment, error) {
	var (
		a            Assignment
		assignmentID uuid.UUID
		policyID     uuid.UUID
		itemID       uuid.UUID
		recipientID  uuid.UUID
		permission   string
	)
	if err := sc.Scan(&assignmentID, &policyID, &itemID, &recipientID, &permission, &a.WrappedKey, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ID = id.AssignmentID(assignmentID)
	a.PolicyID = id.PolicyID(policyID)
	a.VaultItemID = id.VaultItemID(itemID)
	a.RecipientID = id.RecipientID(recipientID)
	a.Permission = Permission(permission)
	return &a, nil
}
