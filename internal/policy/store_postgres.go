package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "lifekey/pkg/domain"
	"lifekey/pkg/platform/sentinel"
	txcontext "lifekey/pkg/platform/tx"
)

// PostgresStore persists policies in the policies table. The dispute window
// is stored as whole seconds.
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

func (s *PostgresStore) Create(ctx context.Context, p *Policy) error {
	const query = `
		INSERT INTO policies (id, owner_id, status, dispute_window_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(p.ID),
		uuid.UUID(p.OwnerID),
		string(p.Status),
		int64(p.DisputeWindow/time.Second),
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, policyID id.PolicyID) (*Policy, error) {
	const query = `
		SELECT id, owner_id, status, dispute_window_seconds, created_at
		FROM policies WHERE id = $1
	`
	p, err := scanPolicy(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(policyID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find policy: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]*Policy, error) {
	const query = `
		SELECT id, owner_id, status, dispute_window_seconds, created_at
		FROM policies WHERE owner_id = $1 ORDER BY created_at
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []*Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, policyID id.PolicyID, status Status) error {
	const query = `UPDATE policies SET status = $2 WHERE id = $1`
	res, err := s.runner(ctx).ExecContext(ctx, query, uuid.UUID(policyID), string(status))
	if err != nil {
		return fmt.Errorf("update policy status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update policy status: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(sc rowScanner) (*Policy, error) {
	var (
		p             Policy
		policyID      uuid.UUID
		ownerID       uuid.UUID
		status        string
		windowSeconds int64
	)
	if err := sc.Scan(&policyID, &ownerID, &status, &windowSeconds, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ID = id.PolicyID(policyID)
	p.OwnerID = id.OwnerID(ownerID)
	p.Status = Status(status)
	p.DisputeWindow = time.Duration(windowSeconds) * time.Second
	return &p, nil
}
