package claim

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

// PostgresStore persists claims. The one-active-claim rule is backed by a
// partial unique index on (policy_id, recipient_id) WHERE status <>
// 'rejected', so the conflict holds under concurrent submissions.
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

func (s *PostgresStore) Create(ctx context.Context, c *Claim) error {
	const query = `
		INSERT INTO claims (id, policy_id, recipient_id, status, verdict, evidence_ref, death_cert_ref, identity_doc_ref, submitted_at, reviewed_at, reviewed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		uuid.UUID(c.PolicyID),
		uuid.UUID(c.RecipientID),
		string(c.Status),
		string(c.Verdict),
		c.EvidenceRef,
		c.DeathCertRef,
		c.IdentityDocRef,
		c.SubmittedAt,
		c.ReviewedAt,
		c.ReviewedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, claimID id.ClaimID) (*Claim, error) {
	const query = `
		SELECT id, policy_id, recipient_id, status, verdict, evidence_ref, death_cert_ref, identity_doc_ref, submitted_at, reviewed_at, reviewed_by
		FROM claims WHERE id = $1
	`
	c, err := scanClaim(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(claimID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find claim: %w", err)
	}
	return c, nil
}

// FindByIDForUpdate locks the claim row until the enclosing transaction ends,
// so concurrent reviews of the same claim serialize instead of racing.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, claimID id.ClaimID) (*Claim, error) {
	const query = `
		SELECT id, policy_id, recipient_id, status, verdict, evidence_ref, death_cert_ref, identity_doc_ref, submitted_at, reviewed_at, reviewed_by
		FROM claims WHERE id = $1
		FOR UPDATE
	`
	c, err := scanClaim(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(claimID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find claim for update: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Update(ctx context.Context, c *Claim) error {
	const query = `
		UPDATE claims
		SET status = $2, verdict = $3, evidence_ref = $4, reviewed_at = $5, reviewed_by = $6
		WHERE id = $1
	`
	res, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		string(c.Status),
		string(c.Verdict),
		c.EvidenceRef,
		c.ReviewedAt,
		c.ReviewedBy,
	)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByPolicy(ctx context.Context, policyID id.PolicyID) ([]*Claim, error) {
	const query = `
		SELECT id, policy_id, recipient_id, status, verdict, evidence_ref, death_cert_ref, identity_doc_ref, submitted_at, reviewed_at, reviewed_by
		FROM claims WHERE policy_id = $1 ORDER BY submitted_at
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(policyID))
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ExistsApprovedByPolicy(ctx context.Context, policyID id.PolicyID) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM claims WHERE policy_id = $1 AND status = 'approved')`
	var exists bool
	if err := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(policyID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check approved claims: %w", err)
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(sc rowScanner) (*Claim, error) {
	var (
		c           Claim
		claimID     uuid.UUID
		policyID    uuid.UUID
		recipientID uuid.UUID
		status      string
		verdict     string
		reviewedAt  sql.NullTime
		reviewedBy  sql.NullString
	)
	if err := sc.Scan(&claimID, &policyID, &recipientID, &status, &verdict, &c.EvidenceRef, &c.DeathCertRef, &c.IdentityDocRef, &c.SubmittedAt, &reviewedAt, &reviewedBy); err != nil {
		return nil, err
	}
	c.ID = id.ClaimID(claimID)
	c.PolicyID = id.PolicyID(policyID)
	c.RecipientID = id.RecipientID(recipientID)
	c.Status = Status(status)
	c.Verdict = Verdict(verdict)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		c.ReviewedAt = &t
	}
	c.ReviewedBy = reviewedBy.String
	return &c, nil
}
