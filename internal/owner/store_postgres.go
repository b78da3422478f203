package owner

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

// PostgresStore persists owners in the owners table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// isUniqueViolation detects Postgres unique constraint errors (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *PostgresStore) Create(ctx context.Context, o *Owner) error {
	const query = `
		INSERT INTO owners (id, email, name, created_at)
		VALUES ($1, lower($2), $3, $4)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query, uuid.UUID(o.ID), o.Email, o.Name, o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert owner: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, ownerID id.OwnerID) (*Owner, error) {
	const query = `SELECT id, email, name, created_at FROM owners WHERE id = $1`
	return s.scanOwner(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(ownerID)))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Owner, error) {
	const query = `SELECT id, email, name, created_at FROM owners WHERE email = lower($1)`
	return s.scanOwner(s.runner(ctx).QueryRowContext(ctx, query, email))
}

func (s *PostgresStore) scanOwner(row *sql.Row) (*Owner, error) {
	var (
		o   Owner
		oid uuid.UUID
	)
	if err := row.Scan(&oid, &o.Email, &o.Name, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan owner: %w", err)
	}
	o.ID = id.OwnerID(oid)
	return &o, nil
}
