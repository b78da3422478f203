package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "lifekey/pkg/domain"
	txcontext "lifekey/pkg/platform/tx"
)

// PostgresStore persists audit events in the audit_events table. Rows are
// never updated or deleted; the (created_at, seq) pair is the canonical
// ordering.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// runner joins an enclosing transaction when one travels in the context, so
// the append commits or rolls back together with the causing mutation.
func (s *PostgresStore) runner(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	var ownerID any
	if !event.OwnerID.IsNil() {
		ownerID = uuid.UUID(event.OwnerID)
	}

	const query = `
		INSERT INTO audit_events (actor, action, target_type, target_id, owner_id, metadata, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.runner(ctx).ExecContext(ctx, query,
		event.Actor,
		string(event.Action),
		event.TargetType,
		event.TargetID,
		ownerID,
		metadata,
		event.RequestID,
		event.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]Event, error) {
	const query = `
		SELECT actor, action, target_type, target_id, owner_id, metadata, request_id, created_at
		FROM audit_events
		WHERE owner_id = $1
		ORDER BY created_at, seq
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list audit events by owner: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ListByTarget(ctx context.Context, targetType, targetID string) ([]Event, error) {
	const query = `
		SELECT actor, action, target_type, target_id, owner_id, metadata, request_id, created_at
		FROM audit_events
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at, seq
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("list audit events by target: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var (
			e        Event
			action   string
			ownerID  uuid.NullUUID
			metadata []byte
		)
		if err := rows.Scan(&e.Actor, &action, &e.TargetType, &e.TargetID, &ownerID, &metadata, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		if ownerID.Valid {
			e.OwnerID = id.OwnerID(ownerID.UUID)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
