package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the full DDL, idempotent so startup can apply it every time.
// The partial unique index on claims backs the one-open-claim rule and the
// assignments unique index backs the upsert key.
const Schema = `
CREATE TABLE IF NOT EXISTS owners (
	id         UUID PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS recipients (
	id         UUID PRIMARY KEY,
	owner_id   UUID NOT NULL REFERENCES owners(id),
	email      TEXT NOT NULL,
	legal_name TEXT NOT NULL,
	dob        TEXT NOT NULL,
	public_key BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, email)
);

CREATE TABLE IF NOT EXISTS vault_items (
	id                UUID PRIMARY KEY,
	owner_id          UUID NOT NULL REFERENCES owners(id),
	title             TEXT NOT NULL,
	item_type         TEXT NOT NULL,
	encrypted_payload BYTEA NOT NULL,
	wrapped_key       BYTEA NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS policies (
	id                     UUID PRIMARY KEY,
	owner_id               UUID NOT NULL REFERENCES owners(id),
	status                 TEXT NOT NULL,
	dispute_window_seconds BIGINT NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS assignments (
	id            UUID PRIMARY KEY,
	policy_id     UUID NOT NULL REFERENCES policies(id),
	vault_item_id UUID NOT NULL REFERENCES vault_items(id),
	recipient_id  UUID NOT NULL REFERENCES recipients(id),
	permission    TEXT NOT NULL,
	wrapped_key   BYTEA NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (policy_id, vault_item_id, recipient_id)
);

CREATE TABLE IF NOT EXISTS claims (
	id               UUID PRIMARY KEY,
	policy_id        UUID NOT NULL REFERENCES policies(id),
	recipient_id     UUID NOT NULL REFERENCES recipients(id),
	status           TEXT NOT NULL,
	verdict          TEXT NOT NULL,
	evidence_ref     TEXT NOT NULL DEFAULT '',
	death_cert_ref   TEXT NOT NULL,
	identity_doc_ref TEXT NOT NULL,
	submitted_at     TIMESTAMPTZ NOT NULL,
	reviewed_at      TIMESTAMPTZ,
	reviewed_by      TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS claims_one_open_per_policy_recipient
	ON claims (policy_id, recipient_id)
	WHERE status <> 'rejected';

CREATE TABLE IF NOT EXISTS releases (
	id           UUID PRIMARY KEY,
	claim_id     UUID NOT NULL REFERENCES claims(id),
	recipient_id UUID NOT NULL REFERENCES recipients(id),
	token        TEXT NOT NULL UNIQUE,
	issued_at    TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	consumed_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS release_items (
	release_id    UUID NOT NULL REFERENCES releases(id),
	position      INT NOT NULL,
	vault_item_id UUID NOT NULL,
	title         TEXT NOT NULL,
	item_type     TEXT NOT NULL,
	permission    TEXT NOT NULL,
	wrapped_key   BYTEA NOT NULL,
	PRIMARY KEY (release_id, position)
);

CREATE TABLE IF NOT EXISTS audit_events (
	seq         BIGSERIAL PRIMARY KEY,
	actor       TEXT NOT NULL,
	action      TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	owner_id    UUID,
	metadata    JSONB,
	request_id  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_events_owner_idx
	ON audit_events (owner_id, created_at);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
