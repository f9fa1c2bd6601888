package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the engine's tables. Applied by cmd/seed and the
// integration tests; production deployments run it through their own
// migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id         UUID PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS documents (
	id             UUID PRIMARY KEY,
	owner_id       UUID NOT NULL,
	title          TEXT NOT NULL,
	workflow_state TEXT NOT NULL DEFAULT 'none',
	extracted_text TEXT
);

CREATE TABLE IF NOT EXISTS document_shares (
	document_id UUID NOT NULL,
	user_id     UUID NOT NULL,
	permission  TEXT NOT NULL DEFAULT 'read',
	PRIMARY KEY (document_id, user_id)
);

CREATE TABLE IF NOT EXISTS signature_requests (
	id                    UUID PRIMARY KEY,
	workflow_id           UUID NOT NULL,
	document_id           UUID NOT NULL,
	requested_by          UUID NOT NULL,
	title                 TEXT NOT NULL,
	message               TEXT,
	signer_id             UUID,
	signer_email          TEXT NOT NULL,
	signer_name           TEXT NOT NULL,
	signer_role           TEXT,
	signer_order          INT  NOT NULL,
	is_required           BOOLEAN NOT NULL DEFAULT TRUE,
	allow_delegation      BOOLEAN NOT NULL DEFAULT FALSE,
	status                TEXT NOT NULL DEFAULT 'INVITED',
	workflow_status       TEXT NOT NULL DEFAULT 'PENDING',
	invitation_token      TEXT NOT NULL,
	invitation_expires_at TIMESTAMPTZ,
	due_date              TIMESTAMPTZ,
	signed_at             TIMESTAMPTZ,
	declined_at           TIMESTAMPTZ,
	decline_reason        TEXT,
	signature_image_url   TEXT,
	certificate_url       TEXT,
	ip_address            TEXT,
	user_agent            TEXT,
	coordinates           TEXT,
	location_info         TEXT,
	fields                JSONB NOT NULL DEFAULT '{}',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (workflow_id, signer_order)
);

CREATE INDEX IF NOT EXISTS idx_signature_requests_workflow
	ON signature_requests (workflow_id);

CREATE TABLE IF NOT EXISTS workflow_completions (
	workflow_id  UUID PRIMARY KEY,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_events (
	id                 UUID PRIMARY KEY,
	seq                BIGSERIAL UNIQUE,
	document_id        UUID NOT NULL,
	workflow_id        UUID NOT NULL,
	signature_id       UUID,
	event_type         TEXT NOT NULL,
	description        TEXT,
	performed_by       TEXT,
	performed_by_email TEXT,
	performed_by_name  TEXT,
	ip_address         TEXT,
	user_agent         TEXT,
	metadata           JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_events_workflow
	ON audit_events (workflow_id, created_at, seq);
`

// EnsureSchema applies the DDL to the connected database.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
