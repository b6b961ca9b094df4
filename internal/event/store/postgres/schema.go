package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the logical layout from the persistence contract: events keyed
// by canonical id, actions keyed by (event_id, sequence), drafts keyed by
// (owner_id, transaction_id), and the change-feed outbox.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id             UUID PRIMARY KEY,
	type           TEXT NOT NULL,
	transaction_id TEXT NOT NULL UNIQUE,
	version        INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	deleted_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS actions (
	id             UUID PRIMARY KEY,
	event_id       UUID NOT NULL REFERENCES events (id) ON DELETE CASCADE,
	type           TEXT NOT NULL,
	status         TEXT NOT NULL,
	declaration    JSONB,
	annotation     JSONB,
	assigned_to    UUID,
	request_id     UUID,
	assignment_id  UUID,
	created_by     UUID NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	transaction_id TEXT NOT NULL UNIQUE,
	sequence       INTEGER NOT NULL,
	UNIQUE (event_id, sequence)
);

CREATE TABLE IF NOT EXISTS drafts (
	owner_id       UUID NOT NULL,
	transaction_id TEXT NOT NULL,
	event_id       UUID NOT NULL,
	action_type    TEXT NOT NULL,
	declaration    JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner_id, transaction_id)
);

CREATE INDEX IF NOT EXISTS drafts_event_idx ON drafts (event_id);

CREATE TABLE IF NOT EXISTS outbox (
	id           UUID PRIMARY KEY,
	event_id     UUID NOT NULL,
	action_id    UUID NOT NULL,
	action_type  TEXT NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (created_at) WHERE published_at IS NULL;

ALTER TABLE events ADD COLUMN IF NOT EXISTS deleted_at TIMESTAMPTZ;
`

// Migrate applies the schema. Statements are idempotent so this is safe to
// run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
