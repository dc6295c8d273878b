package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL creates every table the service needs. Statements are idempotent.
//
// data_change_history.structured_data_id carries no foreign key: entries
// outlive a hard-deleted unit, including the DELETE_DATA entry itself.
const schemaDDL = `
	CREATE TABLE IF NOT EXISTS conversations (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_user
		ON conversations (user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS structured_data (
		id              UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
		data_type       TEXT NOT NULL DEFAULT '',
		schema_version  TEXT NOT NULL DEFAULT '',
		data            JSONB NOT NULL DEFAULT '{}',
		metadata        JSONB NOT NULL DEFAULT '{}',
		version         BIGINT NOT NULL DEFAULT 1,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		deleted_at      TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_structured_data_conversation
		ON structured_data (conversation_id, created_at DESC);

	CREATE INDEX IF NOT EXISTS idx_structured_data_message
		ON structured_data ((metadata->>'message_id'))
		WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS data_columns (
		id                 UUID PRIMARY KEY,
		structured_data_id UUID NOT NULL REFERENCES structured_data (id) ON DELETE CASCADE,
		name               TEXT NOT NULL,
		data_type          TEXT NOT NULL,
		format             TEXT,
		formula            TEXT,
		sort_order         INTEGER NOT NULL DEFAULT 0,
		is_active          BOOLEAN NOT NULL DEFAULT TRUE,
		metadata           JSONB NOT NULL DEFAULT '{}',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	);

	CREATE INDEX IF NOT EXISTS idx_data_columns_unit
		ON data_columns (structured_data_id, created_at);

	CREATE TABLE IF NOT EXISTS data_change_history (
		id                 UUID PRIMARY KEY,
		structured_data_id UUID NOT NULL,
		user_id            UUID NOT NULL,
		change_type        TEXT NOT NULL,
		column_name        TEXT,
		row_index          INTEGER,
		old_value          TEXT,
		new_value          TEXT,
		metadata           JSONB NOT NULL DEFAULT '{}',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	);

	CREATE INDEX IF NOT EXISTS idx_data_change_history_unit
		ON data_change_history (structured_data_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS plugins (
		id                 UUID PRIMARY KEY,
		name               TEXT NOT NULL UNIQUE,
		endpoint           TEXT NOT NULL,
		subscribed_changes TEXT[] NOT NULL,
		status             TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

// RunMigrations creates the schema on pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Tables returns the names of the tables created by RunMigrations.
func Tables() []string {
	return []string{"conversations", "structured_data", "data_columns", "data_change_history", "plugins"}
}
