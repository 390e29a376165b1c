package store

// Schema bootstrap, executed on every connect. All statements are
// idempotent so restarts are safe.
const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	incident_id    TEXT PRIMARY KEY,
	observed_value TEXT,
	policy_name    TEXT,
	condition_name TEXT,
	subject        TEXT,
	display_name   TEXT,
	severity       TEXT,
	summary        TEXT,
	payload        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS incidents (
	incident_id    TEXT PRIMARY KEY,
	observed_value TEXT,
	policy_name    TEXT,
	condition_name TEXT,
	subject        TEXT,
	display_name   TEXT,
	severity       TEXT,
	summary        TEXT,
	payload        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS incident_duplicates (
	id             BIGSERIAL PRIMARY KEY,
	incident_id    TEXT NOT NULL,
	observed_value TEXT,
	policy_name    TEXT,
	condition_name TEXT,
	subject        TEXT,
	display_name   TEXT,
	severity       TEXT,
	summary        TEXT,
	payload        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_incident_duplicates_incident
	ON incident_duplicates (incident_id);

CREATE TABLE IF NOT EXISTS chat_messages (
	id          BIGSERIAL PRIMARY KEY,
	incident_id TEXT NOT NULL,
	query       TEXT NOT NULL,
	response    TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_incident
	ON chat_messages (incident_id);
`
