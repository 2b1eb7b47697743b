package store

// migrationStatements is applied in order by Migrate. Kept as plain DDL
// rather than a migration framework, relying on PostgreSQL init scripts
// for schema management.
var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS history_conversations (
		session_id     TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		title          TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL,
		last_activity  TIMESTAMPTZ NOT NULL,
		persisted_at   TIMESTAMPTZ NOT NULL,
		messages       JSONB NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_conversations_user_id
		ON history_conversations (user_id, last_activity DESC)`,

	`CREATE TABLE IF NOT EXISTS memory_conversations (
		session_id       TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		summary          TEXT NOT NULL DEFAULT '',
		themes           TEXT[] NOT NULL DEFAULT '{}',
		persons          TEXT[] NOT NULL DEFAULT '{}',
		places           TEXT[] NOT NULL DEFAULT '{}',
		user_sentiment   TEXT NOT NULL DEFAULT 'neutral',
		vector_embedding vector(3072),
		model            TEXT NOT NULL DEFAULT '',
		ts               TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_conversations_user_id
		ON memory_conversations (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_conversations_embedding
		ON memory_conversations USING ivfflat (vector_embedding vector_cosine_ops)
		WITH (lists = 100)`,

	`CREATE TABLE IF NOT EXISTS user_memories (
		user_id               TEXT PRIMARY KEY,
		output_preferences    TEXT[] NOT NULL DEFAULT '{}',
		personal_preferences  TEXT[] NOT NULL DEFAULT '{}',
		assistant_preferences TEXT[] NOT NULL DEFAULT '{}',
		knowledge             TEXT[] NOT NULL DEFAULT '{}',
		interests             TEXT[] NOT NULL DEFAULT '{}',
		dislikes              TEXT[] NOT NULL DEFAULT '{}',
		family_and_friends    TEXT[] NOT NULL DEFAULT '{}',
		work_profile          TEXT[] NOT NULL DEFAULT '{}',
		goals                 TEXT[] NOT NULL DEFAULT '{}',
		last_updated          TIMESTAMPTZ NOT NULL,
		last_merge_source     TEXT NOT NULL DEFAULT ''
	)`,
}
