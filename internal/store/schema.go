// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the local sqlite cache for conversations,
// messages, sync freshness marks, and the persisted session.
package store

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1
)

// SQLite schema for the local cache.
//
// Conversations and messages mirror the server payloads plus the
// device-only fields (is_local_only, image_data). Messages cascade with
// their conversation. sync_meta is the freshness ledger; session is the
// durable key/value session store.
const Schema = `
-- Metadata table for schema version
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- Conversations table
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    thread_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL,      -- Unix milliseconds
    updated_at INTEGER NOT NULL,      -- Unix milliseconds
    type TEXT NOT NULL DEFAULT 'regular',
    is_local_only INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);

-- Messages table: cascade-deletes with the owning conversation
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    content TEXT NOT NULL,
    is_user_message INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,       -- Unix milliseconds, defines render order
    sources_json TEXT,
    image_data TEXT,
    detected_language TEXT,
    is_fact_check INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);

-- Freshness ledger: one row per resource key, overwritten, never deleted
CREATE TABLE IF NOT EXISTS sync_meta (
    key TEXT PRIMARY KEY,
    last_synced_at INTEGER NOT NULL   -- Unix milliseconds
) WITHOUT ROWID;

-- Session key/value store (token, refresh_token, expires_at, email, password)
CREATE TABLE IF NOT EXISTS session (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;
`

// InitMetadata seeds the metadata table.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
INSERT OR IGNORE INTO metadata (key, value) VALUES ('created_at', strftime('%s', 'now'));
`
