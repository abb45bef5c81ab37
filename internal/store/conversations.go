// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jeranaias/ilmchat/internal/apperr"
	"github.com/jeranaias/ilmchat/internal/model"
)

// =============================================================================
// CONVERSATION QUERIES
// =============================================================================

// conversationColumns is the shared select list for conversation rows.
const conversationColumns = `id, thread_id, title, created_at, updated_at, type, is_local_only`

// Conversations returns all cached conversations sorted by activity:
// max(latest message timestamp, updated_at) descending.
func (s *Store) Conversations(ctx context.Context) ([]*model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		ORDER BY MAX(
			c.updated_at,
			COALESCE((SELECT MAX(m.timestamp) FROM messages m WHERE m.conversation_id = c.id), 0)
		) DESC`)
	if err != nil {
		return nil, apperr.Database("list conversations", err)
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, apperr.Database("scan conversation", err)
		}
		convs = append(convs, conv)
	}
	return convs, apperr.Database("list conversations", rows.Err())
}

// GetConversation returns the conversation with the given id, or
// ErrNotFound.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Database("get conversation", err)
	}
	return conv, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*model.Conversation, error) {
	var (
		conv                 model.Conversation
		createdMs, updatedMs int64
		localOnly            int
		convType             string
	)
	if err := row.Scan(&conv.ID, &conv.ThreadID, &conv.Title,
		&createdMs, &updatedMs, &convType, &localOnly); err != nil {
		return nil, err
	}
	conv.CreatedAt = time.UnixMilli(createdMs)
	conv.UpdatedAt = time.UnixMilli(updatedMs)
	conv.Type = model.ConversationType(convType)
	conv.IsLocalOnly = localOnly != 0
	return &conv, nil
}

// =============================================================================
// CONVERSATION MUTATIONS
// =============================================================================

// InsertConversation inserts a new conversation row.
func (s *Store) InsertConversation(ctx context.Context, conv *model.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, thread_id, title, created_at, updated_at, type, is_local_only)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.ThreadID, conv.Title,
		conv.CreatedAt.UnixMilli(), conv.UpdatedAt.UnixMilli(),
		string(conv.Type), boolToInt(conv.IsLocalOnly))
	if err != nil {
		return apperr.Database("insert conversation", err)
	}
	s.notify()
	return nil
}

// UpsertRemoteConversation inserts or replaces a server-side conversation
// by id. Rows marked is_local_only are never touched: the update clause is
// guarded, and a guest row colliding with a remote id keeps its local data.
func (s *Store) UpsertRemoteConversation(ctx context.Context, conv *model.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, thread_id, title, created_at, updated_at, type, is_local_only)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			thread_id  = excluded.thread_id,
			title      = excluded.title,
			updated_at = excluded.updated_at,
			type       = excluded.type
		WHERE conversations.is_local_only = 0`,
		conv.ID, conv.ThreadID, conv.Title,
		conv.CreatedAt.UnixMilli(), conv.UpdatedAt.UnixMilli(),
		string(conv.Type))
	if err != nil {
		return apperr.Database("upsert conversation", err)
	}
	s.notify()
	return nil
}

// BindThread sets the server thread id on a conversation and bumps
// updated_at (kept monotonic via MAX).
func (s *Store) BindThread(ctx context.Context, conversationID, threadID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET thread_id = ?, updated_at = MAX(updated_at, ?)
		WHERE id = ?`,
		threadID, time.Now().UnixMilli(), conversationID)
	if err != nil {
		return apperr.Database("bind thread", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.notify()
	return nil
}

// DeleteConversation removes a conversation; its messages cascade.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return apperr.Database("delete conversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.notify()
	return nil
}

// DeleteAllConversations clears every conversation and, via cascade,
// every message. Freshness marks are kept (overwritten on next sync).
func (s *Store) DeleteAllConversations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return apperr.Database("delete all conversations", err)
	}
	s.notify()
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
