// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jeranaias/ilmchat/internal/apperr"
	"github.com/jeranaias/ilmchat/internal/model"
)

// =============================================================================
// MESSAGE QUERIES
// =============================================================================

// Messages returns a conversation's messages in timestamp order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, content, is_user_message, timestamp,
		       sources_json, image_data, detected_language, is_fact_check
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, apperr.Database("list messages", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, apperr.Database("scan message", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, apperr.Database("list messages", rows.Err())
}

func scanMessage(rows *sql.Rows) (*model.Message, error) {
	var (
		msg                      model.Message
		isUser, isFactCheck      int
		tsMs                     int64
		sourcesJSON, image, lang sql.NullString
	)
	if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Content, &isUser,
		&tsMs, &sourcesJSON, &image, &lang, &isFactCheck); err != nil {
		return nil, err
	}
	msg.IsUserMessage = isUser != 0
	msg.IsFactCheckMessage = isFactCheck != 0
	msg.Timestamp = time.UnixMilli(tsMs)
	msg.ImageData = image.String
	msg.DetectedLanguage = lang.String

	// An unparsable cached sources blob is treated as absent, not an error.
	if sourcesJSON.Valid && sourcesJSON.String != "" {
		var sources []model.Source
		if err := json.Unmarshal([]byte(sourcesJSON.String), &sources); err == nil {
			msg.Sources = sources
		}
	}
	return &msg, nil
}

// =============================================================================
// MESSAGE MUTATIONS
// =============================================================================

// SaveMessage appends a message and bumps the owning conversation's
// updated_at in a single transaction.
func (s *Store) SaveMessage(ctx context.Context, msg *model.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database("begin save message", err)
	}
	defer tx.Rollback()

	if err := insertMessage(ctx, tx, msg); err != nil {
		return apperr.Database("insert message", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = MAX(updated_at, ?) WHERE id = ?`,
		msg.Timestamp.UnixMilli(), msg.ConversationID); err != nil {
		return apperr.Database("touch conversation", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Database("commit save message", err)
	}
	s.notify()
	return nil
}

// UpsertMessages inserts or replaces a batch of remote messages by id.
// Used by sync; does not bump the conversation's updated_at since remote
// rows carry their own timestamps.
func (s *Store) UpsertMessages(ctx context.Context, msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database("begin upsert messages", err)
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		if err := insertMessage(ctx, tx, msg); err != nil {
			return apperr.Database("upsert message", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Database("commit upsert messages", err)
	}
	s.notify()
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, msg *model.Message) error {
	var sourcesJSON any
	if len(msg.Sources) > 0 {
		data, err := json.Marshal(msg.Sources)
		if err != nil {
			return err
		}
		sourcesJSON = string(data)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, content, is_user_message,
		                      timestamp, sources_json, image_data, detected_language, is_fact_check)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content           = excluded.content,
			sources_json      = excluded.sources_json,
			detected_language = excluded.detected_language`,
		msg.ID, msg.ConversationID, msg.Content, boolToInt(msg.IsUserMessage),
		msg.Timestamp.UnixMilli(), sourcesJSON,
		nullable(msg.ImageData), nullable(msg.DetectedLanguage),
		boolToInt(msg.IsFactCheckMessage))
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
