// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single cached chat message. Insertion order by Timestamp
// defines render order within a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	IsUserMessage  bool      `json:"is_user_message"`
	Timestamp      time.Time `json:"timestamp"`

	// Sources is only populated on assistant messages that carried a
	// parseable citation section.
	Sources []Source `json:"sources,omitempty"`

	// Fact-check attachments
	ImageData          string `json:"image_data,omitempty"`
	DetectedLanguage   string `json:"detected_language,omitempty"`
	IsFactCheckMessage bool   `json:"is_fact_check_message,omitempty"`
}

// NewUserMessage creates a user message for the given conversation.
func NewUserMessage(conversationID, content string) *Message {
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		IsUserMessage:  true,
		Timestamp:      time.Now(),
	}
}

// NewAssistantMessage creates an assistant message with parsed sources.
func NewAssistantMessage(conversationID, content string, sources []Source) *Message {
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		IsUserMessage:  false,
		Timestamp:      time.Now(),
		Sources:        sources,
	}
}
