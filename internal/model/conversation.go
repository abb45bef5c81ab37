// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// ConversationType distinguishes regular Q&A threads from fact-check threads.
type ConversationType string

const (
	// TypeRegular is a normal question/answer conversation.
	TypeRegular ConversationType = "regular"

	// TypeFactCheck is a conversation started from an image fact-check.
	TypeFactCheck ConversationType = "fact_check"
)

// Conversation is a locally cached conversation.
//
// ID is client-generated and stable. ThreadID is assigned by the server on
// the first successful exchange and is empty until then. IsLocalOnly marks
// guest conversations that have no server counterpart; they are never the
// target of a remote fetch or sync.
type Conversation struct {
	ID          string           `json:"id"`
	ThreadID    string           `json:"thread_id,omitempty"`
	Title       string           `json:"title"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Type        ConversationType `json:"type"`
	IsLocalOnly bool             `json:"is_local_only"`
}

// NewConversation creates a local-only conversation with a generated ID.
func NewConversation(title string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:          uuid.NewString(),
		Title:       title,
		CreatedAt:   now,
		UpdatedAt:   now,
		Type:        TypeRegular,
		IsLocalOnly: true,
	}
}

// NewFactCheckConversation creates a local-only fact-check conversation.
func NewFactCheckConversation(title string) *Conversation {
	conv := NewConversation(title)
	conv.Type = TypeFactCheck
	return conv
}

// BindThread attaches the server-assigned thread id and bumps UpdatedAt.
// Binding a thread does not clear IsLocalOnly: a guest conversation that
// gets a thread id is still never reconciled against the server list.
func (c *Conversation) BindThread(threadID string) {
	c.ThreadID = threadID
	c.Touch()
}

// HasThread reports whether the conversation is bound to a server thread.
func (c *Conversation) HasThread() bool {
	return c.ThreadID != ""
}

// Touch bumps UpdatedAt, keeping it monotonically non-decreasing.
func (c *Conversation) Touch() {
	if now := time.Now(); now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}
