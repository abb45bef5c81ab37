// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing cached chat conversations, messages, citation sources,
// and the authenticated session.
//
// # Key Types
//
//   - Conversation: A locally cached conversation, optionally bound to a
//     server-side thread once the first exchange succeeds
//   - Message: Single message with content, timestamp, and optional sources
//   - Source: A parsed citation (book name, URL, optional page number)
//   - Session: Access/refresh token pair with optional stored credentials
//
// # Usage
//
// Create a new local-only conversation:
//
//	conv := model.NewConversation("What is riba?")
//	conv.BindThread("thread_abc123")
package model
