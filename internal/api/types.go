// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the REST/SSE client for the ilmchat backend.
package api

// =============================================================================
// REQUEST TYPES (snake_case per the backend contract)
// =============================================================================

// ChatRequest is the body for POST /api/chat and /api/chat/stream.
type ChatRequest struct {
	Question           string `json:"question"`
	ThreadID           string `json:"thread_id,omitempty"`
	PromptConfig       string `json:"prompt_config,omitempty"`
	LanguagePreference string `json:"language_preference,omitempty"`
	CustomSystemPrompt string `json:"custom_system_prompt,omitempty"`
	SessionID          string `json:"session_id,omitempty"`
	EnableThinking     bool   `json:"enable_thinking,omitempty"`
}

// OCRRequest is the body for POST /api/ocr.
type OCRRequest struct {
	ImageBase64  string `json:"image_base64"`
	ThreadID     string `json:"thread_id,omitempty"`
	LanguageHint string `json:"language_hint,omitempty"`
}

// FactCheckRequest is the body for POST /api/confirm-fact-check.
type FactCheckRequest struct {
	ReviewedText       string `json:"reviewed_text"`
	ImageURL           string `json:"image_url,omitempty"`
	ImageBase64        string `json:"image_base64,omitempty"`
	ThreadID           string `json:"thread_id,omitempty"`
	LanguagePreference string `json:"language_preference,omitempty"`
	EnableThinking     bool   `json:"enable_thinking,omitempty"`
}

// LoginRequest is the body for the login and signup endpoints.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body for POST /api/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ForgotPasswordRequest is the body for POST /api/auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is the blocking /api/chat answer.
type ChatResponse struct {
	Answer   string `json:"answer"`
	ThreadID string `json:"thread_id"`
}

// OCRResponse carries the recognized text for a fact-check image.
type OCRResponse struct {
	ExtractedText string            `json:"extracted_text"`
	ImageURL      string            `json:"image_url"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TokenResponse is returned by login, signup, and refresh.
type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`

	// ExpiresAt is absolute epoch milliseconds; zero means the server
	// reported no expiry.
	ExpiresAt int64 `json:"expires_at"`
}

// RemoteConversation is a conversation row as the server reports it.
type RemoteConversation struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"` // epoch ms
	UpdatedAt int64  `json:"updated_at"` // epoch ms
	Type      string `json:"type"`
}

// RemoteMessage is a message row as the server reports it.
type RemoteMessage struct {
	ID               string `json:"id"`
	Content          string `json:"content"`
	IsUserMessage    bool   `json:"is_user_message"`
	Timestamp        int64  `json:"timestamp"` // epoch ms
	DetectedLanguage string `json:"detected_language,omitempty"`
}

// apiErrorResponse is the backend's error envelope.
type apiErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// Stream event discriminators.
const (
	// EventThinking is a display-only reasoning update.
	EventThinking = "thinking"

	// EventContent is an answer token delta.
	EventContent = "content"

	// EventDone terminates the stream with the full answer and the
	// server-assigned thread id.
	EventDone = "done"
)

// StreamEvent is a single server-sent event from the chat stream.
// Transport errors are delivered in-band via the Err field as the final
// event before the channel closes.
type StreamEvent struct {
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	ThreadID   string `json:"thread_id,omitempty"`
	FullAnswer string `json:"full_answer,omitempty"`

	Err error `json:"-"`
}
