// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import "time"

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds the authenticated session state persisted across restarts.
//
// ExpiresAt is absolute epoch milliseconds; zero means no known expiry and
// the token is trusted until the server rejects it. Email/Password are the
// optional stored credentials used for silent re-login when the refresh
// token is rejected.
type Session struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`

	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// IsZero reports whether no session is stored.
func (s Session) IsZero() bool {
	return s.Token == "" && s.RefreshToken == ""
}

// HasCredentials reports whether stored credentials allow a fallback login.
func (s Session) HasCredentials() bool {
	return s.Email != "" && s.Password != ""
}

// ExpiredAt reports whether the access token is expired at the given time.
// A zero ExpiresAt never expires locally.
func (s Session) ExpiredAt(now time.Time) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return now.UnixMilli() >= s.ExpiresAt
}
