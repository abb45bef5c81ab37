// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session manages the authentication token lifecycle: lazy token
// validation, single-flight refresh, and credential-fallback re-login.
//
// All token consumers go through Manager.GetValidToken, which guarantees
// that at most one refresh request is in flight at a time no matter how
// many goroutines ask concurrently. Credentials survive a token refresh
// failure; they are only cleared when the backend rejects them directly.
package session
