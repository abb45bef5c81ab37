// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine reconciles the local conversation store with the
// backend. Synchronization is additive: remote data is merged in with
// upserts, local rows are never deleted by a sync, and conversations
// created while signed out stay local-only forever.
//
// TTL bookkeeping lives in the Freshness tracker so that repeated UI
// refreshes do not hammer the backend; forced syncs bypass the TTL but
// still pass through the rate limiter.
package engine
