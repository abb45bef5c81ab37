// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Freshness keys. Conversation lists share a single key; message fetches
// are tracked per conversation.
const (
	KeyConversations = "conversations"
	keyMessagePrefix = "messages:"
)

// MessagesKey returns the freshness key for one conversation's messages.
func MessagesKey(conversationID string) string {
	return keyMessagePrefix + conversationID
}

// SyncMetaStore persists last-synced marks.
type SyncMetaStore interface {
	LastSyncedAt(ctx context.Context, key string) (ms int64, ok bool, err error)
	MarkSynced(ctx context.Context, key string, ms int64) error
}

// =============================================================================
// FRESHNESS TRACKER
// =============================================================================

// Freshness decides whether a sync key is stale. Marks persist across
// restarts through the SyncMetaStore; an in-memory mutex serializes
// check-then-mark races between concurrent callers of the same key.
type Freshness struct {
	store   SyncMetaStore
	convTTL time.Duration
	msgTTL  time.Duration

	mu sync.Mutex
}

// NewFreshness creates a tracker with the given TTLs. A zero or negative
// TTL means the key is always stale.
func NewFreshness(store SyncMetaStore, convTTL, msgTTL time.Duration) *Freshness {
	return &Freshness{store: store, convTTL: convTTL, msgTTL: msgTTL}
}

// ttlFor picks the TTL that applies to a key.
func (f *Freshness) ttlFor(key string) time.Duration {
	if strings.HasPrefix(key, keyMessagePrefix) {
		return f.msgTTL
	}
	return f.convTTL
}

// ShouldSync reports whether the key needs a sync at the given instant.
// force bypasses the TTL entirely; a key with no recorded mark is always
// stale.
func (f *Freshness) ShouldSync(ctx context.Context, key string, force bool, now time.Time) (bool, error) {
	if force {
		return true, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	last, ok, err := f.store.LastSyncedAt(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	ttl := f.ttlFor(key)
	if ttl <= 0 {
		return true, nil
	}
	return now.UnixMilli()-last >= ttl.Milliseconds(), nil
}

// MarkSynced records a successful sync at the given instant. Marks only
// move forward; recording an older instant is a no-op.
func (f *Freshness) MarkSynced(ctx context.Context, key string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store.MarkSynced(ctx, key, now.UnixMilli())
}
