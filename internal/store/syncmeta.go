// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jeranaias/ilmchat/internal/apperr"
)

// =============================================================================
// FRESHNESS LEDGER
// =============================================================================

// LastSyncedAt returns the freshness mark for a resource key in Unix
// milliseconds. ok is false when no sync has been recorded.
func (s *Store) LastSyncedAt(ctx context.Context, key string) (ms int64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT last_synced_at FROM sync_meta WHERE key = ?`, key)
	if err := row.Scan(&ms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, apperr.Database("read sync meta", err)
	}
	return ms, true, nil
}

// MarkSynced records a successful sync for a resource key. Marks are
// monotonic: an older timestamp never overwrites a newer one.
func (s *Store) MarkSynced(ctx context.Context, key string, ms int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_meta (key, last_synced_at) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			last_synced_at = MAX(sync_meta.last_synced_at, excluded.last_synced_at)`,
		key, ms)
	return apperr.Database("mark synced", err)
}
