// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"strconv"

	"github.com/jeranaias/ilmchat/internal/apperr"
	"github.com/jeranaias/ilmchat/internal/model"
)

// Session key/value rows.
const (
	sessionKeyToken        = "token"
	sessionKeyRefreshToken = "refresh_token"
	sessionKeyExpiresAt    = "expires_at"
	sessionKeyEmail        = "email"
	sessionKeyPassword     = "password"
)

// =============================================================================
// SESSION STORE
// =============================================================================

// LoadSession reads the persisted session. A missing session yields the
// zero value, not an error.
func (s *Store) LoadSession(ctx context.Context) (model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session`)
	if err != nil {
		return model.Session{}, apperr.Database("load session", err)
	}
	defer rows.Close()

	var sess model.Session
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return model.Session{}, apperr.Database("scan session", err)
		}
		switch key {
		case sessionKeyToken:
			sess.Token = value
		case sessionKeyRefreshToken:
			sess.RefreshToken = value
		case sessionKeyExpiresAt:
			// A corrupt value degrades to "no known expiry".
			sess.ExpiresAt, _ = strconv.ParseInt(value, 10, 64)
		case sessionKeyEmail:
			sess.Email = value
		case sessionKeyPassword:
			sess.Password = value
		}
	}
	return sess, apperr.Database("load session", rows.Err())
}

// SaveSession persists the full session, replacing any previous one.
func (s *Store) SaveSession(ctx context.Context, sess model.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database("begin save session", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return apperr.Database("clear session", err)
	}

	pairs := map[string]string{
		sessionKeyToken:        sess.Token,
		sessionKeyRefreshToken: sess.RefreshToken,
		sessionKeyExpiresAt:    strconv.FormatInt(sess.ExpiresAt, 10),
		sessionKeyEmail:        sess.Email,
		sessionKeyPassword:     sess.Password,
	}
	for key, value := range pairs {
		if value == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session (key, value) VALUES (?, ?)`, key, value); err != nil {
			return apperr.Database("save session", err)
		}
	}

	return apperr.Database("commit save session", tx.Commit())
}

// ClearSession removes the token rows but keeps stored credentials, so a
// silent re-login remains possible.
func (s *Store) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session WHERE key IN (?, ?, ?)`,
		sessionKeyToken, sessionKeyRefreshToken, sessionKeyExpiresAt)
	return apperr.Database("clear session", err)
}

// ClearCredentials removes the stored email/password pair.
func (s *Store) ClearCredentials(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session WHERE key IN (?, ?)`,
		sessionKeyEmail, sessionKeyPassword)
	return apperr.Database("clear credentials", err)
}
