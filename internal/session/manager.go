// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jeranaias/ilmchat/internal/api"
	"github.com/jeranaias/ilmchat/internal/apperr"
	"github.com/jeranaias/ilmchat/internal/model"
)

// =============================================================================
// INTERFACES
// =============================================================================

// Store persists session state across restarts.
type Store interface {
	LoadSession(ctx context.Context) (model.Session, error)
	SaveSession(ctx context.Context, sess model.Session) error
	ClearSession(ctx context.Context) error
	ClearCredentials(ctx context.Context) error
}

// AuthAPI is the slice of the backend client the manager needs.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*api.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error)
}

// =============================================================================
// STATE
// =============================================================================

// State describes where the session is in its lifecycle.
type State int

const (
	// StateUnauthenticated means no token and no way to obtain one.
	StateUnauthenticated State = iota
	// StateValid means the stored token has not expired locally.
	StateValid
	// StateExpired means a token exists but its expiry has passed.
	StateExpired
	// StateRefreshing means a refresh request is currently in flight.
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the token lifecycle. It caches the session in memory,
// persists changes through the Store, and collapses concurrent refresh
// attempts into a single backend call.
type Manager struct {
	store  Store
	auth   AuthAPI
	logger *zap.Logger

	group singleflight.Group
	now   func() time.Time

	mu         sync.Mutex
	sess       model.Session
	loaded     bool
	refreshing bool
}

// NewManager creates a lifecycle manager backed by the given store and
// auth endpoints.
func NewManager(store Store, auth AuthAPI, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		auth:   auth,
		logger: logger,
		now:    time.Now,
	}
}

// load returns the cached session, reading it from the store on first use.
func (m *Manager) load(ctx context.Context) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		sess, err := m.store.LoadSession(ctx)
		if err != nil {
			return model.Session{}, err
		}
		m.sess = sess
		m.loaded = true
	}
	return m.sess, nil
}

// save updates both the cache and the store.
func (m *Manager) save(ctx context.Context, sess model.Session) error {
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return err
	}
	m.mu.Lock()
	m.sess = sess
	m.loaded = true
	m.mu.Unlock()
	return nil
}

// Current returns the session as the manager last saw it. It never
// triggers a refresh.
func (m *Manager) Current(ctx context.Context) (model.Session, error) {
	return m.load(ctx)
}

// State reports the current lifecycle state without side effects.
func (m *Manager) State(ctx context.Context) State {
	m.mu.Lock()
	refreshing := m.refreshing
	m.mu.Unlock()
	if refreshing {
		return StateRefreshing
	}

	sess, err := m.load(ctx)
	if err != nil || sess.Token == "" {
		return StateUnauthenticated
	}
	if sess.ExpiredAt(m.now()) {
		return StateExpired
	}
	return StateValid
}

// Authenticated reports whether a usable token or stored credentials exist.
func (m *Manager) Authenticated(ctx context.Context) bool {
	sess, err := m.load(ctx)
	if err != nil {
		return false
	}
	return sess.Token != "" || sess.HasCredentials()
}

// =============================================================================
// TOKEN LIFECYCLE
// =============================================================================

// GetValidToken returns a token believed valid, refreshing or re-logging
// in as needed. Concurrent callers share a single refresh request.
//
// An expired or rejected refresh token clears the session but keeps the
// saved credentials, which are then tried as a fallback login. Only a
// direct rejection of the credentials clears them. Transient failures
// leave all persisted state untouched.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	sess, err := m.load(ctx)
	if err != nil {
		return "", err
	}

	if sess.Token != "" && !sess.ExpiredAt(m.now()) {
		return sess.Token, nil
	}

	if sess.Token == "" && !sess.HasCredentials() {
		return "", apperr.ErrNotAuthenticated
	}

	token, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.renew(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// renew performs the refresh / credential-fallback sequence. Exactly one
// renew runs at a time; latecomers piggyback on its result.
func (m *Manager) renew(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.refreshing = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
	}()

	// Re-read under the flight: an earlier caller may have renewed already.
	sess, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if sess.Token != "" && !sess.ExpiredAt(m.now()) {
		return sess.Token, nil
	}

	if sess.RefreshToken != "" {
		resp, err := m.auth.Refresh(ctx, sess.RefreshToken)
		if err == nil {
			m.logger.Debug("token refreshed")
			return resp.Token, m.save(ctx, m.merged(sess, resp))
		}
		if !errors.Is(err, apperr.ErrUnauthorized) {
			// Transient: keep the session, the next attempt may succeed.
			return "", err
		}

		m.logger.Info("refresh token rejected, clearing session")
		if clearErr := m.clearSession(ctx); clearErr != nil {
			return "", clearErr
		}
		sess.Token = ""
		sess.RefreshToken = ""
		sess.ExpiresAt = 0
	}

	if !sess.HasCredentials() {
		return "", apperr.ErrNotAuthenticated
	}

	resp, err := m.auth.Login(ctx, sess.Email, sess.Password)
	if err == nil {
		m.logger.Debug("re-login succeeded")
		return resp.Token, m.save(ctx, m.merged(sess, resp))
	}
	if errors.Is(err, apperr.ErrUnauthorized) {
		m.logger.Info("stored credentials rejected, clearing them")
		if clearErr := m.clearCredentials(ctx); clearErr != nil {
			return "", clearErr
		}
		return "", apperr.ErrNotAuthenticated
	}
	return "", err
}

// merged combines a token response with the credentials already on file.
func (m *Manager) merged(sess model.Session, resp *api.TokenResponse) model.Session {
	return model.Session{
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
		Email:        sess.Email,
		Password:     sess.Password,
	}
}

func (m *Manager) clearSession(ctx context.Context) error {
	if err := m.store.ClearSession(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.sess.Token = ""
	m.sess.RefreshToken = ""
	m.sess.ExpiresAt = 0
	m.mu.Unlock()
	return nil
}

func (m *Manager) clearCredentials(ctx context.Context) error {
	if err := m.store.ClearCredentials(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.sess.Email = ""
	m.sess.Password = ""
	m.mu.Unlock()
	return nil
}

// =============================================================================
// EXPLICIT AUTH OPERATIONS
// =============================================================================

// Login authenticates with the backend and persists the resulting session
// together with the credentials for later fallback re-login.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	resp, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return m.save(ctx, model.Session{
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
		Email:        email,
		Password:     password,
	})
}

// Logout discards the session and the stored credentials.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.ClearSession(ctx); err != nil {
		return err
	}
	if err := m.store.ClearCredentials(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.sess = model.Session{}
	m.loaded = true
	m.mu.Unlock()
	return nil
}
