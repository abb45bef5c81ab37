// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/ilmchat/internal/api"
	"github.com/jeranaias/ilmchat/internal/apperr"
	"github.com/jeranaias/ilmchat/internal/model"
	"github.com/jeranaias/ilmchat/internal/store"
	"github.com/jeranaias/ilmchat/internal/util"
)

// ErrSyncThrottled is returned when the remote-fetch rate limiter has no
// budget left. Callers should treat it as "try again later", not a failure.
var ErrSyncThrottled = errors.New("sync throttled")

// titleMaxRunes caps conversation titles derived from the first question.
const titleMaxRunes = 50

// =============================================================================
// DEPENDENCIES
// =============================================================================

// RemoteAPI is the slice of the backend client the engine needs.
type RemoteAPI interface {
	Conversations(ctx context.Context, token string) ([]api.RemoteConversation, error)
	Messages(ctx context.Context, token, conversationID string) ([]api.RemoteMessage, error)
}

// TokenSource supplies a valid token, refreshing if necessary.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine reconciles local conversations with the backend and is the
// single entry point for conversation reads and writes above the store.
type Engine struct {
	store     *store.Store
	remote    RemoteAPI
	tokens    TokenSource
	freshness *Freshness
	limiter   *rate.Limiter
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a sync engine. fetchesPerMinute caps how often the engine
// hits the backend; zero disables the cap.
func New(st *store.Store, remote RemoteAPI, tokens TokenSource, freshness *Freshness, fetchesPerMinute int, logger *zap.Logger) *Engine {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if fetchesPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(fetchesPerMinute)/60.0), fetchesPerMinute)
	}
	return &Engine{
		store:     st,
		remote:    remote,
		tokens:    tokens,
		freshness: freshness,
		limiter:   limiter,
		logger:    logger,
		now:       time.Now,
	}
}

// ObserveConversations returns a channel that receives a signal whenever
// stored conversations change, and a cancel func that releases it.
func (e *Engine) ObserveConversations() (<-chan struct{}, func()) {
	return e.store.Observe()
}

// WatchConversations emits the current conversation list immediately and
// again after every local change, always sourced from the local store.
// The channel closes when ctx is cancelled.
func (e *Engine) WatchConversations(ctx context.Context) <-chan []*model.Conversation {
	out := make(chan []*model.Conversation, 1)
	changes, cancel := e.store.Observe()

	go func() {
		defer close(out)
		defer cancel()
		for {
			convs, err := e.store.Conversations(ctx)
			if err != nil {
				e.logger.Warn("conversation watch query failed", zap.Error(err))
			} else {
				select {
				case out <- convs:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
		}
	}()
	return out
}

// =============================================================================
// LOCAL READS AND WRITES
// =============================================================================

// Conversations lists cached conversations, most recently active first.
func (e *Engine) Conversations(ctx context.Context) ([]*model.Conversation, error) {
	return e.store.Conversations(ctx)
}

// GetConversation loads one conversation by id.
func (e *Engine) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return e.store.GetConversation(ctx, id)
}

// Messages lists a conversation's cached messages in timestamp order.
func (e *Engine) Messages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	return e.store.Messages(ctx, conversationID)
}

// TitleFromQuestion derives a conversation title from the first question:
// whitespace collapsed and truncated on a rune boundary.
func TitleFromQuestion(question string) string {
	title := util.CollapseWhitespace(question)
	if title == "" {
		return "New conversation"
	}
	return util.TruncateRunes(title, titleMaxRunes)
}

// CreateConversation creates and persists a local conversation titled
// after the opening question. It starts local-only; a later thread bind
// does not change that.
func (e *Engine) CreateConversation(ctx context.Context, question string, convType model.ConversationType) (*model.Conversation, error) {
	conv := model.NewConversation(TitleFromQuestion(question))
	conv.Type = convType
	if err := e.store.InsertConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// BindThread records the server-assigned thread id on a conversation.
func (e *Engine) BindThread(ctx context.Context, conversationID, threadID string) error {
	return e.store.BindThread(ctx, conversationID, threadID)
}

// SaveMessage persists a message and bumps its conversation's activity.
func (e *Engine) SaveMessage(ctx context.Context, msg *model.Message) error {
	return e.store.SaveMessage(ctx, msg)
}

// DeleteConversation removes a conversation and its messages locally.
func (e *Engine) DeleteConversation(ctx context.Context, id string) error {
	return e.store.DeleteConversation(ctx, id)
}

// DeleteAll wipes every cached conversation and message.
func (e *Engine) DeleteAll(ctx context.Context) error {
	return e.store.DeleteAllConversations(ctx)
}

// =============================================================================
// REMOTE SYNC
// =============================================================================

// SyncConversations pulls the server's conversation list and merges it
// into the local cache additively. It is a silent no-op when the user is
// not authenticated or when the list is still fresh (unless forced).
// Local rows are never deleted and local-only rows are never modified.
func (e *Engine) SyncConversations(ctx context.Context, force bool) error {
	token, err := e.tokens.GetValidToken(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrNotAuthenticated) {
			return nil
		}
		return fmt.Errorf("sync conversations: %w", err)
	}

	stale, err := e.freshness.ShouldSync(ctx, KeyConversations, force, e.now())
	if err != nil {
		return err
	}
	if !stale {
		return nil
	}
	if !e.limiter.Allow() {
		return ErrSyncThrottled
	}

	start := e.now()
	remote, err := e.remote.Conversations(ctx, token)
	if err != nil {
		return fmt.Errorf("sync conversations: %w", err)
	}

	for _, rc := range remote {
		conv := remoteConversation(rc)
		if err := e.store.UpsertRemoteConversation(ctx, conv); err != nil {
			return fmt.Errorf("sync conversations: upsert %s: %w", rc.ID, err)
		}
	}

	e.logger.Debug("conversations synced", zap.Int("count", len(remote)))
	return e.freshness.MarkSynced(ctx, KeyConversations, start)
}

// FetchMessages pulls one conversation's messages from the server when
// stale (or forced). Local-only conversations are never fetched, forced
// or not.
func (e *Engine) FetchMessages(ctx context.Context, conversationID string, force bool) error {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.IsLocalOnly {
		return nil
	}

	token, err := e.tokens.GetValidToken(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrNotAuthenticated) {
			return nil
		}
		return fmt.Errorf("fetch messages: %w", err)
	}

	key := MessagesKey(conversationID)
	stale, err := e.freshness.ShouldSync(ctx, key, force, e.now())
	if err != nil {
		return err
	}
	if !stale {
		return nil
	}
	if !e.limiter.Allow() {
		return ErrSyncThrottled
	}

	start := e.now()
	remote, err := e.remote.Messages(ctx, token, conv.ID)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	msgs := make([]*model.Message, 0, len(remote))
	for _, rm := range remote {
		msgs = append(msgs, remoteMessage(conv.ID, rm))
	}
	if err := e.store.UpsertMessages(ctx, msgs); err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	e.logger.Debug("messages synced",
		zap.String("conversation", conversationID),
		zap.Int("count", len(remote)))
	return e.freshness.MarkSynced(ctx, key, start)
}

// remoteConversation maps a server row onto the local model.
func remoteConversation(rc api.RemoteConversation) *model.Conversation {
	convType := model.ConversationType(rc.Type)
	if convType == "" {
		convType = model.TypeRegular
	}
	return &model.Conversation{
		ID:          rc.ID,
		ThreadID:    rc.ThreadID,
		Title:       rc.Title,
		CreatedAt:   time.UnixMilli(rc.CreatedAt),
		UpdatedAt:   time.UnixMilli(rc.UpdatedAt),
		Type:        convType,
		IsLocalOnly: false,
	}
}

// remoteMessage maps a server message onto the local model.
func remoteMessage(conversationID string, rm api.RemoteMessage) *model.Message {
	return &model.Message{
		ID:               rm.ID,
		ConversationID:   conversationID,
		Content:          rm.Content,
		IsUserMessage:    rm.IsUserMessage,
		Timestamp:        time.UnixMilli(rm.Timestamp),
		DetectedLanguage: rm.DetectedLanguage,
	}
}
