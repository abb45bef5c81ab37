// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/ilmchat/internal/api"
	"github.com/jeranaias/ilmchat/internal/apperr"
	"github.com/jeranaias/ilmchat/internal/model"
	"github.com/jeranaias/ilmchat/internal/store"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeRemote struct {
	convCalls atomic.Int32
	msgCalls  atomic.Int32
	convs     []api.RemoteConversation
	msgs      []api.RemoteMessage
	err       error
}

func (f *fakeRemote) Conversations(ctx context.Context, token string) ([]api.RemoteConversation, error) {
	f.convCalls.Add(1)
	return f.convs, f.err
}

func (f *fakeRemote) Messages(ctx context.Context, token, conversationID string) ([]api.RemoteMessage, error) {
	f.msgCalls.Add(1)
	return f.msgs, f.err
}

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) GetValidToken(ctx context.Context) (string, error) {
	return f.token, f.err
}

func newTestEngine(t *testing.T, remote *fakeRemote, tokens *fakeTokens) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ilmchat.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	freshness := NewFreshness(st, 5*time.Minute, 5*time.Minute)
	return New(st, remote, tokens, freshness, 0, zap.NewNop()), st
}

// =============================================================================
// TITLE DERIVATION TESTS
// =============================================================================

func TestTitleFromQuestion(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"short question kept verbatim", "What breaks wudu?", "What breaks wudu?"},
		{"whitespace collapsed", "  What \n breaks   wudu?  ", "What breaks wudu?"},
		{"blank falls back", "   \n\t ", "New conversation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFromQuestion(tt.question); got != tt.want {
				t.Errorf("TitleFromQuestion(%q) = %q, want %q", tt.question, got, tt.want)
			}
		})
	}
}

func TestTitleFromQuestion_TruncatesLongQuestions(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "A"
	}
	got := TitleFromQuestion(long)
	if len([]rune(got)) != 53 {
		t.Errorf("truncated title has %d runes, want 53 (50 + ellipsis)", len([]rune(got)))
	}
	if got[:50] != long[:50] {
		t.Errorf("truncated title prefix = %q", got[:50])
	}
	if got[50:] != "..." {
		t.Errorf("truncated title suffix = %q, want ...", got[50:])
	}
}

// =============================================================================
// CONVERSATION SYNC TESTS
// =============================================================================

func TestSyncConversations_MergesRemoteList(t *testing.T) {
	remote := &fakeRemote{convs: []api.RemoteConversation{
		{ID: "r1", ThreadID: "t1", Title: "Remote one", CreatedAt: 1000, UpdatedAt: 2000, Type: "regular"},
		{ID: "r2", ThreadID: "t2", Title: "Remote two", CreatedAt: 3000, UpdatedAt: 4000, Type: "fact_check"},
	}}
	eng, _ := newTestEngine(t, remote, &fakeTokens{token: "tok"})

	if err := eng.SyncConversations(context.Background(), false); err != nil {
		t.Fatalf("SyncConversations failed: %v", err)
	}

	convs, err := eng.Conversations(context.Background())
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	for _, c := range convs {
		if c.IsLocalOnly {
			t.Errorf("remote conversation %s marked local-only", c.ID)
		}
	}
}

func TestSyncConversations_UnauthenticatedIsNoOp(t *testing.T) {
	remote := &fakeRemote{}
	eng, _ := newTestEngine(t, remote, &fakeTokens{err: apperr.ErrNotAuthenticated})

	if err := eng.SyncConversations(context.Background(), false); err != nil {
		t.Fatalf("unauthenticated sync must be a silent no-op, got %v", err)
	}
	if remote.convCalls.Load() != 0 {
		t.Error("unauthenticated sync must not hit the backend")
	}
}

func TestSyncConversations_FreshListSkipsFetch(t *testing.T) {
	remote := &fakeRemote{}
	eng, _ := newTestEngine(t, remote, &fakeTokens{token: "tok"})

	if err := eng.SyncConversations(context.Background(), false); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	if err := eng.SyncConversations(context.Background(), false); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if got := remote.convCalls.Load(); got != 1 {
		t.Errorf("backend fetched %d times within TTL, want 1", got)
	}

	// Force bypasses the TTL.
	if err := eng.SyncConversations(context.Background(), true); err != nil {
		t.Fatalf("forced sync failed: %v", err)
	}
	if got := remote.convCalls.Load(); got != 2 {
		t.Errorf("backend fetched %d times after force, want 2", got)
	}
}

func TestSyncConversations_NeverTouchesLocalOnlyRows(t *testing.T) {
	remote := &fakeRemote{}
	eng, _ := newTestEngine(t, remote, &fakeTokens{token: "tok"})
	ctx := context.Background()

	local, err := eng.CreateConversation(ctx, "Guest question", model.TypeRegular)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// Server reports a conversation with the same id but different content.
	remote.convs = []api.RemoteConversation{
		{ID: local.ID, ThreadID: "hijack", Title: "Overwritten", UpdatedAt: time.Now().UnixMilli()},
	}
	if err := eng.SyncConversations(ctx, true); err != nil {
		t.Fatalf("SyncConversations failed: %v", err)
	}

	got, err := eng.GetConversation(ctx, local.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if !got.IsLocalOnly || got.Title != "Guest question" || got.ThreadID == "hijack" {
		t.Errorf("local-only row was modified by sync: %+v", got)
	}
}

func TestSyncConversations_AdditiveNeverDeletes(t *testing.T) {
	remote := &fakeRemote{convs: []api.RemoteConversation{
		{ID: "r1", Title: "Remote", UpdatedAt: 1000},
	}}
	eng, _ := newTestEngine(t, remote, &fakeTokens{token: "tok"})
	ctx := context.Background()

	if err := eng.SyncConversations(ctx, true); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	// Server later reports an empty list; the local row must survive.
	remote.convs = nil
	if err := eng.SyncConversations(ctx, true); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	convs, err := eng.Conversations(ctx)
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("conversation deleted by empty remote list, got %d rows", len(convs))
	}
}

func TestSyncConversations_UpsertIdempotent(t *testing.T) {
	remote := &fakeRemote{convs: []api.RemoteConversation{
		{ID: "r1", ThreadID: "t1", Title: "Remote", UpdatedAt: 1000},
	}}
	eng, _ := newTestEngine(t, remote, &fakeTokens{token: "tok"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := eng.SyncConversations(ctx, true); err != nil {
			t.Fatalf("sync %d failed: %v", i, err)
		}
	}

	convs, err := eng.Conversations(ctx)
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(convs) != 1 {
		t.Errorf("got %d rows after repeated syncs, want 1", len(convs))
	}
}

// =============================================================================
// MESSAGE FETCH TESTS
// =============================================================================

func seedRemoteConversation(t *testing.T, eng *Engine) *model.Conversation {
	t.Helper()
	remoteConv := &model.Conversation{
		ID:        "r1",
		ThreadID:  "t1",
		Title:     "Remote",
		CreatedAt: time.UnixMilli(1000),
		UpdatedAt: time.UnixMilli(2000),
		Type:      model.TypeRegular,
	}
	if err := eng.store.UpsertRemoteConversation(context.Background(), remoteConv); err != nil {
		t.Fatalf("seeding remote conversation: %v", err)
	}
	return remoteConv
}

func TestFetchMessages_MergesRemoteMessages(t *testing.T) {
	remote := &fakeRemote{msgs: []api.RemoteMessage{
		{ID: "m1", Content: "question", IsUserMessage: true, Timestamp: 1000},
		{ID: "m2", Content: "answer", IsUserMessage: false, Timestamp: 2000},
	}}
	eng, _ := newTestEngine(t, remote, &fakeTokens{token: "tok"})
	ctx := context.Background()
	conv := seedRemoteConversation(t, eng)

	if err := eng.FetchMessages(ctx, conv.ID, false); err != nil {
		t.Fatalf("FetchMessages failed: %v", err)
	}

	msgs, err := eng.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if !msgs[0].IsUserMessage || msgs[0].Content != "question" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
}

func TestFetchMessages_LocalOnlySkippedEvenForced(t *testing.T) {
	remote := &fakeRemote{}
	eng, _ := newTestEngine(t, remote, &fakeTokens{token: "tok"})
	ctx := context.Background()

	conv, err := eng.CreateConversation(ctx, "Guest question", model.TypeRegular)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if err := eng.BindThread(ctx, conv.ID, "t-guest"); err != nil {
		t.Fatalf("BindThread failed: %v", err)
	}

	if err := eng.FetchMessages(ctx, conv.ID, true); err != nil {
		t.Fatalf("FetchMessages failed: %v", err)
	}
	if remote.msgCalls.Load() != 0 {
		t.Error("local-only conversation must never be fetched, even forced")
	}
}

func TestFetchMessages_ThreadlessRemoteStillFetched(t *testing.T) {
	remote := &fakeRemote{msgs: []api.RemoteMessage{
		{ID: "m1", Content: "question", IsUserMessage: true, Timestamp: 1000},
	}}
	eng, _ := newTestEngine(t, remote, &fakeTokens{token: "tok"})
	ctx := context.Background()

	// The messages endpoint is keyed by conversation id, so a server row
	// with no thread bound must still be fetchable.
	conv := &model.Conversation{
		ID:        "r-bare",
		Title:     "No thread yet",
		CreatedAt: time.UnixMilli(1000),
		UpdatedAt: time.UnixMilli(2000),
		Type:      model.TypeRegular,
	}
	if err := eng.store.UpsertRemoteConversation(ctx, conv); err != nil {
		t.Fatalf("seeding remote conversation: %v", err)
	}

	if err := eng.FetchMessages(ctx, conv.ID, false); err != nil {
		t.Fatalf("FetchMessages failed: %v", err)
	}
	if remote.msgCalls.Load() != 1 {
		t.Errorf("backend fetched %d times, want 1", remote.msgCalls.Load())
	}
	msgs, err := eng.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("got %d messages, want 1", len(msgs))
	}
}

func TestFetchMessages_TTLRespected(t *testing.T) {
	remote := &fakeRemote{}
	eng, _ := newTestEngine(t, remote, &fakeTokens{token: "tok"})
	ctx := context.Background()
	conv := seedRemoteConversation(t, eng)

	for i := 0; i < 3; i++ {
		if err := eng.FetchMessages(ctx, conv.ID, false); err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
	}
	if got := remote.msgCalls.Load(); got != 1 {
		t.Errorf("backend fetched %d times within TTL, want 1", got)
	}
}

func TestFetchMessages_UnknownConversation(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeRemote{}, &fakeTokens{token: "tok"})

	err := eng.FetchMessages(context.Background(), "missing", false)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

// =============================================================================
// OBSERVATION TESTS
// =============================================================================

func TestWatchConversations_EmitsOnChange(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeRemote{}, &fakeTokens{token: "tok"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch := eng.WatchConversations(ctx)

	// Initial emission: empty list.
	select {
	case convs := <-watch:
		if len(convs) != 0 {
			t.Fatalf("initial emission has %d conversations, want 0", len(convs))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for initial emission")
	}

	if _, err := eng.CreateConversation(ctx, "new question", model.TypeRegular); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	select {
	case convs := <-watch:
		if len(convs) != 1 {
			t.Fatalf("emission after insert has %d conversations, want 1", len(convs))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change emission")
	}

	cancel()
	for range watch {
	}
}

// =============================================================================
// THROTTLE TESTS
// =============================================================================

func TestSyncConversations_Throttled(t *testing.T) {
	remote := &fakeRemote{}
	st, err := store.Open(filepath.Join(t.TempDir(), "ilmchat.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	freshness := NewFreshness(st, 0, 0) // always stale
	eng := New(st, remote, &fakeTokens{token: "tok"}, freshness, 1, zap.NewNop())

	if err := eng.SyncConversations(context.Background(), true); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	if err := eng.SyncConversations(context.Background(), true); !errors.Is(err, ErrSyncThrottled) {
		t.Fatalf("want ErrSyncThrottled, got %v", err)
	}
}
