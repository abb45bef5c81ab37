// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/jeranaias/ilmchat/internal/apperr"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, zap.NewNop()), server
}

// =============================================================================
// AUTH ENDPOINT TESTS
// =============================================================================

func TestLogin_Success(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %q", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"tok-1","refresh_token":"ref-1","expires_at":1700000000}`))
	}))

	resp, err := client.Login(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Token != "tok-1" {
		t.Errorf("Token = %q, want tok-1", resp.Token)
	}
	if resp.RefreshToken != "ref-1" {
		t.Errorf("RefreshToken = %q, want ref-1", resp.RefreshToken)
	}
	if resp.ExpiresAt != 1700000000 {
		t.Errorf("ExpiresAt = %d, want 1700000000", resp.ExpiresAt)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid credentials"}`))
	}))

	_, err := client.Login(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestRefresh_Unauthorized(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"refresh token expired"}`))
	}))

	_, err := client.Refresh(context.Background(), "stale-refresh")
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for 403, got %v", err)
	}
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestDo_RateLimited(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail":"slow down"}`))
	}))

	_, err := client.Conversations(context.Background(), "tok")
	if !errors.Is(err, apperr.ErrTooManyRequests) {
		t.Fatalf("want ErrTooManyRequests, got %v", err)
	}
}

func TestDo_NetworkError(t *testing.T) {
	// Point at a server that is already closed.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, zap.NewNop()).WithRetries(0)

	_, err := client.Conversations(context.Background(), "tok")
	if err == nil {
		t.Fatal("want error for unreachable server")
	}
	var netErr *apperr.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("want NetworkError, got %T: %v", err, err)
	}
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))

	_, err := client.Conversations(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Conversations failed after retries: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"question must not be empty"}`))
	}))

	_, err := client.Chat(context.Background(), "tok", ChatRequest{})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1 (4xx must not retry)", got)
	}
}

// =============================================================================
// AUTH HEADER TESTS
// =============================================================================

func TestDo_TokenHeader(t *testing.T) {
	var gotAuth string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))

	if _, err := client.Conversations(context.Background(), "tok-abc"); err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("Authorization = %q, want Bearer tok-abc", gotAuth)
	}
}

func TestDo_GuestOmitsAuthHeader(t *testing.T) {
	var gotAuth string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"answer":"...","thread_id":"t1"}`))
	}))

	if _, err := client.Chat(context.Background(), "", ChatRequest{Question: "q"}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty for guest request", gotAuth)
	}
}
