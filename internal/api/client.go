// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the REST/SSE client for the ilmchat backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/jeranaias/ilmchat/internal/apperr"
)

// Configuration constants for the backend API.
const (
	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry budget for transient failures.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// MaxResponseSize caps response bodies to prevent memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the ilmchat backend. Authenticated calls take the token
// as an argument; an empty token issues the request unauthenticated
// (guest sessions).
type Client struct {
	rc      *resty.Client
	baseURL string
	logger  *zap.Logger
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "ilmchat/1.0").
		SetRetryCount(DefaultMaxRetries).
		SetRetryWaitTime(retryBaseDelay).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry transport failures and 5xx only. 4xx responses are
			// terminal for the taxonomy to classify.
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Client{rc: rc, baseURL: baseURL, logger: logger}
}

// WithTimeout overrides the non-streaming request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.rc.SetTimeout(timeout)
	return c
}

// WithRetries overrides the retry budget for non-streaming requests.
func (c *Client) WithRetries(n int) *Client {
	c.rc.SetRetryCount(n)
	return c
}

// httpClient exposes the underlying client for the streaming path, which
// must not inherit the request timeout.
func (c *Client) httpClient() *http.Client {
	base := c.rc.GetClient()
	return &http.Client{Transport: base.Transport}
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// do issues a JSON request and decodes the response into out (optional).
// Failures are mapped onto the shared error taxonomy.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	req := c.rc.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if token != "" {
		req.SetAuthToken(token)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return apperr.Network(err)
	}

	c.logger.Debug("request complete",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)))

	if resp.IsError() {
		return statusError(resp.StatusCode(), resp.Body())
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// statusError maps a non-2xx response onto the taxonomy, preserving the
// server's message when the error envelope parses.
func statusError(code int, body []byte) error {
	var envelope apiErrorResponse
	message := ""
	if err := json.Unmarshal(body, &envelope); err == nil {
		message = envelope.Message
		if message == "" {
			message = envelope.Error
		}
		if message == "" {
			message = envelope.Detail
		}
	}
	return apperr.FromStatus(code, message)
}

// =============================================================================
// AUTH ENDPOINTS
// =============================================================================

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "",
		LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup registers a new account and returns its first token pair.
func (c *Client) Signup(ctx context.Context, email, password string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/signup", "",
		LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/refresh", "",
		RefreshRequest{RefreshToken: refreshToken}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgotPassword triggers a password-reset email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/forgot-password", "",
		ForgotPasswordRequest{Email: email}, nil)
}

// =============================================================================
// CONVERSATION ENDPOINTS
// =============================================================================

// Conversations fetches the server-side conversation list.
func (c *Client) Conversations(ctx context.Context, token string) ([]RemoteConversation, error) {
	var out []RemoteConversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Messages fetches the message thread for a server-side conversation.
func (c *Client) Messages(ctx context.Context, token, conversationID string) ([]RemoteMessage, error) {
	var out []RemoteMessage
	path := "/api/conversations/" + conversationID + "/messages"
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// CHAT / OCR ENDPOINTS
// =============================================================================

// Chat asks a question over the blocking endpoint.
func (c *Client) Chat(ctx context.Context, token string, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OCR submits an image for text recognition.
func (c *Client) OCR(ctx context.Context, token string, req OCRRequest) (*OCRResponse, error) {
	var out OCRResponse
	if err := c.do(ctx, http.MethodPost, "/api/ocr", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
