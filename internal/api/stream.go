// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/jeranaias/ilmchat/internal/apperr"
)

// =============================================================================
// SSE READER
// =============================================================================

// MaxEventSize is the maximum allowed size for a single SSE event.
const MaxEventSize = 64 * 1024

// sseReader parses Server-Sent Events from a stream.
type sseReader struct {
	reader *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{reader: bufio.NewReader(r)}
}

// readEvent reads the next SSE event's data payload. Returns io.EOF when
// the stream ends.
func (s *sseReader) readEvent() ([]byte, error) {
	var dataLines [][]byte
	var size int

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			data := bytes.TrimSpace(line[5:])
			size += len(data)
			if size > MaxEventSize {
				return nil, io.ErrShortBuffer
			}
			dataLines = append(dataLines, data)
		}
		// Ignore other fields (event:, id:, retry:, comments)
	}
}

// =============================================================================
// STREAMING ENDPOINTS
// =============================================================================

// ChatStream opens the SSE chat stream and returns a channel of events.
//
// The channel closes after the terminal event. A transport failure is
// delivered as a single event with Err set, then the channel closes; the
// stream never retries. Cancelling ctx closes the underlying connection
// and stops delivery.
func (c *Client) ChatStream(ctx context.Context, token string, req ChatRequest) (<-chan StreamEvent, error) {
	return c.openStream(ctx, "/api/chat/stream", token, req)
}

// FactCheckStream opens the fact-check confirmation stream.
func (c *Client) FactCheckStream(ctx context.Context, token string, req FactCheckRequest) (<-chan StreamEvent, error) {
	return c.openStream(ctx, "/api/confirm-fact-check", token, req)
}

// openStream issues the streaming POST and fans events into a channel.
func (c *Client) openStream(ctx context.Context, path, token string, body any) (<-chan StreamEvent, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	// No client timeout for streaming; lifetime is context-controlled.
	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, apperr.Network(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return nil, statusError(resp.StatusCode, data)
	}

	events := make(chan StreamEvent, 64)
	go c.consumeStream(ctx, resp.Body, events)
	return events, nil
}

// consumeStream reads the SSE body until a terminal event, EOF, error, or
// cancellation. It owns closing both the body and the channel.
func (c *Client) consumeStream(ctx context.Context, body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	reader := newSSEReader(body)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, err := reader.readEvent()
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return
			}
			c.emit(ctx, events, StreamEvent{Err: apperr.Network(err)})
			return
		}

		var event StreamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			// Skip malformed events rather than failing the stream.
			c.logger.Debug("skipping malformed stream event", zap.Error(err))
			continue
		}

		if !c.emit(ctx, events, event) {
			return
		}
		if event.Type == EventDone {
			return
		}
	}
}

// emit delivers an event unless the context has been cancelled. Reports
// whether delivery happened.
func (c *Client) emit(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
