// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/jeranaias/ilmchat/internal/api"
	"github.com/jeranaias/ilmchat/internal/apperr"
	"github.com/jeranaias/ilmchat/internal/engine"
	"github.com/jeranaias/ilmchat/internal/model"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// StreamAPI is the slice of the backend client the pipeline needs.
type StreamAPI interface {
	ChatStream(ctx context.Context, token string, req api.ChatRequest) (<-chan api.StreamEvent, error)
	FactCheckStream(ctx context.Context, token string, req api.FactCheckRequest) (<-chan api.StreamEvent, error)
	Chat(ctx context.Context, token string, req api.ChatRequest) (*api.ChatResponse, error)
	OCR(ctx context.Context, token string, req api.OCRRequest) (*api.OCRResponse, error)
}

// TokenSource supplies a valid token, refreshing if necessary.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

// Options carries per-install chat preferences.
type Options struct {
	// LanguagePreference overrides locale detection when set ("en", "ar").
	LanguagePreference string

	// EnableThinking asks the backend to stream reasoning updates.
	EnableThinking bool

	// PromptConfig selects a server-side prompt profile.
	PromptConfig string
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline drives question/answer exchanges end to end: conversation
// resolution, streaming, and persistence of the finished exchange.
type Pipeline struct {
	engine *engine.Engine
	client StreamAPI
	tokens TokenSource
	opts   Options
	logger *zap.Logger
}

// NewPipeline wires a chat pipeline over the sync engine and API client.
func NewPipeline(eng *engine.Engine, client StreamAPI, tokens TokenSource, opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		engine: eng,
		client: client,
		tokens: tokens,
		opts:   opts,
		logger: logger,
	}
}

// SendRequest describes one outgoing question.
type SendRequest struct {
	// ConversationID targets an existing conversation; empty creates one.
	ConversationID string

	Question string

	// SessionID threads multi-turn server state through the stream.
	SessionID string

	// CustomSystemPrompt overrides the server's default system prompt
	// for this exchange only.
	CustomSystemPrompt string
}

// Exchange is a live streaming exchange. Events closes when the stream
// finishes, fails, or is cancelled.
type Exchange struct {
	ConversationID string
	Events         <-chan api.StreamEvent
}

// token returns the auth token for an outgoing request, with guest access
// ("" token) when no account is configured.
func (p *Pipeline) token(ctx context.Context) (string, error) {
	token, err := p.tokens.GetValidToken(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrNotAuthenticated) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// resolveConversation loads the target conversation or creates a fresh
// one titled after the question.
func (p *Pipeline) resolveConversation(ctx context.Context, req SendRequest, convType model.ConversationType) (*model.Conversation, error) {
	if req.ConversationID != "" {
		return p.engine.GetConversation(ctx, req.ConversationID)
	}
	return p.engine.CreateConversation(ctx, req.Question, convType)
}

// =============================================================================
// STREAMING SEND
// =============================================================================

// Send asks a question over the SSE stream. Events are relayed as they
// arrive; when the terminal event lands, the exchange (user question plus
// assistant answer with parsed citations) is persisted and the server
// thread is bound to the conversation. A cancelled or failed stream
// persists nothing; use CommitPartial to keep what was already shown.
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (*Exchange, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question must not be empty: %w", apperr.ErrValidation)
	}

	token, err := p.token(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := p.resolveConversation(ctx, req, model.TypeRegular)
	if err != nil {
		return nil, err
	}

	stream, err := p.client.ChatStream(ctx, token, api.ChatRequest{
		Question:           question,
		ThreadID:           conv.ThreadID,
		SessionID:          req.SessionID,
		PromptConfig:       p.opts.PromptConfig,
		LanguagePreference: p.language(),
		CustomSystemPrompt: req.CustomSystemPrompt,
		EnableThinking:     p.opts.EnableThinking,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan api.StreamEvent, 64)
	go p.relay(ctx, stream, out, conv, question, false)
	return &Exchange{ConversationID: conv.ID, Events: out}, nil
}

// relay forwards stream events and persists the exchange on completion.
func (p *Pipeline) relay(ctx context.Context, in <-chan api.StreamEvent, out chan<- api.StreamEvent, conv *model.Conversation, question string, factCheck bool) {
	defer close(out)

	var answer strings.Builder
	for event := range in {
		if event.Type == api.EventContent {
			answer.WriteString(event.Content)
		}

		if event.Type == api.EventDone {
			full := event.FullAnswer
			if full == "" {
				full = answer.String()
			}
			if err := p.commit(ctx, conv, question, full, event.ThreadID, factCheck); err != nil {
				p.logger.Error("failed to persist exchange",
					zap.String("conversation", conv.ID),
					zap.Error(err))
				event.Err = err
			}
		}

		select {
		case out <- event:
		case <-ctx.Done():
			return
		}
		if event.Type == api.EventDone {
			return
		}
	}
}

// commit persists a completed exchange and binds the server thread.
func (p *Pipeline) commit(ctx context.Context, conv *model.Conversation, question, answer, threadID string, factCheck bool) error {
	if threadID != "" && conv.ThreadID == "" {
		if err := p.engine.BindThread(ctx, conv.ID, threadID); err != nil {
			return err
		}
		conv.ThreadID = threadID
	}

	userMsg := model.NewUserMessage(conv.ID, question)
	userMsg.IsFactCheckMessage = factCheck
	if err := p.engine.SaveMessage(ctx, userMsg); err != nil {
		return err
	}

	display, sources := ParseAnswer(answer)
	assistantMsg := model.NewAssistantMessage(conv.ID, display, sources)
	assistantMsg.IsFactCheckMessage = factCheck
	return p.engine.SaveMessage(ctx, assistantMsg)
}

// CommitPartial saves an interrupted exchange: the question and whatever
// answer text had streamed before cancellation. No thread is bound since
// the server never confirmed the exchange.
func (p *Pipeline) CommitPartial(ctx context.Context, conversationID, question, partialAnswer string) error {
	question = strings.TrimSpace(question)
	partialAnswer = strings.TrimSpace(partialAnswer)
	if question == "" || partialAnswer == "" {
		return nil
	}

	conv, err := p.engine.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := p.engine.SaveMessage(ctx, model.NewUserMessage(conv.ID, question)); err != nil {
		return err
	}
	display, sources := ParseAnswer(partialAnswer)
	return p.engine.SaveMessage(ctx, model.NewAssistantMessage(conv.ID, display, sources))
}

// =============================================================================
// NON-STREAMING SEND
// =============================================================================

// Ask is the blocking fallback for environments where streaming is
// disabled. The exchange is persisted the same way as a streamed one.
func (p *Pipeline) Ask(ctx context.Context, req SendRequest) (*model.Message, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question must not be empty: %w", apperr.ErrValidation)
	}

	token, err := p.token(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := p.resolveConversation(ctx, req, model.TypeRegular)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat(ctx, token, api.ChatRequest{
		Question:           question,
		ThreadID:           conv.ThreadID,
		SessionID:          req.SessionID,
		PromptConfig:       p.opts.PromptConfig,
		LanguagePreference: p.language(),
		CustomSystemPrompt: req.CustomSystemPrompt,
	})
	if err != nil {
		return nil, err
	}

	if err := p.commit(ctx, conv, question, resp.Answer, resp.ThreadID, false); err != nil {
		return nil, err
	}

	msgs, err := p.engine.Messages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return msgs[len(msgs)-1], nil
}

// =============================================================================
// FACT CHECK
// =============================================================================

// FactCheckRequest starts a fact-check exchange from an image.
type FactCheckRequest struct {
	ImageBase64 string

	// ReviewedText skips OCR when the caller already has the text.
	ReviewedText string
}

// SendFactCheck runs OCR on the image (unless text is supplied), opens a
// fact-check conversation, and streams the backend's verdict. Persistence
// follows the same commit-on-done rule as Send.
func (p *Pipeline) SendFactCheck(ctx context.Context, req FactCheckRequest) (*Exchange, error) {
	token, err := p.token(ctx)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(req.ReviewedText)
	var imageURL string
	if text == "" {
		if req.ImageBase64 == "" {
			return nil, fmt.Errorf("fact check needs an image or text: %w", apperr.ErrValidation)
		}
		ocr, err := p.client.OCR(ctx, token, api.OCRRequest{
			ImageBase64:  req.ImageBase64,
			LanguageHint: p.language(),
		})
		if err != nil {
			return nil, err
		}
		text = strings.TrimSpace(ocr.ExtractedText)
		imageURL = ocr.ImageURL
		if text == "" {
			return nil, fmt.Errorf("no text recognized in image: %w", apperr.ErrValidation)
		}
	}

	conv, err := p.engine.CreateConversation(ctx, text, model.TypeFactCheck)
	if err != nil {
		return nil, err
	}

	stream, err := p.client.FactCheckStream(ctx, token, api.FactCheckRequest{
		ReviewedText:       text,
		ImageURL:           imageURL,
		ImageBase64:        req.ImageBase64,
		LanguagePreference: p.language(),
		EnableThinking:     p.opts.EnableThinking,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan api.StreamEvent, 64)
	go p.relay(ctx, stream, out, conv, text, true)
	return &Exchange{ConversationID: conv.ID, Events: out}, nil
}

// =============================================================================
// LANGUAGE RESOLUTION
// =============================================================================

// language resolves the preference sent to the backend: the configured
// value when set, otherwise the base language of the process locale.
func (p *Pipeline) language() string {
	if p.opts.LanguagePreference != "" {
		return p.opts.LanguagePreference
	}
	return localeLanguage()
}

// localeLanguage reads LC_ALL / LANG and reduces it to a base language
// code. Unparseable or missing locales default to English.
func localeLanguage() string {
	locale := os.Getenv("LC_ALL")
	if locale == "" {
		locale = os.Getenv("LANG")
	}
	// "ar_EG.UTF-8" -> "ar_EG"
	if idx := strings.IndexByte(locale, '.'); idx >= 0 {
		locale = locale[:idx]
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	return base.String()
}
