// ilmchat - offline-first CLI client for the ilmchat Q&A backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/jeranaias/ilmchat/internal/api"
	"github.com/jeranaias/ilmchat/internal/apperr"
	"github.com/jeranaias/ilmchat/internal/chat"
	"github.com/jeranaias/ilmchat/internal/config"
	"github.com/jeranaias/ilmchat/internal/engine"
	"github.com/jeranaias/ilmchat/internal/logging"
	"github.com/jeranaias/ilmchat/internal/model"
	"github.com/jeranaias/ilmchat/internal/session"
	"github.com/jeranaias/ilmchat/internal/store"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const usage = `ilmchat - ask questions, get cited answers

Usage:
  ilmchat ask <question...>     ask a question (streams the answer)
  ilmchat list                  list cached conversations
  ilmchat show <id>             show a conversation's messages
  ilmchat sync                  force a sync with the server
  ilmchat delete <id>           delete a conversation locally
  ilmchat clear                 delete all local conversations
  ilmchat login <email>         sign in
  ilmchat signup <email>        create an account
  ilmchat logout                sign out and forget credentials
  ilmchat forgot <email>        request a password reset
  ilmchat version               print version information
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "version":
		fmt.Printf("ilmchat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	}

	app, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ilmchat: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.run(ctx, cmd, args); err != nil {
		fmt.Fprintln(os.Stderr, apperr.Classify(err).Display())
		os.Exit(1)
	}
}

// =============================================================================
// APP WIRING
// =============================================================================

type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	client   *api.Client
	sessions *session.Manager
	engine   *engine.Engine
	pipeline *chat.Pipeline
}

func newApp() (*app, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	st, err := store.Open(filepath.Join(cfg.DataDir, "ilmchat.db"))
	if err != nil {
		return nil, err
	}

	client := api.NewClient(cfg.API.BaseURL, logger).
		WithTimeout(cfg.API.Timeout()).
		WithRetries(cfg.API.MaxRetries)

	sessions := session.NewManager(st, client, logger)
	freshness := engine.NewFreshness(st, cfg.Sync.ConversationTTL(), cfg.Sync.MessageTTL())
	eng := engine.New(st, client, sessions, freshness, cfg.Sync.RemoteFetchesPerMinute, logger)
	pipeline := chat.NewPipeline(eng, client, sessions, chat.Options{
		LanguagePreference: cfg.Chat.LanguagePreference,
		EnableThinking:     cfg.Chat.EnableThinking,
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		client:   client,
		sessions: sessions,
		engine:   eng,
		pipeline: pipeline,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.logger.Sync()
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "ask":
		return a.ask(ctx, strings.Join(args, " "))
	case "list":
		return a.list(ctx)
	case "show":
		return a.show(ctx, args)
	case "sync":
		return a.sync(ctx)
	case "delete":
		return a.delete(ctx, args)
	case "clear":
		return a.clear(ctx)
	case "login":
		return a.login(ctx, args)
	case "signup":
		return a.signup(ctx, args)
	case "logout":
		return a.sessions.Logout(ctx)
	case "forgot":
		return a.forgot(ctx, args)
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// =============================================================================
// CHAT COMMANDS
// =============================================================================

func (a *app) ask(ctx context.Context, question string) error {
	// Best-effort background sync so the list stays warm; sync failures
	// never block asking.
	if err := a.engine.SyncConversations(ctx, false); err != nil && !errors.Is(err, engine.ErrSyncThrottled) {
		a.logger.Warn("conversation sync failed", zap.Error(err))
	}

	if !a.cfg.Chat.Streaming {
		msg, err := a.pipeline.Ask(ctx, chat.SendRequest{Question: question})
		if err != nil {
			return err
		}
		fmt.Println(msg.Content)
		printSources(msg.Sources)
		return nil
	}

	ex, err := a.pipeline.Send(ctx, chat.SendRequest{Question: question})
	if err != nil {
		return err
	}

	var shown strings.Builder
	for event := range ex.Events {
		switch event.Type {
		case api.EventThinking:
			fmt.Fprintf(os.Stderr, "… %s\n", event.Content)
		case api.EventContent:
			fmt.Print(event.Content)
			shown.WriteString(event.Content)
		case api.EventDone:
			fmt.Println()
		}
		if event.Err != nil {
			return event.Err
		}
	}

	// Ctrl-C mid-answer: keep what was already on screen.
	if ctx.Err() != nil && shown.Len() > 0 {
		if err := a.pipeline.CommitPartial(context.Background(), ex.ConversationID, question, shown.String()); err != nil {
			a.logger.Warn("failed to save partial answer", zap.Error(err))
		}
	}
	return nil
}

func printSources(sources []model.Source) {
	for _, s := range sources {
		fmt.Printf("  - %s\n", s.Citation())
	}
}

// =============================================================================
// CONVERSATION COMMANDS
// =============================================================================

func (a *app) list(ctx context.Context) error {
	if err := a.engine.SyncConversations(ctx, false); err != nil && !errors.Is(err, engine.ErrSyncThrottled) {
		a.logger.Warn("conversation sync failed", zap.Error(err))
	}

	convs, err := a.engine.Conversations(ctx)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Println("no conversations yet")
		return nil
	}
	for _, c := range convs {
		marker := " "
		if c.IsLocalOnly {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  %s\n", marker, c.ID, c.UpdatedAt.Format("2006-01-02 15:04"), c.Title)
	}
	return nil
}

func (a *app) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ilmchat show <id>: %w", apperr.ErrValidation)
	}
	id := args[0]

	if err := a.engine.FetchMessages(ctx, id, false); err != nil && !errors.Is(err, engine.ErrSyncThrottled) {
		a.logger.Warn("message fetch failed", zap.Error(err))
	}

	msgs, err := a.engine.Messages(ctx, id)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		who := "ilm"
		if m.IsUserMessage {
			who = "you"
		}
		fmt.Printf("[%s] %s\n", who, m.Content)
		printSources(m.Sources)
	}
	return nil
}

func (a *app) sync(ctx context.Context) error {
	if err := a.engine.SyncConversations(ctx, true); err != nil {
		return err
	}
	convs, err := a.engine.Conversations(ctx)
	if err != nil {
		return err
	}
	for _, c := range convs {
		if err := a.engine.FetchMessages(ctx, c.ID, false); err != nil {
			if errors.Is(err, engine.ErrSyncThrottled) {
				a.logger.Info("fetch budget exhausted, stopping", zap.String("conversation", c.ID))
				break
			}
			return err
		}
	}
	fmt.Printf("synced %d conversations\n", len(convs))
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ilmchat delete <id>: %w", apperr.ErrValidation)
	}
	return a.engine.DeleteConversation(ctx, args[0])
}

func (a *app) clear(ctx context.Context) error {
	fmt.Print("delete ALL local conversations? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	if strings.TrimSpace(strings.ToLower(answer)) != "y" {
		fmt.Println("aborted")
		return nil
	}
	return a.engine.DeleteAll(ctx)
}

// =============================================================================
// AUTH COMMANDS
// =============================================================================

func (a *app) login(ctx context.Context, args []string) error {
	email, password, err := credentials(args)
	if err != nil {
		return err
	}
	if err := a.sessions.Login(ctx, email, password); err != nil {
		return err
	}
	fmt.Println("signed in")
	// Warm the cache right away.
	if err := a.engine.SyncConversations(ctx, true); err != nil {
		a.logger.Warn("initial sync failed", zap.Error(err))
	}
	return nil
}

func (a *app) signup(ctx context.Context, args []string) error {
	email, password, err := credentials(args)
	if err != nil {
		return err
	}
	if _, err := a.client.Signup(ctx, email, password); err != nil {
		return err
	}
	return a.sessions.Login(ctx, email, password)
}

func (a *app) forgot(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ilmchat forgot <email>: %w", apperr.ErrValidation)
	}
	if err := a.client.ForgotPassword(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("reset email sent if the account exists")
	return nil
}

// credentials resolves the email argument and prompts for the password
// without echoing it.
func credentials(args []string) (string, string, error) {
	if len(args) != 1 {
		return "", "", fmt.Errorf("email argument required: %w", apperr.ErrValidation)
	}
	email := args[0]

	fmt.Print("password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", "", fmt.Errorf("password must not be empty: %w", apperr.ErrValidation)
	}
	return email, password, nil
}
