// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STORE
// =============================================================================

// Store is the local sqlite cache. Reads are always served locally;
// mutations notify observers registered via Observe.
type Store struct {
	db *sql.DB

	mu        sync.Mutex
	observers map[int]chan struct{}
	nextObs   int
}

// Open opens (creating if needed) the database at path and initializes
// the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// A single connection also serializes message writes per conversation.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{
		db:        db,
		observers: make(map[int]chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the tables and seeds metadata.
func (s *Store) initSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return err
	}
	_, err := s.db.Exec(InitMetadata)
	return err
}

// Close closes the store and releases resources.
func (s *Store) Close() error {
	s.mu.Lock()
	for id, ch := range s.observers {
		close(ch)
		delete(s.observers, id)
	}
	s.mu.Unlock()

	return s.db.Close()
}

// =============================================================================
// CHANGE OBSERVATION
// =============================================================================

// Observe registers a change observer. The returned channel receives a
// signal after every mutation; delivery is coalesced, so one signal may
// cover several writes. Call cancel to unregister.
func (s *Store) Observe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObs
	s.nextObs++

	ch := make(chan struct{}, 1)
	s.observers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.observers[id]; ok {
			delete(s.observers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// notify signals all observers without blocking. An observer that has not
// drained its previous signal is skipped; it will see the pending one.
func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.observers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
