// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package checkpoint persists ComparisonWorkflow state at node
// boundaries so a killed worker can resume from the last completed node.
// It follows the teacher's key-value sqlite store shape
// (system_metadata.go) rather than a full workflow-engine schema: the
// comparison workflow is a fixed 4-node in-process state machine, not a
// durable-execution runtime, so a single JSON blob per thread id is
// sufficient.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is a single stored checkpoint.
type Record struct {
	ThreadID  string
	State     []byte // JSON-encoded workflow state
	LastNode  string
	UpdatedAt time.Time
}

// Store persists and loads checkpoint records keyed by thread id
// ("{tenant_key}:doc_compare:{session_id}").
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, threadID string) (*Record, error)
	Delete(ctx context.Context, threadID string) error
}

// SQLiteStore implements Store over database/sql with the sqlite3 driver.
type SQLiteStore struct {
	db *sql.DB
}

// New constructs a SQLiteStore and runs schema initialization.
func New(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("checkpoint: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		last_node TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts the checkpoint for a thread id. Called after every node in
// the comparison workflow completes, per spec §4.6.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, state, last_node, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET state = excluded.state, last_node = excluded.last_node, updated_at = excluded.updated_at`,
		rec.ThreadID, string(rec.State), rec.LastNode, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", rec.ThreadID, err)
	}
	return nil
}

// Load returns the last checkpoint for a thread id, or nil if none exists
// (a fresh run).
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*Record, error) {
	var rec Record
	var state string
	err := s.db.QueryRowContext(ctx,
		"SELECT thread_id, state, last_node, updated_at FROM checkpoints WHERE thread_id = ?", threadID,
	).Scan(&rec.ThreadID, &state, &rec.LastNode, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load %s: %w", threadID, err)
	}
	rec.State = []byte(state)
	return &rec, nil
}

// Delete removes a checkpoint, used once a comparison workflow completes
// successfully and its result has been returned to the caller.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE thread_id = ?", threadID)
	return err
}
