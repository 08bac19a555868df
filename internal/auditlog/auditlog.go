// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package auditlog is the append-only audit trail of SPEC_FULL.md §5:
// every ingest, query, compare, and admin shared-memory write is recorded
// with its tenant key and correlation id. Adapted from the teacher's
// internal/database/audit_log.go (AuditLogStore, keyed by organization_id)
// by replacing organization_id with the tenant-key scoping spec.md's
// identity model already uses everywhere else, and dropping the
// ALTER-TABLE migration-on-open dance since this schema is new and never
// shipped without the column.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Action names the kind of event being recorded.
type Action string

const (
	ActionIngest       Action = "INGEST"
	ActionQuery        Action = "QUERY"
	ActionCompare      Action = "COMPARE"
	ActionSharedWrite  Action = "SHARED_MEMORY_WRITE"
	ActionSharedDelete Action = "SHARED_MEMORY_DELETE"
)

// Record is one audit row.
type Record struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	TenantKey     string    `json:"tenant_key"`
	Action        Action    `json:"action"`
	Detail        string    `json:"detail"`
	CorrelationID string    `json:"correlation_id"`
}

// Store is the sqlite-backed audit trail.
type Store struct {
	db *sql.DB
}

// New opens the audit log, creating its schema if absent.
func New(db *sql.DB) (*Store, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		tenant_key TEXT NOT NULL,
		action TEXT NOT NULL,
		detail TEXT,
		correlation_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant_key ON audit_logs(tenant_key);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("auditlog: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Log appends one audit row. Failures are the caller's to decide whether
// to surface; auditing never blocks the operation it records.
func (s *Store) Log(ctx context.Context, tenantKey string, action Action, detail, correlationID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_logs (timestamp, tenant_key, action, detail, correlation_id) VALUES (?, ?, ?, ?, ?)",
		time.Now(), tenantKey, string(action), detail, correlationID,
	)
	if err != nil {
		return fmt.Errorf("auditlog: insert: %w", err)
	}
	return nil
}

// Recent returns the most recent rows, newest first, optionally scoped to
// a single tenant key (empty string returns the admin, all-tenant view).
func (s *Store) Recent(ctx context.Context, tenantKey string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if tenantKey == "" {
		rows, err = s.db.QueryContext(ctx,
			"SELECT id, timestamp, tenant_key, action, detail, correlation_id FROM audit_logs ORDER BY timestamp DESC LIMIT ?",
			limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT id, timestamp, tenant_key, action, detail, correlation_id FROM audit_logs WHERE tenant_key = ? ORDER BY timestamp DESC LIMIT ?",
			tenantKey, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("auditlog: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.TenantKey, &rec.Action, &rec.Detail, &rec.CorrelationID); err != nil {
			return nil, fmt.Errorf("auditlog: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
