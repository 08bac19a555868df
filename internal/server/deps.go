// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Dependencies replaces the teacher's package-level globals
// (internal/server/server.go held a *database.DB, a *qdrant.Client and
// an *ai.Client directly on the Server struct) with one explicit bag
// threaded into every handler constructor, so each handler only ever
// reaches its collaborators through deps rather than a shared global.
package server

import (
	"context"

	"github.com/northbound/ragvault/internal/auditlog"
	"github.com/northbound/ragvault/internal/checkpoint"
	"github.com/northbound/ragvault/internal/comparison"
	"github.com/northbound/ragvault/internal/generator"
	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/ingestor"
	"github.com/northbound/ragvault/internal/logger"
	"github.com/northbound/ragvault/internal/memorystore"
	"github.com/northbound/ragvault/internal/migrator"
	"github.com/northbound/ragvault/internal/retriever"
	"github.com/northbound/ragvault/internal/users"
	"github.com/northbound/ragvault/internal/vectorstore"
)

// Dependencies is the full set of collaborators the HTTP layer wires
// into its handlers. Every field is populated once at startup in
// cmd/ragvault-server/main.go and never mutated afterward.
type Dependencies struct {
	Gateway     *identity.Gateway
	Users       *users.Store
	Migrator    *migrator.Migrator
	Graph       graphstore.Store
	Vector      vectorstore.Store
	Ingestor    *ingestor.Ingestor
	Retriever   *retriever.Retriever
	Generator   *generator.Generator
	Memory      *memorystore.Store
	Comparison  *comparison.Workflow
	Checkpoints checkpoint.Store
	Audit       *auditlog.Store
	Log         *logger.Logger
}

// audit records an audit row without letting a logging failure affect the
// request it is recording; Audit is optional so tests may omit it.
func (d *Dependencies) audit(ctx context.Context, tenantKey string, action auditlog.Action, detail, correlationID string) {
	if d.Audit == nil {
		return
	}
	if err := d.Audit.Log(ctx, tenantKey, action, detail, correlationID); err != nil && d.Log != nil {
		d.Log.Warnf("auditlog: failed to record %s for %s: %v", action, tenantKey, err)
	}
}
