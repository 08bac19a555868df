// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Adapted from the teacher's health_handler.go: same bare liveness
// response, stripped of its API-key last-seen tracking since spec.md's
// credential model has no per-key heartbeat concept.
package server

import "net/http"

// HandleHealth implements GET /health, outside the /api/v1 prefix and
// the tenant-resolving middleware chain, so it never depends on
// identity, storage, or any other collaborator being reachable.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
}
