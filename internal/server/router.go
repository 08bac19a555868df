// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// NewRouter replaces the teacher's cmd/hive-server/main.go routes()
// function (a flat list of mux.HandleFunc calls with an inline API-key
// check) with one Dependencies-driven registration pass over the
// net/http.ServeMux method+wildcard patterns spec.md §6 names.
package server

import "net/http"

// NewRouter builds the full /api/v1 HTTP surface.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	auth := NewAuthHandler(deps)
	docs := NewDocumentsHandler(deps)
	query := NewQueryHandler(deps)
	compare := NewCompareHandler(deps)
	memory := NewMemoryHandler(deps)
	admin := NewAdminHandler(deps)

	mux.HandleFunc("POST /api/v1/auth/register", auth.HandleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", auth.HandleRefresh)
	mux.HandleFunc("POST /api/v1/auth/logout", requireAuthenticated(deps.Log, auth.HandleLogout))

	mux.HandleFunc("POST /api/v1/documents/upload", docs.HandleUpload)
	mux.HandleFunc("GET /api/v1/documents", docs.HandleList)
	mux.HandleFunc("GET /api/v1/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		docs.HandleGet(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /api/v1/documents/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		docs.HandleStatus(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /api/v1/documents/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
		docs.HandleSummary(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("DELETE /api/v1/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		docs.HandleDelete(w, r, r.PathValue("id"))
	})

	mux.HandleFunc("POST /api/v1/query", query.HandleQuery)
	mux.HandleFunc("POST /api/v1/query/stream", query.HandleQueryStream)

	mux.HandleFunc("POST /api/v1/compare", requireAuthenticated(deps.Log, compare.HandleCompare))

	mux.HandleFunc("GET /api/v1/memory", memory.HandleList)
	mux.HandleFunc("POST /api/v1/memory", memory.HandleAdd)
	mux.HandleFunc("DELETE /api/v1/memory/{id}", func(w http.ResponseWriter, r *http.Request) {
		memory.HandleDelete(w, r, r.PathValue("id"))
	})

	mux.HandleFunc("POST /api/v1/admin/memory/shared", requireAdmin(deps.Log, admin.HandleAddShared))
	mux.HandleFunc("GET /api/v1/admin/memory/shared", requireAdmin(deps.Log, admin.HandleListShared))
	mux.HandleFunc("DELETE /api/v1/admin/memory/shared/{id}", requireAdmin(deps.Log, func(w http.ResponseWriter, r *http.Request) {
		admin.HandleDeleteShared(w, r, r.PathValue("id"))
	}))
	mux.HandleFunc("GET /api/v1/admin/audit", requireAdmin(deps.Log, admin.HandleListAudit))
	mux.HandleFunc("GET /api/v1/admin/logs/stream", requireAdmin(deps.Log, admin.HandleLogStream))

	api := chain(mux, correlationID, trafficLogger(deps.Log), tenantResolver(deps.Gateway, deps.Log))

	top := http.NewServeMux()
	top.HandleFunc("GET /health", HandleHealth)
	top.Handle("/", api)
	return top
}
