// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northbound/ragvault/internal/auditlog"
	"github.com/northbound/ragvault/internal/checkpoint"
	"github.com/northbound/ragvault/internal/chunker"
	"github.com/northbound/ragvault/internal/comparison"
	"github.com/northbound/ragvault/internal/embeddings"
	"github.com/northbound/ragvault/internal/generator"
	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/ingestor"
	"github.com/northbound/ragvault/internal/kvstore"
	"github.com/northbound/ragvault/internal/llmprovider"
	"github.com/northbound/ragvault/internal/logger"
	"github.com/northbound/ragvault/internal/memorystore"
	"github.com/northbound/ragvault/internal/migrator"
	"github.com/northbound/ragvault/internal/queue"
	"github.com/northbound/ragvault/internal/retriever"
	"github.com/northbound/ragvault/internal/users"
	"github.com/northbound/ragvault/internal/vectorstore"
)

// memQueue is an in-process queue.Queue so tests never need a real broker.
type memQueue struct {
	mu    sync.Mutex
	items []queue.Job
	ready chan struct{}
}

func newMemQueue() *memQueue {
	return &memQueue{ready: make(chan struct{}, 64)}
}

func (q *memQueue) Enqueue(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()
	q.ready <- struct{}{}
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context) (queue.Job, error) {
	select {
	case <-ctx.Done():
		return queue.Job{}, ctx.Err()
	case <-q.ready:
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	job := q.items[0]
	q.items = q.items[1:]
	return job, nil
}

type fakeExtractor struct{ text string }

func (f fakeExtractor) Extract(string) (string, error) { return f.text, nil }
func (f fakeExtractor) IsSupported(string) bool         { return true }

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.NewLogger(os.DevNull)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// newTestDependencies wires every collaborator over in-memory/mock stores
// so the full router can be exercised without a database, Redis, or any
// real LLM call.
func newTestDependencies(t *testing.T) *Dependencies {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := newTestLogger(t)

	graphDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { graphDB.Close() })
	graph, err := graphstore.New(graphDB)
	require.NoError(t, err)

	ckptDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { ckptDB.Close() })
	checkpoints, err := checkpoint.New(ckptDB)
	require.NoError(t, err)

	usersDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { usersDB.Close() })
	accounts, err := users.New(usersDB)
	require.NoError(t, err)

	auditDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { auditDB.Close() })
	audit, err := auditlog.New(auditDB)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	kv, err := kvstore.New(ctx, client)
	require.NoError(t, err)

	gw := identity.NewGateway(identity.Config{
		Secret:          "test-secret",
		AccessLifetime:  time.Hour,
		RefreshLifetime: 24 * time.Hour,
		AnonymousTTL:    30 * 24 * time.Hour,
	}, kv)

	vector := vectorstore.NewMemStore(4)
	embedder := embeddings.NewMockEmbedder(4)
	llm := llmprovider.NewMockProvider("a test answer grounded in the retrieved context")

	retr := retriever.New(vector, graph, embedder, nil, log)
	gen := generator.New(llm, 0, log)
	mem := memorystore.New(graph, vector, embedder, llm, nil, log, memorystore.Config{})
	cmp := comparison.New(retr, graph, llm, checkpoints, log)
	mig := migrator.New(graph, vector, mem, log)

	ing := ingestor.New(ctx, graph, vector, embedder, fakeExtractor{text: "hello world, a test document"},
		chunker.New(), gen, newMemQueue(), log, ingestor.Config{WorkerCount: 1})

	return &Dependencies{
		Gateway:     gw,
		Users:       accounts,
		Migrator:    mig,
		Graph:       graph,
		Vector:      vector,
		Ingestor:    ing,
		Retriever:   retr,
		Generator:   gen,
		Memory:      mem,
		Comparison:  cmp,
		Checkpoints: checkpoints,
		Audit:       audit,
		Log:         log,
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	deps := newTestDependencies(t)
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return srv
}

type registerResult struct {
	Access string `json:"access"`
}

func registerUser(t *testing.T, client *http.Client, baseURL, email string) string {
	t.Helper()
	body, err := json.Marshal(map[string]string{"email": email, "password": "password123"})
	require.NoError(t, err)
	resp, err := client.Post(baseURL+"/api/v1/auth/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out registerResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Access
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	access := registerUser(t, client, srv.URL, "admin@example.com")

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/admin/memory/shared",
		strings.NewReader(`{"text": "the fiscal year ends in June"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestSecondUserIsNotAdmin(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	for _, email := range []string{"first@example.com", "second@example.com"} {
		body, err := json.Marshal(map[string]string{"email": email, "password": "password123"})
		require.NoError(t, err)
		resp, err := client.Post(srv.URL+"/api/v1/auth/register", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
	}

	body, err := json.Marshal(map[string]string{"email": "second@example.com", "password": "password123"})
	require.NoError(t, err)
	loginResp, err := client.Post(srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer loginResp.Body.Close()
	var tok registerResult
	require.NoError(t, json.NewDecoder(loginResp.Body).Decode(&tok))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/admin/memory/shared",
		strings.NewReader(`{"text": "irrelevant"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok.Access)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAnonymousSessionIsolatesDocumentVisibility(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	upload := func(jar *http.Cookie) (string, *http.Cookie) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "doc.pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte("irrelevant bytes, the fake extractor ignores them"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/documents/upload", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if jar != nil {
			req.AddCookie(jar)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		var uploaded uploadResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))

		var cookie *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == "session_id" {
				cookie = c
			}
		}
		if cookie == nil {
			cookie = jar
		}
		return uploaded.DocumentID, cookie
	}

	waitForIndexed := func(documentID string, cookie *http.Cookie) {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/documents/"+documentID+"/status", nil)
			require.NoError(t, err)
			req.AddCookie(cookie)
			resp, err := client.Do(req)
			require.NoError(t, err)
			var rec ingestor.TaskRecord
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
			resp.Body.Close()
			if rec.Stage == ingestor.StageCompleted || rec.Stage == ingestor.StageFailed {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("document %s never reached a terminal stage", documentID)
	}

	docA, cookieA := upload(nil)
	require.NotNil(t, cookieA)
	waitForIndexed(docA, cookieA)

	docB, cookieB := upload(nil)
	require.NotNil(t, cookieB)
	waitForIndexed(docB, cookieB)
	require.NotEqual(t, cookieA.Value, cookieB.Value)

	listReq, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/documents", nil)
	require.NoError(t, err)
	listReq.AddCookie(cookieA)
	listResp, err := client.Do(listReq)
	require.NoError(t, err)
	defer listResp.Body.Close()

	var out struct {
		Documents []documentView `json:"documents"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&out))
	require.Len(t, out.Documents, 1)
}

func TestQueryStreamEmitsOrderedSSEEvents(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/query/stream",
		strings.NewReader(`{"query": "what does the document say?"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var eventNames []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventNames = append(eventNames, strings.TrimPrefix(line, "event: "))
		}
		if len(eventNames) > 0 && eventNames[len(eventNames)-1] == "done" {
			break
		}
	}

	require.GreaterOrEqual(t, len(eventNames), 4)
	require.Equal(t, "status", eventNames[0])
	require.Equal(t, "citations", eventNames[1])
	require.Equal(t, "status", eventNames[2])
	require.Equal(t, eventNames[len(eventNames)-1], "done")
	require.Equal(t, eventNames[len(eventNames)-2], "confidence")
}

func TestCompareRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/v1/compare", "application/json",
		strings.NewReader(`{"document_ids": ["a","b"], "query": "diff?", "session_id": "s1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAuditLogRecordsQueriesAndRejectsNonAdmin(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	admin := registerUser(t, client, srv.URL, "admin-audit@example.com")

	resp, err := client.Post(srv.URL+"/api/v1/query", "application/json",
		strings.NewReader(`{"query": "what does the document say?"}`))
	require.NoError(t, err)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/admin/audit", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+admin)
	adminResp, err := client.Do(req)
	require.NoError(t, err)
	defer adminResp.Body.Close()
	require.Equal(t, http.StatusOK, adminResp.StatusCode)

	var out struct {
		Entries []auditlog.Record `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(adminResp.Body).Decode(&out))
	require.NotEmpty(t, out.Entries)

	nonAdminReq, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/admin/audit", nil)
	require.NoError(t, err)
	nonAdminResp, err := client.Do(nonAdminReq)
	require.NoError(t, err)
	defer nonAdminResp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, nonAdminResp.StatusCode)
}

func TestAdminLogStreamRejectsNonAdmin(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/admin/logs/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
