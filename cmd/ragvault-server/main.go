// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// cmd/ragvault-server is the HTTP-only entrypoint replacing the teacher's
// cmd/hive-server (gRPC + HTTP + HTML-template frontend). It wires every
// collaborator internal/server.Dependencies needs, starts the background
// reaper and orphan sweeper alongside the HTTP listener, and shuts all of
// it down on SIGINT/SIGTERM the same way the teacher's waitForShutdown
// does, minus the gRPC server and worker-pool cancel func it no longer
// owns directly (internal/ingestor.New starts and stops its own workers).
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound/ragvault/internal/auditlog"
	"github.com/northbound/ragvault/internal/checkpoint"
	"github.com/northbound/ragvault/internal/chunker"
	"github.com/northbound/ragvault/internal/comparison"
	"github.com/northbound/ragvault/internal/config"
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
	"github.com/northbound/ragvault/internal/reaper"
	"github.com/northbound/ragvault/internal/retriever"
	"github.com/northbound/ragvault/internal/server"
	"github.com/northbound/ragvault/internal/textextract"
	"github.com/northbound/ragvault/internal/users"
	"github.com/northbound/ragvault/internal/vectorstore"
)

var httpPort = flag.Int("http-port", 8080, "HTTP server port")

// loadConfig binds spf13/viper to the environment, the way the teacher's
// own internal/config package reads REDIS_ADDR/REDIS_DB/REDIS_PASSWORD,
// but generalized to every tunable SPEC_FULL.md's Config Enumeration
// names rather than hand-rolling one os.Getenv call per field.
func loadConfig() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("RAGVAULT")
	v.AutomaticEnv()

	v.SetDefault("db_path", "./ragvault.db")
	v.SetDefault("qdrant_addr", "localhost:6334")
	v.SetDefault("vector_dimension", 1536)
	v.SetDefault("embedder_type", "mock")
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("identity_secret", "dev-secret-change-me")
	v.SetDefault("access_lifetime", 15*time.Minute)
	v.SetDefault("refresh_lifetime", 30*24*time.Hour)
	v.SetDefault("anonymous_ttl", 30*24*time.Hour)
	v.SetDefault("cookie_secure", false)
	v.SetDefault("worker_count", 4)
	v.SetDefault("max_upload_bytes", int64(50<<20))
	v.SetDefault("reaper_schedule", reaper.DefaultSchedule)
	v.SetDefault("reaper_ttl", 30*24*time.Hour)
	v.SetDefault("job_queue_key", "ragvault:ingest")
	return v
}

func main() {
	flag.Parse()

	// logger.Init only ever fails to open the log file; GetDefault falls
	// back to a stdout-only Logger in that case (and is what every
	// collaborator below is wired to), so the fallback is reported with
	// the standard library's log package rather than risking a call
	// through the possibly-nil value Init itself returns.
	if _, err := logger.Init("ragvault-server.log"); err != nil {
		log.Printf("failed to initialize logger: %v, using stdout only", err)
	} else {
		logger.Printf("logger initialized, writing to ragvault-server.log")
	}
	lg := logger.GetDefault()

	if err := godotenv.Load(); err != nil {
		lg.Printf("no .env file found, using environment variables: %v", err)
	}

	cfg := loadConfig()

	db, err := sql.Open("sqlite3", cfg.GetString("db_path"))
	if err != nil {
		lg.Fatalf("failed to open sqlite database: %v", err)
	}
	defer db.Close()

	graph, err := graphstore.New(db)
	if err != nil {
		lg.Fatalf("failed to initialize graph store schema: %v", err)
	}
	checkpoints, err := checkpoint.New(db)
	if err != nil {
		lg.Fatalf("failed to initialize checkpoint schema: %v", err)
	}
	accounts, err := users.New(db)
	if err != nil {
		lg.Fatalf("failed to initialize users schema: %v", err)
	}
	audit, err := auditlog.New(db)
	if err != nil {
		lg.Fatalf("failed to initialize audit log schema: %v", err)
	}

	vector := dialVectorStore(cfg, lg)

	embedder, err := embeddings.NewEmbedder(cfg.GetString("embedder_type"), map[string]string{
		"api_key":   os.Getenv("OPENAI_API_KEY"),
		"model":     cfg.GetString("embedder_model"),
		"base_url":  cfg.GetString("ollama_base_url"),
		"dimension": cfg.GetString("vector_dimension"),
	})
	if err != nil {
		lg.Fatalf("failed to initialize embedder: %v", err)
	}

	llm := dialLLMProvider(cfg, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := config.NewRedisClient(ctx)
	if err != nil {
		lg.Fatalf("failed to connect to redis: %v", err)
	}
	kv, err := kvstore.New(ctx, redisClient)
	if err != nil {
		lg.Fatalf("failed to initialize kv store: %v", err)
	}
	jobQueue, err := queue.NewRedisQueue(redisClient, cfg.GetString("job_queue_key"))
	if err != nil {
		lg.Fatalf("failed to initialize job queue: %v", err)
	}

	entities := retriever.NewLLMEntityExtractor(llm)
	retr := retriever.New(vector, graph, embedder, entities, lg)
	gen := generator.New(llm, generator.DefaultExcerptMaxLen, lg)
	mem := memorystore.New(graph, vector, embedder, llm, entities, lg, memorystore.Config{})
	cmp := comparison.New(retr, graph, llm, checkpoints, lg)
	mig := migrator.New(graph, vector, mem, lg)

	ing := ingestor.New(ctx, graph, vector, embedder, textextract.NewDispatcher(), chunker.New(), gen, jobQueue, lg, ingestor.Config{
		MaxBytes:    cfg.GetInt64("max_upload_bytes"),
		WorkerCount: cfg.GetInt("worker_count"),
	})

	gw := identity.NewGateway(identity.Config{
		Secret:          cfg.GetString("identity_secret"),
		AccessLifetime:  cfg.GetDuration("access_lifetime"),
		RefreshLifetime: cfg.GetDuration("refresh_lifetime"),
		AnonymousTTL:    cfg.GetDuration("anonymous_ttl"),
		CookieSecure:    cfg.GetBool("cookie_secure"),
	}, kv)

	sweeper := memorystore.NewOrphanSweeper(graph, 0, 0, lg)
	sweeper.Start()

	reap := reaper.New(graph, vector, mem, cfg.GetDuration("reaper_ttl"), cfg.GetString("reaper_schedule"), lg)
	if err := reap.Start(); err != nil {
		lg.Fatalf("failed to start reaper: %v", err)
	}

	deps := &server.Dependencies{
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
		Log:         lg,
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *httpPort),
		Handler: server.NewRouter(deps),
	}

	go func() {
		lg.Printf("HTTP server listening on %d", *httpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatalf("HTTP server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, cancel, lg)
}

// dialVectorStore connects to Qdrant, falling back to an in-memory store
// so the server still boots (with search degraded) when Qdrant is
// unreachable — the same fallback posture as the teacher's hive-server
// main, adapted from vectordb.NewMockVectorDB to vectorstore.NewMemStore.
func dialVectorStore(cfg *viper.Viper, lg *logger.Logger) vectorstore.Store {
	dim := cfg.GetInt("vector_dimension")
	conn, err := grpc.NewClient(cfg.GetString("qdrant_addr"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		lg.Warnf("failed to dial qdrant at %s: %v, falling back to in-memory vector store", cfg.GetString("qdrant_addr"), err)
		return vectorstore.NewMemStore(dim)
	}
	store, err := vectorstore.NewQdrantStore(context.Background(), conn, dim)
	if err != nil {
		lg.Warnf("failed to initialize qdrant collections: %v, falling back to in-memory vector store", err)
		return vectorstore.NewMemStore(dim)
	}
	lg.Printf("connected to qdrant at %s", cfg.GetString("qdrant_addr"))
	return store
}

// dialLLMProvider selects the OpenAI-backed provider when an API key is
// present, else a deterministic mock so the server is still exercisable
// in development without external credentials.
func dialLLMProvider(cfg *viper.Viper, lg *logger.Logger) llmprovider.LLM {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		lg.Warnf("OPENAI_API_KEY not set, using mock LLM provider")
		return llmprovider.NewMockProvider("(mock) this server has no LLM provider configured")
	}
	return llmprovider.NewOpenAIProvider(apiKey, os.Getenv("OPENAI_BASE_URL"), cfg.GetString("llm_model"))
}

func waitForShutdown(httpServer *http.Server, cancelWorkers context.CancelFunc, lg *logger.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	lg.Println("shutting down...")
	cancelWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		lg.Errorf("HTTP shutdown error: %v", err)
	}
	if err := lg.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", err)
	}
}
