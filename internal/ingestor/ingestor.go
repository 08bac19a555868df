// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package ingestor implements the upload pipeline of spec.md §4.2:
// extract, chunk, embed, dual-write, summarize. Generalized from the
// teacher's server/ingest_handler.go (single Qdrant-upsert loop) into the
// full five-stage pipeline, executed by internal/queue + internal/worker
// exactly as the teacher dispatches jobs, with an in-process task tracker
// standing in for the request/response round trip the teacher's handler
// used to report progress synchronously.
package ingestor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/chunker"
	"github.com/northbound/ragvault/internal/embeddings"
	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/logger"
	"github.com/northbound/ragvault/internal/queue"
	"github.com/northbound/ragvault/internal/vectorstore"
	"github.com/northbound/ragvault/internal/worker"
)

// Extractor is the subset of textextract.Dispatcher the Ingestor needs;
// declared locally so callers can substitute a fake in tests without
// importing the textextract package.
type Extractor interface {
	Extract(filePath string) (string, error)
	IsSupported(filePath string) bool
}

// Summarizer produces the cached brief summary of stage 5. Satisfied by
// internal/generator's BriefSummary method.
type Summarizer interface {
	BriefSummary(ctx context.Context, documentText string) (string, error)
}

// Config carries the tunables spec.md §6 enumerates for ingestion.
type Config struct {
	MaxBytes       int64
	EmbedBatchSize int
	WorkerCount    int
	TaskTTL        time.Duration
	TmpDir         string
}

func (c *Config) setDefaults() {
	if c.MaxBytes <= 0 {
		c.MaxBytes = 50 << 20 // 50MB
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 16
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.TmpDir == "" {
		c.TmpDir = os.TempDir()
	}
}

// Ingestor owns the upload-to-index pipeline.
type Ingestor struct {
	graph      graphstore.Store
	vector     vectorstore.Store
	embedder   embeddings.Embedder
	extractor  Extractor
	chunker    *chunker.Chunker
	summarizer Summarizer
	q          queue.Queue
	tasks      *TaskTracker
	cfg        Config
	log        *logger.Logger
}

type ingestJobPayload struct {
	TenantKey  string `json:"tenant_key"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	TmpPath    string `json:"tmp_path"`
	ByteSize   int64  `json:"byte_size"`
}

const jobTypeIngest = "ingest"

// New constructs an Ingestor and starts its worker pool; cancel ctx to
// stop the workers.
func New(ctx context.Context, graph graphstore.Store, vector vectorstore.Store, embedder embeddings.Embedder,
	extractor Extractor, ck *chunker.Chunker, summarizer Summarizer, q queue.Queue, log *logger.Logger, cfg Config) *Ingestor {
	cfg.setDefaults()
	ing := &Ingestor{
		graph:      graph,
		vector:     vector,
		embedder:   embedder,
		extractor:  extractor,
		chunker:    ck,
		summarizer: summarizer,
		q:          q,
		tasks:      NewTaskTracker(cfg.TaskTTL),
		cfg:        cfg,
		log:        log,
	}
	go func() {
		_ = worker.StartWorkers(ctx, q, ing.handleJob, cfg.WorkerCount)
	}()
	return ing
}

// Tasks exposes the task tracker for progress-polling HTTP handlers.
func (ing *Ingestor) Tasks() *TaskTracker { return ing.tasks }

// Ingest validates the upload and enqueues the background pipeline,
// returning the new document_id immediately per spec.md §4.2.
func (ing *Ingestor) Ingest(ctx context.Context, tenantKey, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fileType := strings.TrimPrefix(ext, ".")
	if fileType != "pdf" && fileType != "docx" {
		return "", apperror.New(apperror.Validation, fmt.Sprintf("unsupported file type: %s", fileType))
	}
	if int64(len(data)) > ing.cfg.MaxBytes {
		return "", apperror.New(apperror.Validation, "file exceeds configured size cap")
	}

	documentID := uuid.NewString()

	tmpPath := filepath.Join(ing.cfg.TmpDir, documentID+ext)
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return "", apperror.Wrap(apperror.Internal, "failed to stage upload", err)
	}
	if !ing.extractor.IsSupported(tmpPath) {
		_ = os.Remove(tmpPath)
		return "", apperror.New(apperror.Validation, fmt.Sprintf("unsupported file type: %s", fileType))
	}

	ing.tasks.Start(documentID)

	payload := ingestJobPayload{
		TenantKey:  tenantKey,
		DocumentID: documentID,
		Filename:   filename,
		FileType:   fileType,
		TmpPath:    tmpPath,
		ByteSize:   int64(len(data)),
	}
	job, err := marshalJob(payload)
	if err != nil {
		return "", apperror.Wrap(apperror.Internal, "failed to enqueue ingest job", err)
	}
	if err := ing.q.Enqueue(ctx, job); err != nil {
		return "", apperror.Wrap(apperror.DependencyFailed, "failed to enqueue ingest job", err)
	}
	return documentID, nil
}

func (ing *Ingestor) handleJob(ctx context.Context, job queue.Job) error {
	if job.Type != jobTypeIngest {
		return nil
	}
	payload, err := unmarshalJob(job)
	if err != nil {
		if ing.log != nil {
			ing.log.Errorf("ingestor: bad job payload: %v", err)
		}
		return err
	}
	defer os.Remove(payload.TmpPath)

	if err := ing.runPipeline(ctx, payload); err != nil {
		ing.tasks.Fail(payload.DocumentID, err.Error())
		if cleanupErr := ing.graph.DeleteDocument(ctx, payload.DocumentID); cleanupErr != nil && ing.log != nil {
			ing.log.Errorf("ingestor: cleanup after failed ingest %s: %v", payload.DocumentID, cleanupErr)
		}
		if ing.log != nil {
			ing.log.Errorf("ingestor: pipeline failed for %s: %v", payload.DocumentID, err)
		}
		return err
	}
	return nil
}

// runPipeline implements the five ordered stages of spec.md §4.2. Each
// stage checks ctx so a cancelled ingest stops between stage boundaries.
func (ing *Ingestor) runPipeline(ctx context.Context, p ingestJobPayload) error {
	existing, err := ing.graph.GetDocument(ctx, p.DocumentID, []string{p.TenantKey})
	if err != nil {
		return fmt.Errorf("check existing document: %w", err)
	}
	if existing == nil {
		if err := ing.graph.CreateDocument(ctx, graphstore.Document{
			ID:         p.DocumentID,
			TenantKey:  p.TenantKey,
			Filename:   p.Filename,
			FileType:   p.FileType,
			ByteSize:   p.ByteSize,
			UploadTime: time.Now(),
		}); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
	}

	// Stage 1: extract.
	ing.tasks.Advance(p.DocumentID, StageExtracting, "extracting text")
	if err := checkCtx(ctx); err != nil {
		return err
	}
	text, err := ing.extractor.Extract(p.TmpPath)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	// Stage 2: chunk.
	ing.tasks.Advance(p.DocumentID, StageChunking, "chunking text")
	if err := checkCtx(ctx); err != nil {
		return err
	}
	chunks := ing.chunker.Chunk(text)

	// Stage 3: embed in batches, refusing on dimension mismatch.
	ing.tasks.Advance(p.DocumentID, StageEmbedding, fmt.Sprintf("embedding %d chunks", len(chunks)))
	if err := checkCtx(ctx); err != nil {
		return err
	}
	vectors, err := ing.embedBatches(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if dim := ing.vector.Dimension(vectorstore.CollectionDocuments); dim != 0 && ing.embedder.Dimension() != dim {
		return fmt.Errorf("%w: embedder=%d collection=%d", vectorstore.ErrDimensionMismatch, ing.embedder.Dimension(), dim)
	}

	// Stage 4: ordered dual-write per chunk (vector first, then graph).
	ing.tasks.Advance(p.DocumentID, StageIndexing, "indexing chunks")
	for i, c := range chunks {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		chunkID := deterministicChunkID(p.DocumentID, c.Position)

		exists, err := ing.graph.ChunkExists(ctx, chunkID)
		if err != nil {
			return fmt.Errorf("check chunk %d: %w", i, err)
		}
		if exists {
			continue
		}

		payload := map[string]string{
			"tenant_key":  p.TenantKey,
			"document_id": p.DocumentID,
			"position":    fmt.Sprintf("%d", c.Position),
			"text":        c.Text,
		}
		if err := ing.vector.Upsert(ctx, vectorstore.CollectionDocuments, chunkID, vectors[i], payload); err != nil {
			return fmt.Errorf("upsert vector for chunk %d: %w", i, err)
		}
		if err := ing.graph.CreateChunk(ctx, graphstore.Chunk{
			ID:         chunkID,
			DocumentID: p.DocumentID,
			TenantKey:  p.TenantKey,
			Position:   c.Position,
			Text:       c.Text,
			CreatedAt:  time.Now(),
		}); err != nil {
			return fmt.Errorf("create chunk node %d: %w", i, err)
		}
	}
	if err := ing.graph.SetDocumentProgress(ctx, p.DocumentID, len(chunks)); err != nil {
		return fmt.Errorf("set document progress: %w", err)
	}

	// Stage 5: cached brief summary.
	ing.tasks.Advance(p.DocumentID, StageSummarizing, "summarizing document")
	if ing.summarizer != nil {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		summary, err := ing.summarizer.BriefSummary(ctx, text)
		if err != nil {
			return fmt.Errorf("summarize: %w", err)
		}
		if err := ing.graph.SetSummaryCache(ctx, p.DocumentID, summary); err != nil {
			return fmt.Errorf("persist summary: %w", err)
		}
	}

	ing.tasks.Advance(p.DocumentID, StageCompleted, "ingest complete")
	return nil
}

func (ing *Ingestor) embedBatches(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	batch := ing.cfg.EmbedBatchSize
	for start := 0; start < len(chunks); start += batch {
		end := start + batch
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Text
		}
		embedded, err := ing.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, embedded...)
	}
	return vectors, nil
}

// deterministicChunkID mirrors the teacher's deterministic-UUID
// idempotency trick (ingest_handler.go), keyed on (document_id,
// position) instead of (file_path, index) since the shared chunk id
// must be stable across graph and vector writes.
func deterministicChunkID(documentID string, position int) string {
	seed := fmt.Sprintf("%s-%d", documentID, position)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String()
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func marshalJob(p ingestJobPayload) (queue.Job, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return queue.Job{}, err
	}
	return queue.Job{Type: jobTypeIngest, Payload: data, CreatedAt: time.Now()}, nil
}

func unmarshalJob(job queue.Job) (ingestJobPayload, error) {
	var p ingestJobPayload
	err := json.Unmarshal(job.Payload, &p)
	return p, err
}
