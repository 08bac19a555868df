// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package generator implements the answer-generation step of spec.md §4.4:
// deterministic prompt assembly over retrieved chunks and memory entries,
// a non-streaming Answer call, and a streaming call that emits the
// strictly-ordered citations/status/token/confidence/done event sequence
// over a buffered channel. Generalized from the teacher's
// server/chat_handler.go (embed-search-concatenate-answer shape), with the
// context-block format expanded into the spec's `[Source: ...]`/
// `(matched entities: ...)`/`(hop N)` block grammar and the single string
// answer turned into a streamed event pipeline.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/llmprovider"
	"github.com/northbound/ragvault/internal/logger"
	"github.com/northbound/ragvault/internal/memorystore"
	"github.com/northbound/ragvault/internal/retriever"
)

const systemPrompt = `Answer strictly from the provided context. If the context is insufficient to answer the question, reply exactly with: "I don't have enough information to answer that."`

const (
	DefaultExcerptMaxLen = 280
	eventBufferSize      = 16
)

// Level is the three-tier confidence band of spec.md §4.4.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

const (
	highThreshold   = 0.75
	mediumThreshold = 0.5
)

// Confidence is the score plus its banded level.
type Confidence struct {
	Score float64
	Level Level
}

func levelFor(score float64) Level {
	switch {
	case score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Citation is built only from retrieved chunks, per spec.md §4.4 — the
// generator never invents a citation.
type Citation struct {
	DocumentID string
	ChunkID    string
	Filename   string
	Excerpt    string
}

// Answer is the non-streaming result of Generator.Answer.
type Answer struct {
	Text       string
	Citations  []Citation
	Confidence Confidence
}

// EventType names one of the six ordered SSE event kinds.
type EventType string

const (
	EventStatus     EventType = "status"
	EventCitations  EventType = "citations"
	EventToken      EventType = "token"
	EventConfidence EventType = "confidence"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// Event is one item of the streaming sequence
// citations→status→token*→confidence→done, or error in place of the tail.
type Event struct {
	Type       EventType
	Stage      string // set on EventStatus: "retrieving" or "generating"
	Citations  []Citation
	Token      string
	Confidence Confidence
	Err        string
}

// rateSupporter is satisfied by providers (OpenAIProvider) that can grade
// how well a context supports an answer; used as the secondary confidence
// path when the provider exposes no per-token logprobs. Declared locally
// so llmprovider.LLM stays a minimal interface.
type rateSupporter interface {
	RateSupport(ctx context.Context, question, answer, contextText string) (float64, error)
}

// Generator assembles prompts from retrieved context and tenant memory and
// calls an LLM to produce an answer, per spec.md §4.4.
type Generator struct {
	llm           llmprovider.LLM
	excerptMaxLen int
	log           *logger.Logger
}

// New constructs a Generator. excerptMaxLen defaults to DefaultExcerptMaxLen
// when zero or negative.
func New(llm llmprovider.LLM, excerptMaxLen int, log *logger.Logger) *Generator {
	if excerptMaxLen <= 0 {
		excerptMaxLen = DefaultExcerptMaxLen
	}
	return &Generator{llm: llm, excerptMaxLen: excerptMaxLen, log: log}
}

const briefSummaryPromptTemplate = `Write a brief, 2-3 sentence summary of the following document text.

%s`

// BriefSummary satisfies internal/ingestor.Summarizer, producing the cached
// summary written at the end of the ingest pipeline (spec.md §4.2 stage 5).
// It reuses the Generator's LLM rather than running a separate prompt
// pipeline, since a summary is just a completion with no retrieved context.
func (g *Generator) BriefSummary(ctx context.Context, documentText string) (string, error) {
	result, err := g.llm.Complete(ctx, []llmprovider.Message{
		{Role: "user", Content: fmt.Sprintf(briefSummaryPromptTemplate, documentText)},
	})
	if err != nil {
		return "", fmt.Errorf("generator: brief summary failed: %w", err)
	}
	return strings.TrimSpace(result.Content), nil
}

// Answer generates a complete, non-streamed answer.
func (g *Generator) Answer(ctx context.Context, principal *identity.Principal, query string, retrieved retriever.RetrieveResult, memory []memorystore.Entry) (Answer, error) {
	messages := buildPrompt(query, retrieved, memory)
	result, err := g.llm.Complete(ctx, messages)
	if err != nil {
		return Answer{}, fmt.Errorf("generator: completion failed: %w", err)
	}
	citations := buildCitations(retrieved.Chunks, g.excerptMaxLen)
	confidence := g.confidence(ctx, query, result.Content, contextText(retrieved.Chunks), nil)
	return Answer{Text: result.Content, Citations: citations, Confidence: confidence}, nil
}

// StreamAnswer emits the ordered event sequence over a buffered channel:
// citations, status{generating}, one token event per streamed delta,
// confidence, then done — or error in place of the tail. Per spec.md §5's
// ordering guarantee, status{retrieving} precedes citations which precedes
// status{generating}; the retrieving beacon is the HTTP layer's
// responsibility, since retrieval has already completed by the time this is
// called and citations are already known from the retrieved chunks.
func (g *Generator) StreamAnswer(ctx context.Context, principal *identity.Principal, query string, retrieved retriever.RetrieveResult, memory []memorystore.Entry) (<-chan Event, error) {
	events := make(chan Event, eventBufferSize)
	messages := buildPrompt(query, retrieved, memory)
	citations := buildCitations(retrieved.Chunks, g.excerptMaxLen)
	ctxText := contextText(retrieved.Chunks)

	go func() {
		defer close(events)

		events <- Event{Type: EventCitations, Citations: citations}
		events <- Event{Type: EventStatus, Stage: "generating"}

		var b strings.Builder
		var deltas []llmprovider.Delta
		cancelled := false

		err := g.llm.Stream(ctx, messages, func(d llmprovider.Delta) {
			if cancelled {
				return
			}
			select {
			case <-ctx.Done():
				cancelled = true
				return
			default:
			}
			b.WriteString(d.Content)
			deltas = append(deltas, d)
			events <- Event{Type: EventToken, Token: d.Content}
		})
		if err != nil {
			events <- Event{Type: EventError, Err: err.Error()}
			return
		}
		if cancelled || ctx.Err() != nil {
			events <- Event{Type: EventError, Err: "cancelled"}
			return
		}

		confidence := g.confidence(ctx, query, b.String(), ctxText, deltas)
		events <- Event{Type: EventConfidence, Confidence: confidence}
		events <- Event{Type: EventDone}
	}()

	return events, nil
}

// confidence implements spec.md §4.4's two-path scoring: the primary
// exp(mean(logprobs)) formula when deltas carry them, else a secondary
// 0-100 rating call through rateSupporter. If neither is available (a
// provider with no logprobs and no RateSupport method, e.g. in tests), it
// falls back to a conservative default keyed only on whether any citation
// was found — the spec requires a thresholded level even when no real
// signal exists to threshold.
func (g *Generator) confidence(ctx context.Context, query, answer, contextText string, deltas []llmprovider.Delta) Confidence {
	if score, ok := llmprovider.MeanLogprobScore(deltas); ok {
		return Confidence{Score: score, Level: levelFor(score)}
	}
	if rs, ok := g.llm.(rateSupporter); ok {
		rating, err := rs.RateSupport(ctx, query, answer, contextText)
		if err == nil {
			score := rating / 100
			return Confidence{Score: score, Level: levelFor(score)}
		}
		if g.log != nil {
			g.log.Warnf("generator: rate-support confidence call failed: %v", err)
		}
	}
	if contextText == "" {
		return Confidence{Score: 0, Level: LevelLow}
	}
	return Confidence{Score: mediumThreshold, Level: LevelMedium}
}

func buildCitations(chunks []retriever.RetrievedChunk, excerptMaxLen int) []Citation {
	citations := make([]Citation, 0, len(chunks))
	for _, c := range chunks {
		citations = append(citations, Citation{
			DocumentID: c.DocumentID,
			ChunkID:    c.ID,
			Filename:   c.Filename,
			Excerpt:    truncate(c.Text, excerptMaxLen),
		})
	}
	return citations
}

func contextText(chunks []retriever.RetrievedChunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
