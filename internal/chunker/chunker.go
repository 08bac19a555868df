// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package chunker implements the semantic chunking step of spec.md §4.2:
// target 500-1000 tokens per chunk, respecting paragraph and sentence
// boundaries, with configurable overlap (default 10%). Adapted from the
// teacher's sentence-boundary search in internal/processor/chunker.go,
// switched from a character budget to a token budget counted the way
// yanqian-ai-helloworld's upload-ask chunker does it, via pkoukk/tiktoken-go.
package chunker

import (
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	DefaultMinTokens   = 500
	DefaultMaxTokens   = 1000
	DefaultOverlapFrac = 0.10
)

// Chunk is one numbered, token-bounded slice of a document's text.
type Chunk struct {
	Position int
	Text     string
	Tokens   int
}

// Chunker splits extracted document text into overlapping, token-bounded
// chunks that respect paragraph and sentence boundaries.
type Chunker struct {
	minTokens int
	maxTokens int
	overlap   int // tokens of overlap carried into the next chunk
	encoder   *tiktoken.Tiktoken
}

// Option configures a Chunker away from its defaults.
type Option func(*Chunker)

func WithTokenRange(minTokens, maxTokens int) Option {
	return func(c *Chunker) {
		c.minTokens = minTokens
		c.maxTokens = maxTokens
	}
}

// WithOverlapFraction sets overlap as a fraction of maxTokens; call after
// WithTokenRange if both are used.
func WithOverlapFraction(frac float64) Option {
	return func(c *Chunker) {
		c.overlap = int(float64(c.maxTokens) * frac)
	}
}

// New constructs a Chunker with spec defaults (500-1000 tokens, 10% overlap).
func New(opts ...Option) *Chunker {
	c := &Chunker{minTokens: DefaultMinTokens, maxTokens: DefaultMaxTokens}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err == nil {
		c.encoder = enc
	}
	c.overlap = int(float64(c.maxTokens) * DefaultOverlapFrac)
	for _, o := range opts {
		o(c)
	}
	return c
}

var sentenceBoundary = regexp.MustCompile(`(?s)([.!?])\s+`)

// splitSentences breaks a paragraph into sentence-sized pieces, keeping
// the terminal punctuation attached to the preceding sentence.
func splitSentences(paragraph string) []string {
	idx := sentenceBoundary.FindAllStringIndex(paragraph, -1)
	if len(idx) == 0 {
		return []string{paragraph}
	}
	var out []string
	start := 0
	for _, m := range idx {
		out = append(out, paragraph[start:m[1]])
		start = m[1]
	}
	if start < len(paragraph) {
		out = append(out, paragraph[start:])
	}
	return out
}

func splitParagraphs(text string) []string {
	raw := regexp.MustCompile(`\n\s*\n`).Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Chunker) countTokens(text string) int {
	if text == "" {
		return 0
	}
	if c.encoder != nil {
		return len(c.encoder.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}

// tail returns the trailing `tokens` worth of text from s, used to seed
// the overlap carried into the next chunk.
func (c *Chunker) tail(s string, tokens int) string {
	if tokens <= 0 || s == "" {
		return ""
	}
	if c.encoder != nil {
		ids := c.encoder.Encode(s, nil, nil)
		if len(ids) <= tokens {
			return s
		}
		return c.encoder.Decode(ids[len(ids)-tokens:])
	}
	words := strings.Fields(s)
	if len(words) <= tokens {
		return s
	}
	return strings.Join(words[len(words)-tokens:], " ")
}

// Chunk splits text into numbered, token-bounded chunks. Units (sentences,
// falling back to whole paragraphs when a paragraph has no sentence
// boundaries) are greedily packed until maxTokens would be exceeded; a
// unit longer than maxTokens on its own is emitted as its own oversized
// chunk rather than silently truncated.
func (c *Chunker) Chunk(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var units []string
	for _, p := range splitParagraphs(text) {
		units = append(units, splitSentences(p)...)
	}

	var chunks []Chunk
	var current strings.Builder
	position := 0

	flush := func() {
		content := strings.TrimSpace(current.String())
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{Position: position, Text: content, Tokens: c.countTokens(content)})
		position++
		current.Reset()
	}

	for _, unit := range units {
		unit = strings.TrimSpace(unit)
		if unit == "" {
			continue
		}
		candidate := current.String()
		if candidate != "" {
			candidate += " "
		}
		candidate += unit

		if c.countTokens(candidate) > c.maxTokens && current.Len() > 0 {
			flush()
			overlap := c.tail(chunks[len(chunks)-1].Text, c.overlap)
			current.Reset()
			if overlap != "" {
				current.WriteString(overlap)
				current.WriteString(" ")
			}
			current.WriteString(unit)
			continue
		}

		current.Reset()
		current.WriteString(candidate)
	}
	flush()

	return chunks
}
