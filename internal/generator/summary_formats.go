// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/llmprovider"
)

// SummaryFormat is one of the on-demand formats GET /documents/{id}/summary
// accepts, per spec.md §6.
type SummaryFormat string

const (
	SummaryBrief     SummaryFormat = "brief"
	SummaryDetailed  SummaryFormat = "detailed"
	SummaryExecutive SummaryFormat = "executive"
	SummaryBullet    SummaryFormat = "bullet"
)

var summaryPrompts = map[SummaryFormat]string{
	SummaryBrief:     "Write a brief, 2-3 sentence summary of the following document text.\n\n%s",
	SummaryDetailed:  "Write a detailed, multi-paragraph summary of the following document text, covering every major section.\n\n%s",
	SummaryExecutive: "Write a one-paragraph executive summary of the following document text, aimed at a decision-maker with no time to read the source.\n\n%s",
	SummaryBullet:    "Summarize the following document text as a bulleted list of its key points, one per line, prefixed with \"- \".\n\n%s",
}

// Summarize produces a document summary in the requested format. Unlike
// BriefSummary, the result is never cached by the generator itself — the
// caller (documents_handler.go) owns the decision of whether a format is
// worth persisting to Document.summary_cache.
func (g *Generator) Summarize(ctx context.Context, documentText string, format SummaryFormat) (string, error) {
	tmpl, ok := summaryPrompts[format]
	if !ok {
		return "", apperror.Validationf("unsupported summary format: %s", format)
	}
	result, err := g.llm.Complete(ctx, []llmprovider.Message{
		{Role: "user", Content: fmt.Sprintf(tmpl, documentText)},
	})
	if err != nil {
		return "", fmt.Errorf("generator: %s summary failed: %w", format, err)
	}
	return strings.TrimSpace(result.Content), nil
}
