// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/northbound/ragvault/internal/llmprovider"
)

// LLMEntityExtractor asks the LLM to list the named entities in a query,
// the way the teacher's tagger worker asks it for document tags: a single
// completion constrained to a JSON array, with a best-effort strip of
// markdown code fences before parsing.
type LLMEntityExtractor struct {
	llm llmprovider.LLM
}

func NewLLMEntityExtractor(llm llmprovider.LLM) *LLMEntityExtractor {
	return &LLMEntityExtractor{llm: llm}
}

const entityExtractionPrompt = `Extract the named entities (people, organizations, products, places) mentioned in the following question. Return ONLY a JSON array of entity name strings, with no other text. If there are no named entities, return [].

Question: %s`

func (e *LLMEntityExtractor) ExtractEntities(ctx context.Context, query string) ([]string, error) {
	result, err := e.llm.Complete(ctx, []llmprovider.Message{
		{Role: "user", Content: fmt.Sprintf(entityExtractionPrompt, query)},
	})
	if err != nil {
		return nil, err
	}

	answer := strings.TrimSpace(result.Content)
	answer = strings.TrimPrefix(answer, "```json")
	answer = strings.TrimPrefix(answer, "```")
	answer = strings.TrimSuffix(answer, "```")
	answer = strings.TrimSpace(answer)

	var names []string
	if err := json.Unmarshal([]byte(answer), &names); err != nil {
		return nil, err
	}
	return names, nil
}
