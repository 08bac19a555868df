// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package memorystore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/northbound/ragvault/internal/llmprovider"
	"github.com/northbound/ragvault/internal/vectorstore"
)

// historicalSummaryPrefix marks a folded entry so it is never picked up as
// fold input again, per spec.md §4.5's "critical facts ... never
// re-summarized" invariant.
const historicalSummaryPrefix = "[Historical Summary]\n"

var summarizerEncoding = sync.OnceValue(func() *tiktoken.Tiktoken {
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return enc
})

const summaryPromptTemplate = `Update the running historical summary below with the new memory entries. Write a short paragraph, then a "Critical facts" section listing named entities, dates, and decisions verbatim — carry every critical fact already listed forward unchanged, and append any new ones found in the new entries.

Existing summary (may be empty for the first summarization):
%s

New memory entries to fold in, oldest first:
%s`

// maybeSummarize folds a tenant's older memory entries into the tenant's
// single running "[Historical Summary]" entry once the cumulative token
// estimate crosses cfg.SummarizeAtPct of cfg.MaxTokens, per spec.md §4.5.
// The cfg.KeepRecent most recent entries are always left untouched. Merging
// into one entry (rather than appending a new summary each round) is what
// keeps the critical facts section a single source of truth instead of
// scattering it across an ever-growing chain of summaries. A nil llm
// disables folding entirely, since there is nothing to write the summary
// with.
func (s *Store) maybeSummarize(ctx context.Context, tenantKey string) error {
	if s.llm == nil {
		return nil
	}
	entries, err := s.listAll(ctx, tenantKey)
	if err != nil {
		return err
	}

	total := 0
	var foldable []Entry
	var existingSummary *Entry
	for i, e := range entries {
		total += countTokens(e.Text)
		if strings.HasPrefix(e.Text, historicalSummaryPrefix) {
			existingSummary = &entries[i]
			continue
		}
		foldable = append(foldable, e)
	}
	if float64(total) < float64(s.cfg.MaxTokens)*s.cfg.SummarizeAtPct {
		return nil
	}
	if len(foldable) <= s.cfg.KeepRecent {
		return nil
	}
	sort.Slice(foldable, func(i, j int) bool { return foldable[i].Metadata.Timestamp.Before(foldable[j].Metadata.Timestamp) })

	fold := foldable[:len(foldable)-s.cfg.KeepRecent]
	priorSummary := ""
	if existingSummary != nil {
		priorSummary = strings.TrimPrefix(existingSummary.Text, historicalSummaryPrefix)
	}
	summary, err := s.summarizeEntries(ctx, priorSummary, fold)
	if err != nil {
		return fmt.Errorf("memorystore: summarize %d entries: %w", len(fold), err)
	}

	if existingSummary != nil {
		if err := s.vector.Delete(ctx, vectorstore.CollectionMemory, existingSummary.ID); err != nil {
			return fmt.Errorf("memorystore: delete prior summary %s: %w", existingSummary.ID, err)
		}
		if err := s.graph.DeleteMemoryEdges(ctx, existingSummary.ID); err != nil {
			return fmt.Errorf("memorystore: delete prior summary %s graph edges: %w", existingSummary.ID, err)
		}
	}
	for _, e := range fold {
		if err := s.vector.Delete(ctx, vectorstore.CollectionMemory, e.ID); err != nil {
			return fmt.Errorf("memorystore: delete folded entry %s: %w", e.ID, err)
		}
		if err := s.graph.DeleteMemoryEdges(ctx, e.ID); err != nil {
			return fmt.Errorf("memorystore: delete folded entry %s graph edges: %w", e.ID, err)
		}
	}

	_, err = s.addRaw(ctx, tenantKey, historicalSummaryPrefix+summary, Metadata{Type: TypeFact, Timestamp: time.Now().UTC()})
	return err
}

func (s *Store) summarizeEntries(ctx context.Context, priorSummary string, entries []Entry) (string, error) {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s\n", e.Text)
	}
	prompt := fmt.Sprintf(summaryPromptTemplate, priorSummary, b.String())
	result, err := s.llm.Complete(ctx, []llmprovider.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Content), nil
}

func countTokens(text string) int {
	enc := summarizerEncoding()
	if enc == nil {
		return len(strings.Fields(text))
	}
	return len(enc.Encode(text, nil, nil))
}
