// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llmprovider

import "context"

// MockProvider is a deterministic stand-in for tests: it echoes a fixed
// response (or one keyed off the last user message) split into
// word-sized deltas, each carrying a synthetic logprob near zero so
// MeanLogprobScore produces a stable, high-confidence score.
type MockProvider struct {
	Response string
	// ByPrompt, when non-nil, overrides Response for a given last-user-message.
	ByPrompt map[string]string
}

func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

func (m *MockProvider) responseFor(messages []Message) string {
	if m.ByPrompt != nil && len(messages) > 0 {
		last := messages[len(messages)-1].Content
		if r, ok := m.ByPrompt[last]; ok {
			return r
		}
	}
	return m.Response
}

func (m *MockProvider) Complete(ctx context.Context, messages []Message) (Result, error) {
	return Result{Content: m.responseFor(messages)}, nil
}

func (m *MockProvider) Stream(ctx context.Context, messages []Message, onDelta func(Delta)) error {
	text := m.responseFor(messages)
	words := splitKeepingSpace(text)
	for _, w := range words {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		onDelta(Delta{Content: w, Logprob: -0.05, HasLogprob: true})
	}
	return nil
}

func splitKeepingSpace(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i, r := range s {
		if r == ' ' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
