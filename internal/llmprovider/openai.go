// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llmprovider

import (
	"context"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/northbound/ragvault/internal/apperror"
)

// OpenAIProvider streams chat completions through the official SDK,
// requesting per-token log-probabilities so confidence scoring can use
// the primary (non-rating-call) formula whenever the model returns them.
type OpenAIProvider struct {
	client sdk.Client
	model  string
}

// NewOpenAIProvider constructs a provider bound to a single chat model.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: sdk.NewClient(opts...), model: model}
}

func toSDKMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (Result, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(p.model),
		Messages: toSDKMessages(messages),
	}
	comp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Result{}, apperror.Wrap(apperror.DependencyFailed, "llm completion failed", err)
	}
	if len(comp.Choices) == 0 {
		return Result{}, apperror.New(apperror.DependencyFailed, "llm returned no choices")
	}
	return Result{Content: comp.Choices[0].Message.Content}, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, messages []Message, onDelta func(Delta)) error {
	params := sdk.ChatCompletionNewParams{
		Model:     sdk.ChatModel(p.model),
		Messages:  toSDKMessages(messages),
		Logprobs:  sdk.Bool(true),
		StreamOptions: sdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: sdk.Bool(true),
		},
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content == "" {
			continue
		}
		d := Delta{Content: choice.Delta.Content}
		if logprobs := choice.Logprobs.Content; len(logprobs) > 0 {
			d.Logprob = logprobs[0].Logprob
			d.HasLogprob = true
		}
		onDelta(d)
	}
	if err := stream.Err(); err != nil {
		return apperror.Wrap(apperror.DependencyFailed, "llm stream failed", err)
	}
	return nil
}

// RateSupport asks the model to rate, 0-100, how well the provided
// context supports the answer; used as the secondary confidence path
// when the primary model exposes no logprobs. It returns the rating on
// its 0-100 scale; internal/generator maps it linearly to [0,1].
func (p *OpenAIProvider) RateSupport(ctx context.Context, question, answer, context_ string) (float64, error) {
	prompt := "Rate, as a single integer from 0 to 100 and nothing else, how well the following context supports the answer to the question.\n\nQuestion: " +
		question + "\n\nAnswer: " + answer + "\n\nContext:\n" + context_
	res, err := p.Complete(ctx, []Message{
		{Role: "system", Content: "You are a strict grader. Respond with only an integer from 0 to 100."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return 0, err
	}
	return parseRating(res.Content) * 100, nil
}
