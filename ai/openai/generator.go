// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client llms.Model
	config *ai.Config
	logger *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client: client,
		config: config,
		logger: slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a new generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Generate sends the conversation to the model and returns its reply.
func (g *Generator) Generate(ctx context.Context, messages []core.Message, opts ...ai.GenerateOption) (*ai.Generation, error) {
	o := ai.ApplyGenerateOptions(opts...)

	var content []llms.MessageContent
	if g.config.PromptStyle == ai.PromptStyleCompletion {
		if len(o.Tools) > 0 {
			return nil, ErrToolsUnsupported
		}
		content = []llms.MessageContent{{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(ai.FormatTranscript(messages))},
		}}
	} else {
		content = toMessageContent(messages)
	}

	// A streamed reply cannot be replayed to the caller, so it gets one attempt.
	backoff := g.config.Backoff(g.logger)
	if o.Stream != nil {
		backoff.Attempts = 1
	}

	g.logger.Debug("generating reply",
		"messages", len(messages),
		"tools", len(o.Tools),
		"toolChoice", o.ToolChoice,
		"streaming", o.Stream != nil)

	var response *llms.ContentResponse
	err := backoff.Do(ctx, func(ctx context.Context) error {
		var err error
		response, err = g.client.GenerateContent(ctx, content, g.callOptions(o)...)
		return err
	})
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return nil, err
	}

	if len(response.Choices) < 1 {
		return nil, ErrNoChoices
	}
	return toGeneration(response.Choices[0]), nil
}

func (g *Generator) callOptions(o *ai.GenerateOptions) []llms.CallOption {
	temperature := g.config.Temperature
	if o.Temperature != nil {
		temperature = *o.Temperature
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}

	stopWords := g.config.StopWords
	if o.StopWords != nil {
		stopWords = o.StopWords
	}
	if len(stopWords) > 0 {
		opts = append(opts, llms.WithStopWords(stopWords))
	}

	maxTokens := g.config.MaxTokens
	if o.MaxTokens > 0 {
		maxTokens = o.MaxTokens
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}

	if g.config.RepetitionPenalty > 0 {
		opts = append(opts, llms.WithRepetitionPenalty(g.config.RepetitionPenalty))
	}

	if len(o.Tools) > 0 {
		opts = append(opts, llms.WithTools(toTools(o.Tools)))
		if o.ToolChoice != "" {
			opts = append(opts, llms.WithToolChoice(llms.ToolChoice{
				Type:     "function",
				Function: &llms.FunctionReference{Name: o.ToolChoice},
			}))
		}
	}

	if o.Stream != nil {
		stream := o.Stream
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return stream(ctx, string(chunk))
		}))
	}
	return opts
}

func toGeneration(choice *llms.ContentChoice) *ai.Generation {
	gen := &ai.Generation{
		Content:    strings.TrimSpace(choice.Content),
		StopReason: choice.StopReason,
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		gen.ToolCalls = append(gen.ToolCalls, core.ToolCall{
			ID:        toolCallID(tc.ID),
			Name:      tc.FunctionCall.Name,
			Arguments: normalizeArguments(tc.FunctionCall.Arguments),
		})
	}
	// Older servers report a single call through the legacy function_call field.
	if len(gen.ToolCalls) == 0 && choice.FuncCall != nil {
		gen.ToolCalls = append(gen.ToolCalls, core.ToolCall{
			ID:        toolCallID(""),
			Name:      choice.FuncCall.Name,
			Arguments: normalizeArguments(choice.FuncCall.Arguments),
		})
	}
	return gen
}

// toolCallID returns id, or a fresh one when the server omitted it.
// History linkage requires every call to be addressable.
func toolCallID(id string) string {
	if id != "" {
		return id
	}
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
