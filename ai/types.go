package ai

import (
	"context"

	"github.com/poiesic/colloquy/core"
)

// Generation is the model's reply to a Generate call.
type Generation struct {
	Content    string
	ToolCalls  []core.ToolCall
	StopReason string
}

// HasToolCalls reports whether the model requested at least one tool.
func (g *Generation) HasToolCalls() bool {
	return g != nil && len(g.ToolCalls) > 0
}

// ToolDefinition describes a tool the model may call.
// Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// StreamFunc receives generated text as it arrives. Returning an error aborts
// the generation.
type StreamFunc func(ctx context.Context, chunk string) error

// GenerateOptions holds per-call overrides. Nil or zero fields fall back to
// the generator's Config.
type GenerateOptions struct {
	Temperature *float64
	StopWords   []string
	MaxTokens   int
	Tools       []ToolDefinition
	ToolChoice  string // name of a tool the model must call
	Stream      StreamFunc
}

// GenerateOption is a functional option for a single Generate call.
type GenerateOption func(*GenerateOptions)

// WithCallTemperature overrides the sampling temperature for one call.
func WithCallTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &t
	}
}

// WithCallStopWords overrides the stop words for one call.
func WithCallStopWords(words ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.StopWords = words
	}
}

// WithCallMaxTokens overrides the reply length limit for one call.
func WithCallMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// WithTools offers tools to the model.
func WithTools(tools ...ToolDefinition) GenerateOption {
	return func(o *GenerateOptions) {
		o.Tools = append(o.Tools, tools...)
	}
}

// WithToolChoice forces the model to call the named tool.
func WithToolChoice(name string) GenerateOption {
	return func(o *GenerateOptions) {
		o.ToolChoice = name
	}
}

// WithStream delivers generated text to fn as it is produced.
func WithStream(fn StreamFunc) GenerateOption {
	return func(o *GenerateOptions) {
		o.Stream = fn
	}
}

// ApplyGenerateOptions folds opts into a GenerateOptions value.
func ApplyGenerateOptions(opts ...GenerateOption) *GenerateOptions {
	o := &GenerateOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
