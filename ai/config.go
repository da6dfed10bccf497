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


package ai

import (
	"errors"
	"strings"
	"time"
)

// PromptStyle selects how a conversation is handed to the generation service.
type PromptStyle string

const (
	// PromptStyleChat sends role-tagged messages to a chat completion endpoint.
	PromptStyleChat PromptStyle = "chat"
	// PromptStyleCompletion renders the conversation into a single transcript
	// with role labels and a trailing assistant cue.
	PromptStyleCompletion PromptStyle = "completion"
)

// Config holds configuration for AI service providers.
type Config struct {
	// ChatHost is the base URL for the generation service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	ChatHost string `yaml:"chat_host"`

	// EmbeddingHost is the base URL for the embedding service API.
	EmbeddingHost string `yaml:"embedding_host"`

	// ChatModel is the model identifier used for answers, condensation and tool calls.
	// Example: "llama3", "gpt-4o-mini"
	ChatModel string `yaml:"chat_model"`

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "nomic-embed-text", "text-embedding-3-small"
	EmbeddingModel string `yaml:"embedding_model"`

	// APIKey is sent as the bearer token. Local servers accept any value.
	APIKey string `yaml:"api_key"`

	// Temperature is the sampling temperature for ordinary replies.
	// Default: 0.7
	Temperature float64 `yaml:"temperature"`

	// ToolTemperature is the sampling temperature for the answer composed
	// after a tool round.
	// Default: 0.1
	ToolTemperature float64 `yaml:"tool_temperature"`

	// RepetitionPenalty is forwarded to servers that honor it.
	// Default: 1.1
	RepetitionPenalty float64 `yaml:"repetition_penalty"`

	// ContextWindow bounds, in tokens, the history sent with each request.
	// Default: 4096
	ContextWindow int `yaml:"context_window"`

	// MaxTokens limits the length of each reply. Zero means server default.
	MaxTokens int `yaml:"max_tokens"`

	// StopWords end generation when produced.
	StopWords []string `yaml:"stop_words"`

	// Streaming requests incremental delivery of generated text.
	Streaming bool `yaml:"streaming"`

	// PromptStyle selects chat messages or a single formatted transcript.
	PromptStyle PromptStyle `yaml:"prompt_style"`

	// MaxAttempts is the number of attempts per service call. 1 disables retries.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the base delay between attempts, doubled after each failure.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithChatHost sets the generation service host URL.
func WithChatHost(host string) ConfigOption {
	return func(c *Config) {
		c.ChatHost = host
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithHost sets both generation and embedding hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.ChatHost = host
		c.EmbeddingHost = host
	}
}

// WithChatModel sets the generation model identifier.
func WithChatModel(model string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = model
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithToolTemperature sets the temperature used after a tool round.
func WithToolTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.ToolTemperature = t
	}
}

// WithRepetitionPenalty sets the repetition penalty.
func WithRepetitionPenalty(p float64) ConfigOption {
	return func(c *Config) {
		c.RepetitionPenalty = p
	}
}

// WithContextWindow sets the context window in tokens.
func WithContextWindow(tokens int) ConfigOption {
	return func(c *Config) {
		c.ContextWindow = tokens
	}
}

// WithMaxTokens sets the reply length limit.
func WithMaxTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = n
	}
}

// WithStopWords sets the stop words.
func WithStopWords(words ...string) ConfigOption {
	return func(c *Config) {
		c.StopWords = words
	}
}

// WithStreaming enables or disables streaming.
func WithStreaming(enabled bool) ConfigOption {
	return func(c *Config) {
		c.Streaming = enabled
	}
}

// WithPromptStyle selects chat or completion prompting.
func WithPromptStyle(style PromptStyle) ConfigOption {
	return func(c *Config) {
		c.PromptStyle = style
	}
}

// WithRetry sets the attempt count and base delay for service calls.
func WithRetry(maxAttempts int, delay time.Duration) ConfigOption {
	return func(c *Config) {
		c.MaxAttempts = maxAttempts
		c.RetryDelay = delay
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, generation and embedding use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		ChatHost:          defaultHost,
		EmbeddingHost:     defaultHost,
		ChatModel:         "llama3",
		EmbeddingModel:    "nomic-embed-text",
		APIKey:            "none",
		Temperature:       0.7,
		ToolTemperature:   0.1,
		RepetitionPenalty: 1.1,
		ContextWindow:     4096,
		Streaming:         true,
		PromptStyle:       PromptStyleChat,
		MaxAttempts:       1,
		RetryDelay:        500 * time.Millisecond,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithChatModel("qwen2.5:7b"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.ChatHost = normalizeHost(c.ChatHost)
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	if c.PromptStyle == "" {
		c.PromptStyle = PromptStyleChat
	}
	if c.APIKey == "" {
		c.APIKey = "none"
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.ChatHost == "" {
		return errors.New("ai config: ChatHost is required")
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.ToolTemperature < 0 || c.ToolTemperature > 2 {
		return errors.New("ai config: ToolTemperature must be between 0 and 2")
	}
	if c.ContextWindow < 0 {
		return errors.New("ai config: ContextWindow cannot be negative")
	}
	if c.MaxTokens < 0 {
		return errors.New("ai config: MaxTokens cannot be negative")
	}
	if c.PromptStyle != PromptStyleChat && c.PromptStyle != PromptStyleCompletion {
		return errors.New("ai config: PromptStyle must be chat or completion")
	}
	if c.MaxAttempts < 1 {
		return errors.New("ai config: MaxAttempts must be at least 1")
	}
	return nil
}
