package ai

import (
	"context"

	"github.com/poiesic/colloquy/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces the next assistant message for a conversation.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate sends the role-tagged messages to the model and returns its reply.
	// When tools are offered the reply may contain tool calls instead of text.
	// When a stream function is set, text is delivered to it as it is produced
	// and the complete text is also returned.
	Generate(ctx context.Context, messages []core.Message, opts ...GenerateOption) (*Generation, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the text generation service.
	Generator() Generator

	// Config returns the configuration the services were built from.
	Config() *Config

	// Close releases resources held by the provider and its services.
	Close() error
}
