// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Generator
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Script the generator's replies in order
//	gen := mock.NewMockGenerator().WithReplies(
//	    mock.ToolCallReply("call_1", "query_dataset", `{"expression":"count()"}`),
//	    mock.TextReply("There are 12 rows."),
//	)
//
//	// Inspect what the generator was asked
//	last := gen.LastCall()
//
// # Default Behavior
//
//   - MockEmbedder: hashed bag-of-words vectors, so texts sharing words are similar
//   - MockGenerator: echoes the latest human message
//   - MockProvider: aggregates a mock embedder and generator
package mock
