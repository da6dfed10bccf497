package agent

import "errors"

var (
	// ErrGeneratorRequired is returned when an Agent is created without a generator.
	ErrGeneratorRequired = errors.New("generator is required")

	// ErrStoreRequired is returned when an Agent is created without a memory store.
	ErrStoreRequired = errors.New("memory store is required")

	// ErrRetrieverRequired is returned when attaching a nil retriever.
	ErrRetrieverRequired = errors.New("retriever is required")

	// ErrModeLocked is returned when attaching a retriever to a session
	// already in tabular mode.
	ErrModeLocked = errors.New("session is in tabular mode; start a new session to query documents")

	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrEmptyReply is returned when the model produces no text.
	ErrEmptyReply = errors.New("model returned an empty reply")
)
