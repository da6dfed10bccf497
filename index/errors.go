package index

import "errors"

var (
	// ErrIndexNotFound is returned when no persisted index exists for a session.
	ErrIndexNotFound = errors.New("index not found")

	// ErrManagerClosed is returned for operations on a closed Manager.
	ErrManagerClosed = errors.New("index manager is closed")

	// ErrEmbedderRequired is returned when a Manager is created without an embedder.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrRootRequired is returned when a Manager is created without a root directory.
	ErrRootRequired = errors.New("root directory is required")

	// ErrEmptySessionID is returned when a session id is empty.
	ErrEmptySessionID = errors.New("session id is required")

	// ErrNoContent is returned when the documents to index contain no text.
	ErrNoContent = errors.New("documents contain no text to index")
)
