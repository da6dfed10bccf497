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


package core

import (
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrInvalidMessage indicates a Message failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidRole indicates an invalid Role value.
	ErrInvalidRole = errors.New("invalid role")

	// ErrOrphanToolResult indicates a tool result that references no preceding tool call.
	ErrOrphanToolResult = errors.New("tool result does not reference a preceding tool call")

	// ErrMissingToolCallID indicates a tool call without an identifier.
	ErrMissingToolCallID = errors.New("tool call id cannot be empty")

	// ErrInvalidChunking indicates chunk size and overlap violate 0 <= overlap < size.
	ErrInvalidChunking = errors.New("chunk overlap must be non-negative and smaller than chunk size")
)

// Failure categories. Each typed error below matches exactly one of these
// through errors.Is.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrParse             = errors.New("file could not be parsed")
	ErrEmbedding         = errors.New("embedding failed")
	ErrGeneration        = errors.New("generation failed")
	ErrToolExecution     = errors.New("tool execution failed")
)

// UnsupportedFormatError is returned when an uploaded file's extension has no
// ingestion path.
type UnsupportedFormatError struct {
	Filename  string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	ext := e.Extension
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Sprintf("%s: %s has extension %s; upload a .pdf or .csv file instead",
		ErrUnsupportedFormat, e.Filename, ext)
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

// ParseError is returned when a file's contents cannot be read.
type ParseError struct {
	Filename string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s: %v; check that the file is not corrupt, encrypted or empty",
		ErrParse, e.Filename, e.Err)
}

func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// EmbeddingError is returned when the embedding service fails. Artifact names
// the file or session being indexed.
type EmbeddingError struct {
	Artifact string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s for %s: %v; verify the embedding model is installed and the embedding service is reachable",
		ErrEmbedding, e.Artifact, e.Err)
}

func (e *EmbeddingError) Unwrap() error        { return e.Err }
func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbedding }

// GenerationError is returned when the language model fails to produce a reply.
type GenerationError struct {
	SessionID string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s in session %s: %v; verify the model is loaded and the generation service is reachable, then retry",
		ErrGeneration, e.SessionID, e.Err)
}

func (e *GenerationError) Unwrap() error        { return e.Err }
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// ToolExecutionError is returned when a tool cannot be bound or invoked.
// Errors raised by the evaluated expression itself are reported to the model
// as tool output instead.
type ToolExecutionError struct {
	SessionID string
	Tool      string
	Err       error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("%s: %s in session %s: %v; re-upload the dataset to rebuild the tool",
		ErrToolExecution, e.Tool, e.SessionID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error        { return e.Err }
func (e *ToolExecutionError) Is(target error) bool { return target == ErrToolExecution }
