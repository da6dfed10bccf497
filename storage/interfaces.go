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


package storage

import (
	"context"

	"github.com/poiesic/colloquy/core"
)

// Repository is the read side shared by vector repositories.
type Repository interface {
	// FindSimilar finds chunks similar to the given vector.
	// Returns chunks with similarity >= minSimilarity, up to limit results.
	// Results are ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)

	// Close releases resources held by the repository. It does not close the backend.
	Close() error
}

// ChunkRepository stores the embedded chunks of one collection together with
// the manifest of the files they came from.
type ChunkRepository interface {
	Repository

	// AddChunks stores chunks and the given source manifests in a single
	// transaction. Either every chunk and source is stored or none is.
	// New IDs are generated from the collection's sequence and InsertedAt is set.
	// Returns the chunks with generated IDs and timestamps populated.
	AddChunks(ctx context.Context, chunks []*core.Chunk, sources ...*core.Source) ([]*core.Chunk, error)

	// UpdateChunks replaces existing chunks, typically with new vectors.
	// Returns ErrNotFound if any chunk doesn't exist.
	UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// ForEachChunk calls fn with successive batches of chunks in ID order,
	// starting after the given ID (0 starts at the beginning).
	// Iteration stops at the first error returned by fn.
	ForEachChunk(ctx context.Context, after core.ID, batchSize int, fn func(batch []*core.Chunk) error) error

	// ListSources returns the manifest of every file merged into the collection,
	// ordered by filename.
	ListSources(ctx context.Context) ([]*core.Source, error)
}

// CheckpointRepository persists progress of long-running maintenance jobs
// so they can resume after interruption.
type CheckpointRepository interface {
	// SaveCheckpoint saves or updates a checkpoint.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint loads the checkpoint for a job.
	// Returns nil (not an error) when no checkpoint exists.
	LoadCheckpoint(ctx context.Context, job string) (*core.Checkpoint, error)

	// ClearCheckpoint removes the checkpoint for a job.
	ClearCheckpoint(ctx context.Context, job string) error
}
