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


package index

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/colloquy/core"
)

// ReembedJob names the checkpoint kept while a session is re-embedded.
const ReembedJob = "reembed"

// Reembed recomputes the vector of every chunk in a session's index with the
// current embedder, batch by batch. Progress is checkpointed after each
// batch so an interrupted run resumes where it stopped.
// Returns the number of chunks re-embedded by this run.
func (m *Manager) Reembed(ctx context.Context, sessionID string) (int, error) {
	r, err := m.Open(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	total, err := r.Size(ctx)
	if err != nil {
		return 0, err
	}

	var after core.ID
	checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, ReembedJob)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint != nil {
		after = checkpoint.LastID
		m.logger.Info("resuming re-embedding", "session", sessionID, "after", after)
	}

	processed := 0
	err = r.chunks.ForEachChunk(ctx, after, m.batchSize, func(batch []*core.Chunk) error {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := m.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return &core.EmbeddingError{Artifact: "session " + sessionID, Err: err}
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(vectors))
		}
		for i := range batch {
			batch[i].Vector = NormalizeVector(vectors[i])
		}

		if err := r.update(ctx, batch); err != nil {
			return fmt.Errorf("failed to update chunks: %w", err)
		}
		if err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
			Job:       ReembedJob,
			LastID:    batch[len(batch)-1].Id,
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}

		processed += len(batch)
		if m.progress != nil {
			m.progress(min(processed, total), total)
		}
		return nil
	})
	if err != nil {
		return processed, err
	}

	if err := r.checkpoints.ClearCheckpoint(ctx, ReembedJob); err != nil {
		return processed, fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	m.logger.Info("re-embedded index", "session", sessionID, "chunks", processed)
	return processed, nil
}
