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


package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/colloquy/core"
	"github.com/poiesic/colloquy/storage"
)

// CheckpointRepository stores resumable job progress next to a collection's
// chunks. A checkpoint is keyed by job name.
type CheckpointRepository struct {
	backend *Backend
	keys    keyspace
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

func NewCheckpointRepository(backend *Backend, collection string) *CheckpointRepository {
	return &CheckpointRepository{backend: backend, keys: keyspace(collection)}
}

// SaveCheckpoint overwrites the checkpoint for checkpoint.Job and stamps
// UpdatedAt.
func (r *CheckpointRepository) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	checkpoint.UpdatedAt = time.Now().UTC()
	value := storage.MarshalCheckpoint(checkpoint)
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		return tx.Set(r.keys.checkpointKey(checkpoint.Job), value)
	})
}

// LoadCheckpoint returns nil, nil when job has never saved progress.
func (r *CheckpointRepository) LoadCheckpoint(ctx context.Context, job string) (*core.Checkpoint, error) {
	var checkpoint *core.Checkpoint
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(r.keys.checkpointKey(job))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) (err error) {
			checkpoint, err = storage.UnmarshalCheckpoint(val)
			return err
		})
	})
	return checkpoint, err
}

func (r *CheckpointRepository) ClearCheckpoint(ctx context.Context, job string) error {
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		return tx.Delete(r.keys.checkpointKey(job))
	})
}
