package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/colloquy/core"
	"github.com/poiesic/colloquy/storage"
)

// ChunkRepository implements storage.ChunkRepository for one collection.
type ChunkRepository struct {
	backend *Backend
	keys    keyspace
	idSeq   *badger.Sequence
	writeMu sync.Mutex
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a repository for the named collection.
func NewChunkRepository(backend *Backend, collection string) (*ChunkRepository, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", storage.ErrInvalidQuery)
	}
	keys := keyspace(collection)
	idSeq, err := backend.sequence(keys.sequenceKey())
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		keys:    keys,
		idSeq:   idSeq,
	}, nil
}

// Collection returns the collection name.
func (r *ChunkRepository) Collection() string {
	return string(r.keys)
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

func (r *ChunkRepository) nextID() (core.ID, error) {
	nextID, err := r.idSeq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		nextID, err = r.idSeq.Next()
		if err != nil {
			return 0, err
		}
	}
	return core.ID(nextID), nil
}

// AddChunks stores chunks and source manifests. Chunks are written in as
// many transactions as their size needs and stay invisible until a final
// transaction raises the committed mark and merges the manifests, so readers
// see either none or all of them. Leftovers of a failed earlier write are
// removed first.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks []*core.Chunk, sources ...*core.Source) ([]*core.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.sweepUncommitted(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ids := make([]core.ID, len(chunks))
	for i := range chunks {
		id, err := r.nextID()
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	err := r.backend.updateInBatches(ctx, len(chunks), func(tx *badger.Txn, i int) error {
		stored := chunks[i].Clone()
		stored.Id = ids[i]
		stored.InsertedAt = now
		return tx.Set(r.keys.chunkKey(stored.Id), storage.MarshalChunk(stored))
	})
	if err != nil {
		return nil, err
	}

	err = r.backend.update(ctx, func(tx *badger.Txn) error {
		if len(ids) > 0 {
			if err := r.raiseMark(tx, ids[len(ids)-1]); err != nil {
				return err
			}
		}
		for _, src := range sources {
			if err := r.mergeSource(tx, src); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Populate caller's chunks only after the commit succeeded.
	for i, chunk := range chunks {
		chunk.Id = ids[i]
		chunk.InsertedAt = now
	}
	return chunks, nil
}

func (r *ChunkRepository) raiseMark(tx *badger.Txn, id core.ID) error {
	mark, err := r.readMark(tx)
	if err != nil {
		return err
	}
	if id <= mark {
		return nil
	}
	return tx.Set(r.keys.markKey(), binary.BigEndian.AppendUint64(nil, uint64(id)))
}

// readMark returns the highest committed chunk ID, 0 for an empty collection.
func (r *ChunkRepository) readMark(tx *badger.Txn) (core.ID, error) {
	item, err := tx.Get(r.keys.markKey())
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var mark core.ID
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt chunk mark in %s", r.Collection())
		}
		mark = core.ID(binary.BigEndian.Uint64(val))
		return nil
	})
	return mark, err
}

// lastVisibleKey returns the key of the highest committed chunk. Chunk keys
// sort by ID, so iteration stops once a key passes it.
func (r *ChunkRepository) lastVisibleKey(tx *badger.Txn) ([]byte, error) {
	mark, err := r.readMark(tx)
	if err != nil {
		return nil, err
	}
	return r.keys.chunkKey(mark), nil
}

func visible(key, last []byte) bool {
	return bytes.Compare(key, last) <= 0
}

// sweepUncommitted deletes chunks above the committed mark.
func (r *ChunkRepository) sweepUncommitted(ctx context.Context) error {
	var orphans [][]byte
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		mark, err := r.readMark(tx)
		if err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = r.keys.chunkPrefix()
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(r.keys.chunkKey(mark + 1)); iter.Valid(); iter.Next() {
			orphans = append(orphans, iter.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil || len(orphans) == 0 {
		return err
	}
	return r.backend.updateInBatches(ctx, len(orphans), func(tx *badger.Txn, i int) error {
		return tx.Delete(orphans[i])
	})
}

// mergeSource writes src, accumulating the chunk count of an earlier upload
// of the same filename.
func (r *ChunkRepository) mergeSource(tx *badger.Txn, src *core.Source) error {
	key := r.keys.sourceKey(src.Filename)
	merged := *src
	existing, err := readSource(tx, key)
	if err != nil {
		return err
	}
	if existing != nil {
		merged.Chunks += existing.Chunks
	}
	return tx.Set(key, storage.MarshalSource(&merged))
}

// UpdateChunks replaces existing chunks.
func (r *ChunkRepository) UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		mark, err := r.readMark(tx)
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			key := r.keys.chunkKey(chunk.Id)
			if chunk.Id > mark {
				return fmt.Errorf("%w: chunk %d", storage.ErrNotFound, chunk.Id)
			}
			if _, err := tx.Get(key); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("%w: chunk %d", storage.ErrNotFound, chunk.Id)
				}
				return err
			}
			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		mark, err := r.readMark(tx)
		if err != nil {
			return err
		}
		if id > mark {
			return storage.ErrNotFound
		}
		item, err := tx.Get(r.keys.chunkKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			result, err = storage.UnmarshalChunk(val)
			return err
		})
	})
	return result, err
}

// CountChunks returns the number of stored chunks.
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		last, err := r.lastVisibleKey(tx)
		if err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = r.keys.chunkPrefix()
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid() && visible(iter.Item().Key(), last); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// ForEachChunk calls fn with batches of chunks whose ID is greater than after.
func (r *ChunkRepository) ForEachChunk(ctx context.Context, after core.ID, batchSize int, fn func(batch []*core.Chunk) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", storage.ErrInvalidQuery)
	}

	cursor := after
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := r.readBatch(ctx, cursor, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		// The read transaction is closed before fn runs so fn may write.
		if err := fn(batch); err != nil {
			return err
		}
		cursor = batch[len(batch)-1].Id
		if len(batch) < batchSize {
			return nil
		}
	}
}

func (r *ChunkRepository) readBatch(ctx context.Context, after core.ID, limit int) ([]*core.Chunk, error) {
	batch := make([]*core.Chunk, 0, limit)
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		last, err := r.lastVisibleKey(tx)
		if err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = r.keys.chunkPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(r.keys.chunkKey(after + 1)); iter.Valid() && visible(iter.Item().Key(), last) && len(batch) < limit; iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			batch = append(batch, chunk)
		}
		return nil
	})
	return batch, err
}

// ListSources returns the source manifests ordered by filename.
func (r *ChunkRepository) ListSources(ctx context.Context) ([]*core.Source, error) {
	var sources []*core.Source
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = r.keys.sourcePrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				src, err := storage.UnmarshalSource(val)
				if err != nil {
					return err
				}
				sources = append(sources, src)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return sources, err
}

func readSource(tx *badger.Txn, key []byte) (*core.Source, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var src *core.Source
	err = item.Value(func(val []byte) error {
		src, err = storage.UnmarshalSource(val)
		return err
	})
	return src, err
}

// FindSimilar scans the collection and returns the closest chunks.
// Vectors are expected to be normalized, so the dot product is the cosine similarity.
func (r *ChunkRepository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var results []*core.SearchResult
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		last, err := r.lastVisibleKey(tx)
		if err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = r.keys.chunkPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid() && visible(iter.Item().Key(), last); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}

			// Skip chunks without embeddings
			if len(chunk.Vector) == 0 {
				continue
			}

			similarity := dotProduct(vector, chunk.Vector)
			if similarity >= minSimilarity {
				results = append(results, &core.SearchResult{
					Chunk: chunk,
					Score: similarity,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Highest score first; older chunks win ties so results are stable.
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Chunk.Id < b.Chunk.Id:
			return -1
		case a.Chunk.Id > b.Chunk.Id:
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
