package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/core"
	"github.com/poiesic/colloquy/storage"
	badgerstore "github.com/poiesic/colloquy/storage/badger"
)

// minSimilarity admits every stored chunk; ranking alone decides the top k.
const minSimilarity = -1

// Retriever searches one session's index.
type Retriever struct {
	sessionID   string
	embedder    ai.Embedder
	defaultK    int
	backend     *badgerstore.Backend
	chunks      storage.ChunkRepository
	checkpoints storage.CheckpointRepository

	// mu guards merges against concurrent searches.
	mu     sync.RWMutex
	closed bool
}

// SessionID returns the session the index belongs to.
func (r *Retriever) SessionID() string {
	return r.sessionID
}

// DefaultK returns the number of results Search returns when k <= 0.
func (r *Retriever) DefaultK() int {
	return r.defaultK
}

// Search returns the k chunks most similar to query, most similar first.
// k <= 0 uses DefaultK.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]*core.SearchResult, error) {
	if k <= 0 {
		k = r.defaultK
	}

	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, &core.EmbeddingError{Artifact: "query for session " + r.sessionID, Err: err}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, storage.ErrStorageClosed
	}
	return r.chunks.FindSimilar(ctx, NormalizeVector(vector), minSimilarity, k)
}

// Size returns the number of chunks in the index.
func (r *Retriever) Size(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0, storage.ErrStorageClosed
	}
	return r.chunks.CountChunks(ctx)
}

// Sources returns the manifest of files merged into the index.
func (r *Retriever) Sources(ctx context.Context) ([]*core.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, storage.ErrStorageClosed
	}
	return r.chunks.ListSources(ctx)
}

// merge adds embedded chunks and their source manifests atomically.
func (r *Retriever) merge(ctx context.Context, chunks []*core.Chunk, sources []*core.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return storage.ErrStorageClosed
	}
	if _, err := r.chunks.AddChunks(ctx, chunks, sources...); err != nil {
		return fmt.Errorf("failed to merge %d chunks into %s: %w", len(chunks), r.sessionID, err)
	}
	return nil
}

func (r *Retriever) update(ctx context.Context, chunks []*core.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return storage.ErrStorageClosed
	}
	_, err := r.chunks.UpdateChunks(ctx, chunks...)
	return err
}

func (r *Retriever) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.chunks.Close(); err != nil {
		r.backend.Close()
		return err
	}
	return r.backend.Close()
}
