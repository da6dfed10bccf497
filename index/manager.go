package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/core"
	badgerstore "github.com/poiesic/colloquy/storage/badger"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSearchK is the number of chunks a search returns by default.
	DefaultSearchK = 4
	// DefaultBatchSize is the number of chunks embedded per request.
	DefaultBatchSize = 32
	// DefaultPoolSize bounds concurrent embedding requests.
	DefaultPoolSize = 4
)

// Manager opens, creates and caches the per-session indexes under a root
// directory.
type Manager struct {
	root           string
	embedder       ai.Embedder
	chunkSize      int
	chunkOverlap   int
	searchK        int
	batchSize      int
	poolSize       int
	embeddingModel string
	progress       ProgressFunc
	logger         *slog.Logger

	pool  *ants.Pool
	group singleflight.Group

	mu      sync.Mutex
	indexes map[string]*Retriever
	closed  bool
}

// Option configures a Manager.
type Option func(*Manager) error

// WithChunking sets the default chunk size and overlap.
func WithChunking(size, overlap int) Option {
	return func(m *Manager) error {
		if err := core.ValidateChunking(size, overlap); err != nil {
			return err
		}
		m.chunkSize = size
		m.chunkOverlap = overlap
		return nil
	}
}

// WithSearchK sets the default number of search results.
func WithSearchK(k int) Option {
	return func(m *Manager) error {
		if k <= 0 {
			return fmt.Errorf("search k must be positive, got %d", k)
		}
		m.searchK = k
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(n int) Option {
	return func(m *Manager) error {
		if n <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		m.batchSize = n
		return nil
	}
}

// WithPoolSize sets how many embedding requests run concurrently.
func WithPoolSize(n int) Option {
	return func(m *Manager) error {
		if n <= 0 {
			return fmt.Errorf("pool size must be positive, got %d", n)
		}
		m.poolSize = n
		return nil
	}
}

// WithEmbeddingModel sets the model name recorded in source manifests.
func WithEmbeddingModel(name string) Option {
	return func(m *Manager) error {
		m.embeddingModel = name
		return nil
	}
}

// WithProgress sets a function notified as chunks are embedded.
func WithProgress(fn ProgressFunc) Option {
	return func(m *Manager) error {
		m.progress = fn
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			return errors.New("logger is nil")
		}
		m.logger = logger
		return nil
	}
}

// NewManager creates a Manager storing indexes under root.
func NewManager(root string, embedder ai.Embedder, opts ...Option) (*Manager, error) {
	if root == "" {
		return nil, ErrRootRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	m := &Manager{
		root:         root,
		embedder:     embedder,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		searchK:      DefaultSearchK,
		batchSize:    DefaultBatchSize,
		poolSize:     DefaultPoolSize,
		logger:       slog.Default().With("component", "index"),
		indexes:      make(map[string]*Retriever),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(m.poolSize)
	if err != nil {
		return nil, err
	}
	m.pool = pool
	return m, nil
}

// ChunkSize returns the default chunk size.
func (m *Manager) ChunkSize() int { return m.chunkSize }

// ChunkOverlap returns the default chunk overlap.
func (m *Manager) ChunkOverlap() int { return m.chunkOverlap }

// Exists reports whether a persisted index exists for the session.
func (m *Manager) Exists(sessionID string) bool {
	m.mu.Lock()
	_, ok := m.indexes[sessionID]
	m.mu.Unlock()
	if ok {
		return true
	}
	info, err := os.Stat(SessionDir(m.root, sessionID))
	return err == nil && info.IsDir()
}

// Index splits docs, embeds the chunks and merges them into the session's
// index, creating it when none exists. It returns the index and the number
// of chunks added. Nothing is written when embedding fails, and no
// directory is created for a new index.
func (m *Manager) Index(ctx context.Context, sessionID string, docs []core.Document, chunkSize, chunkOverlap int) (*Retriever, int, error) {
	if sessionID == "" {
		return nil, 0, ErrEmptySessionID
	}
	if m.isClosed() {
		return nil, 0, ErrManagerClosed
	}

	chunks, err := SplitDocuments(docs, chunkSize, chunkOverlap)
	if err != nil {
		return nil, 0, err
	}
	if len(chunks) == 0 {
		return nil, 0, ErrNoContent
	}

	artifact := strings.Join(sourceNames(docs), ", ")
	vectors, err := m.embed(ctx, chunks)
	if err != nil {
		return nil, 0, &core.EmbeddingError{Artifact: artifact, Err: err}
	}
	for i, chunk := range chunks {
		chunk.Vector = vectors[i]
	}

	r, err := m.load(sessionID)
	if err != nil {
		return nil, 0, err
	}

	sources := m.manifest(docs, chunks)
	if err := r.merge(ctx, chunks, sources); err != nil {
		return nil, 0, err
	}

	m.logger.Info("indexed documents", "session", sessionID, "files", artifact, "chunks", len(chunks))
	return r, len(chunks), nil
}

// Open returns the index of a session, reopening it from disk when needed.
// Returns ErrIndexNotFound when the session has no index.
func (m *Manager) Open(ctx context.Context, sessionID string) (*Retriever, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.isClosed() {
		return nil, ErrManagerClosed
	}
	if !m.Exists(sessionID) {
		return nil, fmt.Errorf("%w for session %s", ErrIndexNotFound, sessionID)
	}
	return m.load(sessionID)
}

// load returns the cached index or opens (creating if absent) the session's
// directory. Concurrent loads of one session share a single open.
func (m *Manager) load(sessionID string) (*Retriever, error) {
	v, err, _ := m.group.Do(sessionID, func() (any, error) {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrManagerClosed
		}
		if r, ok := m.indexes[sessionID]; ok {
			m.mu.Unlock()
			return r, nil
		}
		m.mu.Unlock()

		r, err := m.openRetriever(sessionID)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			r.close()
			return nil, ErrManagerClosed
		}
		m.indexes[sessionID] = r
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Retriever), nil
}

func (m *Manager) openRetriever(sessionID string) (*Retriever, error) {
	collection := CollectionName(sessionID)
	dir := SessionDir(m.root, sessionID)

	backend, err := badgerstore.OpenBackend(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open index for session %s: %w", sessionID, err)
	}
	chunks, err := badgerstore.NewChunkRepository(backend, collection)
	if err != nil {
		backend.Close()
		return nil, err
	}

	m.logger.Debug("opened index", "session", sessionID, "path", dir)
	return &Retriever{
		sessionID:   sessionID,
		embedder:    m.embedder,
		defaultK:    m.searchK,
		backend:     backend,
		chunks:      chunks,
		checkpoints: badgerstore.NewCheckpointRepository(backend, collection),
	}, nil
}

// embed embeds chunk contents in batches on the worker pool and returns
// normalised vectors in chunk order.
func (m *Manager) embed(ctx context.Context, chunks []*core.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	total := len(chunks)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for start := 0; start < total; start += m.batchSize {
		end := min(start+m.batchSize, total)
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		wg.Add(1)
		err := m.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			batch, err := m.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				fail(err)
				return
			}
			if len(batch) != len(texts) {
				fail(fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(batch)))
				return
			}
			for i, v := range batch {
				vectors[start+i] = NormalizeVector(v)
			}

			mu.Lock()
			done += len(texts)
			n := done
			mu.Unlock()
			if m.progress != nil {
				m.progress(n, total)
			}
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// manifest builds one Source per file in docs.
func (m *Manager) manifest(docs []core.Document, chunks []*core.Chunk) []*core.Source {
	counts := make(map[string]int)
	for _, c := range chunks {
		counts[c.Source()]++
	}

	texts := make(map[string]*strings.Builder)
	for _, d := range docs {
		b, ok := texts[d.Source()]
		if !ok {
			b = &strings.Builder{}
			texts[d.Source()] = b
		}
		b.WriteString(d.Content)
	}

	now := time.Now().UTC()
	var sources []*core.Source
	for _, name := range sourceNames(docs) {
		sources = append(sources, &core.Source{
			Filename:       name,
			Fingerprint:    core.IDFromContent(texts[name].String()),
			Chunks:         counts[name],
			EmbeddingModel: m.embeddingModel,
			IndexedAt:      now,
		})
	}
	return sources
}

// Close closes every open index and releases the worker pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	indexes := m.indexes
	m.indexes = nil
	m.mu.Unlock()

	var errs []error
	for id, r := range indexes {
		if err := r.close(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	m.pool.Release()
	return errors.Join(errs...)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func sourceNames(docs []core.Document) []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range docs {
		if !seen[d.Source()] {
			seen[d.Source()] = true
			names = append(names, d.Source())
		}
	}
	sort.Strings(names)
	return names
}
