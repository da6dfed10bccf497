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


// Package colloquy is a session-scoped conversational assistant that answers
// from uploaded PDF documents and analyses uploaded CSV datasets.
package colloquy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/poiesic/colloquy/agent"
	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/ai/openai"
	"github.com/poiesic/colloquy/config"
	"github.com/poiesic/colloquy/core"
	"github.com/poiesic/colloquy/index"
	"github.com/poiesic/colloquy/ingestion"
	"github.com/poiesic/colloquy/memory"
	"golang.org/x/sync/singleflight"
)

// Monitor observes turns and uploads.
type Monitor interface {
	agent.TurnMonitor
	Ingested(sessionID, filename, kind string, chunks int, err error)
}

// Assistant wires the session store, ingestion, per-session indexes and the
// orchestrator behind the operations callers use.
type Assistant struct {
	cfg          *config.Config
	provider     ai.AIProvider
	ownsProvider bool
	store        *memory.Store
	indexes      *index.Manager
	loader       *ingestion.Loader
	agent        *agent.Agent
	monitor      Monitor
	logger       *slog.Logger

	resuming singleflight.Group
	mu       sync.Mutex
	resumed  map[string]bool

	// attaching serializes uploads per session, so the mode check and the
	// index merge of one upload see no other upload in between.
	attaching map[string]*sync.Mutex
}

// Option configures an Assistant.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	monitor  Monitor
	progress index.ProgressFunc
	logger   *slog.Logger
}

// WithProvider supplies the AI services instead of building an OpenAI
// compatible provider from the configuration. The caller keeps ownership.
func WithProvider(p ai.AIProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithMonitor sets the observer of turns and uploads.
func WithMonitor(m Monitor) Option {
	return func(o *options) {
		o.monitor = m
	}
}

// WithProgress reports embedding progress while documents are indexed.
func WithProgress(fn index.ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// IngestReport describes the outcome of an upload.
type IngestReport struct {
	Filename  string
	Kind      ingestion.Kind
	Documents int
	Chunks    int // chunks added by this upload
	IndexSize int // chunks in the session's index afterwards
	Rows      int
	Columns   []string
}

// New builds an Assistant from cfg.
func New(cfg *config.Config, opts ...Option) (*Assistant, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	a := &Assistant{
		cfg:       cfg,
		provider:  o.provider,
		monitor:   o.monitor,
		logger:    o.logger,
		resumed:   make(map[string]bool),
		attaching: make(map[string]*sync.Mutex),
	}
	if a.provider == nil {
		provider, err := openai.NewProvider(&cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("failed to create AI provider: %w", err)
		}
		a.provider = provider
		a.ownsProvider = true
	}

	a.store = memory.NewStore(memory.WithPersona(cfg.Persona), memory.WithLogger(a.logger))

	loaderOpts := []ingestion.Option{
		ingestion.WithMaxBytes(cfg.Upload.MaxBytes),
		ingestion.WithLogger(a.logger),
	}
	if cfg.Upload.TempDir != "" {
		loaderOpts = append(loaderOpts, ingestion.WithTempDir(cfg.Upload.TempDir))
	}
	loader, err := ingestion.NewLoader(loaderOpts...)
	if err != nil {
		a.closeProvider()
		return nil, err
	}
	a.loader = loader

	indexOpts := []index.Option{
		index.WithChunking(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap),
		index.WithSearchK(cfg.Index.SearchK),
		index.WithBatchSize(cfg.Index.BatchSize),
		index.WithPoolSize(cfg.Index.PoolSize),
		index.WithEmbeddingModel(cfg.AI.EmbeddingModel),
		index.WithLogger(a.logger),
	}
	if o.progress != nil {
		indexOpts = append(indexOpts, index.WithProgress(o.progress))
	}
	indexes, err := index.NewManager(cfg.DataDir, a.provider.Embedder(), indexOpts...)
	if err != nil {
		a.closeProvider()
		return nil, err
	}
	a.indexes = indexes

	agentOpts := []agent.Option{
		agent.WithConfig(&cfg.AI),
		agent.WithSearchK(cfg.Index.SearchK),
		agent.WithMaxContextChars(cfg.Index.MaxContextChars),
		agent.WithLogger(a.logger),
	}
	if a.monitor != nil {
		agentOpts = append(agentOpts, agent.WithMonitor(a.monitor))
	}
	ag, err := agent.New(a.provider.Generator(), a.store, agentOpts...)
	if err != nil {
		indexes.Close()
		a.closeProvider()
		return nil, err
	}
	a.agent = ag
	return a, nil
}

// NewSession creates the session and returns its id. An empty id is
// replaced by a random one. A persisted index left by an earlier run of the
// same session is reattached.
func (a *Assistant) NewSession(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := a.store.Session(id); err != nil {
		return "", err
	}
	if err := a.resume(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// Respond answers question within the session.
func (a *Assistant) Respond(ctx context.Context, sessionID, question string) (*agent.Answer, error) {
	if err := a.resume(ctx, sessionID); err != nil {
		return nil, err
	}
	return a.agent.Respond(ctx, sessionID, question)
}

// RespondStream answers question, delivering text to fn as it is generated.
func (a *Assistant) RespondStream(ctx context.Context, sessionID, question string, fn ai.StreamFunc) (*agent.Answer, error) {
	if err := a.resume(ctx, sessionID); err != nil {
		return nil, err
	}
	return a.agent.RespondStream(ctx, sessionID, question, fn)
}

// IngestAndAttach parses an upload and attaches it to the session. PDF
// documents are merged into the session's index and switch it to document
// questions; a CSV dataset switches it to tabular analysis.
func (a *Assistant) IngestAndAttach(ctx context.Context, sessionID, filename string, r io.Reader) (*IngestReport, error) {
	if sessionID == "" {
		return nil, memory.ErrEmptySessionID
	}
	if err := a.resume(ctx, sessionID); err != nil {
		return nil, err
	}
	unlock := a.lockAttach(sessionID)
	defer unlock()

	// A locked session never grows an index it cannot query.
	if kind, ok := ingestion.KindOf(filename); ok && kind == ingestion.KindDocuments && a.agent.Mode(sessionID) == agent.ModeTabularTool {
		a.ingested(sessionID, filename, kind.String(), 0, agent.ErrModeLocked)
		return nil, agent.ErrModeLocked
	}

	res, err := a.loader.Load(ctx, filename, r)
	if err != nil {
		a.ingested(sessionID, filename, "unknown", 0, err)
		return nil, err
	}

	var report *IngestReport
	switch res.Kind {
	case ingestion.KindDocuments:
		report, err = a.attachDocuments(ctx, sessionID, res)
	case ingestion.KindDataset:
		report, err = a.attachDataset(sessionID, res)
	default:
		err = fmt.Errorf("unexpected upload kind %v", res.Kind)
	}

	chunks := 0
	if report != nil {
		chunks = report.Chunks
	}
	a.ingested(sessionID, res.Filename, res.Kind.String(), chunks, err)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (a *Assistant) lockAttach(sessionID string) (unlock func()) {
	a.mu.Lock()
	m, ok := a.attaching[sessionID]
	if !ok {
		m = &sync.Mutex{}
		a.attaching[sessionID] = m
	}
	a.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (a *Assistant) attachDocuments(ctx context.Context, sessionID string, res *ingestion.Result) (*IngestReport, error) {
	retriever, added, err := a.indexes.Index(ctx, sessionID, res.Documents, a.cfg.Index.ChunkSize, a.cfg.Index.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if err := a.agent.AttachRetriever(sessionID, res.Filename, retriever); err != nil {
		return nil, err
	}
	size, err := retriever.Size(ctx)
	if err != nil {
		return nil, err
	}
	return &IngestReport{
		Filename:  res.Filename,
		Kind:      res.Kind,
		Documents: len(res.Documents),
		Chunks:    added,
		IndexSize: size,
	}, nil
}

func (a *Assistant) attachDataset(sessionID string, res *ingestion.Result) (*IngestReport, error) {
	if err := a.agent.AttachDataset(sessionID, res.Dataset); err != nil {
		return nil, err
	}
	return &IngestReport{
		Filename: res.Filename,
		Kind:     res.Kind,
		Rows:     len(res.Dataset.Rows),
		Columns:  append([]string(nil), res.Dataset.Columns...),
	}, nil
}

// resume reattaches a session's persisted index the first time the session
// is used by this process.
func (a *Assistant) resume(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return memory.ErrEmptySessionID
	}
	if a.isResumed(sessionID) {
		return nil
	}
	_, err, _ := a.resuming.Do(sessionID, func() (any, error) {
		if a.isResumed(sessionID) {
			return nil, nil
		}
		if a.agent.Mode(sessionID) == agent.ModePlain && a.indexes.Exists(sessionID) {
			if err := a.reattach(ctx, sessionID); err != nil {
				return nil, err
			}
		}
		a.mu.Lock()
		a.resumed[sessionID] = true
		a.mu.Unlock()
		return nil, nil
	})
	return err
}

func (a *Assistant) reattach(ctx context.Context, sessionID string) error {
	retriever, err := a.indexes.Open(ctx, sessionID)
	if err != nil {
		return err
	}
	sources, err := retriever.Sources(ctx)
	if err != nil {
		return err
	}
	for _, src := range sources {
		if err := a.agent.AttachRetriever(sessionID, src.Filename, retriever); err != nil {
			return err
		}
	}
	a.logger.Info("resumed index", "session", sessionID, "sources", len(sources))
	return nil
}

func (a *Assistant) isResumed(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resumed[sessionID]
}

// History returns a copy of the session's messages, creating the session
// when it does not exist.
func (a *Assistant) History(sessionID string) ([]core.Message, error) {
	return a.store.History(sessionID)
}

// Mode returns the session's current mode.
func (a *Assistant) Mode(sessionID string) agent.Mode {
	return a.agent.Mode(sessionID)
}

// Files lists the documents attached to the session in document mode.
func (a *Assistant) Files(sessionID string) []string {
	return a.agent.Files(sessionID)
}

// Reset clears the session's conversation and returns it to plain mode.
// The persisted index is kept and reattached on the next use.
func (a *Assistant) Reset(sessionID string) error {
	if err := a.store.Reset(sessionID); err != nil {
		return err
	}
	a.agent.Reset(sessionID)
	a.mu.Lock()
	delete(a.resumed, sessionID)
	a.mu.Unlock()
	return nil
}

// Sources lists the files merged into the session's index. A session
// without an index has none.
func (a *Assistant) Sources(ctx context.Context, sessionID string) ([]*core.Source, error) {
	retriever, err := a.indexes.Open(ctx, sessionID)
	if errors.Is(err, index.ErrIndexNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return retriever.Sources(ctx)
}

// Search returns the chunks of the session's index most similar to query,
// without involving the generator. k <= 0 uses the configured default.
func (a *Assistant) Search(ctx context.Context, sessionID, query string, k int) ([]*core.SearchResult, error) {
	retriever, err := a.indexes.Open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return retriever.Search(ctx, query, k)
}

// Reembed recomputes every vector of the session's index with the current
// embedding model and returns the number of chunks processed.
func (a *Assistant) Reembed(ctx context.Context, sessionID string) (int, error) {
	return a.indexes.Reembed(ctx, sessionID)
}

// Sessions lists the sessions held in memory.
func (a *Assistant) Sessions() []string {
	return a.store.Sessions()
}

// Close releases the indexes and, when it was built here, the AI provider.
func (a *Assistant) Close() error {
	var errs []error
	if err := a.indexes.Close(); err != nil {
		a.logger.Error("error closing indexes", "err", err)
		errs = append(errs, err)
	}
	if err := a.closeProvider(); err != nil {
		a.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Assistant) closeProvider() error {
	if !a.ownsProvider {
		return nil
	}
	return a.provider.Close()
}

func (a *Assistant) ingested(sessionID, filename, kind string, chunks int, err error) {
	if a.monitor != nil {
		a.monitor.Ingested(sessionID, filename, kind, chunks, err)
	}
}
