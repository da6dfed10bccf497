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


package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/core"
	"github.com/poiesic/colloquy/memory"
	"github.com/poiesic/colloquy/tabular"
)

const defaultMaxContextChars = 6000

// Retriever finds the chunks most similar to a query. k <= 0 selects the
// retriever's documented default.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]*core.SearchResult, error)
}

// Answer is the outcome of one turn.
type Answer struct {
	Text string
	Mode Mode

	// Standalone is the query used for retrieval in ModeRAG, otherwise the question.
	Standalone string
	// Sources holds the chunks consulted in ModeRAG. They are not stored in history.
	Sources []*core.Chunk

	// ToolCall and ToolResult are set when the dataset tool ran.
	ToolCall   *core.ToolCall
	ToolResult string
}

// Agent routes each session's turns through the strategy of its mode.
type Agent struct {
	generator       ai.Generator
	store           *memory.Store
	config          *ai.Config
	searchK         int
	maxContextChars int
	monitor         TurnMonitor
	logger          *slog.Logger

	mu     sync.RWMutex
	states map[string]state
}

// Option configures an Agent.
type Option func(*Agent) error

// WithConfig sets the generation settings used for context trimming and the
// tool follow-up temperature. Defaults to ai.DefaultConfig().
func WithConfig(cfg *ai.Config) Option {
	return func(a *Agent) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		a.config = cfg
		return nil
	}
}

// WithSearchK sets how many chunks are retrieved per RAG turn.
// Zero defers to the retriever's default.
func WithSearchK(k int) Option {
	return func(a *Agent) error {
		if k < 0 {
			return fmt.Errorf("search k must not be negative, got %d", k)
		}
		a.searchK = k
		return nil
	}
}

// WithMaxContextChars bounds the retrieved context block.
func WithMaxContextChars(n int) Option {
	return func(a *Agent) error {
		if n <= 0 {
			return fmt.Errorf("max context chars must be positive, got %d", n)
		}
		a.maxContextChars = n
		return nil
	}
}

// WithMonitor sets the turn monitor.
func WithMonitor(m TurnMonitor) Option {
	return func(a *Agent) error {
		if m == nil {
			m = &noopMonitor{}
		}
		a.monitor = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// New creates an Agent. Every session starts in ModePlain.
func New(generator ai.Generator, store *memory.Store, opts ...Option) (*Agent, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	a := &Agent{
		generator:       generator,
		store:           store,
		config:          ai.DefaultConfig(),
		maxContextChars: defaultMaxContextChars,
		monitor:         &noopMonitor{},
		logger:          slog.Default().With("component", "agent"),
		states:          make(map[string]state),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Mode returns the active mode of a session.
func (a *Agent) Mode(sessionID string) Mode {
	return a.state(sessionID).mode()
}

// Files returns the documents attached to a session in ModeRAG.
func (a *Agent) Files(sessionID string) []string {
	if s, ok := a.state(sessionID).(ragState); ok {
		return append([]string(nil), s.files...)
	}
	return nil
}

// Reset returns a session to ModePlain.
func (a *Agent) Reset(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, sessionID)
}

func (a *Agent) state(sessionID string) state {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s, ok := a.states[sessionID]; ok {
		return s
	}
	return plainState{}
}

func (a *Agent) setState(sessionID string, s state) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states[sessionID] = s
}

// AttachRetriever switches a session to ModeRAG over r and announces
// filename to the model. A session in ModeTabularTool stays there and
// ErrModeLocked is returned.
func (a *Agent) AttachRetriever(sessionID, filename string, r Retriever) error {
	if r == nil {
		return ErrRetrieverRequired
	}
	session, err := a.store.Session(sessionID)
	if err != nil {
		return err
	}
	release := session.BeginTurn()
	defer release()

	var files []string
	switch s := a.state(sessionID).(type) {
	case tabularState:
		return ErrModeLocked
	case ragState:
		files = append(files, s.files...)
	}

	if err := session.Append(core.SystemMessage(DocumentAnnouncement(filename))); err != nil {
		return err
	}
	a.setState(sessionID, ragState{retriever: r, files: append(files, filename)})
	a.logger.Info("attached document", "session", sessionID, "file", filename)
	return nil
}

// AttachDataset binds ds to the dataset tool and switches the session to
// ModeTabularTool for good. A later dataset replaces the earlier one.
func (a *Agent) AttachDataset(sessionID string, ds *core.Dataset) error {
	tool, err := tabular.NewTool(ds, tabular.WithLogger(a.logger))
	if err != nil {
		return &core.ToolExecutionError{SessionID: sessionID, Tool: tabular.ToolName, Err: err}
	}
	session, err := a.store.Session(sessionID)
	if err != nil {
		return err
	}
	release := session.BeginTurn()
	defer release()

	if err := session.Append(core.SystemMessage(DatasetAnnouncement(ds))); err != nil {
		return err
	}
	a.setState(sessionID, tabularState{tool: tool})
	a.logger.Info("attached dataset", "session", sessionID, "file", ds.Name, "rows", len(ds.Rows))
	return nil
}

// Respond answers question in the session's mode and records the turn.
// History is left untouched when the turn fails.
func (a *Agent) Respond(ctx context.Context, sessionID, question string) (*Answer, error) {
	return a.respond(ctx, sessionID, question, nil)
}

// RespondStream is Respond with the final answer delivered to fn as it is
// generated. The turn is recorded only after the whole answer is known.
func (a *Agent) RespondStream(ctx context.Context, sessionID, question string, fn ai.StreamFunc) (*Answer, error) {
	return a.respond(ctx, sessionID, question, fn)
}

func (a *Agent) respond(ctx context.Context, sessionID, question string, stream ai.StreamFunc) (answer *Answer, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	session, err := a.store.Session(sessionID)
	if err != nil {
		return nil, err
	}
	release := session.BeginTurn()
	defer release()

	st := a.state(sessionID)
	start := time.Now()
	a.monitor.Start(sessionID, st.mode())
	defer func() {
		a.monitor.Finish(sessionID, st.mode(), time.Since(start), err)
	}()

	switch s := st.(type) {
	case ragState:
		return a.respondRAG(ctx, session, s, question, stream)
	case tabularState:
		return a.respondTabular(ctx, session, s, question, stream)
	default:
		return a.respondPlain(ctx, session, question, stream)
	}
}

func (a *Agent) respondPlain(ctx context.Context, session *memory.Session, question string, stream ai.StreamFunc) (*Answer, error) {
	messages := append(session.Messages(), core.HumanMessage(question))

	text, err := a.generateText(ctx, session.ID(), messages, streamOption(stream)...)
	if err != nil {
		return nil, err
	}
	if err := session.AppendTurn(question, text); err != nil {
		return nil, err
	}
	return &Answer{Text: text, Mode: ModePlain, Standalone: question}, nil
}

func (a *Agent) respondRAG(ctx context.Context, session *memory.Session, s ragState, question string, stream ai.StreamFunc) (*Answer, error) {
	history := session.Messages()

	standalone, err := a.condense(ctx, session.ID(), history, question)
	if err != nil {
		return nil, err
	}
	a.monitor.AfterCondense(session.ID(), standalone)

	results, err := s.retriever.Search(ctx, standalone, a.searchK)
	if err != nil {
		if errors.Is(err, core.ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("retrieval failed for session %s: %w", session.ID(), err)
	}
	a.monitor.AfterRetrieval(session.ID(), results)

	block := contextBlock(results, a.maxContextChars)
	messages := append(history,
		core.SystemMessage(fmt.Sprintf(answerPrompt, block)),
		core.HumanMessage(question),
	)

	text, err := a.generateText(ctx, session.ID(), messages, streamOption(stream)...)
	if err != nil {
		return nil, err
	}
	if err := session.AppendTurn(question, text); err != nil {
		return nil, err
	}

	sources := make([]*core.Chunk, len(results))
	for i, r := range results {
		sources[i] = r.Chunk
	}
	return &Answer{Text: text, Mode: ModeRAG, Standalone: standalone, Sources: sources}, nil
}

// condense rewrites question so it can be understood without the history.
// Without earlier turns the question is returned unchanged.
func (a *Agent) condense(ctx context.Context, sessionID string, history []core.Message, question string) (string, error) {
	if !hasTurns(history) {
		return question, nil
	}

	messages := []core.Message{
		core.SystemMessage(condensePrompt),
		core.HumanMessage(condenseInput(history, question)),
	}
	gen, err := a.generate(ctx, sessionID, messages, ai.WithCallTemperature(a.config.ToolTemperature))
	if err != nil {
		return "", err
	}
	if standalone := cleanStandalone(gen.Content); standalone != "" {
		return standalone, nil
	}
	return question, nil
}

func (a *Agent) respondTabular(ctx context.Context, session *memory.Session, s tabularState, question string, stream ai.StreamFunc) (*Answer, error) {
	def := s.tool.Definition()
	ds := s.tool.Dataset()
	messages := append(session.Messages(),
		core.SystemMessage(fmt.Sprintf(tabularPrompt, ds.Name, len(ds.Rows), strings.Join(ds.Columns, ", "), def.Name)),
		core.HumanMessage(question),
	)

	gen, err := a.generate(ctx, session.ID(), messages, ai.WithTools(def), ai.WithToolChoice(def.Name))
	if err != nil {
		return nil, err
	}

	if !gen.HasToolCalls() {
		text := strings.TrimSpace(gen.Content)
		if text == "" {
			return nil, &core.GenerationError{SessionID: session.ID(), Err: ErrEmptyReply}
		}
		if stream != nil {
			if err := stream(ctx, text); err != nil {
				return nil, &core.GenerationError{SessionID: session.ID(), Err: err}
			}
		}
		if err := session.AppendTurn(question, text); err != nil {
			return nil, err
		}
		return &Answer{Text: text, Mode: ModeTabularTool, Standalone: question}, nil
	}

	call := gen.ToolCalls[0]
	if len(gen.ToolCalls) > 1 {
		a.logger.Warn("model requested several tool calls; running the first", "session", session.ID(), "count", len(gen.ToolCalls))
	}
	if call.ID == "" {
		call.ID = "call_" + uuid.NewString()
	}

	result, err := a.runTool(ctx, session.ID(), s.tool, call)
	if err != nil {
		return nil, err
	}
	a.monitor.ToolInvoked(session.ID(), call, result)

	if err := session.AppendToolRound(question, call, result); err != nil {
		return nil, err
	}

	// The tool round stays in history even if the follow-up fails.
	opts := append(streamOption(stream), ai.WithCallTemperature(a.config.ToolTemperature))
	text, err := a.generateText(ctx, session.ID(), session.Messages(), opts...)
	if err != nil {
		return nil, err
	}
	if err := session.Append(core.AssistantMessage(text)); err != nil {
		return nil, err
	}

	return &Answer{
		Text:       text,
		Mode:       ModeTabularTool,
		Standalone: question,
		ToolCall:   &call,
		ToolResult: result,
	}, nil
}

// runTool executes call once. Failures inside the evaluation come back as
// result text; only cancellation and crashes are errors.
func (a *Agent) runTool(ctx context.Context, sessionID string, tool *tabular.Tool, call core.ToolCall) (string, error) {
	if call.Name != tabular.ToolName {
		return fmt.Sprintf("error: unknown tool %q; the only tool is %q", call.Name, tabular.ToolName), nil
	}
	result, err := tool.Run(ctx, call.Arguments)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &core.ToolExecutionError{SessionID: sessionID, Tool: call.Name, Err: err}
	}
	a.logger.Debug("tool executed", "session", sessionID, "arguments", call.Arguments)
	return result, nil
}

// generate sends messages trimmed to the context window.
func (a *Agent) generate(ctx context.Context, sessionID string, messages []core.Message, opts ...ai.GenerateOption) (*ai.Generation, error) {
	messages = ai.TrimToWindow(messages, a.config.ContextWindow)
	gen, err := a.generator.Generate(ctx, messages, opts...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &core.GenerationError{SessionID: sessionID, Err: err}
	}
	return gen, nil
}

func (a *Agent) generateText(ctx context.Context, sessionID string, messages []core.Message, opts ...ai.GenerateOption) (string, error) {
	gen, err := a.generate(ctx, sessionID, messages, opts...)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(gen.Content)
	if text == "" {
		return "", &core.GenerationError{SessionID: sessionID, Err: ErrEmptyReply}
	}
	return text, nil
}

func streamOption(fn ai.StreamFunc) []ai.GenerateOption {
	if fn == nil {
		return nil
	}
	return []ai.GenerateOption{ai.WithStream(fn)}
}

func hasTurns(history []core.Message) bool {
	for _, m := range history {
		if m.Role == core.RoleHuman {
			return true
		}
	}
	return false
}
