package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/ai/mock"
	"github.com/poiesic/colloquy/core"
	"github.com/poiesic/colloquy/memory"
	"github.com/poiesic/colloquy/tabular"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	mu      sync.Mutex
	queries []string
	ks      []int
	results []*core.SearchResult
	err     error
}

func (f *fakeRetriever) Search(_ context.Context, query string, k int) ([]*core.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.ks = append(f.ks, k)
	return f.results, f.err
}

func chunkResult(file, page, text string) *core.SearchResult {
	return &core.SearchResult{
		Chunk: &core.Chunk{
			Content:  text,
			Metadata: map[string]string{core.MetadataSourceFilename: file, core.MetadataPage: page},
		},
		Score: 0.9,
	}
}

func priceDataset() *core.Dataset {
	return &core.Dataset{
		Name:    "prices.csv",
		Columns: []string{"item", "price"},
		Rows:    [][]string{{"a", "2"}, {"b", "4"}},
	}
}

type recordingMonitor struct {
	mu        sync.Mutex
	started   []Mode
	finished  []error
	condensed []string
	retrieved int
	tools     []core.ToolCall
}

func (m *recordingMonitor) Start(_ string, mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, mode)
}

func (m *recordingMonitor) AfterCondense(_ string, standalone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.condensed = append(m.condensed, standalone)
}

func (m *recordingMonitor) AfterRetrieval(_ string, results []*core.SearchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrieved += len(results)
}

func (m *recordingMonitor) ToolInvoked(_ string, call core.ToolCall, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = append(m.tools, call)
}

func (m *recordingMonitor) Finish(_ string, _ Mode, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, err)
}

func newTestAgent(t *testing.T, gen ai.Generator, opts ...Option) (*Agent, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	a, err := New(gen, store, opts...)
	require.NoError(t, err)
	return a, store
}

func history(t *testing.T, store *memory.Store, id string) []core.Message {
	t.Helper()
	h, err := store.History(id)
	require.NoError(t, err)
	return h
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, memory.NewStore())
	assert.ErrorIs(t, err, ErrGeneratorRequired)

	_, err = New(mock.NewMockGenerator(), nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	for _, opt := range []Option{WithConfig(nil), WithSearchK(-1), WithMaxContextChars(0)} {
		_, err = New(mock.NewMockGenerator(), memory.NewStore(), opt)
		assert.Error(t, err)
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "plain", ModePlain.String())
	assert.Equal(t, "rag", ModeRAG.String())
	assert.Equal(t, "tabular", ModeTabularTool.String())
	assert.Equal(t, "unknown", Mode(9).String())
}

func TestPlain_HistoryGrowsByPairs(t *testing.T) {
	gen := mock.NewMockGenerator()
	a, store := newTestAgent(t, gen)
	ctx := context.Background()

	assert.Equal(t, ModePlain, a.Mode("s1"))
	const n = 5
	for i := range n {
		ans, err := a.Respond(ctx, "s1", fmt.Sprintf("question %d", i))
		require.NoError(t, err)
		assert.Equal(t, ModePlain, ans.Mode)
		assert.Equal(t, fmt.Sprintf("mock reply to: question %d", i), ans.Text)
	}

	h := history(t, store, "s1")
	require.Len(t, h, 1+2*n)
	assert.Equal(t, core.RoleSystem, h[0].Role)
	for i := 1; i < len(h); i++ {
		want := core.RoleHuman
		if i%2 == 0 {
			want = core.RoleAssistant
		}
		assert.Equal(t, want, h[i].Role, "message %d", i)
	}

	last := gen.LastCall().Messages
	assert.Len(t, last, 1+2*(n-1)+1, "generator sees the whole history plus the question")
	assert.Equal(t, "question 4", last[len(last)-1].Content)
}

func TestPlain_FailureLeavesHistoryUntouched(t *testing.T) {
	boom := errors.New("connection refused")
	gen := mock.NewMockGenerator()
	a, store := newTestAgent(t, gen)
	ctx := context.Background()

	_, err := a.Respond(ctx, "s1", "hello")
	require.NoError(t, err)
	before := len(history(t, store, "s1"))

	gen.WithGenerateFunc(func(context.Context, []core.Message, *ai.GenerateOptions) (*ai.Generation, error) {
		return nil, boom
	})
	_, err = a.Respond(ctx, "s1", "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrGeneration)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "s1")
	assert.Len(t, history(t, store, "s1"), before)
}

func TestPlain_EmptyReplyIsAnError(t *testing.T) {
	gen := mock.NewMockGenerator().WithReplies(mock.TextReply("   "))
	a, store := newTestAgent(t, gen)

	_, err := a.Respond(context.Background(), "s1", "hello")
	assert.ErrorIs(t, err, ErrEmptyReply)
	assert.Len(t, history(t, store, "s1"), 1)
}

func TestRespond_CancelledLeavesHistoryUntouched(t *testing.T) {
	a, store := newTestAgent(t, mock.NewMockGenerator())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Respond(ctx, "s1", "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, history(t, store, "s1"), 1)
}

func TestRespond_EmptyQuestion(t *testing.T) {
	a, _ := newTestAgent(t, mock.NewMockGenerator())
	_, err := a.Respond(context.Background(), "s1", "  \n")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = a.Respond(context.Background(), "", "hi")
	assert.ErrorIs(t, err, memory.ErrEmptySessionID)
}

func TestRespondStream_DeliversAnswer(t *testing.T) {
	gen := mock.NewMockGenerator().WithReplies(mock.TextReply("streamed answer text"))
	a, store := newTestAgent(t, gen)

	var b strings.Builder
	ans, err := a.RespondStream(context.Background(), "s1", "hi", func(_ context.Context, chunk string) error {
		b.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "streamed answer text", b.String())
	assert.Equal(t, ans.Text, b.String())
	assert.Len(t, history(t, store, "s1"), 3)
}

func TestRespondStream_AbortedStreamLeavesHistory(t *testing.T) {
	gen := mock.NewMockGenerator().WithReplies(mock.TextReply("one two three"))
	a, store := newTestAgent(t, gen)

	_, err := a.RespondStream(context.Background(), "s1", "hi", func(context.Context, string) error {
		return errors.New("client went away")
	})
	require.Error(t, err)
	assert.Len(t, history(t, store, "s1"), 1)
}

func TestAttachRetriever_AnnouncesAndSwitches(t *testing.T) {
	a, store := newTestAgent(t, mock.NewMockGenerator())

	require.NoError(t, a.AttachRetriever("s1", "guide.pdf", &fakeRetriever{}))
	assert.Equal(t, ModeRAG, a.Mode("s1"))
	assert.Equal(t, ModePlain, a.Mode("s2"))

	h := history(t, store, "s1")
	require.Len(t, h, 2)
	assert.Equal(t, core.RoleSystem, h[1].Role)
	assert.Contains(t, h[1].Content, "guide.pdf")

	require.NoError(t, a.AttachRetriever("s1", "second.pdf", &fakeRetriever{}))
	assert.Equal(t, []string{"guide.pdf", "second.pdf"}, a.Files("s1"))

	assert.ErrorIs(t, a.AttachRetriever("s1", "x.pdf", nil), ErrRetrieverRequired)
}

func TestRAG_CondenseIsPassThroughOnEmptyHistory(t *testing.T) {
	gen := mock.NewMockGenerator().WithReplies(mock.TextReply("Cats purr when content."))
	a, store := newTestAgent(t, gen)
	r := &fakeRetriever{results: []*core.SearchResult{chunkResult("cats.pdf", "2", "Cats purr when they are content.")}}
	require.NoError(t, a.AttachRetriever("s1", "cats.pdf", r))

	ans, err := a.Respond(context.Background(), "s1", "Why do cats purr?")
	require.NoError(t, err)

	assert.Equal(t, 1, gen.CallCount(), "no condensation call without prior turns")
	assert.Equal(t, "Why do cats purr?", ans.Standalone)
	assert.Equal(t, []string{"Why do cats purr?"}, r.queries)
	assert.Equal(t, ModeRAG, ans.Mode)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "cats.pdf", ans.Sources[0].Source())

	msgs := gen.LastCall().Messages
	ctxMsg := msgs[len(msgs)-2]
	assert.Equal(t, core.RoleSystem, ctxMsg.Role)
	assert.Contains(t, ctxMsg.Content, "[cats.pdf, page 2]")
	assert.Contains(t, ctxMsg.Content, "Cats purr when they are content.")
	assert.Contains(t, ctxMsg.Content, "three sentences")

	h := history(t, store, "s1")
	require.Len(t, h, 4)
	for _, m := range h {
		assert.NotContains(t, m.Content, "Cats purr when they are content.", "retrieved chunks stay out of history")
	}
}

func TestRAG_CondensesFollowUps(t *testing.T) {
	gen := mock.NewMockGenerator().WithReplies(
		mock.TextReply("Paris is the capital of France."),
		mock.TextReply("Standalone question: \"What is the population of Paris?\""),
		mock.TextReply("About two million."),
	)
	mon := &recordingMonitor{}
	a, store := newTestAgent(t, gen, WithMonitor(mon), WithSearchK(6))
	r := &fakeRetriever{results: []*core.SearchResult{chunkResult("fr.pdf", "1", "Paris has about two million inhabitants.")}}
	require.NoError(t, a.AttachRetriever("s1", "fr.pdf", r))
	ctx := context.Background()

	_, err := a.Respond(ctx, "s1", "What is the capital of France?")
	require.NoError(t, err)

	ans, err := a.Respond(ctx, "s1", "And its population?")
	require.NoError(t, err)
	assert.Equal(t, "What is the population of Paris?", ans.Standalone)
	assert.Equal(t, "About two million.", ans.Text)
	assert.Equal(t, []string{"What is the capital of France?", "What is the population of Paris?"}, r.queries)
	assert.Equal(t, []int{6, 6}, r.ks)

	condenseCall := gen.Calls()[1]
	require.Len(t, condenseCall.Messages, 2)
	assert.Contains(t, condenseCall.Messages[0].Content, "Do NOT answer")
	assert.Contains(t, condenseCall.Messages[1].Content, "User: What is the capital of France?")
	assert.Contains(t, condenseCall.Messages[1].Content, "Follow-up question: And its population?")
	require.NotNil(t, condenseCall.Options.Temperature)

	h := history(t, store, "s1")
	assert.Len(t, h, 2+4)
	assert.Equal(t, "And its population?", h[len(h)-2].Content)

	assert.Equal(t, []Mode{ModeRAG, ModeRAG}, mon.started)
	assert.Equal(t, 2, mon.retrieved)
	assert.Len(t, mon.condensed, 2)
}

func TestRAG_RetrievalFailure(t *testing.T) {
	a, store := newTestAgent(t, mock.NewMockGenerator())
	embErr := &core.EmbeddingError{Artifact: "query", Err: errors.New("down")}
	require.NoError(t, a.AttachRetriever("s1", "a.pdf", &fakeRetriever{err: embErr}))
	before := len(history(t, store, "s1"))

	_, err := a.Respond(context.Background(), "s1", "anything")
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.Len(t, history(t, store, "s1"), before)
}

func TestTabular_ToolRoundTrip(t *testing.T) {
	gen := mock.NewMockGenerator().WithReplies(
		mock.ToolCallReply("call_1", tabular.ToolName, `{"expression": "mean(\"price\")"}`),
		mock.TextReply("The average price is 3."),
	)
	mon := &recordingMonitor{}
	a, store := newTestAgent(t, gen, WithMonitor(mon))
	require.NoError(t, a.AttachDataset("s1", priceDataset()))
	assert.Equal(t, ModeTabularTool, a.Mode("s1"))

	ans, err := a.Respond(context.Background(), "s1", "What is the average of column price?")
	require.NoError(t, err)
	assert.Equal(t, "The average price is 3.", ans.Text)
	assert.Equal(t, "3", ans.ToolResult)
	require.NotNil(t, ans.ToolCall)
	assert.Equal(t, "call_1", ans.ToolCall.ID)
	require.Len(t, mon.tools, 1, "tool runs exactly once")

	calls := gen.Calls()
	require.Len(t, calls, 2)
	first := calls[0].Options
	require.Len(t, first.Tools, 1)
	assert.Equal(t, tabular.ToolName, first.Tools[0].Name)
	assert.Equal(t, tabular.ToolName, first.ToolChoice)

	second := calls[1]
	assert.Empty(t, second.Options.Tools)
	require.NotNil(t, second.Options.Temperature)
	assert.Equal(t, ai.DefaultConfig().ToolTemperature, *second.Options.Temperature)
	toolMsg := second.Messages[len(second.Messages)-1]
	assert.Equal(t, core.RoleTool, toolMsg.Role)
	require.NotNil(t, toolMsg.ToolResult)
	assert.Equal(t, "call_1", toolMsg.ToolResult.CallID)
	assert.Equal(t, "3", toolMsg.Content)

	h := history(t, store, "s1")
	require.Len(t, h, 6)
	assert.Equal(t, core.RoleHuman, h[2].Role)
	assert.Equal(t, core.RoleAssistant, h[3].Role)
	require.NotNil(t, h[3].ToolCall)
	assert.Empty(t, h[3].Content)
	assert.Equal(t, core.RoleTool, h[4].Role)
	assert.Equal(t, "call_1", h[4].ToolResult.CallID)
	assert.Equal(t, "The average price is 3.", h[5].Content)
	assert.NoError(t, core.ValidateHistory(h))
}

func TestTabular_NoToolCallReturnsInitialReply(t *testing.T) {
	gen := mock.NewMockGenerator().WithReplies(mock.TextReply("The dataset has two items."))
	a, store := newTestAgent(t, gen)
	require.NoError(t, a.AttachDataset("s1", priceDataset()))

	var streamed string
	ans, err := a.RespondStream(context.Background(), "s1", "How many items?", func(_ context.Context, chunk string) error {
		streamed += chunk
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "The dataset has two items.", ans.Text)
	assert.Equal(t, ans.Text, streamed)
	assert.Nil(t, ans.ToolCall)
	assert.Equal(t, 1, gen.CallCount())
	assert.Len(t, history(t, store, "s1"), 4)
}

func TestTabular_EvaluationErrorIsCapturedAsText(t *testing.T) {
	gen := mock.NewMockGenerator().WithReplies(
		mock.ToolCallReply("", tabular.ToolName, `{"expression": "mean(\"weight\")"}`),
		mock.TextReply("There is no weight column."),
	)
	a, store := newTestAgent(t, gen)
	require.NoError(t, a.AttachDataset("s1", priceDataset()))

	ans, err := a.Respond(context.Background(), "s1", "Average weight?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ans.ToolResult, "error:"), ans.ToolResult)
	assert.True(t, strings.HasPrefix(ans.ToolCall.ID, "call_"), "missing call ids are generated")
	assert.Equal(t, "There is no weight column.", ans.Text)
	assert.NoError(t, core.ValidateHistory(history(t, store, "s1")))
}

func TestTabular_UnknownToolName(t *testing.T) {
	gen := mock.NewMockGenerator().WithReplies(
		mock.ToolCallReply("c1", "python_repl", `{"code": "df.mean()"}`),
		mock.TextReply("Sorry."),
	)
	a, _ := newTestAgent(t, gen)
	require.NoError(t, a.AttachDataset("s1", priceDataset()))

	ans, err := a.Respond(context.Background(), "s1", "mean?")
	require.NoError(t, err)
	assert.Contains(t, ans.ToolResult, "unknown tool")
}

func TestTabular_FollowUpFailureKeepsToolRound(t *testing.T) {
	calls := 0
	gen := mock.NewMockGenerator().WithGenerateFunc(func(context.Context, []core.Message, *ai.GenerateOptions) (*ai.Generation, error) {
		calls++
		if calls == 1 {
			return mock.ToolCallReply("c1", tabular.ToolName, `{"expression": "rows"}`), nil
		}
		return nil, errors.New("model crashed")
	})
	a, store := newTestAgent(t, gen)
	require.NoError(t, a.AttachDataset("s1", priceDataset()))

	_, err := a.Respond(context.Background(), "s1", "how many rows?")
	assert.ErrorIs(t, err, core.ErrGeneration)

	h := history(t, store, "s1")
	require.Len(t, h, 5)
	assert.Equal(t, core.RoleTool, h[4].Role)
	assert.NoError(t, core.ValidateHistory(h))
}

func TestTabular_IsOneWay(t *testing.T) {
	a, store := newTestAgent(t, mock.NewMockGenerator())
	require.NoError(t, a.AttachRetriever("s1", "doc.pdf", &fakeRetriever{}))
	require.NoError(t, a.AttachDataset("s1", priceDataset()))
	before := len(history(t, store, "s1"))

	err := a.AttachRetriever("s1", "later.pdf", &fakeRetriever{})
	assert.ErrorIs(t, err, ErrModeLocked)
	assert.Equal(t, ModeTabularTool, a.Mode("s1"))
	assert.Len(t, history(t, store, "s1"), before)
	assert.Nil(t, a.Files("s1"))

	a.Reset("s1")
	assert.Equal(t, ModePlain, a.Mode("s1"))
}

func TestAttachDataset_BindingFailure(t *testing.T) {
	a, store := newTestAgent(t, mock.NewMockGenerator())

	err := a.AttachDataset("s1", &core.Dataset{Name: "empty.csv"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrToolExecution)
	assert.ErrorIs(t, err, tabular.ErrNoColumns)
	assert.Equal(t, ModePlain, a.Mode("s1"))
	assert.Len(t, history(t, store, "s1"), 1)

	h := history(t, store, "s1")
	require.NoError(t, a.AttachDataset("s1", priceDataset()))
	assert.Len(t, history(t, store, "s1"), len(h)+1)
	assert.Contains(t, history(t, store, "s1")[1].Content, "prices.csv")
}

func TestRespond_SameSessionIsSerialized(t *testing.T) {
	gen := mock.NewMockGenerator()
	a, store := newTestAgent(t, gen)

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Respond(context.Background(), "shared", fmt.Sprintf("q%d", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	h := history(t, store, "shared")
	require.Len(t, h, 1+2*n)
	for i := 1; i < len(h); i += 2 {
		assert.Equal(t, core.RoleHuman, h[i].Role)
		assert.Equal(t, "mock reply to: "+h[i].Content, h[i+1].Content, "turns must not interleave")
	}
}

func TestRespond_SessionsDoNotBlockEachOther(t *testing.T) {
	release := make(chan struct{})
	gen := mock.NewMockGenerator().WithGenerateFunc(func(ctx context.Context, msgs []core.Message, _ *ai.GenerateOptions) (*ai.Generation, error) {
		if msgs[len(msgs)-1].Content == "slow" {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return mock.TextReply("ok"), nil
	})
	a, _ := newTestAgent(t, gen)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = a.Respond(context.Background(), "slow-session", "slow")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := a.Respond(ctx, "fast-session", "fast")
	assert.NoError(t, err)

	close(release)
	<-done
}

func TestRespond_TrimsToContextWindow(t *testing.T) {
	gen := mock.NewMockGenerator()
	cfg := ai.NewConfig(ai.WithContextWindow(200))
	a, store := newTestAgent(t, gen, WithConfig(cfg))
	ctx := context.Background()

	long := strings.Repeat("word ", 60)
	for range 5 {
		_, err := a.Respond(ctx, "s1", long)
		require.NoError(t, err)
	}

	sent := gen.LastCall().Messages
	assert.Less(t, len(sent), len(history(t, store, "s1"))+1)
	assert.Equal(t, core.RoleSystem, sent[0].Role)
	assert.Equal(t, strings.TrimSpace(long), sent[len(sent)-1].Content)
}
