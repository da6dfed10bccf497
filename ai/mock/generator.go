package mock

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/core"
)

// GenerateCall records one invocation of MockGenerator.Generate.
type GenerateCall struct {
	Messages []core.Message
	Options  *ai.GenerateOptions
}

// MockGenerator is a test double for ai.Generator.
// Replies come from GenerateFunc if set, otherwise from the scripted queue,
// otherwise the latest human message is echoed.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	GenerateFunc func(ctx context.Context, messages []core.Message, opts *ai.GenerateOptions) (*ai.Generation, error)

	mu      sync.Mutex
	replies []*ai.Generation
	calls   []GenerateCall
}

// NewMockGenerator creates a mock generator with default echo behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// WithReplies queues replies returned by successive calls.
func (m *MockGenerator) WithReplies(replies ...*ai.Generation) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
	return m
}

// WithGenerateFunc sets custom behavior and returns the mock for chaining.
func (m *MockGenerator) WithGenerateFunc(fn func(ctx context.Context, messages []core.Message, opts *ai.GenerateOptions) (*ai.Generation, error)) *MockGenerator {
	m.GenerateFunc = fn
	return m
}

// Generate records the call and returns the next reply.
func (m *MockGenerator) Generate(ctx context.Context, messages []core.Message, opts ...ai.GenerateOption) (*ai.Generation, error) {
	o := ai.ApplyGenerateOptions(opts...)

	m.mu.Lock()
	m.calls = append(m.calls, GenerateCall{Messages: slices.Clone(messages), Options: o})
	var scripted *ai.Generation
	if m.GenerateFunc == nil && len(m.replies) > 0 {
		scripted = m.replies[0]
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var gen *ai.Generation
	switch {
	case m.GenerateFunc != nil:
		var err error
		gen, err = m.GenerateFunc(ctx, messages, o)
		if err != nil {
			return nil, err
		}
	case scripted != nil:
		copied := *scripted
		gen = &copied
	default:
		gen = TextReply("mock reply to: " + lastHuman(messages))
	}

	if o.Stream != nil && gen.Content != "" {
		for _, chunk := range strings.SplitAfter(gen.Content, " ") {
			if err := o.Stream(ctx, chunk); err != nil {
				return nil, err
			}
		}
	}
	return gen, nil
}

// Calls returns every recorded invocation.
func (m *MockGenerator) Calls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns the number of Generate invocations.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the most recent invocation, or the zero value.
func (m *MockGenerator) LastCall() GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return GenerateCall{}
	}
	return m.calls[len(m.calls)-1]
}

// Reset clears recorded calls, queued replies and custom behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.replies = nil
	m.GenerateFunc = nil
}

// TextReply builds a plain text generation.
func TextReply(text string) *ai.Generation {
	return &ai.Generation{Content: text, StopReason: "stop"}
}

// ToolCallReply builds a generation requesting one tool call.
func ToolCallReply(id, name, arguments string) *ai.Generation {
	return &ai.Generation{
		ToolCalls:  []core.ToolCall{{ID: id, Name: name, Arguments: arguments}},
		StopReason: "tool_calls",
	}
}

func lastHuman(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleHuman {
			return messages[i].Content
		}
	}
	return ""
}
