package memory

import (
	"fmt"
	"slices"
	"sync"

	"github.com/poiesic/colloquy/core"
)

// Session is the history of one conversation.
type Session struct {
	id string

	turn sync.Mutex

	mu       sync.RWMutex
	messages []core.Message
}

func newSession(id, persona string) *Session {
	return &Session{
		id:       id,
		messages: []core.Message{core.SystemMessage(persona)},
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// BeginTurn blocks until no other turn is running for this session and
// returns the function that ends the turn.
func (s *Session) BeginTurn() (release func()) {
	s.turn.Lock()
	return s.turn.Unlock
}

// Messages returns a copy of the history.
func (s *Session) Messages() []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Len returns the number of messages in the history.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Append validates msgs against the existing history and appends them all,
// or none of them when any is invalid.
func (s *Session) Append(msgs ...core.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make(map[string]struct{})
	for _, m := range s.messages {
		if m.ToolCall != nil {
			calls[m.ToolCall.ID] = struct{}{}
		}
	}
	for i, m := range msgs {
		if err := core.ValidateMessage(m); err != nil {
			return fmt.Errorf("session %s: message %d: %w", s.id, i, err)
		}
		if m.ToolCall != nil {
			calls[m.ToolCall.ID] = struct{}{}
		}
		if m.ToolResult != nil {
			if _, ok := calls[m.ToolResult.CallID]; !ok {
				return fmt.Errorf("session %s: message %d: %w: %q", s.id, i, core.ErrOrphanToolResult, m.ToolResult.CallID)
			}
		}
	}

	s.messages = append(s.messages, msgs...)
	return nil
}

// AppendTurn records a completed exchange.
func (s *Session) AppendTurn(question, answer string) error {
	return s.Append(core.HumanMessage(question), core.AssistantMessage(answer))
}

// AppendToolRound records the question, the assistant's tool request and the
// tool's output as one unit.
func (s *Session) AppendToolRound(question string, call core.ToolCall, result string) error {
	return s.Append(
		core.HumanMessage(question),
		core.ToolCallMessage(call),
		core.ToolResultMessage(call, result),
	)
}

func (s *Session) reset(persona string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = []core.Message{core.SystemMessage(persona)}
}
