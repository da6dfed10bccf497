package memory

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/poiesic/colloquy/core"
)

// ErrEmptySessionID is returned for operations given an empty session id.
var ErrEmptySessionID = errors.New("session id cannot be empty")

// Store maps session ids to histories.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	persona  string
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPersona sets the system message every new history starts with.
func WithPersona(persona string) Option {
	return func(s *Store) {
		if persona != "" {
			s.persona = persona
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		persona:  DefaultPersona,
		logger:   slog.Default().With("component", "memory-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session returns the session for id, creating and seeding it if absent.
func (s *Store) Session(id string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	sess = newSession(id, s.persona)
	s.sessions[id] = sess
	s.logger.Debug("created session", "session", id)
	return sess, nil
}

// History returns a copy of the history for id, creating it if absent.
func (s *Store) History(id string) ([]core.Message, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	return sess.Messages(), nil
}

// AddSystemMessage appends a system message to the history for id, creating
// it if absent.
func (s *Store) AddSystemMessage(id, text string) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	if err := sess.Append(core.SystemMessage(text)); err != nil {
		return err
	}
	s.logger.Debug("added system message", "session", id, "length", len(text))
	return nil
}

// Exists reports whether a history exists for id.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Sessions returns the known session ids in sorted order.
func (s *Store) Sessions() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Reset replaces the history for id with a freshly seeded one. It waits for
// any running turn in that session to finish.
func (s *Store) Reset(id string) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	release := sess.BeginTurn()
	defer release()
	sess.reset(s.persona)
	s.logger.Info("reset session", "session", id)
	return nil
}
