package agent

import (
	"time"

	"github.com/poiesic/colloquy/core"
)

// TurnMonitor provides hooks to observe conversation turns.
type TurnMonitor interface {
	Start(sessionID string, mode Mode)
	AfterCondense(sessionID string, standalone string)
	AfterRetrieval(sessionID string, results []*core.SearchResult)
	ToolInvoked(sessionID string, call core.ToolCall, result string)
	Finish(sessionID string, mode Mode, elapsed time.Duration, err error)
}

// noopMonitor is a no-op implementation of TurnMonitor
type noopMonitor struct{}

var _ TurnMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ Mode)                            {}
func (n *noopMonitor) AfterCondense(_ string, _ string)                  {}
func (n *noopMonitor) AfterRetrieval(_ string, _ []*core.SearchResult)   {}
func (n *noopMonitor) ToolInvoked(_ string, _ core.ToolCall, _ string)   {}
func (n *noopMonitor) Finish(_ string, _ Mode, _ time.Duration, _ error) {}
