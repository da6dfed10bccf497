package agent

import "github.com/poiesic/colloquy/tabular"

// Mode is the orchestration strategy active for a session.
type Mode int

const (
	// ModePlain answers from the conversation alone.
	ModePlain Mode = iota
	// ModeRAG answers from chunks retrieved from the session's index.
	ModeRAG
	// ModeTabularTool answers through one call to the dataset tool.
	ModeTabularTool
)

func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeRAG:
		return "rag"
	case ModeTabularTool:
		return "tabular"
	default:
		return "unknown"
	}
}

// state is the per-session mode variant. Each variant carries only what its
// mode needs.
type state interface {
	mode() Mode
}

type plainState struct{}

type ragState struct {
	retriever Retriever
	files     []string
}

type tabularState struct {
	tool *tabular.Tool
}

func (plainState) mode() Mode   { return ModePlain }
func (ragState) mode() Mode     { return ModeRAG }
func (tabularState) mode() Mode { return ModeTabularTool }
