package ai

import (
	"strings"

	"github.com/poiesic/colloquy/core"
)

// TranscriptLabels names each role in a rendered transcript.
type TranscriptLabels struct {
	System    string
	Human     string
	Assistant string
	Tool      string
}

// DefaultTranscriptLabels are the labels used by FormatTranscript.
var DefaultTranscriptLabels = TranscriptLabels{
	System:    "System",
	Human:     "User",
	Assistant: "Assistant",
	Tool:      "Tool",
}

// FormatTranscript renders messages as a single prompt for completion-style
// models. Each message becomes "<Label>: <content>" on its own line and the
// transcript ends with the assistant label as a cue for the model's turn.
func FormatTranscript(messages []core.Message) string {
	return FormatTranscriptWith(messages, DefaultTranscriptLabels)
}

// FormatTranscriptWith is FormatTranscript with custom labels.
func FormatTranscriptWith(messages []core.Message, labels TranscriptLabels) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			// System text is written bare, as the preamble the model reads first.
			b.WriteString(strings.TrimSpace(msg.Content))
			b.WriteString("\n")
			continue
		case core.RoleHuman:
			b.WriteString(labels.Human)
		case core.RoleAssistant:
			b.WriteString(labels.Assistant)
		case core.RoleTool:
			b.WriteString(labels.Tool)
		default:
			continue
		}
		b.WriteString(": ")
		if msg.ToolCall != nil {
			b.WriteString("[calls ")
			b.WriteString(msg.ToolCall.Name)
			b.WriteString(" with ")
			b.WriteString(msg.ToolCall.Arguments)
			b.WriteString("]")
		} else {
			b.WriteString(strings.TrimSpace(msg.Content))
		}
		b.WriteString("\n")
	}
	b.WriteString(labels.Assistant)
	b.WriteString(":")
	return b.String()
}

// EstimateTokens approximates the token count of a message.
func EstimateTokens(msg core.Message) int {
	n := len(msg.Content)
	if msg.ToolCall != nil {
		n += len(msg.ToolCall.Name) + len(msg.ToolCall.Arguments)
	}
	return n/4 + 4
}

// TrimToWindow drops the oldest conversational messages until the estimated
// size fits within window tokens. System messages are always kept, the newest
// message is always kept, and a tool result is never separated from the
// assistant message that requested it. A window of zero or less disables trimming.
func TrimToWindow(messages []core.Message, window int) []core.Message {
	if window <= 0 || len(messages) == 0 {
		return messages
	}

	budget := window
	for _, msg := range messages {
		if msg.Role == core.RoleSystem {
			budget -= EstimateTokens(msg)
		}
	}

	keep := make([]bool, len(messages))
	for i, msg := range messages {
		keep[i] = msg.Role == core.RoleSystem
	}

	end := len(messages) - 1
	first := true
	for end >= 0 {
		if messages[end].Role == core.RoleSystem {
			end--
			continue
		}
		start := unitStart(messages, end)
		cost := 0
		for i := start; i <= end; i++ {
			if messages[i].Role != core.RoleSystem {
				cost += EstimateTokens(messages[i])
			}
		}
		if cost > budget && !first {
			break
		}
		budget -= cost
		for i := start; i <= end; i++ {
			keep[i] = true
		}
		first = false
		end = start - 1
	}

	out := make([]core.Message, 0, len(messages))
	for i, msg := range messages {
		if keep[i] {
			out = append(out, msg)
		}
	}
	return out
}

// unitStart returns the index of the first message in the unit ending at end.
// A tool result extends back to the assistant message holding its call.
func unitStart(messages []core.Message, end int) int {
	msg := messages[end]
	if msg.Role != core.RoleTool || msg.ToolResult == nil {
		return end
	}
	for i := end - 1; i >= 0; i-- {
		if call := messages[i].ToolCall; call != nil && call.ID == msg.ToolResult.CallID {
			return i
		}
	}
	return end
}
