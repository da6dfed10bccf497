package openai

import (
	"encoding/json"
	"strings"

	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/core"
	"github.com/tmc/langchaingo/llms"
)

// toMessageContent maps session messages onto langchaingo's chat message parts.
func toMessageContent(messages []core.Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			content = append(content, textContent(llms.ChatMessageTypeSystem, msg.Content))
		case core.RoleHuman:
			content = append(content, textContent(llms.ChatMessageTypeHuman, msg.Content))
		case core.RoleAssistant:
			if msg.ToolCall == nil {
				content = append(content, textContent(llms.ChatMessageTypeAI, msg.Content))
				continue
			}
			content = append(content, llms.MessageContent{
				Role: llms.ChatMessageTypeAI,
				Parts: []llms.ContentPart{llms.ToolCall{
					ID:   msg.ToolCall.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      msg.ToolCall.Name,
						Arguments: msg.ToolCall.Arguments,
					},
				}},
			})
		case core.RoleTool:
			if msg.ToolResult == nil {
				continue
			}
			content = append(content, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.ToolResult.CallID,
					Name:       msg.ToolResult.Name,
					Content:    msg.ToolResult.Content,
				}},
			})
		}
	}
	return content
}

func textContent(role llms.ChatMessageType, text string) llms.MessageContent {
	return llms.MessageContent{
		Role:  role,
		Parts: []llms.ContentPart{llms.TextPart(text)},
	}
}

func toTools(defs []ai.ToolDefinition) []llms.Tool {
	tools := make([]llms.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools
}

// normalizeArguments cleans up tool-call arguments produced by small local
// models: markdown fences are stripped and unquoted keys repaired. Arguments
// that still fail to parse are returned as given.
func normalizeArguments(args string) string {
	s := strings.TrimSpace(args)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return "{}"
	}
	if json.Valid([]byte(s)) {
		return s
	}
	if repaired := repairJSON(s); json.Valid([]byte(repaired)) {
		return repaired
	}
	return s
}
