package openai

import (
	"testing"

	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestToMessageContent(t *testing.T) {
	call := core.ToolCall{ID: "call_9", Name: "query_dataset", Arguments: `{"expression":"count()"}`}
	messages := []core.Message{
		core.SystemMessage("seed"),
		core.HumanMessage("how many rows?"),
		core.ToolCallMessage(call),
		core.ToolResultMessage(call, "12"),
		core.AssistantMessage("There are 12 rows."),
	}

	content := toMessageContent(messages)
	require.Len(t, content, 5)

	assert.Equal(t, llms.ChatMessageTypeSystem, content[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, content[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, content[2].Role)
	assert.Equal(t, llms.ChatMessageTypeTool, content[3].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, content[4].Role)

	tc, ok := content[2].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "call_9", tc.ID)
	assert.Equal(t, "query_dataset", tc.FunctionCall.Name)

	resp, ok := content[3].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_9", resp.ToolCallID)
	assert.Equal(t, "12", resp.Content)
}

func TestToTools(t *testing.T) {
	tools := toTools([]ai.ToolDefinition{{
		Name:        "query_dataset",
		Description: "evaluate an expression",
		Parameters:  map[string]any{"type": "object"},
	}})

	require.Len(t, tools, 1)
	assert.Equal(t, "function", tools[0].Type)
	assert.Equal(t, "query_dataset", tools[0].Function.Name)
}

func TestToGeneration(t *testing.T) {
	t.Run("tool calls", func(t *testing.T) {
		gen := toGeneration(&llms.ContentChoice{
			ToolCalls: []llms.ToolCall{{
				ID:           "",
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: "query_dataset", Arguments: "```json\n{\"expression\": \"count()\"}\n```"},
			}},
		})

		require.Len(t, gen.ToolCalls, 1)
		assert.NotEmpty(t, gen.ToolCalls[0].ID, "missing ids are generated")
		assert.JSONEq(t, `{"expression":"count()"}`, gen.ToolCalls[0].Arguments)
	})

	t.Run("legacy function call", func(t *testing.T) {
		gen := toGeneration(&llms.ContentChoice{
			FuncCall: &llms.FunctionCall{Name: "query_dataset", Arguments: `{}`},
		})

		require.Len(t, gen.ToolCalls, 1)
		assert.Equal(t, "query_dataset", gen.ToolCalls[0].Name)
	})

	t.Run("text", func(t *testing.T) {
		gen := toGeneration(&llms.ContentChoice{Content: "  hello \n", StopReason: "stop"})

		assert.Equal(t, "hello", gen.Content)
		assert.False(t, gen.HasToolCalls())
	})
}

func TestNormalizeArguments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid", `{"expression":"count()"}`, `{"expression":"count()"}`},
		{"empty", "  ", "{}"},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"missing opening quote", `{expression":"count()"}`, `{"expression":"count()"}`},
		{"unrepairable", `count()`, `count()`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeArguments(tt.in))
		})
	}
}
