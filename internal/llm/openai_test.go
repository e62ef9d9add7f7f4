package llm

import (
	"encoding/json"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAIClient("", "")
	assert.Error(t, err)

	c, err := NewOpenAIClient("sk-test", "https://api.groq.com/openai/v1")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
}

func TestToOpenAIMessages(t *testing.T) {
	t.Parallel()

	msgs := []ChatMessage{
		{Role: "system", Content: "you are helpful"},
		{Role: "user", Content: "hi"},
		{
			Role: "assistant",
			ToolCalls: []ToolCall{
				{ID: "call-1", Name: "calendar", Arguments: `{"start_time":"x"}`},
			},
		},
		{Role: "tool", Content: `{"result":[]}`, ToolCallID: "call-1", Name: "calendar"},
	}

	out := toOpenAIMessages(msgs)
	require.Len(t, out, 4)

	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "hi", out[1].Content)

	require.Len(t, out[2].ToolCalls, 1)
	assert.Equal(t, "call-1", out[2].ToolCalls[0].ID)
	assert.Equal(t, openai.ToolTypeFunction, out[2].ToolCalls[0].Type)
	assert.Equal(t, "calendar", out[2].ToolCalls[0].Function.Name)

	assert.Equal(t, "tool", out[3].Role)
	assert.Equal(t, "call-1", out[3].ToolCallID)
	assert.Equal(t, "calendar", out[3].Name)
}

func TestToOpenAITools(t *testing.T) {
	t.Parallel()

	tools := []Tool{
		{
			Name:        "calendar",
			Description: "get events of the user's calendar",
			Parameters:  json.RawMessage(`{"type":"object"}`),
		},
	}

	out := toOpenAITools(tools)
	require.Len(t, out, 1)
	assert.Equal(t, openai.ToolTypeFunction, out[0].Type)
	require.NotNil(t, out[0].Function)
	assert.Equal(t, "calendar", out[0].Function.Name)
}
