package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPart_Kinds(t *testing.T) {
	parts := []Part{
		Text{Text: "hi"},
		ToolCall{ID: "call_1", Name: "get_weather", Arguments: `{"location":"Oslo"}`},
		ToolResult{ToolCallID: "call_1", Content: "sunny"},
	}

	expected := []string{"text", "tool_call", "tool_result"}
	for i, p := range parts {
		assert.Equal(t, expected[i], p.PartKind())
	}
}
