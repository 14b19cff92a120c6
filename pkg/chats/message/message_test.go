package message

import (
	"testing"

	"github.com/germanamz/egbert/pkg/chats/content"
	"github.com/germanamz/egbert/pkg/chats/role"

	"github.com/stretchr/testify/assert"
)

func TestNewText(t *testing.T) {
	msg := NewText("bob", role.Assistant, "hi there")

	assert.Equal(t, "bob", msg.Sender)
	assert.Equal(t, role.Assistant, msg.Role)
	assert.Len(t, msg.Parts, 1)
	assert.Equal(t, "hi there", msg.Parts[0].(content.Text).Text)
}

func TestMessage_TextContent(t *testing.T) {
	msg := New("alice", role.User,
		content.Text{Text: "hello "},
		content.ToolCall{ID: "c1", Name: "noop"},
		content.Text{Text: "world"},
	)

	assert.Equal(t, "hello world", msg.TextContent())
}

func TestMessage_TextContent_NoParts(t *testing.T) {
	msg := New("alice", role.User)
	assert.Empty(t, msg.TextContent())
}

func TestMessage_ToolCalls(t *testing.T) {
	msg := New("bot", role.Assistant,
		content.Text{Text: "Tool call request from the assistant"},
		content.ToolCall{ID: "c1", Name: "a", Arguments: "{}"},
		content.ToolCall{ID: "c2", Name: "b", Arguments: `{"x":1}`},
	)

	calls := msg.ToolCalls()
	assert.Len(t, calls, 2)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, "b", calls[1].Name)
}

func TestMessage_ToolCalls_None(t *testing.T) {
	assert.Nil(t, NewText("alice", role.User, "hi").ToolCalls())
}

func TestNewToolResult(t *testing.T) {
	msg := NewToolResult(content.ToolResult{ToolCallID: "c1", Name: "get_weather", Content: "cold"})

	assert.Equal(t, role.Tool, msg.Role)
	assert.Equal(t, "get_weather", msg.Sender)

	tr, ok := msg.ToolResult()
	assert.True(t, ok)
	assert.Equal(t, "c1", tr.ToolCallID)
	assert.Equal(t, "cold", tr.Content)

	_, ok = NewText("a", role.User, "x").ToolResult()
	assert.False(t, ok)
}
