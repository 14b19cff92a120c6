// Package message defines the Message type used in conversations.
package message

import (
	"strings"

	"github.com/germanamz/egbert/pkg/chats/content"
	"github.com/germanamz/egbert/pkg/chats/role"
)

// Message is a single entry in a conversation. It is a value type that copies
// cheaply; Parts is shared between copies and must not be mutated in place.
type Message struct {
	Sender string
	Role   role.Role
	Parts  []content.Part
}

// New creates a message with the given sender, role, and content parts.
func New(sender string, r role.Role, parts ...content.Part) Message {
	return Message{
		Sender: sender,
		Role:   r,
		Parts:  parts,
	}
}

// NewText creates a message with a single Text content part.
func NewText(sender string, r role.Role, text string) Message {
	return New(sender, r, content.Text{Text: text})
}

// NewToolResult creates a tool-role message carrying a single result.
func NewToolResult(res content.ToolResult) Message {
	return New(res.Name, role.Tool, res)
}

// TextContent concatenates the text of all Text parts in the message.
func (m Message) TextContent() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(content.Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolCalls returns all ToolCall parts in the message.
func (m Message) ToolCalls() []content.ToolCall {
	var calls []content.ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(content.ToolCall); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// ToolResult returns the first ToolResult part, if any.
func (m Message) ToolResult() (content.ToolResult, bool) {
	for _, p := range m.Parts {
		if tr, ok := p.(content.ToolResult); ok {
			return tr, true
		}
	}
	return content.ToolResult{}, false
}
