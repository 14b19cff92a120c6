package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/germanamz/egbert/pkg/chats/message"
	"github.com/germanamz/egbert/pkg/chats/role"
)

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	n.Status(context.Background(), "x")
	n.ContentChunk(context.Background(), "x", "stop")
	n.ToolCallMessage(context.Background(), message.NewText("a", role.User, "x"))
}

func TestFuncs(t *testing.T) {
	var statuses, chunks []string
	var msgs []message.Message

	n := Funcs{
		OnStatus:          func(text string) { statuses = append(statuses, text) },
		OnContentChunk:    func(text, fr string) { chunks = append(chunks, text+"|"+fr) },
		OnToolCallMessage: func(m message.Message) { msgs = append(msgs, m) },
	}

	n.Status(context.Background(), "Thinking...")
	n.ContentChunk(context.Background(), "Hi", "")
	n.ContentChunk(context.Background(), "", "stop")
	n.ToolCallMessage(context.Background(), message.NewText("bot", role.Assistant, "call"))

	assert.Equal(t, []string{"Thinking..."}, statuses)
	assert.Equal(t, []string{"Hi|", "|stop"}, chunks)
	assert.Len(t, msgs, 1)
}

func TestFuncs_NilFieldsSkipped(t *testing.T) {
	var n Notifier = Funcs{}
	n.Status(context.Background(), "x")
	n.ContentChunk(context.Background(), "x", "")
	n.ToolCallMessage(context.Background(), message.Message{})
}

func TestMulti(t *testing.T) {
	var a, b []string
	n := Multi(
		Funcs{OnStatus: func(s string) { a = append(a, s) }},
		nil,
		Funcs{OnStatus: func(s string) { b = append(b, s) }},
	)

	n.Status(context.Background(), "working")

	assert.Equal(t, []string{"working"}, a)
	assert.Equal(t, []string{"working"}, b)
}
