// Package notify defines the output sink a conversation run reports to.
// A Notifier only observes: nothing it does can change the course of a run.
package notify

import (
	"context"

	"github.com/germanamz/egbert/pkg/chats/message"
)

// Notifier receives progress from a conversation run. Implementations must
// return quickly; slow sinks should buffer or drop.
type Notifier interface {
	// Status reports a short human-readable activity line.
	Status(ctx context.Context, text string)
	// ContentChunk forwards assistant text as it streams. finishReason is
	// empty until the model reports one.
	ContentChunk(ctx context.Context, text, finishReason string)
	// ToolCallMessage forwards each assistant tool-call message and each tool
	// result message as it is appended to the transcript.
	ToolCallMessage(ctx context.Context, msg message.Message)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Status(context.Context, string)                   {}
func (Nop) ContentChunk(context.Context, string, string)     {}
func (Nop) ToolCallMessage(context.Context, message.Message) {}

// Funcs adapts optional callbacks to a Notifier. Nil fields are skipped.
type Funcs struct {
	OnStatus          func(text string)
	OnContentChunk    func(text, finishReason string)
	OnToolCallMessage func(msg message.Message)
}

func (f Funcs) Status(_ context.Context, text string) {
	if f.OnStatus != nil {
		f.OnStatus(text)
	}
}

func (f Funcs) ContentChunk(_ context.Context, text, finishReason string) {
	if f.OnContentChunk != nil {
		f.OnContentChunk(text, finishReason)
	}
}

func (f Funcs) ToolCallMessage(_ context.Context, msg message.Message) {
	if f.OnToolCallMessage != nil {
		f.OnToolCallMessage(msg)
	}
}

type multi []Notifier

// Multi fans every notification out to all of ns, in order. Nil entries are
// dropped.
func Multi(ns ...Notifier) Notifier {
	var out multi
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m multi) Status(ctx context.Context, text string) {
	for _, n := range m {
		n.Status(ctx, text)
	}
}

func (m multi) ContentChunk(ctx context.Context, text, finishReason string) {
	for _, n := range m {
		n.ContentChunk(ctx, text, finishReason)
	}
}

func (m multi) ToolCallMessage(ctx context.Context, msg message.Message) {
	for _, n := range m {
		n.ToolCallMessage(ctx, msg)
	}
}
