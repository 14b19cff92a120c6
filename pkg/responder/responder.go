// Package responder turns a triggering message and its context into the
// bot's answer. Implementations differ in the model they ask; they all build
// the same prompt.
package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/germanamz/egbert/pkg/chats/chat"
	"github.com/germanamz/egbert/pkg/chats/history"
	"github.com/germanamz/egbert/pkg/chats/message"
	"github.com/germanamz/egbert/pkg/chats/role"
	"github.com/germanamz/egbert/pkg/memory"
	"github.com/germanamz/egbert/pkg/notify"
)

const (
	memoriesHeader = "Here are all your memories relevant to this conversation, with message sender in brackets:\n"
	otherHeader    = "Here are the recent messages in %s:\n"
)

// SourceHistory is the recent conversation of another chat source.
type SourceHistory struct {
	Source string
	Lines  []history.Line
}

// Request is everything a responder may use to answer.
type Request struct {
	TriggerMessage      string
	Sender              string
	BotName             string
	Personality         string
	SocialContextPrompt string
	Memories            []memory.Entry
	History             []history.Line
	OtherHistories      []SourceHistory
	// Notifier receives streamed progress. Nil discards it.
	Notifier notify.Notifier
}

// Responder produces the bot's answer for a request.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to Responder.
type Func func(ctx context.Context, req Request) (string, error)

// Respond calls f.
func (f Func) Respond(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// SystemPrompt joins the personality and the social context prompt.
func SystemPrompt(req Request) string {
	if req.SocialContextPrompt == "" {
		return req.Personality
	}
	if req.Personality == "" {
		return req.SocialContextPrompt
	}
	return req.Personality + "\n\n" + req.SocialContextPrompt
}

// BuildChat lays the request out as a transcript: the system prompt, one
// user message holding the memories, the source's history (the bot's own
// lines as assistant messages), one user message per other source, and the
// trigger itself last.
func BuildChat(req Request) *chat.Chat {
	c := chat.New(message.NewText("", role.System, SystemPrompt(req)))

	if len(req.Memories) > 0 {
		var b strings.Builder
		b.WriteString(memoriesHeader)
		for _, m := range req.Memories {
			b.WriteString("* " + m.String() + "\n")
		}
		c.Append(message.NewText("", role.User, b.String()))
	}

	for _, l := range req.History {
		if l.Sender != "" && strings.EqualFold(l.Sender, req.BotName) {
			c.Append(message.NewText(req.BotName, role.Assistant, l.Text))
			continue
		}
		c.Append(message.NewText(l.Sender, role.User, withSender(l.Sender, l.Text)))
	}

	for _, h := range req.OtherHistories {
		var b strings.Builder
		fmt.Fprintf(&b, otherHeader, h.Source)
		for _, l := range h.Lines {
			b.WriteString("* " + withSender(l.Sender, l.Text) + "\n")
		}
		c.Append(message.NewText("", role.User, b.String()))
	}

	c.Append(message.NewText(req.Sender, role.User, withSender(req.Sender, req.TriggerMessage)))

	return c
}

func withSender(sender, text string) string {
	if sender == "" {
		return text
	}
	return "[" + sender + "]: " + text
}

func notifierOf(req Request) notify.Notifier {
	if req.Notifier == nil {
		return notify.Nop{}
	}
	return req.Notifier
}
