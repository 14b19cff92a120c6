package notify

import (
	"context"
	"sync"
	"time"

	"github.com/germanamz/egbert/pkg/agentctx"
	"github.com/germanamz/egbert/pkg/chats/message"
	"github.com/germanamz/egbert/pkg/chats/role"
)

// EventKind identifies the type of a published event.
type EventKind string

const (
	// EventStatus carries a status line in Text.
	EventStatus EventKind = "status"
	// EventContentChunk carries streamed assistant text and, on the last
	// chunk, the finish reason.
	EventContentChunk EventKind = "content_chunk"
	// EventToolCall carries the assistant message requesting tool calls.
	EventToolCall EventKind = "tool_call"
	// EventToolResult carries one tool result message; Text is its content.
	EventToolResult EventKind = "tool_result"
)

// Event is an immutable notification of conversation activity.
type Event struct {
	Kind          EventKind
	Bot           string
	SocialContext string
	Timestamp     time.Time
	Text          string
	FinishReason  string
	Message       message.Message
}

// Subscription receives events from a Bus.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// Bus is a Notifier that fans events out to channel subscribers. Bot and
// social context are read from the context of each call. It is safe for
// concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
	now  func() time.Time
}

// NewBus creates a Bus ready for use.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[*Subscription]struct{}),
		now:  time.Now,
	}
}

// Subscribe creates a new subscription with the given channel buffer size.
// The caller should read from sub.C and eventually call Unsubscribe.
func (b *Bus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish sends an event to all subscribers. If a subscriber's buffer is full
// the event is dropped for that subscriber so a slow consumer never stalls a
// conversation.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
		}
	}
}

func (b *Bus) event(ctx context.Context, kind EventKind) Event {
	return Event{
		Kind:          kind,
		Bot:           agentctx.BotNameFromContext(ctx),
		SocialContext: agentctx.SocialContextFromContext(ctx),
		Timestamp:     b.now(),
	}
}

// Status publishes an EventStatus.
func (b *Bus) Status(ctx context.Context, text string) {
	e := b.event(ctx, EventStatus)
	e.Text = text
	b.Publish(e)
}

// ContentChunk publishes an EventContentChunk.
func (b *Bus) ContentChunk(ctx context.Context, text, finishReason string) {
	e := b.event(ctx, EventContentChunk)
	e.Text = text
	e.FinishReason = finishReason
	b.Publish(e)
}

// ToolCallMessage publishes an EventToolResult for tool messages and an
// EventToolCall for everything else.
func (b *Bus) ToolCallMessage(ctx context.Context, msg message.Message) {
	kind := EventToolCall
	if msg.Role == role.Tool {
		kind = EventToolResult
	}
	e := b.event(ctx, kind)
	e.Message = msg
	e.Text = msg.TextContent()
	if tr, ok := msg.ToolResult(); ok {
		e.Text = tr.Content
	}
	b.Publish(e)
}
