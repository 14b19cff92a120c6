// Package agent runs the conversation loop: it streams a model turn, forwards
// text as it arrives, gathers tool-call fragments into complete calls, runs
// the tools and feeds their results back until the model answers in text.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/germanamz/egbert/pkg/agentctx"
	"github.com/germanamz/egbert/pkg/chats/chat"
	"github.com/germanamz/egbert/pkg/chats/content"
	"github.com/germanamz/egbert/pkg/chats/message"
	"github.com/germanamz/egbert/pkg/chats/role"
	"github.com/germanamz/egbert/pkg/modeladapter"
	"github.com/germanamz/egbert/pkg/notify"
	"github.com/germanamz/egbert/pkg/stream"
	"github.com/germanamz/egbert/pkg/tools/executor"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

const (
	// DefaultMaxRoundTrips bounds how many times tools may be run in one Run.
	DefaultMaxRoundTrips = 10
	// ToolCallPlaceholder is the content of assistant tool-call messages.
	ToolCallPlaceholder = "Tool call request from the assistant"
	// DefaultThinkingStatus is reported when a run starts.
	DefaultThinkingStatus = "Thinking..."
	// DefaultToolStatus is reported before the tools of a turn run.
	DefaultToolStatus = "Putting together an answer..."
)

// ErrMaxRoundTrips is returned when the model keeps asking for tools past
// Options.MaxRoundTrips.
var ErrMaxRoundTrips = errors.New("agent: tool-call loop exceeded")

// Options configures an Agent.
type Options struct {
	MaxRoundTrips    int           // Tool round trips per Run (0 = DefaultMaxRoundTrips, <0 = unlimited).
	ToolTimeout      time.Duration // Per-tool deadline (0 = executor default, <0 = none).
	MaxToolResultLen int           // Characters kept per tool result (0 = executor default).
	Notifier         notify.Notifier
	Middleware       []Middleware // Applied around Run().
	Logger           *slog.Logger
	ThinkingStatus   string
	ToolStatus       string
}

// Agent drives one model through tool-calling conversations. It keeps no
// per-run state, so one Agent may serve concurrent runs on separate chats.
type Agent struct {
	name     string
	streamer modeladapter.Streamer
	tools    *toolbox.ToolBox
	exec     *executor.Executor
	notifier notify.Notifier
	log      *slog.Logger
	options  Options
}

// New creates an Agent. tools may be nil for a model without tools.
func New(name string, streamer modeladapter.Streamer, tools *toolbox.ToolBox, opts Options) *Agent {
	if opts.MaxRoundTrips == 0 {
		opts.MaxRoundTrips = DefaultMaxRoundTrips
	}
	if opts.ThinkingStatus == "" {
		opts.ThinkingStatus = DefaultThinkingStatus
	}
	if opts.ToolStatus == "" {
		opts.ToolStatus = DefaultToolStatus
	}
	if tools == nil {
		tools = toolbox.New()
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	n := opts.Notifier
	if n == nil {
		n = notify.Nop{}
	}

	return &Agent{
		name:     name,
		streamer: streamer,
		tools:    tools,
		exec: executor.New(executor.Options{
			Timeout:      opts.ToolTimeout,
			MaxResultLen: opts.MaxToolResultLen,
			Logger:       log,
		}),
		notifier: n,
		log:      log,
		options:  opts,
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// ToolBox returns the tools offered to the model.
func (a *Agent) ToolBox() *toolbox.ToolBox { return a.tools }

// Run continues the conversation in c until the model produces a final text
// answer, and returns that text. Every assistant and tool message of the run
// is appended to c; the final assistant message holds the whole answer,
// including text streamed before tool calls. Only transport failures and ErrMaxRoundTrips end a run
// with an error; tool problems are reported to the model instead.
func (a *Agent) Run(ctx context.Context, c *chat.Chat) (string, error) {
	var runner Runner = RunnerFunc(a.run)

	// Apply middleware in reverse order so the first middleware is outermost.
	for i := len(a.options.Middleware) - 1; i >= 0; i-- {
		runner = a.options.Middleware[i](runner)
	}

	return runner.Run(ctx, c)
}

func (a *Agent) run(ctx context.Context, c *chat.Chat) (string, error) {
	ctx = agentctx.WithBotName(ctx, a.name)
	ctx = agentctx.WithStatus(ctx, func(text string) { a.notifier.Status(ctx, text) })

	a.notifier.Status(ctx, a.options.ThinkingStatus)

	tools := a.tools.Tools()

	// The reply buffer spans round trips: text streamed before a tool call
	// is part of the answer the user already saw.
	var reply strings.Builder

	for trip := 0; ; trip++ {
		text, calls, err := a.streamTurn(ctx, c, tools)
		if err != nil {
			return "", err
		}
		reply.WriteString(text)

		if len(calls) == 0 {
			out := reply.String()
			c.Append(message.NewText(a.name, role.Assistant, out))
			return out, nil
		}

		if a.options.MaxRoundTrips > 0 && trip >= a.options.MaxRoundTrips {
			return "", fmt.Errorf("%w: %d round trips", ErrMaxRoundTrips, trip)
		}

		a.runTools(ctx, c, calls)
	}
}

// streamTurn consumes one streamed model turn. Content frames are forwarded
// as they arrive; tool-call frames are merged into complete calls.
func (a *Agent) streamTurn(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (string, []content.ToolCall, error) {
	fs, err := a.streamer.Stream(ctx, c, tools)
	if err != nil {
		return "", nil, fmt.Errorf("agent: open stream: %w", err)
	}
	defer func() { _ = fs.Close() }()

	var (
		text strings.Builder
		agg  stream.Aggregator
	)

	for {
		f, err := fs.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("agent: stream: %w", err)
		}

		switch stream.Classify(f) {
		case stream.KindToolCall:
			agg.Merge(f)
		case stream.KindContent:
			a.notifier.ContentChunk(ctx, f.Content, f.FinishReason)
			text.WriteString(f.Content)
		}
	}

	return text.String(), agg.Calls(), nil
}

// runTools records the model's tool calls, executes them and appends one tool
// message per call, in call order.
func (a *Agent) runTools(ctx context.Context, c *chat.Chat, calls []content.ToolCall) {
	a.notifier.Status(ctx, a.options.ToolStatus)

	parts := make([]content.Part, 0, len(calls)+1)
	parts = append(parts, content.Text{Text: ToolCallPlaceholder})
	for _, tc := range calls {
		parts = append(parts, tc)
	}
	callMsg := message.New(a.name, role.Assistant, parts...)
	c.Append(callMsg)
	a.notifier.ToolCallMessage(ctx, callMsg)

	a.log.DebugContext(ctx, "running tools", "agent", a.name, "calls", len(calls))

	for _, res := range a.exec.Execute(ctx, a.tools, calls) {
		msg := message.NewToolResult(res)
		c.Append(msg)
		a.notifier.ToolCallMessage(ctx, msg)
	}
}
