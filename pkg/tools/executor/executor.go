// Package executor runs the tool calls of one model turn concurrently and
// turns every outcome, including failures, into a result the model can read.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/germanamz/egbert/pkg/chats/content"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

const (
	// DefaultMaxResultLen caps the characters of a single tool result.
	DefaultMaxResultLen = 20000
	// DefaultTimeout bounds a single tool invocation.
	DefaultTimeout = 60 * time.Second
	// SuccessSentinel replaces empty tool output.
	SuccessSentinel = "The function completed successfully."
)

// ErrTimeout is reported, via the failure text, when a tool outlives its budget.
var ErrTimeout = errors.New("tool execution timed out")

// Options configures an Executor. Zero values select the defaults; a negative
// Timeout disables the per-tool deadline.
type Options struct {
	Timeout      time.Duration
	MaxResultLen int
	Logger       *slog.Logger
}

// Executor runs tool calls against a ToolBox. It holds no per-run state and
// may be shared between conversations.
type Executor struct {
	timeout      time.Duration
	maxResultLen int
	log          *slog.Logger
}

// New creates an Executor.
func New(opts Options) *Executor {
	e := &Executor{
		timeout:      opts.Timeout,
		maxResultLen: opts.MaxResultLen,
		log:          opts.Logger,
	}
	if e.timeout == 0 {
		e.timeout = DefaultTimeout
	}
	if e.maxResultLen <= 0 {
		e.maxResultLen = DefaultMaxResultLen
	}
	if e.log == nil {
		e.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// Execute runs every call concurrently and waits for all of them. It returns
// exactly one result per call, in the order of calls. A failing, panicking,
// unknown, or timed-out call only affects its own result.
func (e *Executor) Execute(ctx context.Context, tb *toolbox.ToolBox, calls []content.ToolCall) []content.ToolResult {
	results := make([]content.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Go(func() {
			results[i] = e.call(ctx, tb, tc)
		})
	}
	wg.Wait()

	return results
}

func (e *Executor) call(ctx context.Context, tb *toolbox.ToolBox, tc content.ToolCall) content.ToolResult {
	res := content.ToolResult{ToolCallID: tc.ID, Name: tc.Name}

	tool, ok := tb.Get(tc.Name)
	if !ok {
		e.log.WarnContext(ctx, "model requested unknown tool", "tool", tc.Name, "call_id", tc.ID)
		res.Content = fmt.Sprintf("Tool %s is not available.", tc.Name)
		res.IsError = true
		return res
	}

	args, err := tb.Arguments(tc.Name, html.UnescapeString(tc.Arguments))
	if err != nil {
		return e.failed(ctx, res, tc, err)
	}

	out, err := e.invoke(ctx, tool, args)
	if err != nil {
		return e.failed(ctx, res, tc, err)
	}

	text, err := format(out)
	if err != nil {
		return e.failed(ctx, res, tc, err)
	}

	res.Content = e.truncate(ctx, tc.Name, text)
	return res
}

// invoke runs the handler under the per-tool deadline. A handler that ignores
// its context is abandoned once the deadline passes; its result is discarded.
func (e *Executor) invoke(ctx context.Context, tool toolbox.Tool, args json.RawMessage) (any, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		v, err := tool.Handler(ctx, args)
		done <- outcome{val: v, err: err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
		}
		return nil, ctx.Err()
	}
}

func (e *Executor) failed(ctx context.Context, res content.ToolResult, tc content.ToolCall, err error) content.ToolResult {
	e.log.ErrorContext(ctx, "tool call failed",
		"tool", tc.Name,
		"call_id", tc.ID,
		"arguments", tc.Arguments,
		"error", err,
	)
	res.Content = FailureText(err.Error())
	res.IsError = true
	return res
}

func (e *Executor) truncate(ctx context.Context, name, text string) string {
	runes := []rune(text)
	if len(runes) <= e.maxResultLen {
		return text
	}
	e.log.WarnContext(ctx, "truncating tool result",
		"tool", name,
		"length", len(runes),
		"max", e.maxResultLen,
	)
	return string(runes[:e.maxResultLen])
}

// FailureText is the result content reported to the model when a call fails.
func FailureText(msg string) string {
	return fmt.Sprintf("The tool call failed with error message '%s'. Don't retry, just inform the user. %s", msg, msg)
}

// format renders a handler return value as result text. Empty output becomes
// SuccessSentinel.
func format(v any) (string, error) {
	var text string
	switch val := v.(type) {
	case nil:
	case string:
		text = val
	case []byte:
		text = string(val)
	case json.RawMessage:
		text = string(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("encode tool result: %w", err)
		}
		text = string(data)
	}
	if text == "" {
		return SuccessSentinel, nil
	}
	return text, nil
}
