package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/germanamz/egbert/pkg/chats/chat"
)

// Runner executes a conversation run and returns the final answer.
type Runner interface {
	Run(ctx context.Context, c *chat.Chat) (string, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, c *chat.Chat) (string, error)

// Run calls the underlying function.
func (f RunnerFunc) Run(ctx context.Context, c *chat.Chat) (string, error) {
	return f(ctx, c)
}

// Middleware wraps a Runner, returning a new Runner with added behaviour.
type Middleware func(next Runner) Runner

// --- Timeout middleware ---

// Timeout returns a Middleware that wraps the runner's context with a deadline.
func Timeout(d time.Duration) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, c *chat.Chat) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			return next.Run(ctx, c)
		})
	}
}

// --- Recovery middleware ---

// Recovery returns a Middleware that catches panics and converts them to errors.
func Recovery() Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, c *chat.Chat) (out string, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("agent panicked: %v", r)
				}
			}()

			return next.Run(ctx, c)
		})
	}
}

// --- Logger middleware ---

// Logger returns a Middleware that logs run start, duration, and error.
func Logger(log *slog.Logger, name string) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, c *chat.Chat) (string, error) {
			log.InfoContext(ctx, "agent started", "agent", name, "messages", c.Len())

			start := time.Now()

			out, err := next.Run(ctx, c)

			duration := time.Since(start)

			if err != nil {
				log.ErrorContext(ctx, "agent finished with error",
					"agent", name,
					"duration", duration,
					"error", err,
				)
			} else {
				log.InfoContext(ctx, "agent finished",
					"agent", name,
					"duration", duration,
					"messages", c.Len(),
				)
			}

			return out, err
		})
	}
}

// --- OutputGuardrail middleware ---

// OutputGuardrail returns a Middleware that validates the final answer. If
// check returns an error, that error is returned instead of the answer.
func OutputGuardrail(check func(string) error) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, c *chat.Chat) (string, error) {
			out, err := next.Run(ctx, c)
			if err != nil {
				return out, err
			}

			if checkErr := check(out); checkErr != nil {
				return "", checkErr
			}

			return out, nil
		})
	}
}

// ErrEmptyAnswer is returned by RejectEmpty for a blank final answer.
var ErrEmptyAnswer = errors.New("agent: empty answer")

// RejectEmpty is an OutputGuardrail check that fails answers holding only
// whitespace.
func RejectEmpty(out string) error {
	if strings.TrimSpace(out) == "" {
		return ErrEmptyAnswer
	}
	return nil
}
