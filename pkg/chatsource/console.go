package chatsource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/germanamz/egbert/pkg/chats/message"
	"github.com/germanamz/egbert/pkg/notify"
)

// DefaultConsoleSender names the person typing at the console.
const DefaultConsoleSender = "User"

var (
	userPrefixStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	answerPrefixStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	statusStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// ConsoleConfig configures a Console.
type ConsoleConfig struct {
	Config `mapstructure:",squash"`

	Sender   string `mapstructure:"sender"`
	Markdown bool   `mapstructure:"markdown"`
	// Width caps status lines and markdown wrapping. Zero means 100.
	Width int `mapstructure:"width"`
}

// Console is a line-oriented source reading from in and writing to out.
// Every member bot is asked about every line.
type Console struct {
	*Base

	in     io.Reader
	out    io.Writer
	sender string
	width  int
	render *glamour.TermRenderer

	mu sync.Mutex
}

// NewConsole creates a Console.
func NewConsole(cfg ConsoleConfig, in io.Reader, out io.Writer, log *slog.Logger) (*Console, error) {
	base, err := NewBase(cfg.Config, log)
	if err != nil {
		return nil, err
	}

	c := &Console{
		Base:   base,
		in:     in,
		out:    out,
		sender: cfg.Sender,
		width:  cfg.Width,
	}
	if c.sender == "" {
		c.sender = DefaultConsoleSender
	}
	if c.width <= 0 {
		c.width = 100
	}

	if cfg.Markdown {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(c.width))
		if err != nil {
			base.Logger().Warn("markdown rendering disabled", "error", err)
		} else {
			c.render = r
		}
	}

	return c, nil
}

// Start reads lines until in is exhausted or ctx is done.
func (c *Console) Start(ctx context.Context) error {
	if c.DefaultSocialContext() == "" {
		c.Logger().WarnContext(ctx, "console has no default social context, not starting")
		return nil
	}

	lines := make(chan string)
	readErr := make(chan error, 1)

	// Reads from a terminal cannot be interrupted; the reader goroutine
	// exits with the process when ctx ends first.
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("chatsource %s: read: %w", c.Name(), err)
					}
				default:
				}
				return nil
			}
			c.handle(ctx, line)
			c.prompt()
		}
	}
}

func (c *Console) handle(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	replies := c.Dispatch(ctx, Message{
		Sender: c.sender,
		Text:   line,
		OnRemembered: func(botName string) {
			c.printf("%s\n", statusStyle.Render(botName+" will remember that."))
		},
	}, c.notifierFor)
	for _, r := range replies {
		c.printf("%s %s\n", answerPrefixStyle.Render(r.Bot+":"), c.renderMarkdown(r.Text))
	}
}

func (c *Console) notifierFor(botName string) notify.Notifier {
	return notify.Funcs{
		OnStatus: func(text string) {
			c.printf("%s\n", statusStyle.Render(c.truncate(botName+": "+text)))
		},
		OnToolCallMessage: func(msg message.Message) {
			for _, tc := range msg.ToolCalls() {
				c.printf("%s\n", statusStyle.Render(c.truncate(botName+" → "+tc.Name+" "+tc.Arguments)))
			}
		},
	}
}

func (c *Console) prompt() {
	c.printf("%s ", userPrefixStyle.Render(c.sender+":"))
}

func (c *Console) truncate(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, c.width, "…")
}

// renderMarkdown renders text for the terminal, falling back to the raw
// text when rendering is off or fails.
func (c *Console) renderMarkdown(text string) string {
	if c.render == nil {
		return text
	}
	out, err := c.render.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}
