// Package chatsource connects bots to places people chat. A Source reads
// messages, lets every member bot decide whether to answer, and delivers the
// answers back, keeping a short history for context.
package chatsource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/germanamz/egbert/pkg/bot"
	"github.com/germanamz/egbert/pkg/chats/history"
	"github.com/germanamz/egbert/pkg/notify"
)

// Source is a chat platform connection.
type Source interface {
	Name() string
	SocialContexts() []string
	CrossReference() *regexp.Regexp
	History() []history.Line
	AddBot(b *bot.Bot)
	// Start serves until ctx is done or the source fails.
	Start(ctx context.Context) error
}

// DefaultMaxHistory is the history length used when none is configured.
const DefaultMaxHistory = 20

// Config holds the settings every source shares.
type Config struct {
	Name                 string `mapstructure:"-"`
	DefaultSocialContext string `mapstructure:"default_social_context"`
	// MaxHistory caps the remembered lines. Zero uses DefaultMaxHistory and
	// a negative value keeps no history.
	MaxHistory     int    `mapstructure:"max_history"`
	CrossReference string `mapstructure:"cross_reference"`
}

// Message is one incoming chat line.
type Message struct {
	SocialContext string
	Sender        string
	Text          string
	// OnRemembered is called when a bot saves the message as a memory.
	OnRemembered func(botName string)
}

// Reply is one bot's answer to a Message.
type Reply struct {
	Bot  string
	Text string
}

// Base implements the platform-independent half of a Source.
type Base struct {
	name                 string
	defaultSocialContext string
	history              *history.Capped[history.Line]
	crossRef             *regexp.Regexp
	bots                 []*bot.Bot
	notifier             notify.Notifier
	log                  *slog.Logger
}

// NewBase validates cfg and creates a Base.
func NewBase(cfg Config, log *slog.Logger) (*Base, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if cfg.MaxHistory == 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}

	b := &Base{
		name:                 cfg.Name,
		defaultSocialContext: strings.TrimSpace(cfg.DefaultSocialContext),
		history:              history.NewCapped[history.Line](cfg.MaxHistory),
		notifier:             notify.Nop{},
		log:                  log.With("chat_source", cfg.Name),
	}

	if cfg.CrossReference != "" {
		re, err := regexp.Compile(cfg.CrossReference)
		if err != nil {
			return nil, fmt.Errorf("chatsource %s: cross reference: %w", cfg.Name, err)
		}
		b.crossRef = re
	}

	return b, nil
}

// Name returns the source name.
func (b *Base) Name() string { return b.name }

// DefaultSocialContext returns the context messages belong to when the
// platform does not say otherwise. Empty means none.
func (b *Base) DefaultSocialContext() string { return b.defaultSocialContext }

// SocialContexts returns the contexts this source serves.
func (b *Base) SocialContexts() []string {
	if b.defaultSocialContext == "" {
		return nil
	}
	return []string{b.defaultSocialContext}
}

// CrossReference returns the pattern that makes other sources quote this
// one's history, or nil.
func (b *Base) CrossReference() *regexp.Regexp { return b.crossRef }

// History returns the recent lines, oldest first.
func (b *Base) History() []history.Line { return b.history.Items() }

// AddBot attaches a bot. Bots are asked in the order they were added.
func (b *Base) AddBot(bt *bot.Bot) { b.bots = append(b.bots, bt) }

// Bots returns the attached bots.
func (b *Base) Bots() []*bot.Bot { return b.bots }

// SetNotifier adds a notifier that observes every run from this source.
func (b *Base) SetNotifier(n notify.Notifier) {
	if n == nil {
		n = notify.Nop{}
	}
	b.notifier = n
}

// Logger returns the source's logger.
func (b *Base) Logger() *slog.Logger { return b.log }

// Dispatch offers msg to every member bot in order and collects the answers.
// notifierFor, if not nil, supplies a per-bot notifier for streamed
// progress. The message and all answers are added to the history only after
// every bot has had its turn, so bots answer the same context.
func (b *Base) Dispatch(ctx context.Context, msg Message, notifierFor func(botName string) notify.Notifier) []Reply {
	if msg.SocialContext == "" {
		msg.SocialContext = b.defaultSocialContext
	}

	prior := b.history.Items()
	lines := []history.Line{{Sender: msg.Sender, Text: msg.Text}}

	var replies []Reply
	for _, bt := range b.bots {
		if !bt.IsMemberOf(msg.SocialContext) || !bt.WillRespond(msg.SocialContext, msg.Text) {
			continue
		}

		n := b.notifier
		if notifierFor != nil {
			n = notify.Multi(b.notifier, notifierFor(bt.Name()))
		}

		var remembered func()
		if msg.OnRemembered != nil {
			name := bt.Name()
			remembered = func() { msg.OnRemembered(name) }
		}

		out, err := bt.GenerateResponse(ctx, bot.Event{
			ChatSource:    b.name,
			SocialContext: msg.SocialContext,
			Sender:        msg.Sender,
			Text:          msg.Text,
			History:       prior,
			Notifier:      n,
			OnRemembered:  remembered,
		})
		if err != nil {
			b.log.ErrorContext(ctx, "bot failed to respond", "bot", bt.Name(), "error", err)
			continue
		}
		if strings.TrimSpace(out) == "" {
			continue
		}

		replies = append(replies, Reply{Bot: bt.Name(), Text: out})
		lines = append(lines, history.Line{Sender: bt.Name(), Text: out})
	}

	b.history.Push(lines...)
	return replies
}
