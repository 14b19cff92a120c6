// Package bot holds a bot's identity and decides when it speaks. A Bot
// checks its triggers against incoming messages and, when asked, gathers
// memories and other channels' history before handing off to its Responder.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"slices"

	"github.com/germanamz/egbert/pkg/agentctx"
	"github.com/germanamz/egbert/pkg/chats/history"
	"github.com/germanamz/egbert/pkg/memory"
	"github.com/germanamz/egbert/pkg/notify"
	"github.com/germanamz/egbert/pkg/responder"
)

// TriggerConfig describes when a bot responds.
type TriggerConfig struct {
	Pattern       string  `yaml:"pattern"`
	SocialContext string  `yaml:"social_context"`
	Probability   float64 `yaml:"probability"`
}

// Config is a bot's identity.
type Config struct {
	Name           string
	Personality    string
	SocialContexts []string
	// SocialPrompts maps a social context to extra system prompt text.
	SocialPrompts map[string]string
	// Triggers default to the bot's name as a whole word.
	Triggers []TriggerConfig
}

// Peer is a chat source whose recent history a bot may quote.
type Peer interface {
	Name() string
	CrossReference() *regexp.Regexp
	History() []history.Line
}

// Event is one incoming message the bot has decided to answer.
type Event struct {
	ChatSource    string
	SocialContext string
	Sender        string
	Text          string
	// History is the source's recent conversation before Text.
	History []history.Line
	// Notifier receives streamed progress. Nil discards it.
	Notifier notify.Notifier
	// OnRemembered is called when the message was saved as a memory.
	OnRemembered func()
}

type trigger struct {
	re            *regexp.Regexp
	socialContext string
	probability   float64
}

// Option configures a Bot.
type Option func(*Bot)

// WithRand replaces the random source used for trigger probabilities. fn
// must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(b *Bot) { b.rand = fn }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bot) { b.log = log }
}

// Bot answers messages in the social contexts it belongs to.
type Bot struct {
	name           string
	personality    string
	socialContexts []string
	socialPrompts  map[string]string
	triggers       []trigger
	responder      responder.Responder
	memory         memory.Manager
	peers          []Peer
	rand           func() float64
	log            *slog.Logger
}

// New creates a Bot. mem may be nil for a bot without memory.
func New(cfg Config, resp responder.Responder, mem memory.Manager, opts ...Option) (*Bot, error) {
	if cfg.Name == "" {
		return nil, errors.New("bot: name is required")
	}
	if resp == nil {
		return nil, fmt.Errorf("bot %s: responder is required", cfg.Name)
	}

	b := &Bot{
		name:           cfg.Name,
		personality:    cfg.Personality,
		socialContexts: slices.Clone(cfg.SocialContexts),
		socialPrompts:  cfg.SocialPrompts,
		responder:      resp,
		memory:         mem,
		rand:           rand.Float64,
		log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(b)
	}

	triggers := cfg.Triggers
	if len(triggers) == 0 {
		triggers = []TriggerConfig{{Pattern: `\b` + regexp.QuoteMeta(cfg.Name) + `\b`}}
	}
	for _, tc := range triggers {
		re, err := regexp.Compile("(?i)" + tc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("bot %s: trigger %q: %w", cfg.Name, tc.Pattern, err)
		}
		p := tc.Probability
		if p == 0 {
			p = 1
		}
		b.triggers = append(b.triggers, trigger{re: re, socialContext: tc.SocialContext, probability: p})
	}

	return b, nil
}

// Name returns the bot's name.
func (b *Bot) Name() string { return b.name }

// SocialContexts returns the contexts the bot belongs to.
func (b *Bot) SocialContexts() []string { return slices.Clone(b.socialContexts) }

// AddPeer lets the bot quote p's history when a message matches p's
// cross-reference pattern.
func (b *Bot) AddPeer(p Peer) {
	b.peers = append(b.peers, p)
}

// WillRespond reports whether any trigger applies to text in socialContext.
// Each trigger's probability is rolled independently.
func (b *Bot) WillRespond(socialContext, text string) bool {
	return slices.ContainsFunc(b.triggers, func(t trigger) bool {
		if t.socialContext != "" && t.socialContext != socialContext {
			return false
		}
		if roll := b.rand(); roll > t.probability {
			b.log.Debug("randomly ignoring message",
				"bot", b.name,
				"probability", t.probability,
				"roll", roll,
			)
			return false
		}
		return t.re.MatchString(text)
	})
}

// IsMemberOf reports whether the bot belongs to socialContext.
func (b *Bot) IsMemberOf(socialContext string) bool {
	return slices.Contains(b.socialContexts, socialContext)
}

// IsMemberOfAny reports whether the bot belongs to any of socialContexts.
func (b *Bot) IsMemberOfAny(socialContexts []string) bool {
	return slices.ContainsFunc(socialContexts, b.IsMemberOf)
}

// GenerateResponse answers ev. Callers check WillRespond first. Memory
// failures are logged and do not prevent an answer.
func (b *Bot) GenerateResponse(ctx context.Context, ev Event) (string, error) {
	ctx = agentctx.WithBotName(ctx, b.name)
	ctx = agentctx.WithSocialContext(ctx, ev.SocialContext)

	b.log.InfoContext(ctx, "bot received message",
		"bot", b.name,
		"social_context", ev.SocialContext,
		"chat_source", ev.ChatSource,
	)

	var memories []memory.Entry
	if b.memory != nil {
		scope := memory.Scope{ChatSource: ev.ChatSource, Bot: b.name, SocialContext: ev.SocialContext}

		var err error
		memories, err = b.memory.LoadRelevant(ctx, scope, ev.Text)
		if err != nil {
			b.log.ErrorContext(ctx, "failed to load memories", "bot", b.name, "error", err)
		}

		saved, err := b.memory.MaybeSave(ctx, scope, ev.Sender, ev.Text)
		switch {
		case err != nil:
			b.log.ErrorContext(ctx, "failed to save memory", "bot", b.name, "error", err)
		case saved && ev.OnRemembered != nil:
			ev.OnRemembered()
		}
	}

	var others []responder.SourceHistory
	for _, p := range b.peers {
		re := p.CrossReference()
		if p.Name() == ev.ChatSource || re == nil || !re.MatchString(ev.Text) {
			continue
		}
		others = append(others, responder.SourceHistory{Source: p.Name(), Lines: p.History()})
	}

	out, err := b.responder.Respond(ctx, responder.Request{
		TriggerMessage:      ev.Text,
		Sender:              ev.Sender,
		BotName:             b.name,
		Personality:         b.personality,
		SocialContextPrompt: b.socialPrompts[ev.SocialContext],
		Memories:            memories,
		History:             ev.History,
		OtherHistories:      others,
		Notifier:            ev.Notifier,
	})
	if err != nil {
		return "", fmt.Errorf("bot %s: %w", b.name, err)
	}
	return out, nil
}
