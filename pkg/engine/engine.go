package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/germanamz/egbert/pkg/bot"
	"github.com/germanamz/egbert/pkg/cache"
	"github.com/germanamz/egbert/pkg/chatsource"
	"github.com/germanamz/egbert/pkg/memory"
	"github.com/germanamz/egbert/pkg/notify"
	"github.com/germanamz/egbert/pkg/responder"
	"github.com/germanamz/egbert/pkg/store"
	"github.com/germanamz/egbert/pkg/tools/mcpclient"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

// Engine is the composition root that assembles bots, their responders,
// memories and tools, and the chat sources they talk in.
type Engine struct {
	cfg    Config
	log    *slog.Logger
	events *notify.Bus

	stdin      io.Reader
	stdout     io.Writer
	httpClient *http.Client

	db         *store.DB
	cache      *cache.Cache
	providers  map[string]Provider
	tools      map[string]toolbox.Tool
	mcpBoxes   map[string]*toolbox.ToolBox
	mcpClients []*mcpclient.MCPClient
	responders map[string]responder.Responder
	memories   map[string]memory.Manager
	bots       []*bot.Bot
	sources    []chatsource.Source
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger passed to every component.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithConsole sets the streams console chat sources use. The defaults are
// os.Stdin and os.Stdout.
func WithConsole(in io.Reader, out io.Writer) Option {
	return func(e *Engine) {
		e.stdin = in
		e.stdout = out
	}
}

// WithHTTPClient sets the client used by tools calling web APIs.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// New creates an Engine from the given configuration. It validates the
// config, opens storage, creates providers, tools and MCP clients, then
// builds bots and attaches each to every chat source sharing one of its
// social contexts. On failure everything opened so far is closed.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		events:     notify.NewBus(),
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		providers:  make(map[string]Provider, len(cfg.Providers)),
		tools:      make(map[string]toolbox.Tool, len(cfg.Tools)),
		mcpBoxes:   make(map[string]*toolbox.ToolBox, len(cfg.MCPServers)),
		responders: make(map[string]responder.Responder, len(cfg.Responders)),
		memories:   make(map[string]memory.Manager, len(cfg.Memory)),
	}
	for _, o := range opts {
		o(e)
	}

	if err := e.build(ctx); err != nil {
		_ = e.Close()
		return nil, err
	}

	return e, nil
}

func (e *Engine) build(ctx context.Context) error {
	path := e.cfg.Storage.Path
	if path == "" {
		path = store.Memory
	}
	db, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("engine: storage: %w", err)
	}
	e.db = db
	e.cache = cache.New(db)

	for _, pc := range e.cfg.Providers {
		p, err := buildProvider(pc)
		if err != nil {
			return fmt.Errorf("engine: provider %q: %w", pc.Name, err)
		}
		e.providers[pc.Name] = p
	}

	for _, tc := range e.cfg.Tools {
		t, err := e.buildTool(tc)
		if err != nil {
			return fmt.Errorf("engine: tool %q: %w", tc.Name, err)
		}
		e.tools[tc.Name] = t
	}

	for _, mc := range e.cfg.MCPServers {
		tb, err := e.connectMCP(ctx, mc)
		if err != nil {
			return fmt.Errorf("engine: mcp %q: %w", mc.Name, err)
		}
		e.mcpBoxes[mc.Name] = tb
	}

	for _, rc := range e.cfg.Responders {
		r, err := e.buildResponder(rc)
		if err != nil {
			return fmt.Errorf("engine: responder %q: %w", rc.Name, err)
		}
		e.responders[rc.Name] = r
	}

	for _, mc := range e.cfg.Memory {
		m, err := e.buildMemory(mc)
		if err != nil {
			return fmt.Errorf("engine: memory %q: %w", mc.Name, err)
		}
		e.memories[mc.Name] = m
	}

	prompts := make(map[string]string, len(e.cfg.SocialContexts))
	for _, sc := range e.cfg.SocialContexts {
		prompts[sc.Name] = sc.Prompt
	}

	for _, bc := range e.cfg.Bots {
		var mem memory.Manager
		if bc.Memory != "" {
			mem = e.memories[bc.Memory]
		}
		b, err := bot.New(bot.Config{
			Name:           bc.Name,
			Personality:    bc.Personality,
			SocialContexts: bc.SocialContexts,
			SocialPrompts:  prompts,
			Triggers:       bc.Triggers,
		}, e.responders[bc.Responder], mem, bot.WithLogger(e.log))
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		e.bots = append(e.bots, b)
	}

	for _, sc := range e.cfg.ChatSources {
		s, err := e.buildSource(sc)
		if err != nil {
			return fmt.Errorf("engine: chat source %q: %w", sc.Name, err)
		}
		if n, ok := s.(interface{ SetNotifier(notify.Notifier) }); ok {
			n.SetNotifier(e.events)
		}
		e.sources = append(e.sources, s)
	}

	for _, b := range e.bots {
		for _, s := range e.sources {
			if !b.IsMemberOfAny(s.SocialContexts()) {
				continue
			}
			s.AddBot(b)
			b.AddPeer(s)
			e.log.Info("added bot to chat source", "bot", b.Name(), "chat_source", s.Name())
		}
	}

	return nil
}

// Events returns the bus every chat source publishes progress on.
func (e *Engine) Events() *notify.Bus { return e.events }

// Bots returns the configured bots in config order.
func (e *Engine) Bots() []*bot.Bot { return e.bots }

// Sources returns the configured chat sources in config order.
func (e *Engine) Sources() []chatsource.Source { return e.sources }

// ToolBox returns every configured built-in and MCP tool. MCP tools whose
// names clash with an earlier tool are skipped with a warning.
func (e *Engine) ToolBox() *toolbox.ToolBox {
	tb := toolbox.New()
	for _, tc := range e.cfg.Tools {
		if err := tb.Register(e.tools[tc.Name]); err != nil {
			e.log.Warn("skipping tool", "tool", tc.Name, "error", err)
		}
	}
	for _, mc := range e.cfg.MCPServers {
		for _, t := range e.mcpBoxes[mc.Name].Tools() {
			if err := tb.Register(t); err != nil {
				e.log.Warn("skipping tool", "tool", t.Name, "mcp", mc.Name, "error", err)
			}
		}
	}
	return tb
}

// Start runs every chat source until ctx is done. If a source fails, the
// others are stopped and the errors are returned together.
func (e *Engine) Start(ctx context.Context) error {
	if len(e.sources) == 0 {
		return errors.New("engine: no chat sources configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range e.sources {
		wg.Go(func() {
			e.log.InfoContext(ctx, "starting chat source", "chat_source", s.Name())
			if err := s.Start(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("engine: chat source %q: %w", s.Name(), err))
				mu.Unlock()
				cancel()
			}
		})
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Close shuts down MCP clients and the database.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.mcpClients {
		errs = append(errs, c.Close())
	}
	if e.db != nil {
		errs = append(errs, e.db.Close())
	}
	return errors.Join(errs...)
}
