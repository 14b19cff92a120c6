package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/germanamz/egbert/pkg/agent"
	"github.com/germanamz/egbert/pkg/chatsource"
	"github.com/germanamz/egbert/pkg/memory"
	"github.com/germanamz/egbert/pkg/responder"
	"github.com/germanamz/egbert/pkg/toolkit/fetch"
	"github.com/germanamz/egbert/pkg/toolkit/imagegen"
	"github.com/germanamz/egbert/pkg/toolkit/minecraft"
	"github.com/germanamz/egbert/pkg/toolkit/weather"
	"github.com/germanamz/egbert/pkg/tools/mcpclient"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

// Component kinds accepted in the configuration.
const (
	ResponderToolCalling = "tool_calling"
	ResponderOllama      = "ollama"
	ResponderEcho        = "echo"

	MemoryKeyword = "keyword"
	MemorySQLite  = "sqlite"

	ToolWeather      = "weather"
	ToolMinecraftLog = "minecraft_log"
	ToolImage        = "image"
	ToolFetch        = "fetch"

	SourceConsole   = "console"
	SourceWebSocket = "websocket"
)

func (e *Engine) buildTool(tc ToolConfig) (toolbox.Tool, error) {
	switch tc.Kind {
	case ToolWeather:
		var cfg weather.Config
		if err := decodeSettings(tc.Settings, &cfg); err != nil {
			return toolbox.Tool{}, err
		}
		return weather.New(cfg, e.cache, e.httpClient).Tool(), nil

	case ToolMinecraftLog:
		var cfg minecraft.Config
		if err := decodeSettings(tc.Settings, &cfg); err != nil {
			return toolbox.Tool{}, err
		}
		r, err := minecraft.New(cfg)
		if err != nil {
			return toolbox.Tool{}, err
		}
		return r.Tool(), nil

	case ToolImage:
		var cfg struct {
			Model string `mapstructure:"model"`
		}
		if err := decodeSettings(tc.Settings, &cfg); err != nil {
			return toolbox.Tool{}, err
		}
		p, ok := e.providers[tc.Provider]
		if !ok || p.Images == nil {
			return toolbox.Tool{}, fmt.Errorf("provider %q cannot generate images", tc.Provider)
		}
		return imagegen.New(p.Images, cfg.Model).Tool(), nil

	case ToolFetch:
		var cfg fetch.Config
		if err := decodeSettings(tc.Settings, &cfg); err != nil {
			return toolbox.Tool{}, err
		}
		return fetch.New(cfg, e.cache).Tool(), nil

	default:
		return toolbox.Tool{}, fmt.Errorf("unknown tool kind %q", tc.Kind)
	}
}

func (e *Engine) connectMCP(ctx context.Context, mc MCPConfig) (*toolbox.ToolBox, error) {
	client, err := mcpclient.Connect(ctx, mcpclient.Config{
		Transport: mc.Transport,
		Command:   mc.Command,
		Args:      mc.Args,
		Env:       mc.Env,
		URL:       mc.URL,
		Tools:     mc.Tools,
	})
	if err != nil {
		return nil, err
	}
	e.mcpClients = append(e.mcpClients, client)

	return client.ToolBox(ctx)
}

func (e *Engine) buildResponder(rc ResponderConfig) (responder.Responder, error) {
	switch rc.Kind {
	case ResponderEcho:
		return responder.Echo{}, nil

	case ResponderOllama:
		p := e.providers[rc.Provider]
		if p.Generator == nil {
			return nil, fmt.Errorf("provider %q does not support plain generation", rc.Provider)
		}
		return responder.NewOllama(p.Generator), nil

	case ResponderToolCalling:
		p := e.providers[rc.Provider]
		if p.Streamer == nil {
			return nil, fmt.Errorf("provider %q does not support tool calling", rc.Provider)
		}

		tb := toolbox.New()
		for _, name := range rc.Tools {
			if t, ok := e.tools[name]; ok {
				if err := tb.Register(t); err != nil {
					return nil, err
				}
				continue
			}
			if err := tb.Merge(e.mcpBoxes[name]); err != nil {
				return nil, err
			}
		}

		opts, err := e.agentOptions(rc)
		if err != nil {
			return nil, err
		}
		return responder.NewToolCalling(p.Streamer, tb, opts), nil

	default:
		return nil, fmt.Errorf("unknown responder kind %q", rc.Kind)
	}
}

func (e *Engine) agentOptions(rc ResponderConfig) (agent.Options, error) {
	o := rc.Options
	opts := agent.Options{
		MaxRoundTrips:    o.MaxRoundTrips,
		MaxToolResultLen: o.MaxToolResultLen,
		ThinkingStatus:   o.ThinkingStatus,
		ToolStatus:       o.ToolStatus,
		Logger:           e.log,
		Middleware: []agent.Middleware{
			agent.Recovery(),
			agent.Logger(e.log, rc.Name),
			agent.OutputGuardrail(agent.RejectEmpty),
		},
	}

	if o.ToolTimeout != "" {
		d, err := time.ParseDuration(o.ToolTimeout)
		if err != nil {
			return agent.Options{}, fmt.Errorf("invalid tool_timeout %q: %w", o.ToolTimeout, err)
		}
		opts.ToolTimeout = d
	}
	if o.Timeout != "" {
		d, err := time.ParseDuration(o.Timeout)
		if err != nil {
			return agent.Options{}, fmt.Errorf("invalid timeout %q: %w", o.Timeout, err)
		}
		opts.Middleware = append(opts.Middleware, agent.Timeout(d))
	}

	return opts, nil
}

func (e *Engine) buildMemory(mc MemoryConfig) (memory.Manager, error) {
	switch mc.Kind {
	case MemoryKeyword:
		return memory.NewKeyword(mc.Name, mc.Folder, mc.Pattern, e.log)
	case MemorySQLite:
		return memory.NewSQLite(mc.Name, e.db, mc.Pattern, mc.Limit, e.log)
	default:
		return nil, fmt.Errorf("unknown memory kind %q", mc.Kind)
	}
}

func (e *Engine) buildSource(sc ChatSourceConfig) (chatsource.Source, error) {
	base := chatsource.Config{
		Name:                 sc.Name,
		DefaultSocialContext: sc.DefaultSocialContext,
		MaxHistory:           sc.MaxHistory,
		CrossReference:       sc.CrossReference,
	}

	switch sc.Kind {
	case SourceConsole:
		var cfg chatsource.ConsoleConfig
		if err := decodeSettings(sc.Settings, &cfg); err != nil {
			return nil, err
		}
		cfg.Config = base
		return chatsource.NewConsole(cfg, e.stdin, e.stdout, e.log)

	case SourceWebSocket:
		var cfg chatsource.WebSocketConfig
		if err := decodeSettings(sc.Settings, &cfg); err != nil {
			return nil, err
		}
		cfg.Config = base
		return chatsource.NewWebSocket(cfg, e.log)

	default:
		return nil, fmt.Errorf("unknown chat source kind %q", sc.Kind)
	}
}
