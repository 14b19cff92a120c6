package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/egbert/pkg/bot"
)

// Config is the top-level engine configuration.
type Config struct {
	Storage        StorageConfig         `yaml:"storage"`
	SocialContexts []SocialContextConfig `yaml:"social_contexts"`
	Providers      []ProviderConfig      `yaml:"providers"`
	Responders     []ResponderConfig     `yaml:"responders"`
	Memory         []MemoryConfig        `yaml:"memory"`
	Tools          []ToolConfig          `yaml:"tools"`
	MCPServers     []MCPConfig           `yaml:"mcp_servers"`
	ChatSources    []ChatSourceConfig    `yaml:"chat_sources"`
	Bots           []BotConfig           `yaml:"bots"`
}

// StorageConfig locates the SQLite database used by the cache and the
// sqlite memory manager. An empty Path keeps everything in memory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// SocialContextConfig names a group of people and the prompt bots use
// when talking to them.
type SocialContextConfig struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

// RateLimitConfig controls per-provider rate limiting.
type RateLimitConfig struct {
	InputTPM   int    `yaml:"input_tpm"`   // Input tokens per minute (0 = no limit).
	OutputTPM  int    `yaml:"output_tpm"`  // Output tokens per minute (0 = no limit).
	RPM        int    `yaml:"rpm"`         // Requests per minute (0 = no limit).
	MaxRetries int    `yaml:"max_retries"` // Max retries on 429 (default 3).
	BaseDelay  string `yaml:"base_delay"`  // Initial backoff delay, e.g. "1s".
}

func (r RateLimitConfig) enabled() bool {
	return r.InputTPM > 0 || r.OutputTPM > 0 || r.RPM > 0 || r.MaxRetries > 0 || r.BaseDelay != ""
}

// ProviderConfig describes an LLM provider instance.
type ProviderConfig struct {
	Name        string          `yaml:"name"`
	Kind        string          `yaml:"kind"`
	BaseURL     string          `yaml:"base_url"`
	APIKey      string          `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model       string          `yaml:"model"`
	Temperature float64         `yaml:"temperature"`
	MaxTokens   int             `yaml:"max_tokens"`
	JSONMode    bool            `yaml:"json_mode"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// ResponderConfig describes how a bot turns a message into a reply.
type ResponderConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Provider string `yaml:"provider"`
	// Tools lists tool names or MCP server names. Empty means no tools.
	Tools   []string         `yaml:"tools"`
	Options ResponderOptions `yaml:"options"`
}

// ResponderOptions tunes the tool-calling loop.
type ResponderOptions struct {
	MaxRoundTrips    int    `yaml:"max_round_trips"`
	Timeout          string `yaml:"timeout"`
	ToolTimeout      string `yaml:"tool_timeout"`
	MaxToolResultLen int    `yaml:"max_tool_result_len"`
	ThinkingStatus   string `yaml:"thinking_status"`
	ToolStatus       string `yaml:"tool_status"`
}

// MemoryConfig describes a memory manager.
type MemoryConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern"`
	Folder  string `yaml:"folder"`
	Limit   int    `yaml:"limit"`
}

// ToolConfig describes a built-in tool. Settings are decoded into the
// tool's own configuration type.
type ToolConfig struct {
	Name     string         `yaml:"name"`
	Kind     string         `yaml:"kind"`
	Provider string         `yaml:"provider"`
	Settings map[string]any `yaml:"settings"`
}

// MCPConfig describes an MCP server whose tools bots may use.
type MCPConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Env       map[string]string `yaml:"env"`
	URL       string            `yaml:"url"`
	Tools     []string          `yaml:"tools"`
}

// ChatSourceConfig describes a place bots chat in.
type ChatSourceConfig struct {
	Name                 string         `yaml:"name"`
	Kind                 string         `yaml:"kind"`
	DefaultSocialContext string         `yaml:"default_social_context"`
	MaxHistory           int            `yaml:"max_history"`
	CrossReference       string         `yaml:"cross_reference"`
	Settings             map[string]any `yaml:"settings"`
}

// BotConfig describes a bot.
type BotConfig struct {
	Name           string              `yaml:"name"`
	Personality    string              `yaml:"personality"`
	Responder      string              `yaml:"responder"`
	Memory         string              `yaml:"memory"`
	SocialContexts []string            `yaml:"social_contexts"`
	Triggers       []bot.TriggerConfig `yaml:"triggers"`
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR are expanded before
// parsing. A top-level include key, a path or a list of paths relative to
// the including file, pulls in other files; their top-level sections
// replace the including file's.
func LoadConfig(path string) (Config, error) {
	doc, err := loadDocument(path, map[string]bool{})
	if err != nil {
		return Config{}, err
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

func loadDocument(path string, visiting map[string]bool) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("engine: load config: %w", err)
	}
	if visiting[abs] {
		return nil, fmt.Errorf("engine: load config: include cycle at %s", path)
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	data, err := os.ReadFile(abs) //nolint:gosec // path is operator-provided configuration
	if err != nil {
		return nil, fmt.Errorf("engine: load config: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("engine: parse config %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	includes, err := includePaths(doc["include"])
	if err != nil {
		return nil, fmt.Errorf("engine: parse config %s: %w", path, err)
	}
	delete(doc, "include")

	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		sub, err := loadDocument(inc, visiting)
		if err != nil {
			return nil, err
		}
		for k, v := range sub {
			doc[k] = v
		}
	}

	return doc, nil
}

func includePaths(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{val}, nil
	case []any:
		paths := make([]string, 0, len(val))
		for _, p := range val {
			s, ok := p.(string)
			if !ok {
				return nil, errors.New("include entries must be strings")
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, errors.New("include must be a path or a list of paths")
	}
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	socialContexts, err := uniqueNames("social context", c.SocialContexts, func(s SocialContextConfig) string { return s.Name })
	if err != nil {
		return err
	}

	providers, err := uniqueNames("provider", c.Providers, func(p ProviderConfig) string { return p.Name })
	if err != nil {
		return err
	}
	for _, p := range c.Providers {
		if p.Kind == "" {
			return fmt.Errorf("engine: config: provider %q: kind is required", p.Name)
		}
	}

	tools, err := uniqueNames("tool", c.Tools, func(t ToolConfig) string { return t.Name })
	if err != nil {
		return err
	}
	for _, t := range c.Tools {
		if t.Kind == "" {
			return fmt.Errorf("engine: config: tool %q: kind is required", t.Name)
		}
		if _, ok := providers[t.Provider]; t.Provider != "" && !ok {
			return fmt.Errorf("engine: config: tool %q: unknown provider %q", t.Name, t.Provider)
		}
	}

	mcp, err := uniqueNames("mcp server", c.MCPServers, func(m MCPConfig) string { return m.Name })
	if err != nil {
		return err
	}
	for _, m := range c.MCPServers {
		if m.Command == "" && m.URL == "" {
			return fmt.Errorf("engine: config: mcp server %q: command or url is required", m.Name)
		}
	}

	responders, err := uniqueNames("responder", c.Responders, func(r ResponderConfig) string { return r.Name })
	if err != nil {
		return err
	}
	for _, r := range c.Responders {
		if r.Kind == "" {
			return fmt.Errorf("engine: config: responder %q: kind is required", r.Name)
		}
		if r.Kind != ResponderEcho {
			if _, ok := providers[r.Provider]; !ok {
				return fmt.Errorf("engine: config: responder %q: unknown provider %q", r.Name, r.Provider)
			}
		}
		for _, name := range r.Tools {
			_, isTool := tools[name]
			_, isMCP := mcp[name]
			if !isTool && !isMCP {
				return fmt.Errorf("engine: config: responder %q: unknown tool %q", r.Name, name)
			}
		}
	}

	memories, err := uniqueNames("memory manager", c.Memory, func(m MemoryConfig) string { return m.Name })
	if err != nil {
		return err
	}

	if _, err := uniqueNames("chat source", c.ChatSources, func(s ChatSourceConfig) string { return s.Name }); err != nil {
		return err
	}
	for _, s := range c.ChatSources {
		if s.Kind == "" {
			return fmt.Errorf("engine: config: chat source %q: kind is required", s.Name)
		}
		if _, ok := socialContexts[s.DefaultSocialContext]; s.DefaultSocialContext != "" && !ok {
			return fmt.Errorf("engine: config: chat source %q: unknown social context %q", s.Name, s.DefaultSocialContext)
		}
	}

	if len(c.Bots) == 0 {
		return errors.New("engine: config: at least one bot is required")
	}
	if _, err := uniqueNames("bot", c.Bots, func(b BotConfig) string { return b.Name }); err != nil {
		return err
	}
	for _, b := range c.Bots {
		if _, ok := responders[b.Responder]; !ok {
			return fmt.Errorf("engine: config: bot %q: unknown responder %q", b.Name, b.Responder)
		}
		if _, ok := memories[b.Memory]; b.Memory != "" && !ok {
			return fmt.Errorf("engine: config: bot %q: unknown memory manager %q", b.Name, b.Memory)
		}
		for _, sc := range b.SocialContexts {
			if _, ok := socialContexts[sc]; !ok {
				return fmt.Errorf("engine: config: bot %q: unknown social context %q", b.Name, sc)
			}
		}
		for _, t := range b.Triggers {
			if _, ok := socialContexts[t.SocialContext]; t.SocialContext != "" && !ok {
				return fmt.Errorf("engine: config: bot %q: trigger %q: unknown social context %q", b.Name, t.Pattern, t.SocialContext)
			}
		}
	}

	return nil
}

func uniqueNames[T any](kind string, items []T, name func(T) string) (map[string]struct{}, error) {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		n := name(it)
		if n == "" {
			return nil, fmt.Errorf("engine: config: %s name is required", kind)
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("engine: config: duplicate %s name %q", kind, n)
		}
		seen[n] = struct{}{}
	}
	return seen, nil
}
