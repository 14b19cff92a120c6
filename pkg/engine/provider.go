package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/germanamz/egbert/pkg/modeladapter"
	"github.com/germanamz/egbert/pkg/providers/ollama"
	"github.com/germanamz/egbert/pkg/providers/openai"
	"github.com/germanamz/egbert/pkg/responder"
	"github.com/germanamz/egbert/pkg/toolkit/imagegen"
)

// Provider is a built model backend. Each kind fills in the capabilities it
// has; nil fields are unsupported.
type Provider struct {
	// Streamer drives tool-calling conversations.
	Streamer modeladapter.Streamer
	// Generator produces plain completions.
	Generator responder.Generator
	// Images creates pictures.
	Images imagegen.Generator
}

// ProviderFactory creates a Provider from a ProviderConfig.
type ProviderFactory func(cfg ProviderConfig) (Provider, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["openai"] = newOpenAI
		factories["ollama"] = newOllama
		factories["grok"] = newGrok
	})
}

// RegisterProvider registers a custom provider factory under the given kind.
// It can be called before New to extend the engine with additional providers.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newOpenAI(cfg ProviderConfig) (Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	a := openai.New(baseURL, cfg.APIKey, cfg.Model)
	a.Temperature = cfg.Temperature
	a.MaxTokens = cfg.MaxTokens
	a.JSONMode = cfg.JSONMode

	return Provider{Streamer: a, Images: a}, nil
}

// newGrok uses the OpenAI adapter against xAI's compatible endpoint.
func newGrok(cfg ProviderConfig) (Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.x.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "grok-4"
	}
	p, err := newOpenAI(cfg)
	if err != nil {
		return Provider{}, err
	}
	p.Images = nil
	return p, nil
}

func newOllama(cfg ProviderConfig) (Provider, error) {
	a := ollama.New(cfg.BaseURL, cfg.Model)
	a.Temperature = cfg.Temperature
	a.MaxTokens = cfg.MaxTokens

	return Provider{Generator: a}, nil
}

// buildProvider creates a Provider using the registered factory for its
// Kind. If rate limiting is configured, the streamer is wrapped with a
// RateLimitedStreamer.
func buildProvider(cfg ProviderConfig) (Provider, error) {
	factory, ok := getFactory(cfg.Kind)
	if !ok {
		return Provider{}, fmt.Errorf("engine: unknown provider kind %q", cfg.Kind)
	}

	p, err := factory(cfg)
	if err != nil {
		return Provider{}, err
	}

	rl := cfg.RateLimit
	if p.Streamer != nil && rl.enabled() {
		var baseDelay time.Duration
		if rl.BaseDelay != "" {
			var parseErr error
			baseDelay, parseErr = time.ParseDuration(rl.BaseDelay)
			if parseErr != nil {
				return Provider{}, fmt.Errorf("engine: provider %q: invalid base_delay %q: %w", cfg.Name, rl.BaseDelay, parseErr)
			}
		}

		p.Streamer = modeladapter.NewRateLimitedStreamer(p.Streamer, modeladapter.RateLimitOpts{
			InputTPM:   rl.InputTPM,
			OutputTPM:  rl.OutputTPM,
			RPM:        rl.RPM,
			MaxRetries: rl.MaxRetries,
			BaseDelay:  baseDelay,
		})
	}

	return p, nil
}
