// Package weather provides the get-weather tool backed by OpenWeatherMap's
// geocoding and One Call APIs.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/germanamz/egbert/pkg/agentctx"
	"github.com/germanamz/egbert/pkg/cache"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

// ToolName is the name the model calls the tool by.
const ToolName = "get-weather"

// DefaultBaseURL is the OpenWeatherMap API root.
const DefaultBaseURL = "https://api.openweathermap.org"

// Config configures the weather tool.
type Config struct {
	APIKey   string        `mapstructure:"api_key"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	BaseURL  string        `mapstructure:"base_url"`
}

// Weather looks up forecasts, caching them per location.
type Weather struct {
	cfg    Config
	cache  *cache.Cache
	client *http.Client
}

// New creates a Weather. c may be nil to disable caching.
func New(cfg Config, c *cache.Cache, client *http.Client) *Weather {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Weather{cfg: cfg, cache: c, client: client}
}

type input struct {
	Location string `json:"location"`
}

// Tool returns the get-weather tool.
func (w *Weather) Tool() toolbox.Tool {
	return toolbox.Tool{
		Name:        ToolName,
		Description: "Get the current weather & forecast for a location",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"location":{"type":"string","description":"The location, for example a city or region."}},"required":["location"]}`),
		Handler:     w.handle,
	}
}

func (w *Weather) handle(ctx context.Context, raw json.RawMessage) (any, error) {
	var in input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("get-weather: invalid input: %w", err)
	}
	if strings.TrimSpace(in.Location) == "" {
		return nil, errors.New("get-weather: location is required")
	}

	key := "weather:" + strings.ToLower(strings.TrimSpace(in.Location))
	if w.cache != nil {
		var cached json.RawMessage
		ok, err := w.cache.Retrieve(ctx, key, &cached)
		if err == nil && ok {
			return cached, nil
		}
	}

	lat, lon, err := w.geocode(ctx, in.Location)
	if err != nil {
		return nil, err
	}

	agentctx.ReportStatus(ctx, "Fetching weather data...")

	q := url.Values{}
	q.Set("lat", formatCoord(lat))
	q.Set("lon", formatCoord(lon))
	q.Set("exclude", "minutely")
	q.Set("appid", w.cfg.APIKey)

	body, err := w.get(ctx, "/data/3.0/onecall?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("get-weather: failed to check weather: %w", err)
	}
	if !json.Valid(body) {
		return nil, errors.New("get-weather: weather response is not JSON")
	}
	report := json.RawMessage(body)

	if w.cache != nil {
		_ = w.cache.Store(ctx, key, report, w.cfg.CacheTTL)
	}

	return report, nil
}

type geoResult struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (w *Weather) geocode(ctx context.Context, location string) (float64, float64, error) {
	q := url.Values{}
	q.Set("q", location)
	q.Set("limit", "1")
	q.Set("appid", w.cfg.APIKey)

	body, err := w.get(ctx, "/geo/1.0/direct?"+q.Encode())
	if err != nil {
		return 0, 0, fmt.Errorf("get-weather: failed to get coordinates: %w", err)
	}

	var results []geoResult
	if err := json.Unmarshal(body, &results); err != nil {
		return 0, 0, fmt.Errorf("get-weather: decode coordinates: %w", err)
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("get-weather: no location found for %q", location)
	}
	return results[0].Lat, results[0].Lon, nil
}

func (w *Weather) get(ctx context.Context, pathAndQuery string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.BaseURL+pathAndQuery, nil)
	if err != nil {
		return nil, err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
