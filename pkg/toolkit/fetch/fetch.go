// Package fetch provides the fetch_url tool, which downloads a web page and
// returns its readable text. Connections to private and loopback addresses
// are refused unless explicitly allowed.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/germanamz/egbert/pkg/agentctx"
	"github.com/germanamz/egbert/pkg/cache"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

// ToolName is the name the model calls the tool by.
const ToolName = "fetch_url"

// maxBodySize is the maximum response body size read (1MB).
const maxBodySize = 1 << 20

// Config configures the fetcher.
type Config struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	AllowPrivate bool          `mapstructure:"allow_private"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// Fetcher downloads pages and extracts their text.
type Fetcher struct {
	cfg    Config
	cache  *cache.Cache
	client *http.Client
}

// privateRanges are the CIDR blocks for private/loopback networks.
var privateRanges = func() []*net.IPNet {
	cidrs := []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}

	nets := make([]*net.IPNet, 0, len(cidrs))

	for _, cidr := range cidrs {
		_, ipNet, _ := net.ParseCIDR(cidr)
		nets = append(nets, ipNet)
	}

	return nets
}()

func isPrivateIP(ip net.IP) bool {
	for _, r := range privateRanges {
		if r.Contains(ip) {
			return true
		}
	}

	return false
}

// safeTransport checks resolved addresses at dial time so a hostname cannot
// be rebound to a private address after validation.
func safeTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("fetch_url: invalid address %s: %w", addr, err)
			}

			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("fetch_url: DNS lookup failed for %s: %w", host, err)
			}

			for _, ip := range ips {
				if isPrivateIP(ip.IP) {
					return nil, fmt.Errorf("fetch_url: connection to private address %s blocked", ip.IP)
				}
			}

			return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
		},
	}
}

// New creates a Fetcher. c may be nil to disable caching.
func New(cfg Config, c *cache.Cache) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "egbert/1.0"
	}

	client := &http.Client{Timeout: 60 * time.Second}
	if !cfg.AllowPrivate {
		client.Transport = safeTransport()
	}

	return &Fetcher{cfg: cfg, cache: c, client: client}
}

type input struct {
	URL string `json:"url"`
}

// Tool returns the fetch_url tool.
func (f *Fetcher) Tool() toolbox.Tool {
	return toolbox.Tool{
		Name:        ToolName,
		Description: "Downloads a web page and returns its readable text. Use it to read links people share.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"The http or https URL to read"}},"required":["url"]}`),
		Handler:     f.handle,
	}
}

func (f *Fetcher) handle(ctx context.Context, raw json.RawMessage) (any, error) {
	var in input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("fetch_url: invalid input: %w", err)
	}

	u, err := url.Parse(in.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch_url: invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetch_url: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("fetch_url: could not extract domain from URL")
	}

	key := "fetch:" + u.String()
	if f.cache != nil {
		var cached string
		if ok, err := f.cache.Retrieve(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}

	agentctx.ReportStatus(ctx, "Reading "+u.Hostname()+"...")

	text, err := f.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		_ = f.cache.Store(ctx, key, text, f.cfg.CacheTTL)
	}
	return text, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch_url: create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req) //nolint:gosec // private addresses are blocked at dial time
	if err != nil {
		return "", fmt.Errorf("fetch_url: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch_url: unexpected status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxBodySize)

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "text/html", "application/xhtml+xml", "":
		return ExtractText(body)
	default:
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("fetch_url: read body: %w", err)
		}
		return string(data), nil
	}
}
