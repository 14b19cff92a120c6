// Package mcpclient lets bots use tools hosted by external MCP servers.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

// Transport kinds accepted in Config.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Config describes one MCP server. Command starts a local server speaking
// MCP on stdio; URL reaches a remote one.
type Config struct {
	Transport string            `mapstructure:"transport"`
	Command   string            `mapstructure:"command"`
	Args      []string          `mapstructure:"args"`
	Env       map[string]string `mapstructure:"env"`
	URL       string            `mapstructure:"url"`
	// Tools limits which server tools are exposed. Empty exposes all.
	Tools []string `mapstructure:"tools"`
}

// Validate checks that the config names a reachable server.
func (c Config) Validate() error {
	switch c.transport() {
	case TransportStdio:
		if c.Command == "" {
			return errors.New("mcpclient: stdio transport requires a command")
		}
	case TransportSSE, TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("mcpclient: %s transport requires a url", c.transport())
		}
	default:
		return fmt.Errorf("mcpclient: unknown transport %q", c.Transport)
	}
	return nil
}

func (c Config) transport() string {
	if c.Transport != "" {
		return c.Transport
	}
	if c.URL != "" {
		return TransportHTTP
	}
	return TransportStdio
}

// MCPClient communicates with an MCP server using the official MCP Go SDK.
type MCPClient struct {
	client  *mcp.Client
	session *mcp.ClientSession
	allow   []string
}

// Connect opens a session to the server described by cfg.
func Connect(ctx context.Context, cfg Config) (*MCPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var transport mcp.Transport
	switch cfg.transport() {
	case TransportSSE:
		transport = &mcp.SSEClientTransport{Endpoint: cfg.URL}
	case TransportHTTP:
		transport = &mcp.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		cmd := exec.Command(cfg.Command, cfg.Args...) //nolint:gosec // command comes from the operator's config
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcp.CommandTransport{Command: cmd}
	}

	c, err := newFromTransport(ctx, transport)
	if err != nil {
		return nil, err
	}
	c.allow = cfg.Tools
	return c, nil
}

func newFromTransport(ctx context.Context, transport mcp.Transport) (*MCPClient, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "egbert",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: connect: %w", err)
	}

	return &MCPClient{client: client, session: session}, nil
}

// ListTools fetches the server's tools as toolbox.Tool values whose handlers
// call back through CallTool. Tools outside the allow list are skipped.
func (c *MCPClient) ListTools(ctx context.Context) ([]toolbox.Tool, error) {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: list tools: %w", err)
	}

	tools := make([]toolbox.Tool, 0, len(result.Tools))
	for _, sdkTool := range result.Tools {
		if len(c.allow) > 0 && !slices.Contains(c.allow, sdkTool.Name) {
			continue
		}
		t, err := fromSDKTool(sdkTool, c)
		if err != nil {
			return nil, fmt.Errorf("mcpclient: convert tool %q: %w", sdkTool.Name, err)
		}
		tools = append(tools, t)
	}

	return tools, nil
}

// ToolBox returns a ToolBox holding the server's tools.
func (c *MCPClient) ToolBox(ctx context.Context) (*toolbox.ToolBox, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	tb := toolbox.New()
	if err := tb.Register(tools...); err != nil {
		return nil, fmt.Errorf("mcpclient: %w", err)
	}
	return tb, nil
}

// CallTool calls a named tool on the server. A result flagged as an error by
// the server is returned as an error carrying its text.
func (c *MCPClient) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return "", fmt.Errorf("mcpclient: unmarshal arguments: %w", err)
		}
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcpclient: call tool: %w", err)
	}

	text := extractText(result)
	if result.IsError {
		return "", fmt.Errorf("mcpclient: tool error: %s", text)
	}

	return text, nil
}

// Close ends the session. For stdio servers this also stops the process.
func (c *MCPClient) Close() error {
	return c.session.Close()
}

func fromSDKTool(sdkTool *mcp.Tool, c *MCPClient) (toolbox.Tool, error) {
	schemaBytes, err := json.Marshal(sdkTool.InputSchema)
	if err != nil {
		return toolbox.Tool{}, fmt.Errorf("marshal input schema: %w", err)
	}

	name := sdkTool.Name

	return toolbox.Tool{
		Name:        sdkTool.Name,
		Description: sdkTool.Description,
		InputSchema: json.RawMessage(schemaBytes),
		Handler: func(ctx context.Context, input json.RawMessage) (any, error) {
			return c.CallTool(ctx, name, input)
		},
	}, nil
}

// extractText joins the text items of a result with newlines.
func extractText(result *mcp.CallToolResult) string {
	var texts []string
	for _, item := range result.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}

	return strings.Join(texts, "\n")
}
