// Package mcpserver exposes a ToolBox to other programs over the Model
// Context Protocol. Calls go through the same executor the bots use, so
// arguments are validated, results truncated and failures reported as text.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/germanamz/egbert/pkg/chats/content"
	"github.com/germanamz/egbert/pkg/tools/executor"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

// MCPServer serves tools over the MCP protocol using the official MCP Go SDK.
type MCPServer struct {
	server *mcp.Server
	tools  *toolbox.ToolBox
	exec   *executor.Executor
}

// New creates a new MCPServer with the given name and version.
func New(name, version string, opts executor.Options) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	return &MCPServer{
		server: server,
		tools:  toolbox.New(),
		exec:   executor.New(opts),
	}
}

// Register adds tools to the server. Nothing is added if any tool is
// rejected by the toolbox.
func (s *MCPServer) Register(tools ...toolbox.Tool) error {
	if err := s.tools.Register(tools...); err != nil {
		return err
	}
	for _, t := range tools {
		s.server.AddTool(toSDKTool(t), s.handler(t.Name))
	}
	return nil
}

// Serve starts serving MCP requests. It reads requests from in and writes
// responses to out. It blocks until ctx is cancelled or the transport closes.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.run(ctx, transport)
}

func (s *MCPServer) run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func toSDKTool(t toolbox.Tool) *mcp.Tool {
	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.Schema(),
	}
}

func (s *MCPServer) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if args == nil {
			args = json.RawMessage("{}")
		}

		res := s.exec.Execute(ctx, s.tools, []content.ToolCall{{
			ID:        "mcp",
			Name:      name,
			Arguments: string(args),
		}})[0]

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Content}},
			IsError: res.IsError,
		}, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
