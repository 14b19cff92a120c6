// Package tools provides the tool registry, the concurrent tool executor, and
// MCP (Model Context Protocol) integration.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/egbert/pkg/tools/toolbox] Tool type and ToolBox registry with schema validation
//   - [github.com/germanamz/egbert/pkg/tools/executor] runs a batch of tool calls concurrently and shapes their results for the model
//   - [github.com/germanamz/egbert/pkg/tools/mcpclient] imports tools from external MCP servers into a ToolBox
//   - [github.com/germanamz/egbert/pkg/tools/mcpserver] exposes a ToolBox over the MCP protocol
//
// The toolbox sub-package is the foundation layer. The mcpclient and mcpserver
// packages are thin wrappers around the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
package tools
