package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/germanamz/egbert/pkg/engine"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

// loadDotEnv loads environment variables from path. A missing file is
// not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return "egbert.yaml"
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func summary(cfg engine.Config) string {
	return fmt.Sprintf("config ok: %d bots, %d chat sources, %d responders, %d tools, %d mcp servers",
		len(cfg.Bots), len(cfg.ChatSources), len(cfg.Responders), len(cfg.Tools), len(cfg.MCPServers))
}

// servedTools picks the tools to expose over MCP. An empty list serves
// everything; otherwise only the comma-separated names that exist are kept.
func servedTools(tb *toolbox.ToolBox, list string) []toolbox.Tool {
	if strings.TrimSpace(list) == "" {
		return tb.Tools()
	}

	var names []string
	for _, n := range strings.Split(list, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return tb.Subset(names...).Tools()
}
