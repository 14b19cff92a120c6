// Package minecraft provides the minecraft-read-log tool, which shows the
// model what has recently happened on a Minecraft server.
package minecraft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/germanamz/egbert/pkg/agentctx"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

// ToolName is the name the model calls the tool by.
const ToolName = "minecraft-read-log"

// DefaultLines is how many trailing log lines are inspected.
const DefaultLines = 50

// DefaultFilter keeps chat and server announcements.
const DefaultFilter = `(?:DedicatedServer/]:\s|\[Bot server]:\s)(?:<(.+?)>)?(.*)`

// Config configures the log reader.
type Config struct {
	LogPath string `mapstructure:"log_path"`
	Lines   int    `mapstructure:"lines"`
	Filter  string `mapstructure:"filter"`
}

// LogReader reads the tail of a server log.
type LogReader struct {
	path   string
	lines  int
	filter *regexp.Regexp
}

// New creates a LogReader. An empty Filter selects DefaultFilter.
func New(cfg Config) (*LogReader, error) {
	if cfg.LogPath == "" {
		return nil, errors.New("minecraft: log path is required")
	}
	if cfg.Lines <= 0 {
		cfg.Lines = DefaultLines
	}
	if cfg.Filter == "" {
		cfg.Filter = DefaultFilter
	}

	re, err := regexp.Compile(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("minecraft: compile filter: %w", err)
	}

	return &LogReader{path: cfg.LogPath, lines: cfg.Lines, filter: re}, nil
}

// Tool returns the minecraft-read-log tool.
func (r *LogReader) Tool() toolbox.Tool {
	return toolbox.Tool{
		Name:        ToolName,
		Description: "Checks the latest lines of the Minecraft server log to see what is happening on the server.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
		Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
			lines, err := r.Read()
			if err != nil {
				return nil, err
			}
			agentctx.ReportStatus(ctx, fmt.Sprintf("Retrieved %d log lines...", len(lines)))
			return lines, nil
		},
	}
}

// Read returns the matching lines among the last configured lines of the
// log, newest first.
func (r *LogReader) Read() ([]string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("minecraft: read log: %w", err)
	}

	all := strings.Split(string(data), "\n")
	slices.Reverse(all)
	if len(all) > r.lines {
		all = all[:r.lines]
	}

	out := make([]string, 0, len(all))
	for _, l := range all {
		if r.filter.MatchString(l) {
			out = append(out, l)
		}
	}
	return out, nil
}
