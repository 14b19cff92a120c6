// Egbert runs the configured bots in their chat sources until interrupted.
// The check command validates a configuration without connecting anything,
// and the mcp command serves the configured tools to other programs over
// MCP on stdin/stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/germanamz/egbert/pkg/engine"
	"github.com/germanamz/egbert/pkg/notify"
	"github.com/germanamz/egbert/pkg/tools/executor"
	"github.com/germanamz/egbert/pkg/tools/mcpserver"
)

const version = "1.0.0"

type options struct {
	configPath string
	envFile    string
	logFormat  string
	logLevel   string
	trace      bool
	tools      string
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "path to configuration file (default: egbert.yaml)")
	fs.StringVar(&o.envFile, "env", ".env", "path to .env file (ignored if missing)")
	fs.StringVar(&o.logFormat, "log-format", "text", "log format: text or json")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.BoolVar(&o.trace, "trace", false, "log every status, chunk and tool call at debug level")
	fs.StringVar(&o.tools, "tools", "", "mcp: comma-separated tool names to serve (default: all)")
}

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "check" || args[0] == "mcp") {
		cmd, args = args[0], args[1:]
	}

	var opts options
	fs := flag.NewFlagSet("egbert", flag.ExitOnError)
	opts.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: egbert [command] [flags]\n\nCommands:\n  (none)  Run the configured bots\n  check   Validate the configuration\n  mcp     Serve the configured tools over MCP stdio\n\nFlags:\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if err := loadDotEnv(opts.envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// stdout carries MCP traffic in mcp mode, so logs always go to stderr.
	log, err := newLogger(os.Stderr, opts.logFormat, opts.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	switch cmd {
	case "check":
		err = check(opts)
	case "mcp":
		err = serveMCP(opts, log)
	default:
		err = run(opts, log)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadEngineConfig(opts options) (engine.Config, error) {
	cfg, err := engine.LoadConfig(resolveConfigPath(opts.configPath))
	if err != nil {
		return engine.Config{}, err
	}
	return cfg, cfg.Validate()
}

func check(opts options) error {
	cfg, err := loadEngineConfig(opts)
	if err != nil {
		return err
	}
	fmt.Println(summary(cfg))
	return nil
}

func run(opts options, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadEngineConfig(opts)
	if err != nil {
		return err
	}

	eng, err := engine.New(ctx, cfg, engine.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if opts.trace {
		sub := eng.Events().Subscribe(256)
		defer eng.Events().Unsubscribe(sub)
		go traceEvents(ctx, log, sub)
	}

	log.InfoContext(ctx, "egbert started", "bots", len(eng.Bots()), "chat_sources", len(eng.Sources()))
	return eng.Start(ctx)
}

func serveMCP(opts options, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadEngineConfig(opts)
	if err != nil {
		return err
	}

	eng, err := engine.New(ctx, cfg, engine.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	srv := mcpserver.New("egbert", version, executor.Options{Logger: log})
	tools := servedTools(eng.ToolBox(), opts.tools)
	if len(tools) == 0 {
		return errors.New("no tools to serve")
	}
	if err := srv.Register(tools...); err != nil {
		return err
	}

	return srv.Serve(ctx, os.Stdin, os.Stdout)
}

func traceEvents(ctx context.Context, log *slog.Logger, sub *notify.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			log.DebugContext(ctx, "event",
				"kind", e.Kind,
				"bot", e.Bot,
				"social_context", e.SocialContext,
				"text", e.Text,
			)
		}
	}
}
