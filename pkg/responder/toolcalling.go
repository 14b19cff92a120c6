package responder

import (
	"context"

	"github.com/germanamz/egbert/pkg/agent"
	"github.com/germanamz/egbert/pkg/modeladapter"
	"github.com/germanamz/egbert/pkg/notify"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

// ToolCalling answers through the conversation loop, letting the model call
// the tools in its ToolBox.
type ToolCalling struct {
	streamer modeladapter.Streamer
	tools    *toolbox.ToolBox
	opts     agent.Options
}

// NewToolCalling creates a ToolCalling responder. opts.Notifier, if set, is
// notified alongside each request's own notifier.
func NewToolCalling(streamer modeladapter.Streamer, tools *toolbox.ToolBox, opts agent.Options) *ToolCalling {
	return &ToolCalling{streamer: streamer, tools: tools, opts: opts}
}

// ToolBox returns the tools offered to the model.
func (t *ToolCalling) ToolBox() *toolbox.ToolBox { return t.tools }

// Respond runs one conversation for req and returns the final answer.
func (t *ToolCalling) Respond(ctx context.Context, req Request) (string, error) {
	opts := t.opts
	opts.Notifier = notify.Multi(t.opts.Notifier, notifierOf(req))

	a := agent.New(req.BotName, t.streamer, t.tools, opts)
	return a.Run(ctx, BuildChat(req))
}
