package responder

import (
	"context"
	"strings"

	"github.com/germanamz/egbert/pkg/agent"
	"github.com/germanamz/egbert/pkg/providers/ollama"
)

// Generator is the completion call Ollama needs.
type Generator interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (string, error)
}

// Ollama sends only the system prompt and the trigger to a local model.
// History, memories and tools are not used.
type Ollama struct {
	gen Generator
}

// NewOllama creates an Ollama responder.
func NewOllama(gen Generator) *Ollama {
	return &Ollama{gen: gen}
}

// Respond asks the model and strips a leading "BOTNAME:" the model may echo.
func (o *Ollama) Respond(ctx context.Context, req Request) (string, error) {
	notifierOf(req).Status(ctx, agent.DefaultThinkingStatus)

	out, err := o.gen.Generate(ctx, ollama.GenerateRequest{
		System: SystemPrompt(req),
		Prompt: withSender(req.Sender, req.TriggerMessage),
	})
	if err != nil {
		return "", err
	}

	return stripBotName(out, req.BotName), nil
}

func stripBotName(out, bot string) string {
	prefix := bot + ":"
	if bot != "" && len(out) >= len(prefix) && strings.EqualFold(out[:len(prefix)], prefix) {
		return strings.TrimSpace(out[len(prefix):])
	}
	return out
}
