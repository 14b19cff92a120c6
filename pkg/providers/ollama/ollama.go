// Package ollama talks to a local Ollama server through its generate
// endpoint. Ollama models are used as plain completion backends and are not
// offered tools.
package ollama

import (
	"context"
	"fmt"

	"github.com/germanamz/egbert/pkg/modeladapter"
	"github.com/germanamz/egbert/pkg/modeladapter/usage"
)

// DefaultBaseURL is where a local Ollama server listens.
const DefaultBaseURL = "http://localhost:11434"

const generatePath = "/api/generate"

// Adapter calls /api/generate with streaming disabled.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. An empty baseURL selects DefaultBaseURL.
func New(baseURL, model string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	a := &Adapter{}
	a.BaseURL = baseURL
	a.Name = model

	return a
}

// GenerateRequest is one prompt with its system text.
type GenerateRequest struct {
	System string
	Prompt string
}

type apiRequest struct {
	Model   string     `json:"model"`
	System  string     `json:"system,omitempty"`
	Prompt  string     `json:"prompt"`
	Stream  bool       `json:"stream"`
	Options apiOptions `json:"options"`
}

type apiOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type apiResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate returns the model's completion for req.
func (a *Adapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body := apiRequest{
		Model:  a.Name,
		System: req.System,
		Prompt: req.Prompt,
		Options: apiOptions{
			Temperature: a.Temperature,
			NumPredict:  a.MaxTokens,
		},
	}

	var resp apiResponse
	if err := a.PostJSON(ctx, generatePath, body, &resp); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}

	a.Usage.Add(usage.TokenCount{
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	})

	return resp.Response, nil
}
