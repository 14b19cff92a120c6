// Package imagegen provides the generate_image tool.
package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/germanamz/egbert/pkg/agentctx"
	"github.com/germanamz/egbert/pkg/providers/openai"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

// ToolName is the name the model calls the tool by.
const ToolName = "generate_image"

// DefaultModel is the image model used when none is configured.
const DefaultModel = "dall-e-3"

const (
	wideSize   = "1792x1024"
	squareSize = "1024x1024"
)

// Generator creates images. *openai.Adapter implements it.
type Generator interface {
	GenerateImage(ctx context.Context, req openai.ImageRequest) (openai.Image, error)
}

// ImageGen turns prompts into image URLs.
type ImageGen struct {
	gen   Generator
	model string
}

// New creates an ImageGen. An empty model selects DefaultModel.
func New(gen Generator, model string) *ImageGen {
	if model == "" {
		model = DefaultModel
	}
	return &ImageGen{gen: gen, model: model}
}

type input struct {
	Prompt string `json:"prompt"`
	Wide   bool   `json:"wide"`
}

// Tool returns the generate_image tool. It returns a short-lived URL.
func (g *ImageGen) Tool() toolbox.Tool {
	return toolbox.Tool{
		Name:        ToolName,
		Description: "Generates an image and returns a url to it",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"prompt":{"type":"string","description":"The query to generate the image from, for example 'a flying pig'"},"wide":{"type":"boolean","description":"true if the image should be wide aspect ratio. Default is false."}},"required":["prompt"]}`),
		Handler:     g.handle,
	}
}

func (g *ImageGen) handle(ctx context.Context, raw json.RawMessage) (any, error) {
	var in input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("generate_image: invalid input: %w", err)
	}
	if in.Prompt == "" {
		return nil, errors.New("generate_image: prompt is required")
	}

	size := squareSize
	if in.Wide {
		size = wideSize
	}

	agentctx.ReportStatus(ctx, "Generating image...")

	img, err := g.gen.GenerateImage(ctx, openai.ImageRequest{Model: g.model, Prompt: in.Prompt, Size: size})
	if err != nil {
		return nil, err
	}
	return img.URL, nil
}
