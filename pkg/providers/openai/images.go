package openai

import (
	"context"
	"errors"
	"fmt"
)

const imagesPath = "/v1/images/generations"

// ImageRequest describes one image generation call.
type ImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n,omitempty"`
}

// Image is a generated image reference.
type Image struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type imagesResponse struct {
	Data []Image `json:"data"`
}

// GenerateImage calls the image generation endpoint and returns the first image.
func (a *Adapter) GenerateImage(ctx context.Context, req ImageRequest) (Image, error) {
	if req.N == 0 {
		req.N = 1
	}

	var resp imagesResponse
	if err := a.PostJSON(ctx, imagesPath, req, &resp); err != nil {
		return Image{}, fmt.Errorf("openai: images: %w", err)
	}
	if len(resp.Data) == 0 {
		return Image{}, errors.New("openai: images: empty response")
	}

	return resp.Data[0], nil
}
