package imagegen_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/egbert/pkg/agentctx"
	"github.com/germanamz/egbert/pkg/providers/openai"
	"github.com/germanamz/egbert/pkg/toolkit/imagegen"
)

type fakeGen struct {
	got openai.ImageRequest
	err error
}

func (f *fakeGen) GenerateImage(_ context.Context, req openai.ImageRequest) (openai.Image, error) {
	f.got = req
	if f.err != nil {
		return openai.Image{}, f.err
	}
	return openai.Image{URL: "https://img.example/pig.png"}, nil
}

func TestHandle(t *testing.T) {
	cases := []struct {
		args string
		size string
	}{
		{`{"prompt":"a flying pig"}`, "1024x1024"},
		{`{"prompt":"a flying pig","wide":true}`, "1792x1024"},
	}

	for _, tc := range cases {
		t.Run(tc.size, func(t *testing.T) {
			gen := &fakeGen{}
			var statuses []string
			ctx := agentctx.WithStatus(context.Background(), func(s string) { statuses = append(statuses, s) })

			out, err := imagegen.New(gen, "").Tool().Handler(ctx, json.RawMessage(tc.args))
			require.NoError(t, err)
			assert.Equal(t, "https://img.example/pig.png", out)
			assert.Equal(t, imagegen.DefaultModel, gen.got.Model)
			assert.Equal(t, "a flying pig", gen.got.Prompt)
			assert.Equal(t, tc.size, gen.got.Size)
			assert.Equal(t, []string{"Generating image..."}, statuses)
		})
	}
}

func TestHandle_Errors(t *testing.T) {
	_, err := imagegen.New(&fakeGen{}, "").Tool().Handler(context.Background(), json.RawMessage(`{}`))
	require.ErrorContains(t, err, "prompt is required")

	_, err = imagegen.New(&fakeGen{err: errors.New("content policy")}, "").Tool().
		Handler(context.Background(), json.RawMessage(`{"prompt":"x"}`))
	assert.ErrorContains(t, err, "content policy")
}

func TestHandle_OpenAIAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":[{"url":"https://img.example/fox.png"}]}`)
	}))
	t.Cleanup(srv.Close)

	a := openai.New(srv.URL, "key", "gpt-4o")
	a.Client = srv.Client()

	out, err := imagegen.New(a, "dall-e-2").Tool().Handler(context.Background(), json.RawMessage(`{"prompt":"fox"}`))
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/fox.png", out)
}
