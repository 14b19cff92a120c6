package ollama_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/egbert/pkg/modeladapter"
	"github.com/germanamz/egbert/pkg/providers/ollama"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *ollama.Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := ollama.New(srv.URL, "llama3")
	a.Client = srv.Client()

	return a
}

func TestNew_DefaultBaseURL(t *testing.T) {
	a := ollama.New("", "llama3")
	assert.Equal(t, ollama.DefaultBaseURL, a.BaseURL)
	assert.Equal(t, "llama3", a.Name)
}

func TestGenerate(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req map[string]any
		require.NoError(t, json.Unmarshal(raw, &req))
		assert.Equal(t, "llama3", req["model"])
		assert.Equal(t, "You are Egbert.", req["system"])
		assert.Equal(t, "[alice]: hi", req["prompt"])
		assert.Equal(t, false, req["stream"])

		opts, _ := req["options"].(map[string]any)
		assert.InDelta(t, 0.7, opts["temperature"], 1e-9)

		_, _ = io.WriteString(w, `{"response":"Egbert: Hello!","done":true,"prompt_eval_count":9,"eval_count":3}`)
	})
	a.Temperature = 0.7

	out, err := a.Generate(context.Background(), ollama.GenerateRequest{System: "You are Egbert.", Prompt: "[alice]: hi"})
	require.NoError(t, err)
	assert.Equal(t, "Egbert: Hello!", out)

	total := a.Usage.Total()
	assert.Equal(t, 9, total.InputTokens)
	assert.Equal(t, 3, total.OutputTokens)
}

func TestGenerate_HTTPError(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})

	_, err := a.Generate(context.Background(), ollama.GenerateRequest{Prompt: "hi"})
	require.Error(t, err)

	var se *modeladapter.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, err.Error(), "ollama:")
}
