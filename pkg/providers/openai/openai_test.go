package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/egbert/pkg/chats/chat"
	"github.com/germanamz/egbert/pkg/chats/content"
	"github.com/germanamz/egbert/pkg/chats/message"
	"github.com/germanamz/egbert/pkg/chats/role"
	"github.com/germanamz/egbert/pkg/modeladapter"
	"github.com/germanamz/egbert/pkg/providers/openai"
	"github.com/germanamz/egbert/pkg/stream"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *openai.Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := openai.New(srv.URL, "test-key", "gpt-4o")
	a.Client = srv.Client()

	return a
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}

	return req
}

func writeSSE(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range chunks {
		_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
	}
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
}

func drain(t *testing.T, fs modeladapter.FrameStream) []stream.Frame {
	t.Helper()
	defer func() { _ = fs.Close() }()

	var frames []stream.Frame
	for {
		f, err := fs.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
}

func TestStream_Text(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		req := readBody(t, r)
		assert.Equal(t, "gpt-4o", req["model"])
		assert.Equal(t, true, req["stream"])
		assert.NotContains(t, req, "tools")
		assert.NotContains(t, req, "tool_choice")

		msgs, _ := req["messages"].([]any)
		require.Len(t, msgs, 2)
		first, _ := msgs[0].(map[string]any)
		assert.Equal(t, "system", first["role"])

		writeSSE(w,
			`{"choices":[{"delta":{"role":"assistant","content":""},"finish_reason":null}]}`,
			`{"choices":[{"delta":{"content":"Hel"},"finish_reason":null}]}`,
			`{"choices":[{"delta":{"content":"lo"},"finish_reason":null}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":2}}`,
		)
	})

	c := chat.New(
		message.NewText("", role.System, "You are Egbert."),
		message.NewText("alice", role.User, "hi"),
	)

	fs, err := a.Stream(context.Background(), c, nil)
	require.NoError(t, err)

	frames := drain(t, fs)
	require.Len(t, frames, 4)
	assert.Equal(t, "Hel", frames[1].Content)
	assert.Equal(t, "lo", frames[2].Content)
	assert.Equal(t, "stop", frames[3].FinishReason)
	for _, f := range frames {
		assert.Equal(t, stream.KindContent, stream.Classify(f))
	}

	total := a.Usage.Total()
	assert.Equal(t, 12, total.InputTokens)
	assert.Equal(t, 2, total.OutputTokens)
}

func TestStream_ToolCallFragments(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		assert.Equal(t, "auto", req["tool_choice"])

		tools, _ := req["tools"].([]any)
		require.Len(t, tools, 1)
		tool, _ := tools[0].(map[string]any)
		assert.Equal(t, "function", tool["type"])
		fn, _ := tool["function"].(map[string]any)
		assert.Equal(t, "get_weather", fn["name"])

		writeSSE(w,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]},"finish_reason":null}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"loc"}}]},"finish_reason":null}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ation\":\"Oslo\"}"}}]},"finish_reason":null}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		)
	})

	tools := []toolbox.Tool{{
		Name:        "get_weather",
		Description: "Get the weather",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"location":{"type":"string"}}}`),
	}}

	fs, err := a.Stream(context.Background(), chat.New(message.NewText("alice", role.User, "weather in Oslo?")), tools)
	require.NoError(t, err)

	var agg stream.Aggregator
	for _, f := range drain(t, fs) {
		agg.Merge(f)
	}

	calls := agg.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, `{"location":"Oslo"}`, calls[0].Arguments)
}

func TestStream_SerializesToolHistory(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		msgs, _ := req["messages"].([]any)
		require.Len(t, msgs, 3)

		assistant, _ := msgs[1].(map[string]any)
		assert.Equal(t, "assistant", assistant["role"])
		assert.Equal(t, "Tool call request from the assistant", assistant["content"])
		calls, _ := assistant["tool_calls"].([]any)
		require.Len(t, calls, 1)
		call, _ := calls[0].(map[string]any)
		assert.Equal(t, "call_1", call["id"])

		tool, _ := msgs[2].(map[string]any)
		assert.Equal(t, "tool", tool["role"])
		assert.Equal(t, "call_1", tool["tool_call_id"])
		assert.Equal(t, "-3C", tool["content"])

		writeSSE(w, `{"choices":[{"delta":{"content":"Cold."},"finish_reason":"stop"}]}`)
	})

	c := chat.New(
		message.NewText("alice", role.User, "weather?"),
		message.New("egbert", role.Assistant,
			content.Text{Text: "Tool call request from the assistant"},
			content.ToolCall{ID: "call_1", Name: "get_weather", Arguments: `{"location":"Oslo"}`},
		),
		message.NewToolResult(content.ToolResult{ToolCallID: "call_1", Name: "get_weather", Content: "-3C"}),
	)

	fs, err := a.Stream(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Len(t, drain(t, fs), 1)
}

func TestStream_AssistantContent(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		msgs, _ := req["messages"].([]any)
		require.Len(t, msgs, 3)

		empty, _ := msgs[0].(map[string]any)
		require.Contains(t, empty, "content")
		assert.Equal(t, "", empty["content"])

		callsOnly, _ := msgs[1].(map[string]any)
		assert.Nil(t, callsOnly["content"])
		assert.NotEmpty(t, callsOnly["tool_calls"])

		writeSSE(w)
	})

	c := chat.New(
		message.New("egbert", role.Assistant),
		message.New("egbert", role.Assistant,
			content.ToolCall{ID: "call_1", Name: "get_weather", Arguments: `{}`},
		),
		message.NewToolResult(content.ToolResult{ToolCallID: "call_1", Name: "get_weather", Content: "-3C"}),
	)

	fs, err := a.Stream(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Empty(t, drain(t, fs))
}

func TestStream_JSONMode(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		rf, _ := req["response_format"].(map[string]any)
		assert.Equal(t, "json_object", rf["type"])
		writeSSE(w)
	})
	a.JSONMode = true

	fs, err := a.Stream(context.Background(), chat.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, drain(t, fs))
}

func TestStream_HTTPError(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	})

	_, err := a.Stream(context.Background(), chat.New(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai:")
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestStream_MalformedChunk(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w, `{"choices":[{"delta":`)
	})

	fs, err := a.Stream(context.Background(), chat.New(), nil)
	require.NoError(t, err)
	defer func() { _ = fs.Close() }()

	_, err = fs.Next()
	assert.ErrorContains(t, err, "decode chunk")
}

func TestGenerateImage(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		req := readBody(t, r)
		assert.Equal(t, "dall-e-3", req["model"])
		assert.Equal(t, "a red fox", req["prompt"])
		assert.Equal(t, "1792x1024", req["size"])
		assert.InDelta(t, 1, req["n"], 0)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"url":"https://img.example/fox.png","revised_prompt":"a red fox in snow"}]}`)
	})

	img, err := a.GenerateImage(context.Background(), openai.ImageRequest{Model: "dall-e-3", Prompt: "a red fox", Size: "1792x1024"})
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/fox.png", img.URL)
	assert.True(t, strings.HasPrefix(img.RevisedPrompt, "a red fox"))
}

func TestGenerateImage_Empty(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	})

	_, err := a.GenerateImage(context.Background(), openai.ImageRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "empty response")
}
