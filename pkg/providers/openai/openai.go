// Package openai implements a streaming Streamer for the OpenAI Chat
// Completions API and any server that speaks the same protocol.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/germanamz/egbert/pkg/chats/chat"
	"github.com/germanamz/egbert/pkg/chats/content"
	"github.com/germanamz/egbert/pkg/chats/message"
	"github.com/germanamz/egbert/pkg/chats/role"
	"github.com/germanamz/egbert/pkg/modeladapter"
	"github.com/germanamz/egbert/pkg/modeladapter/usage"
	"github.com/germanamz/egbert/pkg/stream"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

const completionsPath = "/v1/chat/completions"

var _ modeladapter.Streamer = (*Adapter)(nil)

// Adapter implements modeladapter.Streamer for the Chat Completions API.
type Adapter struct {
	modeladapter.ModelAdapter

	// JSONMode asks the model to reply with a JSON object.
	JSONMode bool
}

// New creates an Adapter. The baseURL should be "https://api.openai.com"
// (no trailing slash).
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{Key: apiKey}
	a.Name = model
	a.HeaderParser = modeladapter.ParseOpenAIRateLimitHeaders

	return a
}

// Stream sends the conversation with tool_choice "auto" and returns the
// frames of the streamed reply.
func (a *Adapter) Stream(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (modeladapter.FrameStream, error) {
	resp, err := a.PostStream(ctx, completionsPath, a.buildRequest(c, tools))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	return &frameStream{
		body:    resp,
		reader:  modeladapter.NewSSEReader(resp.Body),
		tracker: &a.Usage,
	}, nil
}

// --- request types ---

type apiRequest struct {
	Model          string             `json:"model"`
	Messages       []apiMessage       `json:"messages"`
	Stream         bool               `json:"stream"`
	StreamOptions  *apiStreamOptions  `json:"stream_options,omitempty"`
	MaxTokens      int                `json:"max_tokens,omitempty"`
	Temperature    *float64           `json:"temperature,omitempty"`
	Tools          []apiToolDef       `json:"tools,omitempty"`
	ToolChoice     string             `json:"tool_choice,omitempty"`
	ResponseFormat *apiResponseFormat `json:"response_format,omitempty"`
}

type apiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type apiResponseFormat struct {
	Type string `json:"type"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    *string       `json:"content"`
	Name       string        `json:"name,omitempty"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function apiToolFunction `json:"function"`
}

type apiToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type apiToolDef struct {
	Type     string         `json:"type"`
	Function apiToolDefFunc `json:"function"`
}

type apiToolDefFunc struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// --- stream chunk types ---

type apiChunk struct {
	Choices []apiChunkChoice `json:"choices"`
	Usage   *apiUsage        `json:"usage"`
}

type apiChunkChoice struct {
	Delta        apiDelta `json:"delta"`
	FinishReason *string  `json:"finish_reason"`
}

type apiDelta struct {
	Content   *string        `json:"content"`
	ToolCalls []apiDeltaCall `json:"tool_calls"`
}

type apiDeltaCall struct {
	Index    int             `json:"index"`
	ID       string          `json:"id"`
	Function apiToolFunction `json:"function"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(c *chat.Chat, tools []toolbox.Tool) apiRequest {
	req := apiRequest{
		Model:         a.Name,
		Stream:        true,
		StreamOptions: &apiStreamOptions{IncludeUsage: true},
		MaxTokens:     a.MaxTokens,
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.Temperature = &t
	}

	if a.JSONMode {
		req.ResponseFormat = &apiResponseFormat{Type: "json_object"}
	}

	if len(tools) > 0 {
		req.ToolChoice = "auto"
		req.Tools = make([]apiToolDef, len(tools))
		for i, t := range tools {
			req.Tools[i] = apiToolDef{
				Type: "function",
				Function: apiToolDefFunc{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Schema(),
				},
			}
		}
	}

	c.Each(func(_ int, m message.Message) bool {
		req.Messages = appendMessages(req.Messages, m)
		return true
	})

	return req
}

func appendMessages(msgs []apiMessage, m message.Message) []apiMessage {
	switch m.Role {
	case role.System, role.User:
		text := m.TextContent()
		return append(msgs, apiMessage{Role: m.Role.String(), Content: &text})

	case role.Assistant:
		msg := apiMessage{Role: "assistant"}
		var text strings.Builder
		for _, p := range m.Parts {
			switch v := p.(type) {
			case content.Text:
				text.WriteString(v.Text)
			case content.ToolCall:
				msg.ToolCalls = append(msg.ToolCalls, apiToolCall{
					ID:   v.ID,
					Type: "function",
					Function: apiToolFunction{
						Name:      v.Name,
						Arguments: v.Arguments,
					},
				})
			}
		}
		// Content may only be null when the message carries tool calls.
		if text.Len() > 0 || len(msg.ToolCalls) == 0 {
			s := text.String()
			msg.Content = &s
		}
		return append(msgs, msg)

	case role.Tool:
		for _, p := range m.Parts {
			if tr, ok := p.(content.ToolResult); ok {
				msgs = append(msgs, apiMessage{
					Role:       "tool",
					Content:    &tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		}
	}
	return msgs
}

// frameStream decodes SSE chunks into frames.
type frameStream struct {
	body      *http.Response
	reader    *modeladapter.SSEReader
	tracker   *usage.Tracker
	closeOnce sync.Once
}

func (s *frameStream) Next() (stream.Frame, error) {
	for {
		data, err := s.reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stream.Frame{}, io.EOF
			}
			return stream.Frame{}, fmt.Errorf("openai: read stream: %w", err)
		}

		var chunk apiChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return stream.Frame{}, fmt.Errorf("openai: decode chunk: %w", err)
		}

		if chunk.Usage != nil {
			s.tracker.Add(usage.TokenCount{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			})
		}

		// The usage-only chunk that closes a stream carries no choices.
		if len(chunk.Choices) == 0 {
			continue
		}

		return toFrame(chunk.Choices[0]), nil
	}
}

func (s *frameStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Body.Close() })
	return err
}

func toFrame(c apiChunkChoice) stream.Frame {
	var f stream.Frame
	if c.Delta.Content != nil {
		f.Content = *c.Delta.Content
	}
	if c.FinishReason != nil {
		f.FinishReason = *c.FinishReason
	}
	for _, tc := range c.Delta.ToolCalls {
		f.ToolCalls = append(f.ToolCalls, stream.ToolCallDelta{
			Index:     tc.Index,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return f
}
