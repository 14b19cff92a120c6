package chatsource_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/egbert/pkg/chats/content"
	"github.com/germanamz/egbert/pkg/chats/message"
	"github.com/germanamz/egbert/pkg/chats/role"
	"github.com/germanamz/egbert/pkg/chatsource"
	"github.com/germanamz/egbert/pkg/responder"
)

func newWSServer(t *testing.T, cfg chatsource.WebSocketConfig, fn responder.Func) (*chatsource.WebSocket, string) {
	t.Helper()

	cfg.Name = "web"
	cfg.DefaultSocialContext = "family"
	ws, err := chatsource.NewWebSocket(cfg, nil)
	require.NoError(t, err)
	ws.AddBot(newBot(t, "Egbert", []string{"family"}, fn))

	srv := httptest.NewServer(ws.Handler())
	t.Cleanup(srv.Close)

	return ws, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn, until string) []chatsource.Frame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var frames []chatsource.Frame
	for {
		var f chatsource.Frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		frames = append(frames, f)
		if f.Type == until {
			return frames
		}
	}
}

func TestWebSocket_Health(t *testing.T) {
	ws, err := chatsource.NewWebSocket(chatsource.WebSocketConfig{}, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebSocket_StreamsProgressAndReply(t *testing.T) {
	ws, url := newWSServer(t, chatsource.WebSocketConfig{}, func(ctx context.Context, req responder.Request) (string, error) {
		req.Notifier.Status(ctx, "Thinking...")
		req.Notifier.ToolCallMessage(ctx, message.New("Egbert", role.Assistant,
			content.Text{Text: "Tool call request from the assistant"},
			content.ToolCall{ID: "call_1", Name: "get-weather", Arguments: `{"location":"Oslo"}`},
		))
		req.Notifier.ToolCallMessage(ctx, message.NewToolResult(content.ToolResult{ToolCallID: "call_1", Name: "get-weather", Content: "sunny"}))
		req.Notifier.ContentChunk(ctx, "It is sunny", "")
		return "It is sunny in " + req.Sender + "'s Oslo.", nil
	})
	conn := dial(t, url)

	ctx := context.Background()
	require.NoError(t, wsjson.Write(ctx, conn, chatsource.Inbound{Sender: "Ada", Text: "weather in Oslo?"}))

	frames := readFrames(t, conn, chatsource.FrameReply)
	require.Len(t, frames, 5)

	assert.Equal(t, chatsource.Frame{Type: chatsource.FrameStatus, Bot: "Egbert", Text: "Thinking..."}, frames[0])
	assert.Equal(t, chatsource.FrameToolCall, frames[1].Type)
	assert.Equal(t, []chatsource.FrameRef{{ID: "call_1", Name: "get-weather", Arguments: `{"location":"Oslo"}`}}, frames[1].ToolCalls)
	assert.Equal(t, chatsource.Frame{Type: chatsource.FrameTool, Bot: "Egbert", Text: "sunny", ToolCallID: "call_1"}, frames[2])
	assert.Equal(t, chatsource.FrameChunk, frames[3].Type)
	assert.Equal(t, chatsource.Frame{Type: chatsource.FrameReply, Bot: "Egbert", Text: "It is sunny in Ada's Oslo."}, frames[4])

	assert.Len(t, ws.History(), 2)
}

func TestWebSocket_SplitsLongReplies(t *testing.T) {
	_, url := newWSServer(t, chatsource.WebSocketConfig{MaxMessageLength: 5}, reply("abcde\nfghij"))
	conn := dial(t, url)

	ctx := context.Background()
	require.NoError(t, wsjson.Write(ctx, conn, chatsource.Inbound{Sender: "Ada", Text: "go"}))

	first := readFrames(t, conn, chatsource.FrameReply)
	second := readFrames(t, conn, chatsource.FrameReply)
	assert.Equal(t, "abcde", first[len(first)-1].Text)
	assert.Equal(t, "fghij", second[len(second)-1].Text)
}

func TestWebSocket_AnonymousSender(t *testing.T) {
	senders := make(chan string, 1)
	_, url := newWSServer(t, chatsource.WebSocketConfig{}, func(_ context.Context, req responder.Request) (string, error) {
		senders <- req.Sender
		return "ok", nil
	})
	conn := dial(t, url)

	ctx := context.Background()
	require.NoError(t, wsjson.Write(ctx, conn, chatsource.Inbound{Text: "  "}))
	require.NoError(t, wsjson.Write(ctx, conn, chatsource.Inbound{Text: "hello"}))
	readFrames(t, conn, chatsource.FrameReply)

	assert.Len(t, <-senders, 36)
}
