package chatsource

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/germanamz/egbert/pkg/chats/message"
	"github.com/germanamz/egbert/pkg/notify"
)

// Frame types sent to WebSocket clients.
const (
	FrameStatus   = "status"
	FrameChunk    = "chunk"
	FrameToolCall = "tool_call"
	FrameTool     = "tool_result"
	FrameReply    = "reply"
	// FrameRemembered tells the client a bot saved the message as a memory.
	FrameRemembered = "remembered"
)

// WebSocketConfig configures a WebSocket source.
type WebSocketConfig struct {
	Config `mapstructure:",squash"`

	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
	// MaxMessageLength splits replies into several frames. Zero disables.
	MaxMessageLength int      `mapstructure:"max_message_length"`
	OriginPatterns   []string `mapstructure:"origin_patterns"`
}

func (c WebSocketConfig) withDefaults() WebSocketConfig {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Path == "" {
		c.Path = "/ws"
	}
	return c
}

// Inbound is a message a client sends.
type Inbound struct {
	Sender        string `json:"sender"`
	Text          string `json:"text"`
	SocialContext string `json:"social_context,omitempty"`
}

// Frame is a message the server sends.
type Frame struct {
	Type         string     `json:"type"`
	Bot          string     `json:"bot,omitempty"`
	Text         string     `json:"text,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	ToolCalls    []FrameRef `json:"tool_calls,omitempty"`
	ToolCallID   string     `json:"tool_call_id,omitempty"`
	IsError      bool       `json:"is_error,omitempty"`
}

// FrameRef describes one requested tool call.
type FrameRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// WebSocket serves bots to browser or program clients. Each connection is a
// chat participant; messages on one connection are handled in order.
type WebSocket struct {
	*Base

	cfg WebSocketConfig
}

// NewWebSocket creates a WebSocket source.
func NewWebSocket(cfg WebSocketConfig, log *slog.Logger) (*WebSocket, error) {
	base, err := NewBase(cfg.Config, log)
	if err != nil {
		return nil, err
	}
	return &WebSocket{Base: base, cfg: cfg.withDefaults()}, nil
}

// Handler returns the HTTP handler serving the WebSocket endpoint and a
// health check.
func (w *WebSocket) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle(w.cfg.Path, w)
	return mux
}

// Start listens on the configured address until ctx is done.
func (w *WebSocket) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              w.cfg.Addr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	w.Logger().InfoContext(ctx, "websocket listening", "addr", w.cfg.Addr, "path", w.cfg.Path)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP upgrades the request and serves one client.
func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(rw, r, &websocket.AcceptOptions{OriginPatterns: w.cfg.OriginPatterns})
	if err != nil {
		w.Logger().Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	id := uuid.NewString()
	log := w.Logger().With("connection", id)
	log.InfoContext(ctx, "client connected")

	for {
		var in Inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				log.InfoContext(ctx, "client disconnected")
			} else {
				log.WarnContext(ctx, "websocket read failed", "error", err)
			}
			return
		}
		if strings.TrimSpace(in.Text) == "" {
			continue
		}
		if in.Sender == "" {
			in.Sender = id
		}

		replies := w.Dispatch(ctx, Message{
			SocialContext: in.SocialContext,
			Sender:        in.Sender,
			Text:          in.Text,
			OnRemembered: func(botName string) {
				_ = wsjson.Write(ctx, conn, Frame{Type: FrameRemembered, Bot: botName})
			},
		}, func(botName string) notify.Notifier {
			return &frameNotifier{conn: conn, bot: botName, log: log}
		})

		for _, rep := range replies {
			for _, part := range SplitMessage(rep.Text, w.cfg.MaxMessageLength) {
				if err := wsjson.Write(ctx, conn, Frame{Type: FrameReply, Bot: rep.Bot, Text: part}); err != nil {
					log.WarnContext(ctx, "websocket write failed", "error", err)
					return
				}
			}
		}
	}
}

// frameNotifier streams progress to one client. The connection allows
// concurrent writers, so parallel tool status updates need no locking.
type frameNotifier struct {
	conn *websocket.Conn
	bot  string
	log  *slog.Logger
}

func (n *frameNotifier) send(ctx context.Context, f Frame) {
	f.Bot = n.bot
	if err := wsjson.Write(ctx, n.conn, f); err != nil {
		n.log.DebugContext(ctx, "dropping frame", "type", f.Type, "error", err)
	}
}

func (n *frameNotifier) Status(ctx context.Context, text string) {
	n.send(ctx, Frame{Type: FrameStatus, Text: text})
}

func (n *frameNotifier) ContentChunk(ctx context.Context, text, finishReason string) {
	n.send(ctx, Frame{Type: FrameChunk, Text: text, FinishReason: finishReason})
}

func (n *frameNotifier) ToolCallMessage(ctx context.Context, msg message.Message) {
	if res, ok := msg.ToolResult(); ok {
		n.send(ctx, Frame{Type: FrameTool, Text: res.Content, ToolCallID: res.ToolCallID, IsError: res.IsError})
		return
	}

	calls := msg.ToolCalls()
	refs := make([]FrameRef, len(calls))
	for i, tc := range calls {
		refs[i] = FrameRef{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
	}
	n.send(ctx, Frame{Type: FrameToolCall, Text: msg.TextContent(), ToolCalls: refs})
}
