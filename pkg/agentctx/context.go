// Package agentctx carries per-conversation identity and the status callback
// through a context. It has no dependencies inside the module so tools,
// responders, and the conversation loop can all import it.
package agentctx

import "context"

type (
	botNameCtxKey       struct{}
	socialContextCtxKey struct{}
	statusCtxKey        struct{}
)

// StatusFunc receives short human-readable progress updates.
type StatusFunc func(text string)

// WithBotName returns a new context carrying the responding bot's name.
func WithBotName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, botNameCtxKey{}, name)
}

// BotNameFromContext extracts the bot name from the context.
// Returns "" if no bot name is present.
func BotNameFromContext(ctx context.Context) string {
	v, _ := ctx.Value(botNameCtxKey{}).(string)
	return v
}

// WithSocialContext returns a new context carrying the social context the
// conversation belongs to.
func WithSocialContext(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, socialContextCtxKey{}, name)
}

// SocialContextFromContext returns the social context name, or "".
func SocialContextFromContext(ctx context.Context) string {
	v, _ := ctx.Value(socialContextCtxKey{}).(string)
	return v
}

// WithStatus returns a new context whose ReportStatus calls go to fn.
func WithStatus(ctx context.Context, fn StatusFunc) context.Context {
	return context.WithValue(ctx, statusCtxKey{}, fn)
}

// ReportStatus sends text to the status callback on ctx, if any.
func ReportStatus(ctx context.Context, text string) {
	if fn, ok := ctx.Value(statusCtxKey{}).(StatusFunc); ok && fn != nil {
		fn(text)
	}
}
