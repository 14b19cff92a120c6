// Package modeladapter defines how the conversation loop talks to a language
// model and the shared plumbing concrete providers build on.
//
// It contains:
//   - [Streamer] and [FrameStream], the streaming completion contract
//   - the embeddable [ModelAdapter] base struct with HTTP helpers, auth, custom headers, and SSE reading
//   - [RateLimitedStreamer], an opt-in wrapper that throttles and retries opening streams
//   - [github.com/germanamz/egbert/pkg/modeladapter/usage] thread-safe token usage tracker
//
// This package contains no provider-specific code. Concrete adapters live in
// separate packages that import modeladapter.
package modeladapter
