// Package providers groups the model endpoint adapters.
//
//   - [github.com/germanamz/egbert/pkg/providers/openai] streams Chat
//     Completions as frames and generates images
//   - [github.com/germanamz/egbert/pkg/providers/ollama] calls a local
//     Ollama server's generate endpoint
//
// Shared HTTP, SSE and rate limit plumbing lives in
// [github.com/germanamz/egbert/pkg/modeladapter].
package providers
