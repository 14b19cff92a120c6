// Package chats holds the provider-agnostic conversation model shared by bots,
// responders, and model adapters.
//
// Sub-packages:
//   - [github.com/germanamz/egbert/pkg/chats/role] roles a message can be sent with
//   - [github.com/germanamz/egbert/pkg/chats/content] text, tool call, and tool result parts
//   - [github.com/germanamz/egbert/pkg/chats/message] a sender, role, and list of parts
//   - [github.com/germanamz/egbert/pkg/chats/chat] append-only transcript of one conversation run
//   - [github.com/germanamz/egbert/pkg/chats/history] bounded per-channel history of past lines
package chats
