package modeladapter

import (
	"unicode/utf8"

	"github.com/germanamz/egbert/pkg/chats/chat"
	"github.com/germanamz/egbert/pkg/chats/content"
	"github.com/germanamz/egbert/pkg/chats/message"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

const (
	// perMessageOverhead covers role markers and message delimiters.
	perMessageOverhead = 4
	// perToolOverhead covers the function object wrapping each definition.
	perToolOverhead = 10
)

// TokenEstimator approximates token counts with a 4-characters-per-token
// heuristic. It is only precise enough for throttling decisions.
// The zero value is ready to use.
type TokenEstimator struct{}

func charsToTokens(chars int) int {
	return (chars + 3) / 4
}

func runes(s string) int { return utf8.RuneCountInString(s) }

// EstimateChat estimates the input tokens of every message in c.
func (e *TokenEstimator) EstimateChat(c *chat.Chat) int {
	tokens := 0

	c.Each(func(_ int, m message.Message) bool {
		tokens += perMessageOverhead

		for _, p := range m.Parts {
			switch v := p.(type) {
			case content.Text:
				tokens += charsToTokens(runes(v.Text))
			case content.ToolCall:
				tokens += charsToTokens(runes(v.ID) + runes(v.Name) + runes(v.Arguments))
			case content.ToolResult:
				tokens += charsToTokens(runes(v.ToolCallID) + runes(v.Content))
			}
		}

		return true
	})

	return tokens
}

// EstimateTools estimates the token cost of declaring tools to the model.
func (e *TokenEstimator) EstimateTools(tools []toolbox.Tool) int {
	tokens := 0

	for _, t := range tools {
		chars := runes(t.Name) + runes(t.Description) + len(t.Schema())
		tokens += charsToTokens(chars) + perToolOverhead
	}

	return tokens
}

// EstimateTotal estimates the input tokens of one streamed request.
func (e *TokenEstimator) EstimateTotal(c *chat.Chat, tools []toolbox.Tool) int {
	return e.EstimateChat(c) + e.EstimateTools(tools)
}
