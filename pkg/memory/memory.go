// Package memory decides what a bot remembers between conversations and
// which memories are handed to the model with each request.
package memory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Scope identifies whose memories are being read or written.
type Scope struct {
	ChatSource    string
	Bot           string
	SocialContext string
}

// Entry is one remembered fact.
type Entry struct {
	Sender string
	Text   string
	Date   time.Time
}

// String renders the entry as a prompt bullet body: "[sender]: text", or
// just the text when the sender is unknown.
func (e Entry) String() string {
	if e.Sender == "" {
		return e.Text
	}
	return "[" + e.Sender + "]: " + e.Text
}

// Manager loads and saves memories for a bot in a social context.
type Manager interface {
	Name() string
	// LoadRelevant returns the memories to include when answering trigger.
	LoadRelevant(ctx context.Context, scope Scope, trigger string) ([]Entry, error)
	// MaybeSave stores a memory if text asks for one, and reports whether it did.
	MaybeSave(ctx context.Context, scope Scope, sender, text string) (bool, error)
}

// trigger extracts the memory from messages such as "Remember: I like pizza".
type trigger struct {
	re *regexp.Regexp
}

func newTrigger(pattern string) (trigger, error) {
	if pattern == "" {
		return trigger{}, errors.New("memory: empty trigger pattern")
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return trigger{}, fmt.Errorf("memory: compile pattern: %w", err)
	}
	return trigger{re: re}, nil
}

// extract returns the first capture group, or the whole match when the
// pattern has no groups, trimmed.
func (t trigger) extract(text string) (string, bool) {
	m := t.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	out := m[0]
	if len(m) > 1 {
		out = m[1]
	}
	out = strings.TrimSpace(out)
	return out, out != ""
}
