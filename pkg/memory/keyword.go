package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// Keyword saves memories to one JSON file per bot and social context when a
// message matches its pattern. All stored memories are always relevant.
type Keyword struct {
	name    string
	folder  string
	trigger trigger
	log     *slog.Logger

	mu sync.Mutex
}

// NewKeyword creates a Keyword manager writing under folder. pattern is
// matched case-insensitively; its first group is the memory text.
func NewKeyword(name, folder, pattern string, log *slog.Logger) (*Keyword, error) {
	t, err := newTrigger(pattern)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Keyword{name: name, folder: folder, trigger: t, log: log}, nil
}

// Name returns the manager's configured name.
func (k *Keyword) Name() string { return k.name }

// LoadRelevant returns every memory saved for the scope.
func (k *Keyword) LoadRelevant(_ context.Context, scope Scope, _ string) ([]Entry, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	stored, err := k.read(scope)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(stored))
	for i, s := range stored {
		entries[i] = Entry{Text: s}
	}
	return entries, nil
}

// MaybeSave appends "[sender]: memory" to the scope's file when text matches.
func (k *Keyword) MaybeSave(ctx context.Context, scope Scope, sender, text string) (bool, error) {
	mem, ok := k.trigger.extract(text)
	if !ok {
		return false, nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	stored, err := k.read(scope)
	if err != nil {
		return false, err
	}
	stored = append(stored, Entry{Sender: sender, Text: mem}.String())

	if err := os.MkdirAll(k.folder, 0o750); err != nil {
		return false, fmt.Errorf("memory: create folder: %w", err)
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return false, fmt.Errorf("memory: encode: %w", err)
	}
	if err := os.WriteFile(k.path(scope), data, 0o600); err != nil {
		return false, fmt.Errorf("memory: write: %w", err)
	}

	k.log.InfoContext(ctx, "memory saved",
		"manager", k.name,
		"bot", scope.Bot,
		"social_context", scope.SocialContext,
	)
	return true, nil
}

func (k *Keyword) path(scope Scope) string {
	name := unsafeFileChars.ReplaceAllString("memories-"+scope.Bot+"-"+scope.SocialContext, "_")
	return filepath.Join(k.folder, name+".json")
}

func (k *Keyword) read(scope Scope) ([]string, error) {
	path := k.path(scope)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read %s: %w", path, err)
	}

	var stored []string
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("memory: parse %s: %w", path, err)
	}
	return stored, nil
}
