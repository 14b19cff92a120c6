package memory_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/egbert/pkg/memory"
)

func TestKeyword_SaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "memories")
	k, err := memory.NewKeyword("notes", dir, `remember:(.*)`, nil)
	require.NoError(t, err)
	assert.Equal(t, "notes", k.Name())

	ctx := context.Background()
	scope := memory.Scope{ChatSource: "console", Bot: "Egbert", SocialContext: "family"}

	entries, err := k.LoadRelevant(ctx, scope, "hi")
	require.NoError(t, err)
	assert.Empty(t, entries)

	saved, err := k.MaybeSave(ctx, scope, "alice", "Remember: I like pizza")
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = k.MaybeSave(ctx, scope, "", "remember: the wifi password is taped under the router")
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = k.MaybeSave(ctx, scope, "bob", "what's up")
	require.NoError(t, err)
	assert.False(t, saved)

	entries, err = k.LoadRelevant(ctx, scope, "anything")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "[alice]: I like pizza", entries[0].String())
	assert.Equal(t, "the wifi password is taped under the router", entries[1].String())

	data, err := os.ReadFile(filepath.Join(dir, "memories-Egbert-family.json"))
	require.NoError(t, err)
	var raw []string
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 2)
}

func TestKeyword_ScopesAreSeparate(t *testing.T) {
	k, err := memory.NewKeyword("notes", t.TempDir(), `remember:(.*)`, nil)
	require.NoError(t, err)
	ctx := context.Background()

	a := memory.Scope{Bot: "Egbert", SocialContext: "family"}
	b := memory.Scope{Bot: "Egbert", SocialContext: "work"}

	_, err = k.MaybeSave(ctx, a, "alice", "remember: family stuff")
	require.NoError(t, err)

	entries, err := k.LoadRelevant(ctx, b, "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestKeyword_SanitizesFileName(t *testing.T) {
	dir := t.TempDir()
	k, err := memory.NewKeyword("notes", dir, `remember:(.*)`, nil)
	require.NoError(t, err)

	scope := memory.Scope{Bot: "Eg bert", SocialContext: "../etc"}
	_, err = k.MaybeSave(context.Background(), scope, "", "remember: x")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "memories-Eg_bert-___etc.json"))
	assert.NoError(t, err)
}

func TestKeyword_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memories-Egbert-family.json"), []byte("{nope"), 0o600))

	k, err := memory.NewKeyword("notes", dir, `remember:(.*)`, nil)
	require.NoError(t, err)

	_, err = k.LoadRelevant(context.Background(), memory.Scope{Bot: "Egbert", SocialContext: "family"}, "")
	assert.ErrorContains(t, err, "memory: parse")
}
