package minecraft_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/egbert/pkg/agentctx"
	"github.com/germanamz/egbert/pkg/toolkit/minecraft"
)

const sampleLog = `[12:00:01] [Server thread/INFO] [net.minecraft.server.dedicated.DedicatedServer/]: Starting minecraft server
[12:00:05] [Server thread/INFO] [net.minecraft.server.dedicated.DedicatedServer/]: <steve> hello
[12:00:06] [Server thread/INFO] [Worker]: Saving chunks
[12:00:07] [Server thread/INFO] [net.minecraft.server.dedicated.DedicatedServer/]: <alex> found diamonds
[12:00:08] [Server thread/INFO] [Bot server]: Egbert joined`

func writeLog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "latest.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRead_NewestFirstFiltered(t *testing.T) {
	r, err := minecraft.New(minecraft.Config{LogPath: writeLog(t, sampleLog)})
	require.NoError(t, err)

	lines, err := r.Read()
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Egbert joined")
	assert.Contains(t, lines[1], "<alex> found diamonds")
	assert.Contains(t, lines[3], "Starting minecraft server")
}

func TestRead_LimitsLines(t *testing.T) {
	r, err := minecraft.New(minecraft.Config{LogPath: writeLog(t, sampleLog), Lines: 3})
	require.NoError(t, err)

	lines, err := r.Read()
	require.NoError(t, err)
	// The last three lines include the unmatched "Saving chunks" entry.
	assert.Len(t, lines, 2)
}

func TestRead_CustomFilter(t *testing.T) {
	r, err := minecraft.New(minecraft.Config{LogPath: writeLog(t, sampleLog), Filter: `Saving`})
	require.NoError(t, err)

	lines, err := r.Read()
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "Saving chunks"))
}

func TestNew_Errors(t *testing.T) {
	_, err := minecraft.New(minecraft.Config{})
	require.Error(t, err)

	_, err = minecraft.New(minecraft.Config{LogPath: "x", Filter: "("})
	assert.ErrorContains(t, err, "compile filter")
}

func TestTool_ReportsStatus(t *testing.T) {
	r, err := minecraft.New(minecraft.Config{LogPath: writeLog(t, sampleLog)})
	require.NoError(t, err)

	var statuses []string
	ctx := agentctx.WithStatus(context.Background(), func(s string) { statuses = append(statuses, s) })

	out, err := r.Tool().Handler(ctx, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Len(t, out, 4)
	assert.Equal(t, []string{"Retrieved 4 log lines..."}, statuses)
}

func TestTool_MissingFile(t *testing.T) {
	r, err := minecraft.New(minecraft.Config{LogPath: filepath.Join(t.TempDir(), "nope.log")})
	require.NoError(t, err)

	_, err = r.Tool().Handler(context.Background(), json.RawMessage(`{}`))
	assert.ErrorContains(t, err, "read log")
}
