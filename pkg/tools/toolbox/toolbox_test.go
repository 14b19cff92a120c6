package toolbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, input json.RawMessage) (any, error) {
	return string(input), nil
}

func newEchoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "Echoes input",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler:     echoHandler,
	}
}

func weatherTool() Tool {
	return Tool{
		Name:        "get_weather",
		Description: "Get current weather",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"location": {"type": "string"},
				"unit": {"type": "string", "enum": ["celsius", "fahrenheit"]}
			},
			"required": ["location"]
		}`),
		Handler: echoHandler,
	}
}

func TestNew(t *testing.T) {
	tb := New()
	assert.NotNil(t, tb)
	assert.Empty(t, tb.Tools())
	assert.Equal(t, 0, tb.Len())
}

func TestRegisterAndGet(t *testing.T) {
	tb := New()
	require.NoError(t, tb.Register(newEchoTool("echo")))

	got, ok := tb.Get("echo")
	assert.True(t, ok)
	assert.Equal(t, "echo", got.Name)
}

func TestGetNotFound(t *testing.T) {
	tb := New()

	_, ok := tb.Get("missing")
	assert.False(t, ok)
}

func TestRegisterDuplicate(t *testing.T) {
	tb := New()
	require.NoError(t, tb.Register(newEchoTool("tool")))

	err := tb.Register(newEchoTool("tool"))
	require.ErrorIs(t, err, ErrDuplicateTool)
	assert.Contains(t, err.Error(), "tool")
	assert.Equal(t, 1, tb.Len())
}

func TestRegisterDuplicateInSameCall(t *testing.T) {
	tb := New()

	err := tb.Register(newEchoTool("a"), newEchoTool("b"), newEchoTool("a"))
	require.ErrorIs(t, err, ErrDuplicateTool)
	assert.Equal(t, 0, tb.Len(), "a failed batch registers nothing")
}

func TestRegisterRejectsInvalid(t *testing.T) {
	tb := New()

	assert.Error(t, tb.Register(Tool{Handler: echoHandler}))
	assert.Error(t, tb.Register(Tool{Name: "nohandler"}))
	assert.Error(t, tb.Register(Tool{
		Name:        "badschema",
		InputSchema: json.RawMessage(`{"type":`),
		Handler:     echoHandler,
	}))
	assert.Equal(t, 0, tb.Len())
}

func TestRegisterAcceptsDialectMarker(t *testing.T) {
	tb := New()
	err := tb.Register(Tool{
		Name:        "mcp_tool",
		InputSchema: json.RawMessage(`{"$schema":"http://json-schema.org/draft-07/schema#","type":"object"}`),
		Handler:     echoHandler,
	})
	require.NoError(t, err)
}

func TestTools_SortedByName(t *testing.T) {
	tb := New()
	require.NoError(t, tb.Register(newEchoTool("zeta"), newEchoTool("alpha"), newEchoTool("mid")))

	tools := tb.Tools()
	require.Len(t, tools, 3)
	assert.Equal(t, "alpha", tools[0].Name)
	assert.Equal(t, "mid", tools[1].Name)
	assert.Equal(t, "zeta", tools[2].Name)
}

func TestMerge(t *testing.T) {
	tb1 := New()
	require.NoError(t, tb1.Register(newEchoTool("a"), newEchoTool("b")))

	tb2 := New()
	require.NoError(t, tb2.Register(newEchoTool("c")))
	require.NoError(t, tb2.Merge(tb1))
	assert.Equal(t, 3, tb2.Len())

	assert.ErrorIs(t, tb2.Merge(tb1), ErrDuplicateTool)
}

func TestSubset(t *testing.T) {
	tb := New()
	require.NoError(t, tb.Register(newEchoTool("a"), newEchoTool("b"), newEchoTool("c")))

	sub := tb.Subset("a", "c", "missing")
	assert.Equal(t, 2, sub.Len())
	_, ok := sub.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 3, tb.Len())
}

func TestArguments_Valid(t *testing.T) {
	tb := New()
	require.NoError(t, tb.Register(weatherTool()))

	args, err := tb.Arguments("get_weather", `{"location":"Oslo","unit":"celsius"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"location":"Oslo","unit":"celsius"}`, string(args))
}

func TestArguments_EmptyReadsAsObject(t *testing.T) {
	tb := New()
	require.NoError(t, tb.Register(newEchoTool("echo")))

	args, err := tb.Arguments("echo", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(args))
}

func TestArguments_Malformed(t *testing.T) {
	tb := New()
	require.NoError(t, tb.Register(weatherTool()))

	_, err := tb.Arguments("get_weather", `{"location":`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestArguments_SchemaViolation(t *testing.T) {
	tb := New()
	require.NoError(t, tb.Register(weatherTool()))

	_, err := tb.Arguments("get_weather", `{"unit":"celsius"}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = tb.Arguments("get_weather", `{"location":"Oslo","unit":"kelvin"}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestArguments_UnknownTool(t *testing.T) {
	_, err := New().Arguments("nope", "{}")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidArguments)
}
