package toolbox

import (
	"context"
	"encoding/json"
)

// Handler executes a tool with the given JSON input. The result may be a
// string, which is passed to the model as is, nil or "" for "no output", or
// any other value, which is serialized to JSON.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Tool represents an executable tool with a name, description, JSON Schema, and handler.
// A nil InputSchema means the tool takes an object with no declared properties.
// Handlers are invoked concurrently and must be safe for concurrent use.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// Schema returns the tool's input schema, substituting an empty object schema
// when none was declared.
func (t Tool) Schema() json.RawMessage {
	if len(t.InputSchema) == 0 {
		return emptyObjectSchema
	}
	return t.InputSchema
}
