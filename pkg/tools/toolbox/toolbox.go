package toolbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

var (
	// ErrDuplicateTool is returned by Register when a tool name is taken.
	ErrDuplicateTool = errors.New("toolbox: tool already registered")
	// ErrInvalidArguments wraps argument parse and schema validation failures.
	ErrInvalidArguments = errors.New("toolbox: invalid arguments")
)

type entry struct {
	tool   Tool
	schema *jsonschema.Resolved
}

// ToolBox is the registry of tools a conversation may use. Tool input schemas
// are compiled at registration so arguments can be validated before a handler
// runs. ToolBox is safe for concurrent use.
type ToolBox struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// New creates a new ToolBox ready for use.
func New() *ToolBox {
	return &ToolBox{
		tools: make(map[string]entry),
	}
}

// Register adds one or more tools. It fails without registering anything if
// a name is empty or already taken, or if a schema does not compile.
func (tb *ToolBox) Register(tools ...Tool) error {
	compiled := make([]entry, 0, len(tools))
	seen := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			return errors.New("toolbox: tool name is required")
		}
		if t.Handler == nil {
			return fmt.Errorf("toolbox: tool %q has no handler", t.Name)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
		}
		seen[t.Name] = struct{}{}

		rs, err := compileSchema(t.Schema())
		if err != nil {
			return fmt.Errorf("toolbox: tool %q: schema: %w", t.Name, err)
		}
		compiled = append(compiled, entry{tool: t, schema: rs})
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	for _, e := range compiled {
		if _, ok := tb.tools[e.tool.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, e.tool.Name)
		}
	}
	for _, e := range compiled {
		tb.tools[e.tool.Name] = e
	}
	return nil
}

// Get returns a tool by name and a boolean indicating whether it was found.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	e, ok := tb.tools[name]
	return e.tool, ok
}

// Len returns the number of registered tools.
func (tb *ToolBox) Len() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return len(tb.tools)
}

// Tools returns all registered tools sorted by name, so the definitions sent
// to a model are stable between requests.
func (tb *ToolBox) Tools() []Tool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	result := make([]Tool, 0, len(tb.tools))
	for _, e := range tb.tools {
		result = append(result, e.tool)
	}
	slices.SortFunc(result, func(a, b Tool) int { return strings.Compare(a.Name, b.Name) })
	return result
}

// Merge registers all tools from other into tb. Name clashes fail the merge.
func (tb *ToolBox) Merge(other *ToolBox) error {
	return tb.Register(other.Tools()...)
}

// Subset returns a new ToolBox holding only the named tools. Names that are
// not registered are skipped.
func (tb *ToolBox) Subset(names ...string) *ToolBox {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	sub := New()
	for _, n := range names {
		if e, ok := tb.tools[n]; ok {
			sub.tools[n] = e
		}
	}
	return sub
}

// Arguments parses raw argument text for the named tool and validates it
// against the tool's schema. Empty text is read as an empty object. The
// returned JSON is what the handler receives. Failures wrap
// ErrInvalidArguments; an unregistered name is reported as not found.
func (tb *ToolBox) Arguments(name, raw string) (json.RawMessage, error) {
	tb.mu.RLock()
	e, ok := tb.tools[name]
	tb.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("toolbox: tool %q not found", name)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if e.schema != nil {
		if err := e.schema.Validate(v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
		}
	}
	return json.RawMessage(raw), nil
}

// compileSchema resolves a schema for validation. Root identifiers and the
// $schema dialect marker are dropped so resolution never depends on them.
func compileSchema(raw json.RawMessage) (*jsonschema.Resolved, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	delete(m, "$schema")
	delete(m, "$id")
	delete(m, "id")

	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}
