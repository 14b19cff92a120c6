package stream

import (
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/germanamz/egbert/pkg/chats/content"
)

type partial struct {
	id   string
	name string
	args strings.Builder
}

// Aggregator merges tool-call fragments by index. The first non-empty ID seen
// for an index is kept, the last non-empty name wins, and argument pieces are
// concatenated in arrival order. The zero value is ready to use. An
// Aggregator belongs to a single stream and is not safe for concurrent use.
type Aggregator struct {
	calls map[int]*partial
}

// Merge folds the tool-call fragments of f into the aggregate. Content frames
// leave it unchanged.
func (a *Aggregator) Merge(f Frame) {
	for _, d := range f.ToolCalls {
		if d.empty() {
			continue
		}
		if a.calls == nil {
			a.calls = make(map[int]*partial)
		}
		p, ok := a.calls[d.Index]
		if !ok {
			p = &partial{}
			a.calls[d.Index] = p
		}
		if p.id == "" && d.ID != "" {
			p.id = d.ID
		}
		if d.Name != "" {
			p.name = d.Name
		}
		p.args.WriteString(d.Arguments)
	}
}

// Len returns the number of distinct tool calls seen so far.
func (a *Aggregator) Len() int {
	return len(a.calls)
}

// Calls finalizes the aggregate into tool calls ordered by index. A call whose
// fragments never carried an ID gets a generated one so its result can still
// be matched.
func (a *Aggregator) Calls() []content.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	out := make([]content.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		p := a.calls[i]
		id := p.id
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		out = append(out, content.ToolCall{
			ID:        id,
			Name:      p.name,
			Arguments: p.args.String(),
		})
	}
	return out
}
