// Package stream models the incremental frames a streaming chat completion
// produces and merges fragmented tool-call instructions back into complete
// invocations.
package stream

// Frame is one unit of a streamed completion: either a piece of assistant
// text or a batch of tool-call fragments. Absent fields are empty strings.
type Frame struct {
	Content      string
	FinishReason string
	ToolCalls    []ToolCallDelta
}

// ToolCallDelta is a fragment of one tool call. Index groups fragments that
// belong to the same call; ID, Name, and Arguments are each optional and
// Arguments is a partial piece of the JSON argument text.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

func (d ToolCallDelta) empty() bool {
	return d.ID == "" && d.Name == "" && d.Arguments == ""
}

// Kind tells the conversation loop how to handle a frame.
type Kind int

const (
	// KindContent frames carry text (possibly empty) and an optional finish reason.
	KindContent Kind = iota
	// KindToolCall frames carry at least one non-empty tool-call fragment.
	KindToolCall
)

func (k Kind) String() string {
	switch k {
	case KindToolCall:
		return "tool_call"
	default:
		return "content"
	}
}

// Classify reports whether f is a tool-call frame or a content frame. A frame
// is a tool-call frame only when it holds at least one fragment with some
// data; everything else, including a frame that only carries a finish
// reason, is content.
func Classify(f Frame) Kind {
	for _, d := range f.ToolCalls {
		if !d.empty() {
			return KindToolCall
		}
	}
	return KindContent
}
