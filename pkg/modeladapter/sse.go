package modeladapter

import (
	"bufio"
	"io"
	"strings"
)

const maxSSELine = 256 * 1024

// SSEReader reads the data payloads of a server-sent event stream. Lines that
// are not "data:" fields are skipped, and a "[DONE]" payload ends the stream.
type SSEReader struct {
	scanner *bufio.Scanner
	done    bool
}

// NewSSEReader wraps r, which is typically an HTTP response body.
func NewSSEReader(r io.Reader) *SSEReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &SSEReader{scanner: s}
}

// Next returns the next data payload, or io.EOF when the stream is over.
func (r *SSEReader) Next() (string, error) {
	if r.done {
		return "", io.EOF
	}
	for r.scanner.Scan() {
		line := r.scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			r.done = true
			return "", io.EOF
		}
		return data, nil
	}
	r.done = true
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
