package sandbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nanoclaw/orchestrator/pkg/protocol"
)

// frameScanner reads lines from a sandbox's stdout and yields the JSON
// payload bracketed by protocol.OutputStartMarker/OutputEndMarker. Any
// unrecognized line is returned via unframed() so callers can log
// passthrough output (e.g. the agent's own stderr-style diagnostics mixed
// into stdout) without treating it as a protocol violation.
type frameScanner struct {
	scanner  *bufio.Scanner
	inFrame  bool
	buf      []byte
	unframed []string
}

// maxLineBytes raises the scanner's line buffer well past bufio's 64KB
// default — a single framed JSON result can be a large agent response.
const maxLineBytes = 4 << 20

func newFrameScanner(r io.Reader) *frameScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &frameScanner{scanner: s}
}

// Next returns the next framed OutputRecord, or io.EOF once the stream
// ends. A malformed frame (non-JSON between the markers) is a fatal error.
func (f *frameScanner) Next() (*protocol.OutputRecord, error) {
	for f.scanner.Scan() {
		line := f.scanner.Text()
		switch {
		case !f.inFrame && line == protocol.OutputStartMarker:
			f.inFrame = true
			f.buf = f.buf[:0]
		case f.inFrame && line == protocol.OutputEndMarker:
			f.inFrame = false
			var rec protocol.OutputRecord
			if err := json.Unmarshal(f.buf, &rec); err != nil {
				return nil, fmt.Errorf("sandbox: malformed output frame: %w", err)
			}
			return &rec, nil
		case f.inFrame:
			f.buf = append(f.buf, line...)
		default:
			f.unframed = append(f.unframed, line)
		}
	}
	if err := f.scanner.Err(); err != nil {
		return nil, fmt.Errorf("sandbox: read stdout: %w", err)
	}
	return nil, io.EOF
}

// Unframed returns any stdout lines observed outside a marker pair so far.
func (f *frameScanner) Unframed() []string { return f.unframed }
