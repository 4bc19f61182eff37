package llm

import (
	"bufio"
	"io"
	"strings"
)

const maxSSELine = 1 << 20

// sseScanner reads server-sent event data lines from a response body.
type sseScanner struct {
	scanner *bufio.Scanner
	data    string
}

func newSSEScanner(r io.Reader) *sseScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &sseScanner{scanner: s}
}

// Next advances to the next non-empty data payload. Comment, event and
// id lines are skipped.
func (s *sseScanner) Next() bool {
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		s.data = data
		return true
	}
	return false
}

// Data returns the payload found by the last call to Next.
func (s *sseScanner) Data() string { return s.data }

func (s *sseScanner) Err() error { return s.scanner.Err() }
