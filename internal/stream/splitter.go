// Package stream splits an incremental model reply into the part shown to
// the user and the structured part that follows a delimiter line.
package stream

import "strings"

const (
	// Delimiter separates the visible reply from the hidden trait block.
	Delimiter = "---"
	// NoValue is the normalized hidden part when the model reported nothing.
	NoValue = "None"
)

// Result is the outcome of a completed split.
type Result struct {
	// Tail is visible text held back at the end of the stream because it
	// might have started a delimiter. Callers emit it after the last Feed.
	Tail string
	// Visible is the whole visible reply, trimmed.
	Visible string
	// Hidden is the trimmed text after the delimiter, or NoValue.
	Hidden string
	// Found reports whether the delimiter appeared.
	Found bool
}

// Splitter divides a fragment stream at the first occurrence of a
// delimiter, even when the delimiter straddles fragment boundaries.
//
// Only the trailing window that could still begin the delimiter is
// buffered, so every fragment is scanned once. A Splitter is used by a
// single goroutine.
type Splitter struct {
	delim    string
	sentinel string

	pending string
	found   bool
	visible strings.Builder
	hidden  strings.Builder
}

// NewSplitter returns a Splitter using the standard delimiter and sentinel.
func NewSplitter() *Splitter {
	return NewSplitterWith(Delimiter, NoValue)
}

// NewSplitterWith returns a Splitter for a custom delimiter and sentinel.
// The delimiter must be non-empty.
func NewSplitterWith(delim, sentinel string) *Splitter {
	if delim == "" {
		panic("stream: empty delimiter")
	}
	return &Splitter{delim: delim, sentinel: sentinel}
}

// Feed consumes one fragment and returns the text that is now safe to
// show. The result may be empty.
func (s *Splitter) Feed(fragment string) string {
	if s.found {
		s.hidden.WriteString(fragment)
		return ""
	}

	window := s.pending + fragment
	if i := strings.Index(window, s.delim); i >= 0 {
		s.found = true
		s.pending = ""
		s.hidden.WriteString(window[i+len(s.delim):])
		return s.emit(window[:i])
	}

	keep := partialMatch(window, s.delim)
	s.pending = window[len(window)-keep:]
	return s.emit(window[:len(window)-keep])
}

// Close ends the stream. Text held back because it looked like the start
// of a delimiter is returned in Result.Tail.
func (s *Splitter) Close() Result {
	tail := s.emit(s.pending)
	s.pending = ""

	return Result{
		Tail:    tail,
		Visible: strings.TrimSpace(s.visible.String()),
		Hidden:  s.normalize(s.hidden.String()),
		Found:   s.found,
	}
}

func (s *Splitter) emit(text string) string {
	s.visible.WriteString(text)
	return text
}

func (s *Splitter) normalize(hidden string) string {
	hidden = strings.TrimSpace(hidden)
	if hidden == "" || strings.EqualFold(hidden, s.sentinel) {
		return s.sentinel
	}
	return hidden
}

// partialMatch returns the length of the longest suffix of text that is a
// proper prefix of delim.
func partialMatch(text, delim string) int {
	for k := min(len(delim)-1, len(text)); k > 0; k-- {
		if strings.HasSuffix(text, delim[:k]) {
			return k
		}
	}
	return 0
}
