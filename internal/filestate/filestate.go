// Package filestate encodes an export file's processing state in its object path.
//
// Files arrive under a "new" path segment and are moved exactly once, to
// either "processed" or "error".
package filestate

import "strings"

// State is the path segment naming where a file is in its lifecycle.
type State string

const (
	New       State = "new"
	Processed State = "processed"
	Error     State = "error"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case New, Processed, Error:
		return true
	}
	return false
}

// Terminal reports whether a file in state s must not be moved again.
func (s State) Terminal() bool {
	return s == Processed || s == Error
}

// MoveTo returns path with its first "from" segment replaced by "to".
// If path has no "from" segment it is returned unchanged.
func MoveTo(path string, from, to State) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == string(from) {
			segments[i] = string(to)
			return strings.Join(segments, "/")
		}
	}
	return path
}

// StateOf returns the first state segment in path.
func StateOf(path string) (State, bool) {
	for _, segment := range strings.Split(path, "/") {
		if s := State(segment); s.Valid() {
			return s, true
		}
	}
	return "", false
}
