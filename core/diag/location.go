// Package diag carries source locations and the error taxonomy shared by the
// parser, planner, cache, and plugin loader.
//
// Every diagnostic that can be traced back to a project file carries a
// YamlLocation. Errors render on a single line as `in <location>: <message>`
// so the CLI can print them verbatim.
package diag

import (
	"fmt"
	"strings"
)

// YamlLocation identifies a position inside a multi-document YAML stream:
// the file, the 0-based document index within it, and a path of crumbs
// pointing inside the document (env-block names, "step #i", ...).
type YamlLocation struct {
	File       string
	DocumentID int
	Path       []string
}

// NewLocation creates a location at the root of a document.
func NewLocation(file string, documentID int) YamlLocation {
	return YamlLocation{File: file, DocumentID: documentID}
}

// Push appends a crumb to the location path.
func (l *YamlLocation) Push(crumb string) {
	l.Path = append(l.Path, crumb)
}

// Pop removes the last crumb. Popping an empty path is a no-op.
func (l *YamlLocation) Pop() {
	if len(l.Path) > 0 {
		l.Path = l.Path[:len(l.Path)-1]
	}
}

// Clone returns a copy whose path does not alias the receiver's.
func (l YamlLocation) Clone() YamlLocation {
	path := make([]string, len(l.Path))
	copy(path, l.Path)
	return YamlLocation{File: l.File, DocumentID: l.DocumentID, Path: path}
}

func (l YamlLocation) String() string {
	return fmt.Sprintf("%s: document #%d: %s", l.File, l.DocumentID, strings.Join(l.Path, "/"))
}

// Located pairs a parsed object with the location it was parsed from.
type Located[T any] struct {
	Location YamlLocation
	Value    T
}

// At wraps a value with its location.
func At[T any](loc YamlLocation, v T) Located[T] {
	return Located[T]{Location: loc, Value: v}
}
