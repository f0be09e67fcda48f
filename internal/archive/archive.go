// Package archive stores encrypted wire traces of presence sessions.
//
// Objects are addressed by slash-separated names such as
// "<sessionID>/000001-publish.xml.age". Backends never interpret the
// content they store.
package archive

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned by Get when no object has the requested name.
var ErrNotFound = errors.New("archive object not found")

// Archive is an append-mostly object store for wire traces.
type Archive interface {
	// Put stores the object, replacing any previous object of that name.
	// size is the number of bytes that will be read from r.
	Put(name string, r io.Reader, size int64) error

	// Get writes the named object to w. Missing objects yield ErrNotFound.
	Get(name string, w io.Writer) error

	// List returns the names starting with prefix in lexical order.
	List(prefix string) ([]string, error)

	// ValidateSetup verifies that the archive is accessible.
	ValidateSetup() error
}

// validName rejects names that could escape a backend's namespace.
func validName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("invalid archive name %q", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid archive name %q", name)
		}
	}
	return nil
}
