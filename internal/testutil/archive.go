package testutil

import "richpres/internal/archive"

// NewTestArchive creates a new in-memory trace archive.
func NewTestArchive() *archive.MemoryArchive {
	return archive.NewMemoryArchive("test-archive")
}
