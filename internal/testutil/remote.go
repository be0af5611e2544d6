package testutil

import (
	"pushback/internal/remote"
)

// NewTestRemote creates a new in-memory remote for testing, seeded with dirs.
func NewTestRemote(name string, dirs ...string) *remote.MemoryRemote {
	return remote.NewMemoryRemote(name, dirs...)
}
