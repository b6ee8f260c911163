package testutil

import (
	"mirror-go/internal/mirror"
	"mirror-go/internal/remote"
)

// NewTestRemote creates an in-memory content API driven by clock.
func NewTestRemote(clock mirror.Clock) *remote.MemoryRemote {
	return remote.NewMemoryRemote(clock)
}
