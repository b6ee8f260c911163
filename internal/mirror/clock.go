package mirror

import (
	"time"

	"github.com/google/uuid"
)

// Clock stamps local edits, change log entries and sync runs. Remote
// timestamps always come from the server, never from a Clock.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator issues local keys, the stable identity a resource keeps
// across the re-key from a local-only id to its remote id.
type IDGenerator interface {
	New() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
