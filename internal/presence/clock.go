package presence

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so publishing and scheduling are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation for request correlation.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// nextBoundary returns the next wall-clock multiple of step after now.
func nextBoundary(now time.Time, step time.Duration) time.Time {
	s := int64(step / time.Second)
	return time.Unix((now.Unix()/s+1)*s, 0).UTC()
}
