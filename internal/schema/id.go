package schema

import (
	"sync/atomic"
	"time"
)

// IDGenerator issues monotonically increasing order IDs.
type IDGenerator struct {
	next uint64
}

// NewIDGenerator returns a generator seeded with the given value. A zero seed
// uses the wall clock so restarts do not reuse IDs.
func NewIDGenerator(seed uint64) *IDGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	return &IDGenerator{next: seed}
}

// Next returns the next ID.
func (g *IDGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return atomic.AddUint64(&g.next, 1)
}
