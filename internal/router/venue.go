package router

import (
	"sync/atomic"
	"time"

	"hftcore/internal/og"
)

// Venue is a routing destination.
type Venue struct {
	Name    string        `json:"name"`
	Latency time.Duration `json:"latency"`
	// Reliability is the probability of a successful fill, in (0, 1].
	Reliability float64 `json:"reliability"`
}

// Cost ranks venues, lower is better.
func (v Venue) Cost() float64 {
	return float64(v.Latency) / v.Reliability
}

func (v Venue) valid() bool {
	return v.Name != "" && v.Latency >= 0 && v.Reliability > 0 && v.Reliability <= 1
}

// VenueInfo is a snapshot of a venue in the book.
type VenueInfo struct {
	Venue
	Available bool
	Breaker   BreakerState
}

type venueEntry struct {
	venue     Venue
	link      og.VenueLink
	seq       uint64
	available atomic.Bool
	breaker   *Breaker
}

func (e *venueEntry) info() VenueInfo {
	return VenueInfo{
		Venue:     e.venue,
		Available: e.available.Load(),
		Breaker:   e.breaker.State(),
	}
}
