package obs

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"hftcore/internal/schema"
)

const maxOrderState = int(schema.OrderStateFailed)

// Metrics collects lightweight counters and latency stats. It satisfies the
// engine's metrics hook and the router's venue observer.
type Metrics struct {
	orderCounts  [maxOrderState + 1]uint64
	orderLatency LatencyStats

	venues sync.Map // string -> *venueStats
}

type venueStats struct {
	ok      uint64
	failed  uint64
	latency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
	Sum   time.Duration
}

// VenueSnapshot is the outcome tally of one venue.
type VenueSnapshot struct {
	Venue   string
	OK      uint64
	Failed  uint64
	Latency LatencySnapshot
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	OrderCounts  map[schema.OrderState]uint64
	OrderLatency LatencySnapshot
	Venues       []VenueSnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveOrder counts a terminal order and its end-to-end latency.
func (m *Metrics) ObserveOrder(state schema.OrderState, latency time.Duration) {
	if m == nil {
		return
	}
	idx := int(state)
	if idx >= 0 && idx < len(m.orderCounts) {
		atomic.AddUint64(&m.orderCounts[idx], 1)
	}
	m.orderLatency.Observe(latency)
}

// ObserveVenue counts one venue outcome.
func (m *Metrics) ObserveVenue(venue string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	v, ok := m.venues.Load(venue)
	if !ok {
		v, _ = m.venues.LoadOrStore(venue, &venueStats{})
	}
	vs := v.(*venueStats)
	if err != nil {
		atomic.AddUint64(&vs.failed, 1)
	} else {
		atomic.AddUint64(&vs.ok, 1)
	}
	vs.latency.Observe(latency)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counts := make(map[schema.OrderState]uint64)
	for i := range m.orderCounts {
		if v := atomic.LoadUint64(&m.orderCounts[i]); v > 0 {
			counts[schema.OrderState(i)] = v
		}
	}
	var venues []VenueSnapshot
	m.venues.Range(func(k, v any) bool {
		vs := v.(*venueStats)
		venues = append(venues, VenueSnapshot{
			Venue:   k.(string),
			OK:      atomic.LoadUint64(&vs.ok),
			Failed:  atomic.LoadUint64(&vs.failed),
			Latency: vs.latency.Snapshot(),
		})
		return true
	})
	sort.Slice(venues, func(i, j int) bool { return venues[i].Venue < venues[j].Venue })
	return Snapshot{
		OrderCounts:  counts,
		OrderLatency: m.orderLatency.Snapshot(),
		Venues:       venues,
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && nanos >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, nanos) {
			break
		}
	}

	for {
		cur := atomic.LoadUint64(&l.max)
		if nanos <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
		Sum:   time.Duration(sum),
	}
}
