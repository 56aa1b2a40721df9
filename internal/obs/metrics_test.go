package obs

import (
	"errors"
	"strings"
	"testing"
	"time"

	"hftcore/internal/schema"
	"hftcore/pkg/messaging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyStats(t *testing.T) {
	var l LatencyStats
	assert.Equal(t, LatencySnapshot{}, l.Snapshot())

	l.Observe(3 * time.Millisecond)
	l.Observe(time.Millisecond)
	l.Observe(2 * time.Millisecond)
	l.Observe(-time.Second)

	s := l.Snapshot()
	assert.Equal(t, uint64(3), s.Count)
	assert.Equal(t, time.Millisecond, s.Min)
	assert.Equal(t, 3*time.Millisecond, s.Max)
	assert.Equal(t, 2*time.Millisecond, s.Avg)
	assert.Equal(t, 6*time.Millisecond, s.Sum)
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObserveOrder(schema.OrderStateFilled, time.Millisecond)
	m.ObserveOrder(schema.OrderStateFilled, time.Millisecond)
	m.ObserveOrder(schema.OrderStateFailed, time.Millisecond)
	m.ObserveVenue("B", time.Millisecond, nil)
	m.ObserveVenue("A", time.Millisecond, errors.New("x"))
	m.ObserveVenue("A", 3*time.Millisecond, nil)

	s := m.Snapshot()
	assert.Equal(t, map[schema.OrderState]uint64{schema.OrderStateFilled: 2, schema.OrderStateFailed: 1}, s.OrderCounts)
	assert.Equal(t, uint64(3), s.OrderLatency.Count)
	require.Len(t, s.Venues, 2)
	assert.Equal(t, "A", s.Venues[0].Venue)
	assert.Equal(t, uint64(1), s.Venues[0].OK)
	assert.Equal(t, uint64(1), s.Venues[0].Failed)
	assert.Equal(t, 2*time.Millisecond, s.Venues[0].Latency.Avg)

	var nilMetrics *Metrics
	nilMetrics.ObserveOrder(schema.OrderStateFilled, 0)
	nilMetrics.ObserveVenue("A", 0, nil)
	assert.Equal(t, Snapshot{}, nilMetrics.Snapshot())
}

type staticHealth map[string]messaging.ConnectionHealth

func (s staticHealth) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func (s staticHealth) Health(name string) (messaging.ConnectionHealth, bool) {
	h, ok := s[name]
	return h, ok
}

func TestCollector(t *testing.T) {
	m := NewMetrics()
	m.ObserveOrder(schema.OrderStateFilled, time.Millisecond)
	m.ObserveOrder(schema.OrderStateFilled, time.Millisecond)
	m.ObserveOrder(schema.OrderStateFailed, time.Millisecond)
	m.ObserveVenue("A", time.Millisecond, nil)

	health := staticHealth{
		"og.A.pub": {Name: "og.A.pub", Role: messaging.RolePublisher, Connected: true, MessagesSent: 7, ErrorCount: 3},
	}
	c := NewCollector(m, health)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP hft_orders_total Orders that reached a terminal state.
# TYPE hft_orders_total counter
hft_orders_total{state="failed"} 1
hft_orders_total{state="filled"} 2
# HELP hft_connection_messages_sent_total Messages sent on the connection.
# TYPE hft_connection_messages_sent_total counter
hft_connection_messages_sent_total{connection="og.A.pub",role="publisher"} 7
# HELP hft_connection_errors_total Transport errors on the connection.
# TYPE hft_connection_errors_total counter
hft_connection_errors_total{connection="og.A.pub",role="publisher"} 3
# HELP hft_connection_up Whether the connection is established.
# TYPE hft_connection_up gauge
hft_connection_up{connection="og.A.pub",role="publisher"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"hft_orders_total", "hft_connection_messages_sent_total", "hft_connection_errors_total", "hft_connection_up"))
	assert.Equal(t, 2, testutil.CollectAndCount(c, "hft_venue_results_total"))
}

func TestCollectorWithoutSources(t *testing.T) {
	assert.Equal(t, 0, testutil.CollectAndCount(NewCollector(nil, nil)))
}
