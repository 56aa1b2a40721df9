package obs

import (
	"hftcore/pkg/messaging"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hft"

// HealthSource lists connection health, as messaging.Registry does.
type HealthSource interface {
	Names() []string
	Health(name string) (messaging.ConnectionHealth, bool)
}

// Collector exports Metrics and connection health to Prometheus. Values are
// read on scrape.
type Collector struct {
	metrics *Metrics
	health  HealthSource

	orders       *prometheus.Desc
	orderLatency *prometheus.Desc
	venueResults *prometheus.Desc
	venueLatency *prometheus.Desc
	connected    *prometheus.Desc
	sent         *prometheus.Desc
	received     *prometheus.Desc
	errors       *prometheus.Desc
	reconnects   *prometheus.Desc
	heartbeat    *prometheus.Desc
}

// NewCollector creates a collector. Either source may be nil.
func NewCollector(m *Metrics, h HealthSource) *Collector {
	conn := []string{"connection", "role"}
	return &Collector{
		metrics: m,
		health:  h,

		orders:       prometheus.NewDesc(namespace+"_orders_total", "Orders that reached a terminal state.", []string{"state"}, nil),
		orderLatency: prometheus.NewDesc(namespace+"_order_latency_seconds_sum", "Total end-to-end order latency.", nil, nil),
		venueResults: prometheus.NewDesc(namespace+"_venue_results_total", "Venue dispatch outcomes.", []string{"venue", "result"}, nil),
		venueLatency: prometheus.NewDesc(namespace+"_venue_latency_seconds_avg", "Average venue dispatch latency.", []string{"venue"}, nil),
		connected:    prometheus.NewDesc(namespace+"_connection_up", "Whether the connection is established.", conn, nil),
		sent:         prometheus.NewDesc(namespace+"_connection_messages_sent_total", "Messages sent on the connection.", conn, nil),
		received:     prometheus.NewDesc(namespace+"_connection_messages_received_total", "Messages received on the connection.", conn, nil),
		errors:       prometheus.NewDesc(namespace+"_connection_errors_total", "Transport errors on the connection.", conn, nil),
		reconnects:   prometheus.NewDesc(namespace+"_connection_reconnects_total", "Reconnect attempts on the connection.", conn, nil),
		heartbeat:    prometheus.NewDesc(namespace+"_connection_last_heartbeat_seconds", "Unix time of the last successful heartbeat.", conn, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.orders, c.orderLatency, c.venueResults, c.venueLatency,
		c.connected, c.sent, c.received, c.errors, c.reconnects, c.heartbeat,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.metrics != nil {
		snap := c.metrics.Snapshot()
		for state, n := range snap.OrderCounts {
			ch <- prometheus.MustNewConstMetric(c.orders, prometheus.CounterValue, float64(n), state.String())
		}
		ch <- prometheus.MustNewConstMetric(c.orderLatency, prometheus.CounterValue, snap.OrderLatency.Sum.Seconds())
		for _, v := range snap.Venues {
			ch <- prometheus.MustNewConstMetric(c.venueResults, prometheus.CounterValue, float64(v.OK), v.Venue, "ok")
			ch <- prometheus.MustNewConstMetric(c.venueResults, prometheus.CounterValue, float64(v.Failed), v.Venue, "error")
			ch <- prometheus.MustNewConstMetric(c.venueLatency, prometheus.GaugeValue, v.Latency.Avg.Seconds(), v.Venue)
		}
	}

	if c.health == nil {
		return
	}
	for _, name := range c.health.Names() {
		h, ok := c.health.Health(name)
		if !ok {
			continue
		}
		role := h.Role.String()
		up := 0.0
		if h.Connected {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, up, name, role)
		ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(h.MessagesSent), name, role)
		ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(h.MessagesReceived), name, role)
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(h.ErrorCount), name, role)
		ch <- prometheus.MustNewConstMetric(c.reconnects, prometheus.CounterValue, float64(h.ReconnectCount), name, role)
		if !h.LastHeartbeat.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.heartbeat, prometheus.GaugeValue, float64(h.LastHeartbeat.Unix()), name, role)
		}
	}
}
