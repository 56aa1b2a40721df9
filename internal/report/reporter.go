package report

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"hftcore/internal/schema"

	"github.com/yanun0323/logs"
)

// DefaultPublishTimeout bounds one report publish.
const DefaultPublishTimeout = 250 * time.Millisecond

// Sink takes full execution reports. Every sink here also satisfies the
// engine's reporter contract.
type Sink interface {
	OnExecutionReport(orderID uint64, fillPrice, fillQty float64)
	OnReport(rep schema.ExecutionReport)
}

// LogReporter logs every report.
type LogReporter struct{}

func (LogReporter) OnExecutionReport(orderID uint64, fillPrice, fillQty float64) {
	logs.Infof("report: order %d fill %v @ %v", orderID, fillQty, fillPrice)
}

func (LogReporter) OnReport(rep schema.ExecutionReport) {
	if rep.Err != nil {
		logs.Warnf("report: order %d %s %s: %v", rep.OrderID, rep.Symbol, rep.State, rep.Err)
		return
	}
	logs.Infof("report: order %d %s %s %s fill %v @ %v on %s in %s",
		rep.OrderID, rep.Symbol, rep.Side, rep.State, rep.FillQty, rep.FillPrice, rep.Venue, rep.Latency)
}

// Multi fans a report out to several sinks in order.
type Multi []Sink

func (m Multi) OnExecutionReport(orderID uint64, fillPrice, fillQty float64) {
	m.OnReport(schema.ExecutionReport{OrderID: orderID, FillPrice: fillPrice, FillQty: fillQty})
}

func (m Multi) OnReport(rep schema.ExecutionReport) {
	for _, s := range m {
		s.OnReport(rep)
	}
}

// Publisher publishes a payload on a topic, as messaging.Channel does.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// ChannelReporter publishes JSON reports on a message channel.
type ChannelReporter struct {
	pub     Publisher
	topic   string
	timeout time.Duration
	failed  atomic.Uint64
}

// NewChannelReporter publishes on topic through pub.
func NewChannelReporter(pub Publisher, topic string) *ChannelReporter {
	return &ChannelReporter{pub: pub, topic: topic, timeout: DefaultPublishTimeout}
}

func (r *ChannelReporter) OnExecutionReport(orderID uint64, fillPrice, fillQty float64) {
	r.OnReport(schema.ExecutionReport{OrderID: orderID, FillPrice: fillPrice, FillQty: fillQty})
}

func (r *ChannelReporter) OnReport(rep schema.ExecutionReport) {
	b, err := Encode(NewPayload(rep, time.Now()))
	if err != nil {
		r.failed.Add(1)
		logs.Errorf("report: encode order %d: %v", rep.OrderID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.pub.Publish(ctx, r.topic, b); err != nil {
		r.failed.Add(1)
		logs.Warnf("report: publish order %d: %v", rep.OrderID, err)
	}
}

// Failed returns how many reports could not be published.
func (r *ChannelReporter) Failed() uint64 {
	return r.failed.Load()
}

// Collector keeps reports in memory, mainly for the CLI summary and tests.
type Collector struct {
	mu      sync.Mutex
	reports []schema.ExecutionReport
	notify  chan struct{}
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{notify: make(chan struct{}, 1)}
}

func (c *Collector) OnExecutionReport(orderID uint64, fillPrice, fillQty float64) {
	c.OnReport(schema.ExecutionReport{OrderID: orderID, FillPrice: fillPrice, FillQty: fillQty})
}

func (c *Collector) OnReport(rep schema.ExecutionReport) {
	c.mu.Lock()
	c.reports = append(c.reports, rep)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Reports returns a copy of everything collected.
func (c *Collector) Reports() []schema.ExecutionReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.ExecutionReport(nil), c.reports...)
}

// Len returns the number of reports collected.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

// WaitFor blocks until n reports arrived or ctx is done.
func (c *Collector) WaitFor(ctx context.Context, n int) error {
	for {
		if c.Len() >= n {
			return nil
		}
		select {
		case <-c.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
