package execution

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"hftcore/internal/schema"
	"hftcore/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// DefaultLatencyWarnThreshold is the per-leg send duration above which a
// warning is logged.
const DefaultLatencyWarnThreshold = time.Millisecond

// LegFill is what a venue returned for one leg.
type LegFill struct {
	OrderID  uint64
	Venue    string
	Price    float64
	Quantity float64
}

// LegSender transmits one leg and returns once it is accepted or failed.
type LegSender interface {
	SendLeg(ctx context.Context, leg schema.TradeLeg) (LegFill, error)
}

// LegReport is the outcome of one leg.
type LegReport struct {
	Leg     schema.TradeLeg
	Sent    bool
	Fill    LegFill
	Latency time.Duration
	Err     error
}

// MultiLegConfig controls a multi-leg execution.
type MultiLegConfig struct {
	LatencyWarnThreshold time.Duration `json:"latency_warn_threshold"`
}

// MultiLegOption customizes a MultiLegExecution.
type MultiLegOption func(*MultiLegExecution)

// WithTradeReporter reports the trade once it completes or fails.
func WithTradeReporter(r Reporter) MultiLegOption {
	return func(m *MultiLegExecution) {
		m.reporter = r
	}
}

// MultiLegExecution sends three legs strictly in sequence. There is no
// compensation: legs sent before a failure stay sent and LegReports tells
// the caller what to unwind.
type MultiLegExecution struct {
	id       uint64
	cfg      MultiLegConfig
	sender   LegSender
	reporter Reporter

	state     atomic.Uint32
	executing atomic.Bool

	mu      sync.Mutex
	legsSet bool
	legs    [3]schema.TradeLeg
	reports [3]LegReport
}

// NewMultiLegExecution creates an execution identified by tradeID.
func NewMultiLegExecution(tradeID uint64, cfg MultiLegConfig, sender LegSender, opts ...MultiLegOption) (*MultiLegExecution, error) {
	if sender == nil {
		return nil, exception.ErrNilInstance
	}
	if cfg.LatencyWarnThreshold <= 0 {
		cfg.LatencyWarnThreshold = DefaultLatencyWarnThreshold
	}
	m := &MultiLegExecution{id: tradeID, cfg: cfg, sender: sender}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ID returns the trade ID.
func (m *MultiLegExecution) ID() uint64 {
	return m.id
}

// SetLegs stores the three legs. It can be called once.
func (m *MultiLegExecution) SetLegs(leg1, leg2, leg3 schema.TradeLeg) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.legsSet {
		return errors.Wrapf(exception.ErrInvalidSequence, "legs already set for trade %d", m.id)
	}
	m.legs = [3]schema.TradeLeg{leg1, leg2, leg3}
	for i := range m.legs {
		m.reports[i].Leg = m.legs[i]
	}
	m.legsSet = true
	return nil
}

// State returns the current trade state.
func (m *MultiLegExecution) State() schema.TradeState {
	return schema.TradeState(m.state.Load())
}

// LegReports returns a copy of the per-leg outcomes so far.
func (m *MultiLegExecution) LegReports() []LegReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LegReport, len(m.reports))
	copy(out, m.reports[:])
	return out
}

// Execute runs the trade to Complete or Error. It runs at most once.
func (m *MultiLegExecution) Execute(ctx context.Context) error {
	m.mu.Lock()
	set := m.legsSet
	legs := m.legs
	m.mu.Unlock()
	if !set {
		return errors.Wrapf(exception.ErrInvalidSequence, "legs not set for trade %d", m.id)
	}
	if !m.executing.CompareAndSwap(false, true) {
		return errors.Wrapf(exception.ErrAlreadyExecuting, "trade %d", m.id)
	}

	start := time.Now()
	sentStates := [3]schema.TradeState{schema.TradeStateLeg1Sent, schema.TradeStateLeg2Sent, schema.TradeStateLeg3Sent}
	var last LegFill
	for i, leg := range legs {
		m.state.Store(uint32(sentStates[i]))

		if !leg.Valid() {
			err := errors.Wrapf(exception.ErrInvalidLegParameters, "trade %d leg %d qty=%v price=%v", m.id, i+1, leg.Quantity, leg.Price)
			m.record(i, LegReport{Leg: leg, Err: err})
			return m.fail(start, err)
		}

		sendStart := time.Now()
		fill, err := m.sender.SendLeg(ctx, leg)
		latency := time.Since(sendStart)
		if latency > m.cfg.LatencyWarnThreshold {
			logs.Warnf("execution: trade %d leg %d %s took %s, threshold %s", m.id, i+1, leg.Symbol, latency, m.cfg.LatencyWarnThreshold)
		}
		if err != nil {
			m.record(i, LegReport{Leg: leg, Latency: latency, Err: err})
			return m.fail(start, errors.Wrapf(err, "trade %d leg %d", m.id, i+1))
		}
		m.record(i, LegReport{Leg: leg, Sent: true, Fill: fill, Latency: latency})
		last = fill
	}

	m.state.Store(uint32(schema.TradeStateComplete))
	logs.Infof("execution: trade %d complete in %s", m.id, time.Since(start))
	deliver(m.reporter, schema.ExecutionReport{
		OrderID:   m.id,
		State:     schema.OrderStateFilled,
		Venue:     last.Venue,
		FillPrice: last.Price,
		FillQty:   last.Quantity,
		Latency:   time.Since(start),
	})
	return nil
}

func (m *MultiLegExecution) record(i int, rep LegReport) {
	m.mu.Lock()
	m.reports[i] = rep
	m.mu.Unlock()
}

func (m *MultiLegExecution) fail(start time.Time, err error) error {
	m.state.Store(uint32(schema.TradeStateError))
	logs.Errorf("execution: %v", err)
	deliver(m.reporter, schema.ExecutionReport{
		OrderID: m.id,
		State:   schema.OrderStateFailed,
		Latency: time.Since(start),
		Err:     err,
	})
	return err
}
