package execution

import (
	"context"
	"sync"
	"time"

	"hftcore/internal/bus"
	"hftcore/internal/schema"
	"hftcore/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Config controls the single-order engine.
type Config struct {
	// QueueCapacity bounds pending orders. Zero means unbounded.
	QueueCapacity int `json:"queue_capacity"`
	// Volatility is the factor handed to the risk checker.
	Volatility float64 `json:"volatility"`
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRisk vetoes orders through rc before routing.
func WithRisk(rc RiskChecker) Option {
	return func(e *Engine) {
		e.risk = rc
	}
}

// WithMetrics observes terminal orders.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine runs single orders through risk, routing and reporting on one
// worker goroutine.
type Engine struct {
	cfg      Config
	queue    *bus.OrderQueue
	router   Router
	reporter Reporter
	risk     RiskChecker
	metrics  Metrics
	orders   tracker

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates an engine. Orders are accepted right away and processed
// once Start is called.
func NewEngine(cfg Config, r Router, reporter Reporter, opts ...Option) (*Engine, error) {
	if r == nil || reporter == nil {
		return nil, exception.ErrNilInstance
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 1
	}
	e := &Engine{
		cfg:      cfg,
		queue:    bus.NewOrderQueue(cfg.QueueCapacity),
		router:   r,
		reporter: reporter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start launches the worker. Later calls, and calls after Stop, are no-ops.
// Cancelling ctx closes the queue; queued orders are still drained and
// reported.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true
	context.AfterFunc(ctx, e.queue.Close)

	e.wg.Add(1)
	go e.work(ctx)
}

// Stop closes the queue, lets the worker drain it and waits for the worker.
// Every caller returns only after the worker is gone.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		started := e.started
		e.mu.Unlock()

		e.queue.Close()
		if !started {
			e.drainUnstarted()
		}
		e.wg.Wait()
	})
}

// ExecuteTrade validates order and queues it. ErrQueueFull and
// ErrQueueClosed come straight from the queue.
func (e *Engine) ExecuteTrade(order schema.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	if _, ok := e.orders.add(order.ID); !ok {
		return errors.Wrapf(exception.ErrInvalidOrder, "order %d already in flight", order.ID)
	}
	if err := e.queue.Push(order); err != nil {
		e.orders.remove(order.ID)
		return err
	}
	return nil
}

// OrderState returns the state of an in-flight order. Orders leave the
// tracker once reported.
func (e *Engine) OrderState(id uint64) (schema.OrderState, bool) {
	cell, ok := e.orders.get(id)
	if !ok {
		return 0, false
	}
	return cell.load(), true
}

// Pending returns the number of queued orders.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// InFlight returns the number of tracked orders, queued or processing.
func (e *Engine) InFlight() int {
	return e.orders.len()
}

func (e *Engine) work(ctx context.Context) {
	defer e.wg.Done()
	for {
		order, err := e.queue.WaitPop()
		if err != nil {
			return
		}
		e.process(ctx, order)
	}
}

// drainUnstarted fails orders queued on an engine that never started.
func (e *Engine) drainUnstarted() {
	for {
		order, ok := e.queue.TryPop()
		if !ok {
			return
		}
		if cell, ok := e.orders.get(order.ID); ok {
			e.finish(cell, order, schema.ExecutionReport{State: schema.OrderStateFailed, Err: exception.ErrEngineStopped})
		}
	}
}

func (e *Engine) process(ctx context.Context, order schema.Order) {
	cell, ok := e.orders.get(order.ID)
	if !ok {
		logs.Errorf("execution: order %d popped without tracker entry", order.ID)
		return
	}

	if e.risk != nil && !e.risk.EvaluateOrderRisk(riskSize(order), e.cfg.Volatility) {
		e.finish(cell, order, schema.ExecutionReport{
			State: schema.OrderStateFailed,
			Err:   errors.Wrapf(exception.ErrRiskRejected, "order %d", order.ID),
		})
		return
	}

	cell.advance(schema.OrderStateRouted)
	res, err := e.router.RouteOrder(ctx, order)
	if err != nil {
		e.finish(cell, order, schema.ExecutionReport{State: schema.OrderStateFailed, Err: err})
		return
	}

	best, ok := res.Best()
	if !ok {
		e.finish(cell, order, schema.ExecutionReport{
			State: schema.OrderStateFailed,
			Err:   errors.Wrapf(exception.ErrRoutingFailed, "order %d", order.ID),
		})
		return
	}
	cell.advance(schema.OrderStateAcknowledged)

	price := best.Ack.Price
	if price <= 0 {
		price = order.Price
	}
	e.finish(cell, order, schema.ExecutionReport{
		State:     schema.OrderStateFilled,
		Venue:     best.Venue,
		FillPrice: price,
		FillQty:   order.Quantity,
	})
}

// finish publishes the terminal state, reports once and forgets the order.
func (e *Engine) finish(cell *orderCell, order schema.Order, rep schema.ExecutionReport) {
	if !cell.advance(rep.State) {
		return
	}
	rep.OrderID = order.ID
	rep.Symbol = order.Symbol
	rep.Side = order.Side
	rep.Latency = time.Since(order.CreatedAt)
	if rep.State != schema.OrderStateFilled {
		rep.FillPrice, rep.FillQty = 0, 0
		logs.Warnf("execution: order %d %s: %v", order.ID, rep.State, rep.Err)
	}

	e.orders.remove(order.ID)
	if e.metrics != nil {
		e.metrics.ObserveOrder(rep.State, rep.Latency)
	}
	deliver(e.reporter, rep)
}

// riskSize is the notional of a priced order, otherwise its quantity.
func riskSize(o schema.Order) float64 {
	if o.Price > 0 {
		return o.Notional()
	}
	return o.Quantity
}
