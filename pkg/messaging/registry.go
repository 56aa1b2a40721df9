package messaging

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"hftcore/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	DefaultReconnectInterval  = 1000 * time.Millisecond
	DefaultHeartbeatInterval  = 5000 * time.Millisecond
	DefaultMonitoringInterval = 1000 * time.Millisecond
	DefaultSendTimeout        = 250 * time.Millisecond
)

// Options configures a Registry. Zero fields take the defaults above.
type Options struct {
	ReconnectInterval  time.Duration
	HeartbeatInterval  time.Duration
	MonitoringInterval time.Duration
	SendTimeout        time.Duration
	// DialTimeout bounds a single dial. Defaults to ReconnectInterval.
	DialTimeout time.Duration
	// Backoff paces redials of a down endpoint. The zero value is
	// DefaultBackoff(ReconnectInterval), a fixed period; set Max above Min
	// for exponential growth.
	Backoff Backoff
}

func (o Options) withDefaults() Options {
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.MonitoringInterval <= 0 {
		o.MonitoringInterval = DefaultMonitoringInterval
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = o.ReconnectInterval
	}
	if o.Backoff.isZero() {
		o.Backoff = DefaultBackoff(o.ReconnectInterval)
	}
	return o
}

type endpoint struct {
	desc   Endpoint
	health health

	dialing atomic.Bool

	mu       sync.Mutex
	conn     Conn
	attempt  int
	nextDial time.Time
	lastPing time.Time
	removed  bool
}

func (e *endpoint) current() Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

// Registry owns named endpoints, their connections and health, and the
// background monitor that reconnects them.
type Registry struct {
	opts   Options
	dialer Dialer

	mu        sync.RWMutex
	endpoints map[string]*endpoint

	stopped    atomic.Bool
	monitoring atomic.Bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewRegistry creates a registry dialing through dialer.
func NewRegistry(opts Options, dialer Dialer) *Registry {
	return &Registry{
		opts:      opts.withDefaults(),
		dialer:    dialer,
		endpoints: make(map[string]*endpoint),
	}
}

// Options returns the effective options.
func (r *Registry) Options() Options {
	return r.opts
}

// CreatePublisher registers a publishing endpoint and dials it. Calling it
// again with the same name is a no-op. A failed dial is recorded in health
// and retried by the monitor.
func (r *Registry) CreatePublisher(ctx context.Context, name, address string) error {
	return r.create(ctx, Endpoint{Name: name, Address: address, Role: RolePublisher})
}

// CreateSubscriber registers a subscribing endpoint for the topic prefixes.
func (r *Registry) CreateSubscriber(ctx context.Context, name, address string, topics ...string) error {
	return r.create(ctx, Endpoint{Name: name, Address: address, Role: RoleSubscriber, Topics: append([]string(nil), topics...)})
}

func (r *Registry) create(ctx context.Context, desc Endpoint) error {
	if r == nil || r.dialer == nil {
		return exception.ErrNilInstance
	}
	if desc.Name == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "empty endpoint name")
	}
	if desc.Address == "" {
		return exception.ErrEmptyEndpointAddress
	}
	if r.stopped.Load() {
		return exception.ErrRegistryStopped
	}

	r.mu.Lock()
	if existing, ok := r.endpoints[desc.Name]; ok {
		r.mu.Unlock()
		if existing.desc.Role != desc.Role {
			return fmt.Errorf("%w: %s is a %s", exception.ErrRoleMismatch, desc.Name, existing.desc.Role)
		}
		return nil
	}
	ep := &endpoint{desc: desc}
	r.endpoints[desc.Name] = ep
	r.mu.Unlock()

	if err := r.dial(ctx, ep); err != nil {
		logs.Warnf("messaging: initial dial of %s (%s) failed: %v", desc.Name, desc.Address, err)
	}
	return nil
}

// dial connects ep unless another dial is in flight.
func (r *Registry) dial(ctx context.Context, ep *endpoint) error {
	if !ep.dialing.CompareAndSwap(false, true) {
		return nil
	}
	defer ep.dialing.Store(false)

	dialCtx, cancel := context.WithTimeout(ctx, r.opts.DialTimeout)
	conn, err := r.dialer.Dial(dialCtx, ep.desc)
	cancel()

	now := time.Now()
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if err != nil {
		ep.attempt++
		ep.nextDial = now.Add(r.opts.Backoff.Next(ep.attempt))
		ep.health.recordError(err)
		return err
	}
	if ep.removed || r.stopped.Load() {
		_ = conn.Close()
		return exception.ErrConnectionClosed
	}
	if ep.conn != nil {
		_ = ep.conn.Close()
	}
	ep.conn = conn
	ep.attempt = 0
	ep.lastPing = now
	ep.health.beat(now)
	ep.health.connected.Store(true)
	return nil
}

// markDown drops conn if it is still the endpoint's current connection.
func (r *Registry) markDown(ep *endpoint, conn Conn) {
	ep.mu.Lock()
	if ep.conn != conn || conn == nil {
		ep.mu.Unlock()
		return
	}
	ep.conn = nil
	ep.health.connected.Store(false)
	ep.attempt++
	ep.nextDial = time.Now().Add(r.opts.Backoff.Next(ep.attempt))
	ep.mu.Unlock()

	_ = conn.Close()
	logs.Warnf("messaging: endpoint %s (%s) disconnected", ep.desc.Name, ep.desc.Address)
}

func (r *Registry) lookup(name string, role Role) (*endpoint, error) {
	if r == nil {
		return nil, exception.ErrNilInstance
	}
	if r.stopped.Load() {
		return nil, exception.ErrRegistryStopped
	}
	r.mu.RLock()
	ep, ok := r.endpoints[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", exception.ErrUnknownConnection, name)
	}
	if ep.desc.Role != role {
		return nil, fmt.Errorf("%w: %s is a %s", exception.ErrRoleMismatch, name, ep.desc.Role)
	}
	return ep, nil
}

// Send transmits msg through the named publisher, bounded by SendTimeout.
// A known-down endpoint fails fast with ErrNotConnected and leaves the
// counters untouched.
func (r *Registry) Send(ctx context.Context, name string, msg Message) error {
	ep, err := r.lookup(name, RolePublisher)
	if err != nil {
		return err
	}
	conn := ep.current()
	if conn == nil {
		return fmt.Errorf("%w: %s", exception.ErrNotConnected, name)
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.opts.SendTimeout)
	err = conn.Send(sendCtx, msg)
	cancel()
	if err != nil {
		ep.health.recordError(err)
		if IsConnectionError(err) {
			r.markDown(ep, conn)
		}
		return fmt.Errorf("%w: %s: %w", exception.ErrTransport, name, err)
	}
	ep.health.sent.Add(1)
	return nil
}

// Publish is Send with a topic and payload.
func (r *Registry) Publish(ctx context.Context, name, topic string, payload []byte) error {
	return r.Send(ctx, name, Message{Topic: topic, Payload: payload})
}

// Receive blocks for the next message on the named subscriber.
func (r *Registry) Receive(ctx context.Context, name string) (Message, error) {
	ep, err := r.lookup(name, RoleSubscriber)
	if err != nil {
		return Message{}, err
	}
	conn := ep.current()
	if conn == nil {
		return Message{}, fmt.Errorf("%w: %s", exception.ErrNotConnected, name)
	}

	msg, err := conn.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		ep.health.recordError(err)
		if IsConnectionError(err) {
			r.markDown(ep, conn)
		}
		return Message{}, fmt.Errorf("%w: %s: %w", exception.ErrTransport, name, err)
	}
	ep.health.received.Add(1)
	return msg, nil
}

// Connected reports whether the named endpoint currently has a connection.
func (r *Registry) Connected(name string) bool {
	h, ok := r.Health(name)
	return ok && h.Connected
}

// Health returns a snapshot of the named endpoint's health.
func (r *Registry) Health(name string) (ConnectionHealth, bool) {
	if r == nil {
		return ConnectionHealth{}, false
	}
	r.mu.RLock()
	ep, ok := r.endpoints[name]
	r.mu.RUnlock()
	if !ok {
		return ConnectionHealth{}, false
	}
	return ep.health.snapshot(ep.desc), true
}

// Names lists registered endpoints in lexical order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Remove closes and forgets the named endpoint.
func (r *Registry) Remove(name string) error {
	if r == nil {
		return exception.ErrNilInstance
	}
	r.mu.Lock()
	ep, ok := r.endpoints[name]
	delete(r.endpoints, name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", exception.ErrUnknownConnection, name)
	}
	r.closeEndpoint(ep)
	return nil
}

func (r *Registry) closeEndpoint(ep *endpoint) {
	ep.mu.Lock()
	conn := ep.conn
	ep.conn = nil
	ep.removed = true
	ep.health.connected.Store(false)
	ep.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// StartHealthMonitoring starts the single background monitor. It reports
// false when the monitor already runs or the registry is stopped.
func (r *Registry) StartHealthMonitoring(ctx context.Context) bool {
	if r == nil || r.stopped.Load() {
		return false
	}
	if !r.monitoring.CompareAndSwap(false, true) {
		return false
	}

	r.mu.Lock()
	if r.stopped.Load() {
		r.mu.Unlock()
		return false
	}
	monitorCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go r.monitor(monitorCtx)
	return true
}

func (r *Registry) monitor(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.opts.MonitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkEndpoints(ctx)
		}
	}
}

func (r *Registry) checkEndpoints(ctx context.Context) {
	r.mu.RLock()
	eps := make([]*endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		eps = append(eps, ep)
	}
	r.mu.RUnlock()

	now := time.Now()
	for _, ep := range eps {
		if ctx.Err() != nil {
			return
		}

		ep.mu.Lock()
		conn := ep.conn
		due := !now.Before(ep.nextDial)
		pingDue := conn != nil && now.Sub(ep.lastPing) >= r.opts.HeartbeatInterval
		if pingDue {
			ep.lastPing = now
		}
		removed := ep.removed
		ep.mu.Unlock()

		if removed {
			continue
		}

		if conn == nil {
			if !due {
				continue
			}
			ep.health.reconnects.Add(1)
			if err := r.dial(ctx, ep); err != nil {
				logs.Warnf("messaging: reconnect %s (%s) failed: %v", ep.desc.Name, ep.desc.Address, err)
				continue
			}
			logs.Infof("messaging: endpoint %s (%s) reconnected", ep.desc.Name, ep.desc.Address)
			continue
		}

		if !pingDue {
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, r.opts.SendTimeout)
		err := conn.Ping(pingCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ep.health.recordError(err)
			r.markDown(ep, conn)
			continue
		}
		ep.health.beat(time.Now())
	}
}

// Stop halts the monitor, waits for it and closes every connection.
func (r *Registry) Stop() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped.Store(true)
		cancel := r.cancel
		eps := make([]*endpoint, 0, len(r.endpoints))
		for _, ep := range r.endpoints {
			eps = append(eps, ep)
		}
		r.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		r.wg.Wait()

		for _, ep := range eps {
			r.closeEndpoint(ep)
		}
	})
}

// IsConnectionError reports whether err means the connection is unusable.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exception.ErrConnectionClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
