package messaging

import (
	"context"
	"fmt"
	"sync"

	"hftcore/pkg/exception"
)

// Interceptor rewrites a published message into zero or more deliveries.
type Interceptor func(Message) []Message

// MemoryBroker is an in-process transport. Publishers and subscribers that
// dial the same address share a bus; subscribers match topics by prefix.
type MemoryBroker struct {
	mu          sync.RWMutex
	subs        map[string]map[*memoryConn]struct{}
	pubs        map[string]map[*memoryConn]struct{}
	down        map[string]bool
	interceptor Interceptor
	bufferSize  int
}

// NewMemoryBroker creates a broker whose subscribers buffer bufferSize
// messages before publishers block.
func NewMemoryBroker(bufferSize int) *MemoryBroker {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &MemoryBroker{
		subs:       make(map[string]map[*memoryConn]struct{}),
		pubs:       make(map[string]map[*memoryConn]struct{}),
		down:       make(map[string]bool),
		bufferSize: bufferSize,
	}
}

// Dial implements Dialer.
func (b *MemoryBroker) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ep.Address == "" {
		return nil, exception.ErrEmptyEndpointAddress
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down[ep.Address] {
		return nil, fmt.Errorf("%w: %s is down", exception.ErrTransport, ep.Address)
	}
	c := &memoryConn{
		broker: b,
		ep:     ep,
		closed: make(chan struct{}),
	}
	set := b.pubs
	if ep.Role == RoleSubscriber {
		c.inbox = make(chan Message, b.bufferSize)
		set = b.subs
	}
	if set[ep.Address] == nil {
		set[ep.Address] = make(map[*memoryConn]struct{})
	}
	set[ep.Address][c] = struct{}{}
	return c, nil
}

// SetDown takes an address down or brings it back. Taking it down closes
// every connection on it and fails new dials.
func (b *MemoryBroker) SetDown(address string, down bool) {
	b.mu.Lock()
	b.down[address] = down
	var victims []*memoryConn
	if down {
		for c := range b.subs[address] {
			victims = append(victims, c)
		}
		for c := range b.pubs[address] {
			victims = append(victims, c)
		}
	}
	b.mu.Unlock()

	for _, c := range victims {
		_ = c.Close()
	}
}

// SetInterceptor installs fn on the publish path. nil removes it.
func (b *MemoryBroker) SetInterceptor(fn Interceptor) {
	b.mu.Lock()
	b.interceptor = fn
	b.mu.Unlock()
}

// Subscribers returns the number of live subscribers on address.
func (b *MemoryBroker) Subscribers(address string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[address])
}

func (b *MemoryBroker) publish(ctx context.Context, address string, msg Message) error {
	b.mu.RLock()
	if b.down[address] {
		b.mu.RUnlock()
		return exception.ErrConnectionClosed
	}
	intercept := b.interceptor
	targets := make([]*memoryConn, 0, len(b.subs[address]))
	for c := range b.subs[address] {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	deliveries := []Message{msg}
	if intercept != nil {
		deliveries = intercept(msg)
	}

	for _, m := range deliveries {
		for _, c := range targets {
			if !MatchTopic(c.ep.Topics, m.Topic) {
				continue
			}
			payload := append([]byte(nil), m.Payload...)
			select {
			case c.inbox <- Message{Topic: m.Topic, Payload: payload}:
			case <-c.closed:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (b *MemoryBroker) detach(c *memoryConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.pubs
	if c.ep.Role == RoleSubscriber {
		set = b.subs
	}
	delete(set[c.ep.Address], c)
	if len(set[c.ep.Address]) == 0 {
		delete(set, c.ep.Address)
	}
}

type memoryConn struct {
	broker    *MemoryBroker
	ep        Endpoint
	inbox     chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *memoryConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *memoryConn) Send(ctx context.Context, msg Message) error {
	if c.isClosed() {
		return exception.ErrConnectionClosed
	}
	if c.ep.Role != RolePublisher {
		return exception.ErrRoleMismatch
	}
	return c.broker.publish(ctx, c.ep.Address, msg)
}

func (c *memoryConn) Receive(ctx context.Context) (Message, error) {
	if c.ep.Role != RoleSubscriber {
		return Message{}, exception.ErrRoleMismatch
	}
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
		return Message{}, exception.ErrConnectionClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *memoryConn) Ping(ctx context.Context) error {
	if c.isClosed() {
		return exception.ErrConnectionClosed
	}
	c.broker.mu.RLock()
	down := c.broker.down[c.ep.Address]
	c.broker.mu.RUnlock()
	if down {
		return exception.ErrConnectionClosed
	}
	return ctx.Err()
}

func (c *memoryConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.broker.detach(c)
	})
	return nil
}
