package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"hftcore/pkg/exception"
)

func fastOptions() Options {
	return Options{
		ReconnectInterval:  10 * time.Millisecond,
		HeartbeatInterval:  20 * time.Millisecond,
		MonitoringInterval: 5 * time.Millisecond,
		SendTimeout:        100 * time.Millisecond,
		Backoff:            Backoff{Min: 5 * time.Millisecond, Max: 20 * time.Millisecond, Factor: 2},
	}
}

var errScripted = errors.New("scripted send failure")

// scriptedConn fails the sends whose index is in failAt.
type scriptedConn struct {
	mu      sync.Mutex
	sends   int
	failAt  map[int]error
	pingErr error
	closed  bool
	inbox   chan Message
}

func (c *scriptedConn) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return exception.ErrConnectionClosed
	}
	idx := c.sends
	c.sends++
	if err, ok := c.failAt[idx]; ok {
		return err
	}
	return nil
}

func (c *scriptedConn) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-c.inbox:
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *scriptedConn) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return exception.ErrConnectionClosed
	}
	return c.pingErr
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *scriptedConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// scriptedDialer hands out conns produced by next and counts dials.
type scriptedDialer struct {
	mu    sync.Mutex
	dials int
	fail  bool
	next  func() *scriptedConn
	conns []*scriptedConn
}

func (d *scriptedDialer) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("dial refused")
	}
	c := &scriptedConn{inbox: make(chan Message, 16)}
	if d.next != nil {
		c = d.next()
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *scriptedDialer) setFail(fail bool) {
	d.mu.Lock()
	d.fail = fail
	d.mu.Unlock()
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *scriptedDialer) last() *scriptedConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
