package messaging

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"hftcore/pkg/exception"

	"github.com/yanun0323/logs"
)

// frameLink moves whole frames over a stream or message transport.
// ReadFrame is called from one goroutine, WriteFrame is serialized by the
// caller.
type frameLink interface {
	ReadFrame() (FrameKind, string, []byte, error)
	WriteFrame(deadline time.Time, kind FrameKind, topic string, payload []byte) error
	Close() error
}

// frameConn is the client side Conn shared by the frame based transports.
type frameConn struct {
	link frameLink
	wmu  sync.Mutex

	inbox chan Message

	// pings are tagged with a sequence number the hub echoes in the pong
	pmu       sync.Mutex
	pingSeq   atomic.Uint64
	pongs     chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newFrameConn(link frameLink, buffer int) *frameConn {
	if buffer <= 0 {
		buffer = 1024
	}
	c := &frameConn{
		link:   link,
		inbox:  make(chan Message, buffer),
		pongs:  make(chan string, 1),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *frameConn) readLoop() {
	for {
		kind, topic, payload, err := c.link.ReadFrame()
		if err != nil {
			_ = c.Close()
			return
		}
		switch kind {
		case FrameMessage:
			select {
			case c.inbox <- Message{Topic: topic, Payload: payload}:
			case <-c.closed:
				return
			}
		case FramePong:
			// keep only the latest pong
			select {
			case <-c.pongs:
			default:
			}
			c.pongs <- topic
		}
	}
}

func (c *frameConn) write(ctx context.Context, kind FrameKind, topic string, payload []byte) error {
	select {
	case <-c.closed:
		return exception.ErrConnectionClosed
	default:
	}
	deadline, _ := ctx.Deadline()

	c.wmu.Lock()
	err := c.link.WriteFrame(deadline, kind, topic, payload)
	c.wmu.Unlock()
	if err != nil {
		// a partial frame leaves the stream unusable
		_ = c.Close()
		return fmt.Errorf("%w: %w", exception.ErrConnectionClosed, err)
	}
	return nil
}

// subscribe asks the hub for topic prefixes. No prefix means everything.
// The trailing ping returns once the hub has applied the subscriptions.
func (c *frameConn) subscribe(ctx context.Context, topics []string) error {
	if len(topics) == 0 {
		topics = []string{""}
	}
	for _, topic := range topics {
		if err := c.write(ctx, FrameSubscribe, topic, nil); err != nil {
			return err
		}
	}
	return c.Ping(ctx)
}

func (c *frameConn) Send(ctx context.Context, msg Message) error {
	return c.write(ctx, FrameMessage, msg.Topic, msg.Payload)
}

func (c *frameConn) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
		return Message{}, exception.ErrConnectionClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Ping succeeds only on the pong answering this ping. Pongs of earlier
// pings that timed out are discarded.
func (c *frameConn) Ping(ctx context.Context) error {
	c.pmu.Lock()
	defer c.pmu.Unlock()

	tag := strconv.FormatUint(c.pingSeq.Add(1), 10)
	if err := c.write(ctx, FramePing, tag, nil); err != nil {
		return err
	}
	for {
		select {
		case got := <-c.pongs:
			if got == tag {
				return nil
			}
		case <-c.closed:
			return exception.ErrConnectionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *frameConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.link.Close()
	})
	return err
}

// hub relays message frames between the peers attached to it.
type hub struct {
	mu     sync.RWMutex
	peers  map[*hubPeer]struct{}
	closed bool
}

type hubPeer struct {
	link   frameLink
	wmu    sync.Mutex
	topics []string
}

func newHub() *hub {
	return &hub{peers: make(map[*hubPeer]struct{})}
}

func (h *hub) attach(link frameLink) (*hubPeer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	p := &hubPeer{link: link}
	h.peers[p] = struct{}{}
	return p, true
}

func (h *hub) detach(p *hubPeer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
	_ = p.link.Close()
}

// serve runs one peer until its link fails.
func (h *hub) serve(link frameLink, writeTimeout time.Duration) {
	p, ok := h.attach(link)
	if !ok {
		_ = link.Close()
		return
	}
	defer h.detach(p)

	for {
		kind, topic, payload, err := link.ReadFrame()
		if err != nil {
			return
		}
		switch kind {
		case FrameSubscribe:
			h.mu.Lock()
			p.topics = append(p.topics, topic)
			h.mu.Unlock()
		case FramePing:
			if err := p.write(writeTimeout, FramePong, topic, nil); err != nil {
				return
			}
		case FrameMessage:
			h.fanout(p, topic, payload, writeTimeout)
		}
	}
}

func (h *hub) fanout(from *hubPeer, topic string, payload []byte, writeTimeout time.Duration) {
	h.mu.RLock()
	targets := make([]*hubPeer, 0, len(h.peers))
	for p := range h.peers {
		if p == from || len(p.topics) == 0 {
			continue
		}
		if MatchTopic(p.topics, topic) {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if err := p.write(writeTimeout, FrameMessage, topic, payload); err != nil {
			logs.Warnf("messaging: hub drop peer on %s: %v", topic, err)
			_ = p.link.Close()
		}
	}
}

func (p *hubPeer) write(timeout time.Duration, kind FrameKind, topic string, payload []byte) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.link.WriteFrame(deadline, kind, topic, payload)
}

// close detaches every peer and refuses new ones.
func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	peers := make([]*hubPeer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		_ = p.link.Close()
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}
