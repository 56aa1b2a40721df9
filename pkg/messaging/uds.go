package messaging

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"hftcore/pkg/uds"

	"github.com/yanun0323/logs"
)

// streamLink frames a byte stream connection.
type streamLink struct {
	conn net.Conn
	r    *bufio.Reader
	buf  []byte
}

func newStreamLink(conn net.Conn) *streamLink {
	return &streamLink{conn: conn, r: bufio.NewReaderSize(conn, 64<<10)}
}

func (l *streamLink) ReadFrame() (FrameKind, string, []byte, error) {
	return ReadFrame(l.r)
}

func (l *streamLink) WriteFrame(deadline time.Time, kind FrameKind, topic string, payload []byte) error {
	buf, err := AppendFrame(l.buf[:0], kind, topic, payload)
	if err != nil {
		return err
	}
	l.buf = buf
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err = l.conn.Write(buf)
	return err
}

func (l *streamLink) Close() error {
	return l.conn.Close()
}

// UDSDialer connects endpoints to a UDSHub. The endpoint address is the
// socket path.
type UDSDialer struct {
	// Buffer is the number of received messages held per connection.
	Buffer int
	// SocketBuffer sizes the kernel socket buffers when positive.
	SocketBuffer int
}

// Dial implements Dialer.
func (d UDSDialer) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	client, err := uds.NewClient(ep.Address, 0, d.SocketBuffer)
	if err != nil {
		return nil, err
	}
	raw, err := client.Dial(ctx)
	if err != nil {
		return nil, err
	}

	c := newFrameConn(newStreamLink(raw), d.Buffer)
	if ep.Role == RoleSubscriber {
		if err := c.subscribe(ctx, ep.Topics); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// UDSHub is a pub/sub relay listening on a unix socket.
type UDSHub struct {
	server       *uds.Server
	hub          *hub
	writeTimeout time.Duration

	started   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewUDSHub creates a hub for path. Writes to a peer that stall longer than
// writeTimeout drop the peer.
func NewUDSHub(path string, writeTimeout time.Duration) (*UDSHub, error) {
	server, err := uds.NewServer(path, uds.WithFileMode(0o600))
	if err != nil {
		return nil, err
	}
	if writeTimeout <= 0 {
		writeTimeout = time.Second
	}
	return &UDSHub{server: server, hub: newHub(), writeTimeout: writeTimeout, done: make(chan struct{})}, nil
}

// Path returns the socket path.
func (h *UDSHub) Path() string {
	return h.server.Path()
}

// Start listens and serves peers in the background until Close.
func (h *UDSHub) Start() error {
	if err := h.server.Listen(); err != nil {
		return err
	}
	h.started.Store(true)
	go func() {
		defer close(h.done)
		err := h.server.Serve(func(conn *net.UnixConn) {
			h.hub.serve(newStreamLink(conn), h.writeTimeout)
		})
		if err != nil {
			logs.Warnf("messaging: uds hub on %s stopped: %v", h.server.Path(), err)
		}
	}()
	return nil
}

// Peers returns the number of attached connections.
func (h *UDSHub) Peers() int {
	return h.hub.count()
}

// Close stops listening, drops every peer and waits for the serving
// goroutines.
func (h *UDSHub) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.server.Close()
		h.hub.close()
		if h.started.Load() {
			<-h.done
		}
		h.server.Wait()
	})
	return err
}
