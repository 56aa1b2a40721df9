package messaging

import (
	"context"
	"net/http"
	"sync"
	"time"

	"hftcore/pkg/exception"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"
)

// wsLink carries one frame per binary websocket message.
type wsLink struct {
	conn *websocket.Conn
	buf  []byte
}

func (l *wsLink) ReadFrame() (FrameKind, string, []byte, error) {
	msgType, data, err := l.conn.ReadMessage()
	if err != nil {
		return 0, "", nil, err
	}
	if msgType != websocket.BinaryMessage {
		return 0, "", nil, exception.ErrWebSocketUnexpectedFrame
	}
	return DecodeFrame(data)
}

func (l *wsLink) WriteFrame(deadline time.Time, kind FrameKind, topic string, payload []byte) error {
	buf, err := AppendFrame(l.buf[:0], kind, topic, payload)
	if err != nil {
		return err
	}
	l.buf = buf
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.BinaryMessage, buf)
}

func (l *wsLink) Close() error {
	return l.conn.Close()
}

// WebSocketDialer connects endpoints to a WebSocketHub. The endpoint
// address is a ws:// or wss:// URL.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
	Buffer int
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	if ep.Address == "" {
		return nil, exception.ErrEmptyEndpointAddress
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	raw, resp, err := dialer.DialContext(ctx, ep.Address, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	raw.SetReadLimit(DefaultMaxFrameSize + frameHeaderSize)

	c := newFrameConn(&wsLink{conn: raw}, d.Buffer)
	if ep.Role == RoleSubscriber {
		if err := c.subscribe(ctx, ep.Topics); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// WebSocketHub is a pub/sub relay served over HTTP upgrade.
type WebSocketHub struct {
	upgrader     websocket.Upgrader
	hub          *hub
	writeTimeout time.Duration
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

// NewWebSocketHub creates a hub. Mount it on any path with http.Handle.
func NewWebSocketHub(writeTimeout time.Duration) *WebSocketHub {
	if writeTimeout <= 0 {
		writeTimeout = time.Second
	}
	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		hub:          newHub(),
		writeTimeout: writeTimeout,
	}
}

func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Warnf("messaging: websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(DefaultMaxFrameSize + frameHeaderSize)

	h.wg.Add(1)
	defer h.wg.Done()
	h.hub.serve(&wsLink{conn: conn}, h.writeTimeout)
}

// Peers returns the number of attached connections.
func (h *WebSocketHub) Peers() int {
	return h.hub.count()
}

// Close drops every peer and waits for their handlers to return.
func (h *WebSocketHub) Close() error {
	h.closeOnce.Do(func() {
		h.hub.close()
		h.wg.Wait()
	})
	return nil
}
