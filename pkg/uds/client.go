package uds

import (
	"context"
	"net"
	"time"

	"hftcore/pkg/exception"
)

const unixNetwork = "unix"

// Client dials one Unix domain socket path.
type Client struct {
	path   string
	buffer int
	dialer net.Dialer
}

// NewClient creates a client for path. A positive timeout bounds every
// connect on top of the caller's context; a positive buffer sizes the kernel
// socket buffers.
func NewClient(path string, timeout time.Duration, buffer int) (*Client, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	c := &Client{path: path, buffer: buffer}
	if timeout > 0 {
		c.dialer.Timeout = timeout
	}
	return c, nil
}

// Path returns the socket path.
func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Dial connects to the socket. ctx bounds the connect only.
func (c *Client) Dial(ctx context.Context) (*net.UnixConn, error) {
	if c == nil {
		return nil, exception.ErrNilClientUDS
	}
	raw, err := c.dialer.DialContext(ctx, unixNetwork, c.path)
	if err != nil {
		return nil, err
	}
	conn := raw.(*net.UnixConn)
	if c.buffer > 0 {
		_ = conn.SetReadBuffer(c.buffer)
		_ = conn.SetWriteBuffer(c.buffer)
	}
	return conn, nil
}
