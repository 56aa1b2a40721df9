package exception

import "github.com/yanun0323/errors"

// Transport errors. They are recorded in connection health and drive the
// reconnect loop.
var (
	ErrTransport            = errors.New("transport: error")
	ErrNotConnected         = errors.New("transport: not connected")
	ErrConnectionClosed     = errors.New("transport: connection closed")
	ErrUnknownConnection    = errors.New("transport: connection not found")
	ErrRoleMismatch         = errors.New("transport: endpoint role mismatch")
	ErrRegistryStopped      = errors.New("transport: registry stopped")
	ErrChannelStarted       = errors.New("transport: channel already started")
	ErrNilHandler           = errors.New("transport: nil message handler")
	ErrEmptyEndpointAddress = errors.New("transport: empty endpoint address")
)
