package messaging

import (
	"sync/atomic"
	"time"
)

// ConnectionHealth is a point-in-time copy of an endpoint's health.
type ConnectionHealth struct {
	Name             string
	Address          string
	Role             Role
	Connected        bool
	LastHeartbeat    time.Time
	MessagesSent     uint64
	MessagesReceived uint64
	ErrorCount       uint64
	ReconnectCount   uint64
	LastError        string
}

// health holds the live counters. Every field is updated without locks.
type health struct {
	connected     atomic.Bool
	lastHeartbeat atomic.Int64
	sent          atomic.Uint64
	received      atomic.Uint64
	errors        atomic.Uint64
	reconnects    atomic.Uint64
	lastError     atomic.Pointer[string]
}

func (h *health) beat(now time.Time) {
	h.lastHeartbeat.Store(now.UnixNano())
}

func (h *health) recordError(err error) {
	if err == nil {
		return
	}
	h.errors.Add(1)
	msg := err.Error()
	h.lastError.Store(&msg)
}

func (h *health) snapshot(ep Endpoint) ConnectionHealth {
	out := ConnectionHealth{
		Name:             ep.Name,
		Address:          ep.Address,
		Role:             ep.Role,
		Connected:        h.connected.Load(),
		MessagesSent:     h.sent.Load(),
		MessagesReceived: h.received.Load(),
		ErrorCount:       h.errors.Load(),
		ReconnectCount:   h.reconnects.Load(),
	}
	if ns := h.lastHeartbeat.Load(); ns != 0 {
		out.LastHeartbeat = time.Unix(0, ns)
	}
	if msg := h.lastError.Load(); msg != nil {
		out.LastError = *msg
	}
	return out
}
