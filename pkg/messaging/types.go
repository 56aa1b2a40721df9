package messaging

import (
	"context"
	"strings"
)

// Role tells whether an endpoint sends or receives.
type Role uint8

const (
	RolePublisher Role = iota + 1
	RoleSubscriber
)

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleSubscriber:
		return "subscriber"
	default:
		return "unknown"
	}
}

// Message is one pub/sub unit.
type Message struct {
	Topic   string
	Payload []byte
}

// Endpoint describes a named connection owned by a Registry.
type Endpoint struct {
	Name    string
	Address string
	Role    Role
	// Topics are prefixes. An empty list subscribes to everything.
	Topics []string
}

// Conn is a live transport connection.
//
// Send, Ping and Close must be safe for concurrent use. Receive is only
// called from one goroutine at a time and must return when ctx is done.
type Conn interface {
	Send(ctx context.Context, msg Message) error
	Receive(ctx context.Context) (Message, error)
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens transport connections for endpoints.
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, ep Endpoint) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	return f(ctx, ep)
}

// MatchTopic reports whether topic starts with one of the prefixes.
func MatchTopic(prefixes []string, topic string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}
