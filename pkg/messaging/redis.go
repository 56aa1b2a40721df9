package messaging

import (
	"context"
	"errors"
	"fmt"

	"hftcore/pkg/exception"

	"github.com/redis/go-redis/v9"
)

// RedisDialer maps endpoints onto Redis Pub/Sub. The endpoint address is
// host:port and overrides Options.Addr. Subscribers use pattern
// subscriptions so topic prefixes behave like the other transports.
type RedisDialer struct {
	Options redis.Options
}

// Dial implements Dialer.
func (d RedisDialer) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	if ep.Address == "" {
		return nil, exception.ErrEmptyEndpointAddress
	}
	opts := d.Options
	opts.Addr = ep.Address
	client := redis.NewClient(&opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis %s: %w", exception.ErrTransport, ep.Address, err)
	}

	c := &redisConn{client: client}
	if ep.Role != RoleSubscriber {
		return c, nil
	}

	patterns := make([]string, 0, len(ep.Topics))
	for _, topic := range ep.Topics {
		patterns = append(patterns, topic+"*")
	}
	if len(patterns) == 0 {
		patterns = append(patterns, "*")
	}
	ps := client.PSubscribe(ctx, patterns...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis psubscribe %s: %w", exception.ErrTransport, ep.Address, err)
	}
	c.pubsub = ps
	c.messages = ps.Channel()
	return c, nil
}

type redisConn struct {
	client   *redis.Client
	pubsub   *redis.PubSub
	messages <-chan *redis.Message
}

func (c *redisConn) Send(ctx context.Context, msg Message) error {
	return redisErr(c.client.Publish(ctx, msg.Topic, msg.Payload).Err())
}

func (c *redisConn) Receive(ctx context.Context) (Message, error) {
	if c.messages == nil {
		return Message{}, exception.ErrRoleMismatch
	}
	select {
	case m, ok := <-c.messages:
		if !ok {
			return Message{}, exception.ErrConnectionClosed
		}
		return Message{Topic: m.Channel, Payload: []byte(m.Payload)}, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *redisConn) Ping(ctx context.Context) error {
	return redisErr(c.client.Ping(ctx).Err())
}

func (c *redisConn) Close() error {
	if c.pubsub != nil {
		_ = c.pubsub.Close()
	}
	return c.client.Close()
}

func redisErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %w", exception.ErrConnectionClosed, err)
	}
	return err
}
