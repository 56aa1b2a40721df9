package messaging

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"hftcore/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Handler consumes one received message. A returned error is logged and the
// receive loop continues.
type Handler func(topic string, payload []byte) error

// Channel is a pub/sub channel on top of a Registry. It owns at most one
// publisher and one subscriber endpoint and runs a single receive loop that
// delivers messages in arrival order.
type Channel struct {
	registry *Registry
	name     string
	pubName  string
	subName  string

	mu      sync.Mutex
	handler Handler

	started  atomic.Bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	retry    Backoff
}

// NewChannel registers the channel's endpoints. An empty pubAddress makes a
// receive-only channel, an empty subAddress a publish-only one.
func NewChannel(ctx context.Context, registry *Registry, name, pubAddress, subAddress string, topics ...string) (*Channel, error) {
	if registry == nil {
		return nil, exception.ErrNilInstance
	}
	if name == "" {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "empty channel name")
	}
	if pubAddress == "" && subAddress == "" {
		return nil, exception.ErrEmptyEndpointAddress
	}

	c := &Channel{
		registry: registry,
		name:     name,
		retry: Backoff{
			Min:    10 * time.Millisecond,
			Max:    registry.opts.ReconnectInterval,
			Factor: 2,
			Jitter: 0.2,
		},
	}
	if pubAddress != "" {
		c.pubName = name + ".pub"
		if err := registry.CreatePublisher(ctx, c.pubName, pubAddress); err != nil {
			return nil, err
		}
	}
	if subAddress != "" {
		c.subName = name + ".sub"
		if err := registry.CreateSubscriber(ctx, c.subName, subAddress, topics...); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// PublisherName returns the registry name of the publishing endpoint.
func (c *Channel) PublisherName() string {
	return c.pubName
}

// SubscriberName returns the registry name of the subscribing endpoint.
func (c *Channel) SubscriberName() string {
	return c.subName
}

// SetHandler installs the message handler. Only the latest one is used.
func (c *Channel) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Channel) currentHandler() Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

// Publish sends payload on topic.
func (c *Channel) Publish(ctx context.Context, topic string, payload []byte) error {
	if c.pubName == "" {
		return fmt.Errorf("%w: channel %s has no publisher", exception.ErrRoleMismatch, c.name)
	}
	return c.registry.Publish(ctx, c.pubName, topic, payload)
}

// Start runs the receive loop until ctx is done or Stop is called.
func (c *Channel) Start(ctx context.Context) error {
	if c.subName == "" {
		return fmt.Errorf("%w: channel %s has no subscriber", exception.ErrRoleMismatch, c.name)
	}
	if c.currentHandler() == nil {
		return exception.ErrNilHandler
	}
	if !c.started.CompareAndSwap(false, true) {
		return exception.ErrChannelStarted
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return exception.ErrChannelStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.receiveLoop(loopCtx)
	return nil
}

func (c *Channel) receiveLoop(ctx context.Context) {
	defer c.wg.Done()

	attempt := 0
	for {
		msg, err := c.registry.Receive(ctx, c.subName)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, exception.ErrRegistryStopped) || errors.Is(err, exception.ErrUnknownConnection) {
				return
			}
			attempt++
			if !sleep(ctx, c.retry.Next(attempt)) {
				return
			}
			continue
		}
		attempt = 0
		c.dispatch(msg)
	}
}

func (c *Channel) dispatch(msg Message) {
	h := c.currentHandler()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("messaging: channel %s handler panic on %s: %v\n%s", c.name, msg.Topic, r, debug.Stack())
		}
	}()
	if err := h(msg.Topic, msg.Payload); err != nil {
		logs.Warnf("messaging: channel %s handler failed on %s: %v", c.name, msg.Topic, err)
	}
}

// Stop ends the receive loop and waits for it.
func (c *Channel) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		c.wg.Wait()
	})
}
