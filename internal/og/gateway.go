package og

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hftcore/internal/schema"
	"hftcore/pkg/exception"
	"hftcore/pkg/messaging"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// GatewayConfig names the venue a gateway talks to.
type GatewayConfig struct {
	Venue string
}

// Gateway is a VenueLink over a messaging channel. Orders and cancels are
// published on the venue's topics and answered by acks on the ack topic.
type Gateway struct {
	cfg         GatewayConfig
	ch          *messaging.Channel
	orderTopic  string
	cancelTopic string
	ackTopic    string
	state       *StateMachine

	mu      sync.Mutex
	waiting map[uint64]chan ackPayload
	cancels map[uint64]chan ackPayload

	acked atomic.Uint64
}

// DialGateway creates the gateway channel on registry. pubAddress carries
// orders to the venue, subAddress carries acks back.
func DialGateway(ctx context.Context, registry *messaging.Registry, venue, pubAddress, subAddress string) (*Gateway, error) {
	_, _, ackTopic := Topics(venue)
	ch, err := messaging.NewChannel(ctx, registry, "og."+venue, pubAddress, subAddress, ackTopic)
	if err != nil {
		return nil, err
	}
	return NewGateway(GatewayConfig{Venue: venue}, ch)
}

// NewGateway takes over ch's handler.
func NewGateway(cfg GatewayConfig, ch *messaging.Channel) (*Gateway, error) {
	if ch == nil {
		return nil, exception.ErrNilInstance
	}
	if cfg.Venue == "" {
		return nil, exception.ErrInvalidVenue
	}
	g := &Gateway{
		cfg:     cfg,
		ch:      ch,
		state:   NewStateMachine(),
		waiting: make(map[uint64]chan ackPayload),
		cancels: make(map[uint64]chan ackPayload),
	}
	g.orderTopic, g.cancelTopic, g.ackTopic = Topics(cfg.Venue)
	ch.SetHandler(g.handle)
	return g, nil
}

// Start runs the ack receive loop.
func (g *Gateway) Start(ctx context.Context) error {
	return g.ch.Start(ctx)
}

// Stop ends the ack receive loop.
func (g *Gateway) Stop() {
	g.ch.Stop()
}

// State returns the venue-side order state machine.
func (g *Gateway) State() *StateMachine {
	return g.state
}

// Acknowledged returns how many acks the engine confirmed.
func (g *Gateway) Acknowledged() uint64 {
	return g.acked.Load()
}

func (g *Gateway) VenueName() string {
	return g.cfg.Venue
}

func (g *Gateway) SendOrder(ctx context.Context, o schema.Order) (Ack, error) {
	if err := g.state.ApplySent(o); err != nil {
		return Ack{}, err
	}
	payload, err := encodeOrder(o, time.Now().UnixNano())
	if err != nil {
		g.state.Forget(o.ID)
		return Ack{}, err
	}

	wait := make(chan ackPayload, 1)
	g.mu.Lock()
	g.waiting[o.ID] = wait
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.waiting, o.ID)
		g.mu.Unlock()
	}()

	if err := g.ch.Publish(ctx, g.orderTopic, payload); err != nil {
		g.state.Forget(o.ID)
		return Ack{}, fmt.Errorf("%w: %s: %w", exception.ErrVenueUnreachable, g.cfg.Venue, err)
	}

	select {
	case p := <-wait:
		ack := p.ack()
		if !ack.Accepted {
			g.state.Forget(o.ID)
			return ack, errors.Wrapf(exception.ErrVenueRejected, "%s: %s", g.cfg.Venue, p.Reason)
		}
		return ack, nil
	case <-ctx.Done():
		g.state.Forget(o.ID)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Ack{}, fmt.Errorf("%w: %s: %w", exception.ErrVenueTimeout, g.cfg.Venue, ctx.Err())
		}
		return Ack{}, ctx.Err()
	}
}

func (g *Gateway) CancelOrder(ctx context.Context, orderID uint64) (bool, error) {
	payload, err := encodeCancel(orderID)
	if err != nil {
		return false, err
	}

	wait := make(chan ackPayload, 1)
	g.mu.Lock()
	g.cancels[orderID] = wait
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.cancels, orderID)
		g.mu.Unlock()
	}()

	if err := g.ch.Publish(ctx, g.cancelTopic, payload); err != nil {
		return false, fmt.Errorf("%w: %s: %w", exception.ErrVenueUnreachable, g.cfg.Venue, err)
	}

	select {
	case p := <-wait:
		return p.Status == StatusCancelled, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, fmt.Errorf("%w: %s: %w", exception.ErrVenueTimeout, g.cfg.Venue, ctx.Err())
		}
		return false, ctx.Err()
	}
}

func (g *Gateway) OnOrderAcknowledgement(orderID uint64) {
	g.state.Forget(orderID)
	g.acked.Add(1)
}

func (g *Gateway) handle(topic string, payload []byte) error {
	if topic != g.ackTopic {
		return nil
	}
	p, err := decodeAck(payload)
	if err != nil {
		return err
	}

	if _, err := g.state.ApplyAck(p.OrderID, p.Status); err != nil {
		logs.Debugf("og: %s ack for order %d (%s): %v", g.cfg.Venue, p.OrderID, p.Status, err)
	}

	g.mu.Lock()
	var wait chan ackPayload
	switch p.Status {
	case StatusAccepted, StatusRejected:
		wait = g.waiting[p.OrderID]
	case StatusCancelled, StatusCancelRejected:
		wait = g.cancels[p.OrderID]
	}
	g.mu.Unlock()

	if wait == nil {
		return nil
	}
	select {
	case wait <- p:
	default:
	}
	return nil
}
