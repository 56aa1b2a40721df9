package og

import (
	"context"
	"errors"
	"sync"

	"hftcore/pkg/exception"
	"hftcore/pkg/messaging"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"
)

// Responder is the venue side of a Gateway. It answers orders and cancels
// arriving on the channel with acks decided by the wrapped link.
type Responder struct {
	link        VenueLink
	ch          *messaging.Channel
	orderTopic  string
	cancelTopic string
	ackTopic    string

	mu  sync.Mutex
	ctx context.Context
}

// DialResponder creates the responder channel on registry. subAddress
// carries orders in, pubAddress carries acks out.
func DialResponder(ctx context.Context, registry *messaging.Registry, link VenueLink, pubAddress, subAddress string) (*Responder, error) {
	if link == nil {
		return nil, exception.ErrNilInstance
	}
	orderTopic, cancelTopic, _ := Topics(link.VenueName())
	ch, err := messaging.NewChannel(ctx, registry, "venue."+link.VenueName(), pubAddress, subAddress, orderTopic, cancelTopic)
	if err != nil {
		return nil, err
	}
	return NewResponder(link, ch)
}

// NewResponder takes over ch's handler.
func NewResponder(link VenueLink, ch *messaging.Channel) (*Responder, error) {
	if link == nil || ch == nil {
		return nil, exception.ErrNilInstance
	}
	r := &Responder{link: link, ch: ch, ctx: context.Background()}
	r.orderTopic, r.cancelTopic, r.ackTopic = Topics(link.VenueName())
	ch.SetHandler(r.handle)
	return r, nil
}

// Start serves until ctx is done or Stop.
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	return r.ch.Start(ctx)
}

// Stop ends serving.
func (r *Responder) Stop() {
	r.ch.Stop()
}

func (r *Responder) serveCtx() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx
}

func (r *Responder) handle(topic string, payload []byte) error {
	ctx := r.serveCtx()
	switch topic {
	case r.orderTopic:
		p, err := decodeOrder(payload)
		if err != nil {
			return err
		}
		ack, err := r.link.SendOrder(ctx, p.order())
		out := ackPayload{
			OrderID:       p.OrderID,
			ClientOrderID: p.ClientOrderID,
			Venue:         r.link.VenueName(),
			Status:        StatusAccepted,
			Price:         decimal.NewFromFloat(ack.Price),
			Quantity:      decimal.NewFromFloat(ack.Quantity),
		}
		if err != nil {
			out.Status = StatusRejected
			out.Reason = err.Error()
			if errors.Is(err, exception.ErrVenueUnreachable) || errors.Is(err, exception.ErrVenueTimeout) {
				logs.Warnf("og: venue %s dropped order %d: %v", r.link.VenueName(), p.OrderID, err)
				return nil
			}
		}
		return r.publish(ctx, out)

	case r.cancelTopic:
		p, err := decodeCancel(payload)
		if err != nil {
			return err
		}
		ok, err := r.link.CancelOrder(ctx, p.OrderID)
		if err != nil {
			return err
		}
		status := StatusCancelRejected
		if ok {
			status = StatusCancelled
		}
		return r.publish(ctx, ackPayload{OrderID: p.OrderID, Venue: r.link.VenueName(), Status: status})
	}
	return nil
}

func (r *Responder) publish(ctx context.Context, a ackPayload) error {
	b, err := encodeAck(a)
	if err != nil {
		return err
	}
	return r.ch.Publish(ctx, r.ackTopic, b)
}
