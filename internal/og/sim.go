package og

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"hftcore/internal/schema"
	"hftcore/pkg/exception"

	"github.com/yanun0323/errors"
)

// SimConfig shapes a simulated venue.
type SimConfig struct {
	Name       string
	Latency    time.Duration
	RejectRate float64
	// Slippage moves the fill price against the taker, as a fraction.
	Slippage float64
	Seed     int64
}

// SimVenue is an in-process venue for paper trading and tests.
type SimVenue struct {
	cfg SimConfig

	mu   sync.Mutex
	rng  *rand.Rand
	open map[uint64]schema.Order

	down  atomic.Bool
	sent  atomic.Uint64
	acked atomic.Uint64
}

// NewSimVenue creates a simulated venue.
func NewSimVenue(cfg SimConfig) *SimVenue {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimVenue{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(seed)),
		open: make(map[uint64]schema.Order),
	}
}

// SetDown makes the venue unreachable.
func (v *SimVenue) SetDown(down bool) {
	v.down.Store(down)
}

// Sent returns how many orders reached the venue.
func (v *SimVenue) Sent() uint64 {
	return v.sent.Load()
}

// Acknowledged returns how many acks were confirmed.
func (v *SimVenue) Acknowledged() uint64 {
	return v.acked.Load()
}

func (v *SimVenue) VenueName() string {
	return v.cfg.Name
}

func (v *SimVenue) SendOrder(ctx context.Context, o schema.Order) (Ack, error) {
	if v.down.Load() {
		return Ack{}, errors.Wrap(exception.ErrVenueUnreachable, v.cfg.Name)
	}
	v.sent.Add(1)

	if v.cfg.Latency > 0 {
		timer := time.NewTimer(v.cfg.Latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Ack{}, fmt.Errorf("%w: %s: %w", exception.ErrVenueTimeout, v.cfg.Name, ctx.Err())
			}
			return Ack{}, ctx.Err()
		}
	}

	ack := Ack{
		OrderID:       o.ID,
		ClientOrderID: o.ClientOrderID,
		Venue:         v.cfg.Name,
		Quantity:      o.Quantity,
	}

	v.mu.Lock()
	reject := v.cfg.RejectRate > 0 && v.rng.Float64() < v.cfg.RejectRate
	if !reject {
		v.open[o.ID] = o
	}
	v.mu.Unlock()

	if reject {
		ack.Reason = "simulated reject"
		return ack, errors.Wrapf(exception.ErrVenueRejected, "%s: %s", v.cfg.Name, ack.Reason)
	}

	ack.Accepted = true
	ack.Price = o.Price
	if v.cfg.Slippage != 0 {
		switch o.Side {
		case schema.SideBuy:
			ack.Price = o.Price * (1 + v.cfg.Slippage)
		case schema.SideSell:
			ack.Price = o.Price * (1 - v.cfg.Slippage)
		}
	}
	return ack, nil
}

func (v *SimVenue) CancelOrder(ctx context.Context, orderID uint64) (bool, error) {
	if v.down.Load() {
		return false, errors.Wrap(exception.ErrVenueUnreachable, v.cfg.Name)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.open[orderID]; !ok {
		return false, nil
	}
	delete(v.open, orderID)
	return true, nil
}

func (v *SimVenue) OnOrderAcknowledgement(uint64) {
	v.acked.Add(1)
}
