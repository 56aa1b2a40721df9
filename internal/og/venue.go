package og

import (
	"context"

	"hftcore/internal/schema"
)

// Ack is a venue's answer to one order copy.
type Ack struct {
	OrderID       uint64
	ClientOrderID string
	Venue         string
	Accepted      bool
	Price         float64
	Quantity      float64
	Reason        string
}

// VenueLink is the per-venue order contract used by the router.
//
// SendOrder returns once the venue accepted or rejected the order, or ctx is
// done. A rejection is reported as an error wrapping ErrVenueRejected.
type VenueLink interface {
	SendOrder(ctx context.Context, order schema.Order) (Ack, error)
	CancelOrder(ctx context.Context, orderID uint64) (bool, error)
	// OnOrderAcknowledgement confirms that the engine has taken the ack for
	// orderID. Links use it to release per-order bookkeeping.
	OnOrderAcknowledgement(orderID uint64)
	VenueName() string
}
