package schema

import (
	"strings"
	"time"

	"hftcore/pkg/exception"

	"github.com/yanun0323/errors"
)

// Side describes order direction.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b":
		return SideBuy, true
	case "sell", "s":
		return SideSell, true
	default:
		return SideUnknown, false
	}
}

// OrderType describes order type.
type OrderType uint8

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeMarket:
		return "market"
	default:
		return "unknown"
	}
}

// Order is an immutable order value. It is passed by value between the
// producer, the queue, the engine and the router so no two components ever
// share it for mutation.
type Order struct {
	ID uint64
	// ClientOrderID is assigned per venue copy by the router.
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Price         float64
	Quantity      float64
	CreatedAt     time.Time
}

// NewOrder builds and validates an order stamped with the current time.
func NewOrder(id uint64, symbol string, side Side, typ OrderType, price, qty float64) (Order, error) {
	o := Order{
		ID:        id,
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		Price:     price,
		Quantity:  qty,
		CreatedAt: time.Now(),
	}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Validate checks the order invariants.
func (o Order) Validate() error {
	if o.ID == 0 {
		return errors.Wrap(exception.ErrInvalidOrder, "order id is zero")
	}
	if o.Symbol == "" {
		return errors.Wrap(exception.ErrInvalidOrder, "symbol is empty")
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return errors.Wrap(exception.ErrInvalidOrder, "side is unknown")
	}
	if !(o.Quantity > 0) {
		return errors.Wrapf(exception.ErrInvalidOrder, "quantity must be > 0, got %v", o.Quantity)
	}
	switch o.Type {
	case OrderTypeLimit:
		if !(o.Price > 0) {
			return errors.Wrapf(exception.ErrInvalidOrder, "limit price must be > 0, got %v", o.Price)
		}
	case OrderTypeMarket:
		if o.Price < 0 {
			return errors.Wrapf(exception.ErrInvalidOrder, "market price must be >= 0, got %v", o.Price)
		}
	default:
		return errors.Wrap(exception.ErrInvalidOrder, "order type is unknown")
	}
	return nil
}

// WithClientOrderID returns a copy carrying the venue specific client id.
func (o Order) WithClientOrderID(id string) Order {
	o.ClientOrderID = id
	return o
}

// Notional returns price * quantity.
func (o Order) Notional() float64 {
	return o.Price * o.Quantity
}
