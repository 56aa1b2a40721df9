package og

import (
	"hftcore/internal/schema"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"
)

// Ack statuses on the wire.
const (
	StatusAccepted       = "accepted"
	StatusRejected       = "rejected"
	StatusCancelled      = "cancelled"
	StatusCancelRejected = "cancel_rejected"
)

// Topics returns the order, cancel and ack topics of a venue.
func Topics(venue string) (order, cancel, ack string) {
	return "order." + venue, "cancel." + venue, "ack." + venue
}

type orderPayload struct {
	OrderID       uint64          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	SentAt        int64           `json:"sent_at"`
}

type cancelPayload struct {
	OrderID uint64 `json:"order_id"`
}

type ackPayload struct {
	OrderID       uint64          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Venue         string          `json:"venue"`
	Status        string          `json:"status"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Reason        string          `json:"reason,omitempty"`
}

func encodeOrder(o schema.Order, sentAt int64) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(orderPayload{
		OrderID:       o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          o.Side.String(),
		Type:          o.Type.String(),
		Price:         decimal.NewFromFloat(o.Price),
		Quantity:      decimal.NewFromFloat(o.Quantity),
		SentAt:        sentAt,
	})
}

func decodeOrder(b []byte) (orderPayload, error) {
	var p orderPayload
	err := sonic.ConfigFastest.Unmarshal(b, &p)
	return p, err
}

func (p orderPayload) order() schema.Order {
	side, _ := schema.ParseSide(p.Side)
	typ := schema.OrderTypeLimit
	if p.Type == schema.OrderTypeMarket.String() {
		typ = schema.OrderTypeMarket
	}
	return schema.Order{
		ID:            p.OrderID,
		ClientOrderID: p.ClientOrderID,
		Symbol:        p.Symbol,
		Side:          side,
		Type:          typ,
		Price:         wireFloat(p.Price),
		Quantity:      wireFloat(p.Quantity),
	}
}

func encodeCancel(orderID uint64) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(cancelPayload{OrderID: orderID})
}

func decodeCancel(b []byte) (cancelPayload, error) {
	var p cancelPayload
	err := sonic.ConfigFastest.Unmarshal(b, &p)
	return p, err
}

func encodeAck(a ackPayload) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(a)
}

func decodeAck(b []byte) (ackPayload, error) {
	var p ackPayload
	err := sonic.ConfigFastest.Unmarshal(b, &p)
	return p, err
}

func (p ackPayload) ack() Ack {
	return Ack{
		OrderID:       p.OrderID,
		ClientOrderID: p.ClientOrderID,
		Venue:         p.Venue,
		Accepted:      p.Status == StatusAccepted,
		Price:         wireFloat(p.Price),
		Quantity:      wireFloat(p.Quantity),
		Reason:        p.Reason,
	}
}

// wireFloat converts a decimal read off the wire. Malformed input reads as
// zero, which order and ack validation then rejects.
func wireFloat(d decimal.Decimal) float64 {
	v, err := decimal.New(string(d))
	if err != nil {
		return 0
	}
	f, _ := v.Float64()
	return f
}
