package report

import (
	"time"

	"hftcore/internal/schema"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Payload is the wire form of an execution report.
type Payload struct {
	OrderID   uint64          `json:"order_id"`
	Symbol    string          `json:"symbol,omitempty"`
	Side      string          `json:"side,omitempty"`
	State     string          `json:"state"`
	Venue     string          `json:"venue,omitempty"`
	FillPrice decimal.Decimal `json:"fill_price"`
	FillQty   decimal.Decimal `json:"fill_qty"`
	LatencyUs int64           `json:"latency_us"`
	Error     string          `json:"error,omitempty"`
	Timestamp int64           `json:"ts"`
}

// NewPayload converts rep, stamped with now.
func NewPayload(rep schema.ExecutionReport, now time.Time) Payload {
	p := Payload{
		OrderID:   rep.OrderID,
		Symbol:    rep.Symbol,
		State:     rep.State.String(),
		Venue:     rep.Venue,
		FillPrice: decimal.NewFromFloat(rep.FillPrice),
		FillQty:   decimal.NewFromFloat(rep.FillQty),
		LatencyUs: rep.Latency.Microseconds(),
		Timestamp: now.UnixNano(),
	}
	if rep.Side != schema.SideUnknown {
		p.Side = rep.Side.String()
	}
	if rep.Err != nil {
		p.Error = rep.Err.Error()
	}
	return p
}

// Encode marshals p as JSON.
func Encode(p Payload) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(p)
}

// Decode unmarshals a JSON payload.
func Decode(b []byte) (Payload, error) {
	var p Payload
	err := sonic.ConfigFastest.Unmarshal(b, &p)
	return p, err
}
