package schema

import "time"

// ExecutionReport is the outcome of an order that reached a terminal state.
type ExecutionReport struct {
	OrderID   uint64
	Symbol    string
	Side      Side
	State     OrderState
	Venue     string
	FillPrice float64
	FillQty   float64
	Latency   time.Duration
	// Err is set for every state but Filled.
	Err error
}

// Filled reports whether the order was executed.
func (r ExecutionReport) Filled() bool {
	return r.State == OrderStateFilled
}
