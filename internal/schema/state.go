package schema

// TradeState tracks a multi-leg trade. Values are ordered so that a later
// state always compares greater than an earlier one.
type TradeState uint32

const (
	TradeStateInit TradeState = iota
	TradeStateLeg1Sent
	TradeStateLeg2Sent
	TradeStateLeg3Sent
	TradeStateComplete
	TradeStateError
)

func (s TradeState) String() string {
	switch s {
	case TradeStateInit:
		return "init"
	case TradeStateLeg1Sent:
		return "leg1_sent"
	case TradeStateLeg2Sent:
		return "leg2_sent"
	case TradeStateLeg3Sent:
		return "leg3_sent"
	case TradeStateComplete:
		return "complete"
	case TradeStateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s TradeState) Terminal() bool {
	return s == TradeStateComplete || s == TradeStateError
}

// OrderState tracks a single order.
type OrderState uint32

const (
	OrderStatePending OrderState = iota
	OrderStateRouted
	OrderStateAcknowledged
	OrderStateFilled
	OrderStateCancelled
	OrderStateFailed
)

func (s OrderState) String() string {
	switch s {
	case OrderStatePending:
		return "pending"
	case OrderStateRouted:
		return "routed"
	case OrderStateAcknowledged:
		return "acknowledged"
	case OrderStateFilled:
		return "filled"
	case OrderStateCancelled:
		return "cancelled"
	case OrderStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateFailed:
		return true
	default:
		return false
	}
}
