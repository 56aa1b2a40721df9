package schema

// TradeLeg is one side of a multi-leg trade.
type TradeLeg struct {
	Symbol   string
	Side     Side
	Price    float64
	Quantity float64
}

// Valid reports whether the leg can be sent.
func (l TradeLeg) Valid() bool {
	return l.Quantity > 0 && l.Price > 0
}

// Order converts the leg into a limit order with the given ID.
func (l TradeLeg) Order(id uint64) Order {
	return Order{
		ID:       id,
		Symbol:   l.Symbol,
		Side:     l.Side,
		Type:     OrderTypeLimit,
		Price:    l.Price,
		Quantity: l.Quantity,
	}
}
