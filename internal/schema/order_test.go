package schema

import (
	"testing"

	"hftcore/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderValidate(t *testing.T) {
	valid := Order{ID: 1, Symbol: "EUR/USD", Side: SideBuy, Type: OrderTypeLimit, Price: 1.1234, Quantity: 10}
	require.NoError(t, valid.Validate())

	market := valid
	market.Type = OrderTypeMarket
	market.Price = 0
	assert.NoError(t, market.Validate())

	cases := map[string]func(o *Order){
		"zero id":         func(o *Order) { o.ID = 0 },
		"empty symbol":    func(o *Order) { o.Symbol = "" },
		"unknown side":    func(o *Order) { o.Side = SideUnknown },
		"zero quantity":   func(o *Order) { o.Quantity = 0 },
		"negative qty":    func(o *Order) { o.Quantity = -1 },
		"limit zero px":   func(o *Order) { o.Price = 0 },
		"unknown type":    func(o *Order) { o.Type = OrderTypeUnknown },
		"market negative": func(o *Order) { o.Type = OrderTypeMarket; o.Price = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := valid
			mutate(&o)
			assert.ErrorIs(t, o.Validate(), exception.ErrInvalidOrder)
		})
	}
}

func TestNewOrderStampsTime(t *testing.T) {
	o, err := NewOrder(42, "USD/GBP", SideSell, OrderTypeLimit, 0.789, 5)
	require.NoError(t, err)
	assert.False(t, o.CreatedAt.IsZero())
	assert.InDelta(t, 0.789*5, o.Notional(), 1e-9)

	_, err = NewOrder(43, "USD/GBP", SideSell, OrderTypeLimit, 0, 5)
	assert.Error(t, err)
}

func TestWithClientOrderIDCopies(t *testing.T) {
	o := Order{ID: 1}
	tagged := o.WithClientOrderID("abc")
	assert.Equal(t, "abc", tagged.ClientOrderID)
	assert.Empty(t, o.ClientOrderID)
}

func TestParseSide(t *testing.T) {
	s, ok := ParseSide(" BUY ")
	require.True(t, ok)
	assert.Equal(t, SideBuy, s)

	s, ok = ParseSide("sell")
	require.True(t, ok)
	assert.Equal(t, SideSell, s)

	_, ok = ParseSide("hold")
	assert.False(t, ok)
}

func TestIDGeneratorMonotonic(t *testing.T) {
	g := NewIDGenerator(100)
	assert.Equal(t, uint64(101), g.Next())
	assert.Equal(t, uint64(102), g.Next())

	var nilGen *IDGenerator
	assert.Zero(t, nilGen.Next())
}

func TestStateOrderingAndTerminal(t *testing.T) {
	assert.Less(t, TradeStateInit, TradeStateLeg1Sent)
	assert.Less(t, TradeStateLeg3Sent, TradeStateComplete)
	assert.True(t, TradeStateComplete.Terminal())
	assert.True(t, TradeStateError.Terminal())
	assert.False(t, TradeStateLeg2Sent.Terminal())

	assert.Less(t, OrderStatePending, OrderStateRouted)
	assert.Less(t, OrderStateRouted, OrderStateAcknowledged)
	assert.True(t, OrderStateFilled.Terminal())
	assert.True(t, OrderStateCancelled.Terminal())
	assert.False(t, OrderStateAcknowledged.Terminal())
	assert.Equal(t, "leg2_sent", TradeStateLeg2Sent.String())
}

func TestTradeLegOrder(t *testing.T) {
	leg := TradeLeg{Symbol: "GBP/EUR", Side: SideBuy, Price: 1.421, Quantity: 1_000_000}
	require.True(t, leg.Valid())

	o := leg.Order(9)
	assert.Equal(t, uint64(9), o.ID)
	assert.Equal(t, OrderTypeLimit, o.Type)
	require.NoError(t, o.Validate())

	assert.False(t, TradeLeg{Price: 1}.Valid())
	assert.False(t, TradeLeg{Quantity: 1}.Valid())
}
