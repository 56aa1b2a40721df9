package execution

import (
	"context"
	"time"

	"hftcore/internal/schema"
	"hftcore/pkg/exception"
)

// RouterLegSender sends legs as limit orders through a Router.
type RouterLegSender struct {
	router Router
	ids    *schema.IDGenerator
}

// NewRouterLegSender issues leg order IDs from ids.
func NewRouterLegSender(r Router, ids *schema.IDGenerator) (*RouterLegSender, error) {
	if r == nil || ids == nil {
		return nil, exception.ErrNilInstance
	}
	return &RouterLegSender{router: r, ids: ids}, nil
}

func (s *RouterLegSender) SendLeg(ctx context.Context, leg schema.TradeLeg) (LegFill, error) {
	order := leg.Order(s.ids.Next())
	order.CreatedAt = time.Now()

	res, err := s.router.RouteOrder(ctx, order)
	if err != nil {
		return LegFill{OrderID: order.ID}, err
	}
	best, ok := res.Best()
	if !ok {
		return LegFill{OrderID: order.ID}, exception.ErrRoutingFailed
	}
	price := best.Ack.Price
	if price <= 0 {
		price = order.Price
	}
	return LegFill{
		OrderID:  order.ID,
		Venue:    best.Venue,
		Price:    price,
		Quantity: order.Quantity,
	}, nil
}
