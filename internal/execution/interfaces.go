package execution

import (
	"context"
	"time"

	"hftcore/internal/router"
	"hftcore/internal/schema"
)

// Router sends an order to venues.
type Router interface {
	RouteOrder(ctx context.Context, order schema.Order) (router.RouteResult, error)
}

// Reporter receives the outcome of every order that reached a terminal
// state, exactly once per order. Failed orders report zero fill.
type Reporter interface {
	OnExecutionReport(orderID uint64, fillPrice, fillQty float64)
}

// DetailReporter is a Reporter that takes the full report. When a reporter
// implements it, OnReport is called instead of OnExecutionReport.
type DetailReporter interface {
	Reporter
	OnReport(report schema.ExecutionReport)
}

// ReportFunc adapts a function to Reporter.
type ReportFunc func(orderID uint64, fillPrice, fillQty float64)

func (f ReportFunc) OnExecutionReport(orderID uint64, fillPrice, fillQty float64) {
	f(orderID, fillPrice, fillQty)
}

// RiskChecker vetoes orders before any venue is touched.
type RiskChecker interface {
	EvaluateOrderRisk(size, volatilityFactor float64) bool
}

// Metrics observes terminal orders.
type Metrics interface {
	ObserveOrder(state schema.OrderState, latency time.Duration)
}

func deliver(r Reporter, rep schema.ExecutionReport) {
	if r == nil {
		return
	}
	if dr, ok := r.(DetailReporter); ok {
		dr.OnReport(rep)
		return
	}
	r.OnExecutionReport(rep.OrderID, rep.FillPrice, rep.FillQty)
}
