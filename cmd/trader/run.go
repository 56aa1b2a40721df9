package main

import (
	"context"
	"errors"
	"time"

	"hftcore/internal/execution"
	"hftcore/internal/ops"
	"hftcore/internal/schema"
	"hftcore/pkg/exception"

	"github.com/yanun0323/logs"
)

type runOptions struct {
	ConfigPath     string
	ReloadInterval time.Duration
	Paper          bool
	Orders         int
	LatencyScale   float64
	CampaignSize   float64
	CampaignVol    float64
	ReportTimeout  time.Duration
	DrawdownPeriod time.Duration
}

// run executes the benchmark and the triangular trade and returns the
// process exit code.
func run(ctx context.Context, cfg ops.Config, opt runOptions) int {
	a, err := newApp(ctx, cfg, opt)
	if err != nil {
		logs.Errorf("startup failed: %v", err)
		return exitConfig
	}
	defer a.close()

	if opt.ConfigPath != "" && opt.ReloadInterval > 0 {
		wctx, stop := context.WithCancel(ctx)
		defer stop()
		go watchConfig(wctx, opt.ConfigPath, opt.ReloadInterval, ops.NewHolder(cfg), a.applyConfig)
	}

	if !a.risk.EvaluateOrderRisk(opt.CampaignSize, opt.CampaignVol) {
		logs.Errorf("campaign of %v rejected by risk (%s)", opt.CampaignSize, a.risk.LastReason())
		return exitRisk
	}

	go watchDrawdown(ctx, a, opt.DrawdownPeriod)

	if code := benchmark(ctx, a, opt); code != exitOK {
		return code
	}
	return triangle(ctx, a)
}

func benchmark(ctx context.Context, a *app, opt runOptions) int {
	if opt.Orders <= 0 {
		return exitOK
	}
	submitted := 0
	start := time.Now()
	for i := 0; i < opt.Orders; i++ {
		order, err := schema.NewOrder(a.ids.Next(), "EUR/USD", schema.SideBuy, schema.OrderTypeLimit, 1.1234, 100_000)
		if err != nil {
			logs.Errorf("benchmark order: %v", err)
			return exitConfig
		}
		if err := a.engine.ExecuteTrade(order); err != nil {
			logs.Warnf("benchmark submit %d: %v", order.ID, err)
			continue
		}
		submitted++
	}
	elapsed := time.Since(start)
	if submitted > 0 {
		logs.Infof("avg order submission latency: %s over %d orders", elapsed/time.Duration(submitted), submitted)
	}

	wctx, cancel := context.WithTimeout(ctx, opt.ReportTimeout)
	defer cancel()
	if err := a.collector.WaitFor(wctx, submitted); err != nil {
		logs.Errorf("benchmark: %d of %d reports: %v", a.collector.Len(), submitted, err)
		return exitRouting
	}

	var filled, riskRejected, routingFailed int
	for _, rep := range a.collector.Reports() {
		switch {
		case rep.Filled():
			filled++
		case errors.Is(rep.Err, exception.ErrRiskRejected):
			riskRejected++
		default:
			routingFailed++
		}
	}
	snap := a.metrics.Snapshot()
	logs.Infof("benchmark: %d filled, %d risk rejected, %d failed, avg fill latency %s",
		filled, riskRejected, routingFailed, snap.OrderLatency.Avg)
	for _, v := range snap.Venues {
		logs.Infof("venue %s: %d ok, %d failed, avg %s", v.Venue, v.OK, v.Failed, v.Latency.Avg)
	}

	switch {
	case filled > 0 || submitted == 0:
		return exitOK
	case riskRejected > 0:
		return exitRisk
	default:
		return exitRouting
	}
}

func triangle(ctx context.Context, a *app) int {
	if err := a.risk.CheckStrategy(); err != nil {
		logs.Errorf("multi-leg skipped: %v", err)
		return exitRisk
	}
	sender, err := execution.NewRouterLegSender(a.router, a.ids)
	if err != nil {
		logs.Errorf("leg sender: %v", err)
		return exitConfig
	}
	trade, err := execution.NewMultiLegExecution(a.ids.Next(), a.cfg.MultiLegConfig(), sender,
		execution.WithTradeReporter(a.collector))
	if err != nil {
		logs.Errorf("multi-leg: %v", err)
		return exitConfig
	}
	err = trade.SetLegs(
		schema.TradeLeg{Symbol: "EUR/USD", Side: schema.SideBuy, Price: 1.1234, Quantity: 1_000_000},
		schema.TradeLeg{Symbol: "USD/GBP", Side: schema.SideSell, Price: 0.7890, Quantity: 1_000_000},
		schema.TradeLeg{Symbol: "GBP/EUR", Side: schema.SideBuy, Price: 1.4210, Quantity: 1_000_000},
	)
	if err != nil {
		logs.Errorf("multi-leg legs: %v", err)
		return exitConfig
	}

	if err := trade.Execute(ctx); err != nil {
		logs.Errorf("multi-leg trade %d failed in state %s: %v", trade.ID(), trade.State(), err)
	}
	for i, leg := range trade.LegReports() {
		logs.Infof("leg %d %s %s sent=%v venue=%s latency=%s", i+1, leg.Leg.Symbol, leg.Leg.Side, leg.Sent, leg.Fill.Venue, leg.Latency)
	}
	if trade.State() != schema.TradeStateComplete {
		return exitMultiLeg
	}
	logs.Infof("multi-leg trade %d complete", trade.ID())
	return exitOK
}

// watchDrawdown trips the kill switch once the strategy is disabled.
func watchDrawdown(ctx context.Context, a *app, period time.Duration) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.risk.IsStrategyAllowed() {
				logs.Errorf("strategy disabled due to excessive drawdown")
				a.risk.SetKillSwitch(true)
				return
			}
		}
	}
}
