package main

import (
	"context"
	"flag"
	"os"
	"time"

	"hftcore/internal/ops"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

// Process exit codes.
const (
	exitOK = iota
	exitConfig
	exitRisk
	exitRouting
	exitMultiLeg
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config (HFT_* env vars override)")
	configReload := flag.Duration("config-reload-interval", 0, "Config reload interval (0=disable)")
	paper := flag.Bool("paper", true, "Route to in-process simulated venues without a transport")
	orderCount := flag.Int("orders", 100, "Number of benchmark orders")
	latencyScale := flag.Float64("latency-scale", 1, "Multiplier applied to simulated venue latency")
	campaignSize := flag.Float64("campaign-size", 2e6, "Size of the pre-trade risk check")
	campaignVol := flag.Float64("campaign-vol", 1.2, "Volatility factor of the pre-trade risk check")
	wait := flag.Duration("report-timeout", 30*time.Second, "How long to wait for benchmark reports")
	metricsAddr := flag.String("metrics-addr", "", "Serve /metrics on this address (overrides config)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (overrides config)")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed: %v", err)
		os.Exit(exitConfig)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *pyroscopeAddr != "" {
		cfg.Metrics.PyroscopeAddr = *pyroscopeAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Warnf("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	code := run(ctx, cfg, runOptions{
		ConfigPath:     *configPath,
		ReloadInterval: *configReload,
		Paper:          *paper,
		Orders:         *orderCount,
		LatencyScale:   *latencyScale,
		CampaignSize:   *campaignSize,
		CampaignVol:    *campaignVol,
		ReportTimeout:  *wait,
		DrawdownPeriod: time.Second,
	})
	cancel()
	os.Exit(code)
}

// watchConfig reloads path into holder whenever its modification time moves
// forward and hands every accepted config to apply.
func watchConfig(ctx context.Context, path string, interval time.Duration, holder *ops.Holder, apply func(context.Context, ops.Config)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("config stat failed: %v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			cfg, err := holder.Reload(path)
			if err != nil {
				continue
			}
			apply(ctx, cfg)
		}
	}
}
