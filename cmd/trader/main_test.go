package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hftcore/internal/ops"
	"hftcore/internal/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) ops.Config {
	t.Helper()
	cfg, err := ops.Load("")
	require.NoError(t, err)
	return cfg
}

func fastRun(orders int) runOptions {
	return runOptions{
		Paper:         true,
		Orders:        orders,
		LatencyScale:  0.01,
		CampaignSize:  2e6,
		CampaignVol:   1.2,
		ReportTimeout: 5 * time.Second,
	}
}

func TestRunPaper(t *testing.T) {
	assert.Equal(t, exitOK, run(t.Context(), testConfig(t), fastRun(20)))
}

func TestRunMemoryTransport(t *testing.T) {
	opt := fastRun(10)
	opt.Paper = false
	assert.Equal(t, exitOK, run(t.Context(), testConfig(t), opt))
}

func TestRunRiskRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.Risk.KillSwitch = true
	assert.Equal(t, exitRisk, run(t.Context(), cfg, fastRun(5)))
}

func TestRunRoutingFailure(t *testing.T) {
	cfg := testConfig(t)
	for i := range cfg.Venues {
		cfg.Venues[i].RejectRate = 1
	}
	assert.Equal(t, exitRouting, run(t.Context(), cfg, fastRun(5)))
}

func TestRunMultiLegIncomplete(t *testing.T) {
	cfg := testConfig(t)
	for i := range cfg.Venues {
		cfg.Venues[i].RejectRate = 1
	}
	assert.Equal(t, exitMultiLeg, run(t.Context(), cfg, fastRun(0)))
}

func TestRunBadVenue(t *testing.T) {
	cfg := testConfig(t)
	cfg.Venues = []ops.VenueConfig{{Name: "A"}}
	assert.Equal(t, exitConfig, run(t.Context(), cfg, fastRun(1)))
}

func availability(a *app) map[string]bool {
	out := map[string]bool{}
	for _, v := range a.router.Venues() {
		out[v.Name] = v.Available
	}
	return out
}

func TestApplyConfig(t *testing.T) {
	a, err := newApp(t.Context(), testConfig(t), fastRun(0))
	require.NoError(t, err)
	defer a.close()
	require.True(t, a.risk.EvaluateOrderRisk(1, 1))

	next := testConfig(t)
	next.Venues = []ops.VenueConfig{next.Venues[0], next.Venues[1], {Name: "D", Latency: time.Millisecond, Reliability: 1}}
	next.Router.Mode = "best_venue"
	next.Risk.KillSwitch = true
	a.applyConfig(t.Context(), next)

	assert.Equal(t, router.ModeBestVenue, a.router.Mode())
	assert.Equal(t, map[string]bool{"A": true, "B": true, "C": false}, availability(a))
	assert.False(t, a.risk.EvaluateOrderRisk(1, 1))

	a.applyConfig(t.Context(), testConfig(t))
	assert.Equal(t, router.ModeBroadcast, a.router.Mode())
	assert.Equal(t, map[string]bool{"A": true, "B": true, "C": true}, availability(a))
	assert.True(t, a.risk.EvaluateOrderRisk(1, 1))
}

func TestWatchConfigAppliesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("router:\n  mode: broadcast\n"), 0o600))
	cfg, err := ops.Load(path)
	require.NoError(t, err)
	holder := ops.NewHolder(cfg)

	applied := make(chan ops.Config, 16)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go watchConfig(ctx, path, 5*time.Millisecond, holder, func(_ context.Context, c ops.Config) {
		applied <- c
	})

	require.NoError(t, os.WriteFile(path, []byte("router:\n  mode: best_venue\n"), 0o600))
	mtime := time.Now()
	var got ops.Config
	require.Eventually(t, func() bool {
		mtime = mtime.Add(time.Second)
		_ = os.Chtimes(path, mtime, mtime)
		select {
		case got = <-applied:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, router.ModeBestVenue, got.RouterConfig().Mode)
	assert.Equal(t, "best_venue", holder.Load().Router.Mode)
}
