package risk

import (
	"testing"
	"time"

	"hftcore/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapitalLimit(t *testing.T) {
	m := NewManager(Config{Capital: 1_000_000})

	assert.True(t, m.EvaluateOrderRisk(50_000, 1))
	assert.False(t, m.EvaluateOrderRisk(50_001, 1))
	assert.Equal(t, ReasonCapital, m.LastReason())
	assert.True(t, m.EvaluateOrderRisk(100_000, 2))
	assert.False(t, m.EvaluateOrderRisk(30_000, 0.5))
}

func TestKillSwitchAndMaxSize(t *testing.T) {
	m := NewManager(Config{Capital: 1_000_000, MaxOrderSize: 100})

	assert.False(t, m.EvaluateOrderRisk(101, 1))
	assert.Equal(t, ReasonMaxQty, m.LastReason())

	m.SetKillSwitch(true)
	assert.False(t, m.EvaluateOrderRisk(1, 1))
	assert.Equal(t, ReasonKillSwitch, m.LastReason())

	m.SetKillSwitch(false)
	assert.True(t, m.EvaluateOrderRisk(1, 1))
	assert.Equal(t, ReasonNone, m.LastReason())
}

func TestRateWindow(t *testing.T) {
	m := NewManager(Config{Capital: 1_000_000, OrderRateLimit: 2, OrderRateWindow: time.Second})
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	assert.True(t, m.EvaluateOrderRisk(1, 1))
	assert.True(t, m.EvaluateOrderRisk(1, 1))
	assert.False(t, m.EvaluateOrderRisk(1, 1))
	assert.Equal(t, ReasonRateLimit, m.LastReason())

	now = now.Add(time.Second)
	assert.True(t, m.EvaluateOrderRisk(1, 1))
}

func TestDrawdown(t *testing.T) {
	m := NewManager(Config{Capital: 100_000})
	require.True(t, m.IsStrategyAllowed())

	m.UpdatePnL(-1_000)
	m.UpdatePnL(500)
	assert.InDelta(t, -500, m.PnL(), 1e-9)
	assert.InDelta(t, 1_000, m.Drawdown(), 1e-9)
	assert.True(t, m.IsStrategyAllowed())

	require.NoError(t, m.CheckStrategy())

	m.UpdatePnL(-2_600)
	assert.InDelta(t, 3_100, m.Drawdown(), 1e-9)
	assert.False(t, m.IsStrategyAllowed())
	assert.ErrorIs(t, m.CheckStrategy(), exception.ErrStrategyNotAllowed)

	m.UpdatePnL(10_000)
	assert.False(t, m.IsStrategyAllowed(), "disabled strategy stays disabled")
	assert.False(t, m.EvaluateOrderRisk(1, 1))
	assert.Equal(t, ReasonDrawdown, m.LastReason())
}

func TestDefaults(t *testing.T) {
	cfg := NewManager(Config{}).Config()
	assert.Equal(t, DefaultCapitalFraction, cfg.CapitalFraction)
	assert.Equal(t, DefaultMaxDrawdown, cfg.MaxDrawdown)
	assert.Equal(t, "rate_limit", ReasonRateLimit.String())
}

func TestSetLimits(t *testing.T) {
	m := NewManager(Config{Capital: 1_000_000})
	m.UpdatePnL(-100)
	require.False(t, m.EvaluateOrderRisk(60_000, 1))

	m.SetLimits(Config{Capital: 2_000_000})
	assert.True(t, m.EvaluateOrderRisk(60_000, 1))
	assert.Equal(t, DefaultCapitalFraction, m.Config().CapitalFraction)
	assert.InDelta(t, -100, m.PnL(), 1e-9, "pnl carries over")

	m.SetLimits(Config{Capital: 2_000_000, KillSwitch: true})
	assert.False(t, m.EvaluateOrderRisk(1, 1))
	assert.Equal(t, ReasonKillSwitch, m.LastReason())
}
