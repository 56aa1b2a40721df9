package risk

import (
	"sync"
	"time"

	"hftcore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	// DefaultCapitalFraction is the share of capital one order may use at
	// volatility factor 1.
	DefaultCapitalFraction = 0.05
	// DefaultMaxDrawdown is the drawdown, as a share of capital, past which
	// the strategy is disabled.
	DefaultMaxDrawdown = 0.03
)

// Reason explains a risk decision.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxQty
	ReasonCapital
	ReasonDrawdown
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill_switch"
	case ReasonRateLimit:
		return "rate_limit"
	case ReasonMaxQty:
		return "max_qty"
	case ReasonCapital:
		return "capital"
	case ReasonDrawdown:
		return "drawdown"
	default:
		return "unknown"
	}
}

// Config defines the risk limits.
type Config struct {
	Capital         float64       `json:"capital" mapstructure:"capital"`
	CapitalFraction float64       `json:"capitalFraction" mapstructure:"capital_fraction"`
	MaxDrawdown     float64       `json:"maxDrawdown" mapstructure:"max_drawdown"`
	KillSwitch      bool          `json:"killSwitch" mapstructure:"kill_switch"`
	MaxOrderSize    float64       `json:"maxOrderSize" mapstructure:"max_order_size"`
	OrderRateLimit  int           `json:"orderRateLimit" mapstructure:"order_rate_limit"`
	OrderRateWindow time.Duration `json:"orderRateWindow" mapstructure:"order_rate_window"`
}

// Manager evaluates pre-trade risk and tracks drawdown. It is safe for
// concurrent use.
type Manager struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	rateWindowStart time.Time
	rateCount       int

	pnl      decimal.Decimal
	minPnL   decimal.Decimal
	drawdown decimal.Decimal
	active   bool
	last     Reason
}

// NewManager creates a manager with the given limits.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: withDefaults(cfg), now: time.Now, active: true}
}

func withDefaults(cfg Config) Config {
	if cfg.CapitalFraction <= 0 {
		cfg.CapitalFraction = DefaultCapitalFraction
	}
	if cfg.MaxDrawdown <= 0 {
		cfg.MaxDrawdown = DefaultMaxDrawdown
	}
	return cfg
}

// SetLimits replaces the limits. Pnl, drawdown and the rate window carry
// over, and a strategy disabled by drawdown stays disabled.
func (m *Manager) SetLimits(cfg Config) {
	cfg = withDefaults(cfg)
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	logs.Infof("risk: limits capital=%v fraction=%v max_drawdown=%v kill_switch=%v", cfg.Capital, cfg.CapitalFraction, cfg.MaxDrawdown, cfg.KillSwitch)
}

// Config returns the limits in use.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// SetKillSwitch blocks or unblocks every order.
func (m *Manager) SetKillSwitch(on bool) {
	m.mu.Lock()
	m.cfg.KillSwitch = on
	m.mu.Unlock()
	logs.Warnf("risk: kill switch %v", on)
}

// EvaluateOrderRisk reports whether an order of the given size may go out.
// The size must not exceed capital × fraction × volatilityFactor.
func (m *Manager) EvaluateOrderRisk(size, volatilityFactor float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = m.evaluate(size, volatilityFactor)
	if m.last != ReasonNone {
		logs.Warnf("risk: order size %v rejected: %s", size, m.last)
		return false
	}
	return true
}

// LastReason returns the reason of the latest evaluation.
func (m *Manager) LastReason() Reason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Manager) evaluate(size, vol float64) Reason {
	if m.cfg.KillSwitch {
		return ReasonKillSwitch
	}
	if !m.active {
		return ReasonDrawdown
	}

	if m.cfg.OrderRateLimit > 0 && m.cfg.OrderRateWindow > 0 {
		now := m.now()
		if m.rateWindowStart.IsZero() || now.Sub(m.rateWindowStart) >= m.cfg.OrderRateWindow {
			m.rateWindowStart = now
			m.rateCount = 0
		}
		m.rateCount++
		if m.rateCount > m.cfg.OrderRateLimit {
			return ReasonRateLimit
		}
	}

	if m.cfg.MaxOrderSize > 0 && size > m.cfg.MaxOrderSize {
		return ReasonMaxQty
	}
	if size > m.cfg.Capital*m.cfg.CapitalFraction*vol {
		return ReasonCapital
	}
	return ReasonNone
}

// UpdatePnL adds a realized pnl change and refreshes the drawdown.
func (m *Manager) UpdatePnL(change float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pnl = m.pnl.Add(decimal.NewFromFloat(change))
	if m.pnl.LessThan(m.minPnL) {
		m.minPnL = m.pnl
		m.drawdown = m.minPnL.Neg()
		logs.Infof("risk: drawdown now %s", m.drawdown)
	}
}

// PnL returns the accumulated pnl.
func (m *Manager) PnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pnl.InexactFloat64()
}

// Drawdown returns the deepest pnl loss seen.
func (m *Manager) Drawdown() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drawdown.InexactFloat64()
}

// IsStrategyAllowed reports whether the drawdown is within limits. Once the
// limit is breached the strategy stays disabled.
func (m *Manager) IsStrategyAllowed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := decimal.NewFromFloat(m.cfg.Capital * m.cfg.MaxDrawdown)
	if m.active && m.drawdown.GreaterThan(limit) {
		m.active = false
		logs.Errorf("risk: drawdown %s over limit %s, strategy disabled", m.drawdown, limit)
	}
	return m.active
}

// CheckStrategy returns ErrStrategyNotAllowed once the drawdown limit has
// disabled the strategy.
func (m *Manager) CheckStrategy() error {
	if m.IsStrategyAllowed() {
		return nil
	}
	return errors.Wrapf(exception.ErrStrategyNotAllowed, "drawdown %v", m.Drawdown())
}
