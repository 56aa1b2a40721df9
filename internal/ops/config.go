package ops

import (
	"strings"
	"time"

	"hftcore/internal/chaos"
	"hftcore/internal/execution"
	"hftcore/internal/risk"
	"hftcore/internal/router"
	"hftcore/pkg/conn"
	"hftcore/pkg/exception"
	"hftcore/pkg/messaging"

	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
)

// EnvPrefix prefixes every environment override, e.g. HFT_ROUTER_MODE.
const EnvPrefix = "HFT"

// Transport kinds.
const (
	TransportMemory    = "memory"
	TransportUDS       = "uds"
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// Config is the full runtime configuration.
type Config struct {
	Venues     []VenueConfig    `mapstructure:"venues"`
	Risk       risk.Config      `mapstructure:"risk"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Router     RouterConfig     `mapstructure:"router"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Report     ReportConfig     `mapstructure:"report"`
	Postgres   conn.Option      `mapstructure:"postgres"`
	Chaos      chaos.Config     `mapstructure:"chaos"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// VenueConfig describes one venue. PubAddr and SubAddr are only used by
// network transports.
type VenueConfig struct {
	Name        string        `mapstructure:"name"`
	Latency     time.Duration `mapstructure:"latency"`
	Reliability float64       `mapstructure:"reliability"`
	RejectRate  float64       `mapstructure:"reject_rate"`
	PubAddr     string        `mapstructure:"pub_addr"`
	SubAddr     string        `mapstructure:"sub_addr"`
}

// EngineConfig mirrors execution.Config.
type EngineConfig struct {
	QueueCapacity        int           `mapstructure:"queue_capacity"`
	Volatility           float64       `mapstructure:"volatility"`
	LatencyWarnThreshold time.Duration `mapstructure:"latency_warn_threshold"`
}

// RouterConfig mirrors router.Config with a textual mode.
type RouterConfig struct {
	VenueTimeout     time.Duration `mapstructure:"venue_timeout"`
	Mode             string        `mapstructure:"mode"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	CoolDown         time.Duration `mapstructure:"cool_down"`
}

// ConnectionConfig holds the registry intervals in milliseconds.
type ConnectionConfig struct {
	ReconnectIntervalMs  int `mapstructure:"reconnect_interval_ms"`
	HeartbeatIntervalMs  int `mapstructure:"heartbeat_interval_ms"`
	MonitoringIntervalMs int `mapstructure:"monitoring_interval_ms"`
	SendTimeoutMs        int `mapstructure:"send_timeout_ms"`
}

// TransportConfig selects how venue links reach venues. Addr is the hub
// socket path, websocket URL or redis host:port shared by venues that set no
// address of their own.
type TransportConfig struct {
	Kind string `mapstructure:"kind"`
	Addr string `mapstructure:"addr"`
}

// ReportConfig selects report sinks besides the log.
type ReportConfig struct {
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	Topic        string   `mapstructure:"topic"`
}

// MetricsConfig configures the metrics endpoint and profiler.
type MetricsConfig struct {
	Addr          string `mapstructure:"addr"`
	PyroscopeAddr string `mapstructure:"pyroscope_addr"`
	AppName       string `mapstructure:"app_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("risk.capital", 100_000_000)
	v.SetDefault("risk.capital_fraction", risk.DefaultCapitalFraction)
	v.SetDefault("risk.max_drawdown", risk.DefaultMaxDrawdown)

	v.SetDefault("engine.queue_capacity", 0)
	v.SetDefault("engine.volatility", 1.0)
	v.SetDefault("engine.latency_warn_threshold", execution.DefaultLatencyWarnThreshold)

	def := router.DefaultConfig()
	v.SetDefault("router.venue_timeout", def.VenueTimeout)
	v.SetDefault("router.mode", def.Mode.String())
	v.SetDefault("router.failure_threshold", def.Breaker.FailureThreshold)
	v.SetDefault("router.cool_down", def.Breaker.CoolDown)

	v.SetDefault("connection.reconnect_interval_ms", int(messaging.DefaultReconnectInterval/time.Millisecond))
	v.SetDefault("connection.heartbeat_interval_ms", int(messaging.DefaultHeartbeatInterval/time.Millisecond))
	v.SetDefault("connection.monitoring_interval_ms", int(messaging.DefaultMonitoringInterval/time.Millisecond))
	v.SetDefault("connection.send_timeout_ms", int(messaging.DefaultSendTimeout/time.Millisecond))

	v.SetDefault("transport.kind", TransportMemory)
	v.SetDefault("report.topic", "report.exec")
	v.SetDefault("metrics.app_name", "hft.trader")
}

// DefaultVenues are the paper venues used when none are configured.
func DefaultVenues() []VenueConfig {
	return []VenueConfig{
		{Name: "A", Latency: 50 * time.Millisecond, Reliability: 0.99},
		{Name: "B", Latency: 30 * time.Millisecond, Reliability: 0.97},
		{Name: "C", Latency: 70 * time.Millisecond, Reliability: 0.995},
	}
}

// Load reads the config file at path, if any, then applies HFT_ environment
// overrides and defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if len(cfg.Venues) == 0 {
		cfg.Venues = DefaultVenues()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot default.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Venues))
	for _, v := range c.Venues {
		if v.Name == "" {
			return errors.Wrap(exception.ErrInvalidVenue, "venue without name")
		}
		if _, ok := seen[v.Name]; ok {
			return errors.Wrap(exception.ErrDuplicateVenue, v.Name)
		}
		seen[v.Name] = struct{}{}
		if v.Latency <= 0 || v.Reliability <= 0 || v.Reliability > 1 {
			return errors.Wrapf(exception.ErrInvalidVenue, "%s latency=%s reliability=%v", v.Name, v.Latency, v.Reliability)
		}
		if v.RejectRate < 0 || v.RejectRate > 1 {
			return errors.Wrapf(exception.ErrInvalidVenue, "%s reject rate %v", v.Name, v.RejectRate)
		}
	}
	if _, ok := router.ParseMode(c.Router.Mode); !ok {
		return errors.Wrapf(exception.ErrInvalidArgument, "router mode %q", c.Router.Mode)
	}
	switch c.Transport.Kind {
	case TransportMemory:
	case TransportUDS, TransportWebSocket, TransportRedis:
		for _, v := range c.Venues {
			pub, sub := c.VenueAddrs(v)
			if pub == "" || sub == "" {
				return errors.Wrapf(exception.ErrInvalidArgument, "%s transport without address for venue %s", c.Transport.Kind, v.Name)
			}
		}
	default:
		return errors.Wrapf(exception.ErrInvalidArgument, "transport %q", c.Transport.Kind)
	}
	// faults are injected inside the in-process broker only
	if c.Chaos != (chaos.Config{}) && c.Transport.Kind != TransportMemory {
		return errors.Wrapf(exception.ErrInvalidArgument, "chaos needs the %s transport, got %s", TransportMemory, c.Transport.Kind)
	}
	if c.Risk.Capital <= 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "risk capital must be > 0")
	}
	return nil
}

// RouterConfig converts the router section.
func (c Config) RouterConfig() router.Config {
	mode, _ := router.ParseMode(c.Router.Mode)
	return router.Config{
		VenueTimeout: c.Router.VenueTimeout,
		Mode:         mode,
		Breaker: router.BreakerConfig{
			FailureThreshold: c.Router.FailureThreshold,
			CoolDown:         c.Router.CoolDown,
		},
	}
}

// EngineConfig converts the engine section.
func (c Config) EngineConfig() execution.Config {
	return execution.Config{
		QueueCapacity: c.Engine.QueueCapacity,
		Volatility:    c.Engine.Volatility,
	}
}

// MultiLegConfig converts the engine section for multi-leg trades.
func (c Config) MultiLegConfig() execution.MultiLegConfig {
	return execution.MultiLegConfig{LatencyWarnThreshold: c.Engine.LatencyWarnThreshold}
}

// MessagingOptions converts the connection section.
func (c Config) MessagingOptions() messaging.Options {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return messaging.Options{
		ReconnectInterval:  ms(c.Connection.ReconnectIntervalMs),
		HeartbeatInterval:  ms(c.Connection.HeartbeatIntervalMs),
		MonitoringInterval: ms(c.Connection.MonitoringIntervalMs),
		SendTimeout:        ms(c.Connection.SendTimeoutMs),
	}
}

// VenueAddrs returns where orders for v are published and where its acks
// arrive, falling back to the transport address.
func (c Config) VenueAddrs(v VenueConfig) (pub, sub string) {
	pub, sub = v.PubAddr, v.SubAddr
	if pub == "" {
		pub = c.Transport.Addr
	}
	if sub == "" {
		sub = c.Transport.Addr
	}
	if c.Transport.Kind == TransportMemory {
		if pub == "" {
			pub = "mem://" + v.Name
		}
		if sub == "" {
			sub = pub
		}
	}
	return pub, sub
}

// Dialer returns the messaging dialer for the transport. broker serves the
// memory transport.
func (c Config) Dialer(broker *messaging.MemoryBroker) messaging.Dialer {
	switch c.Transport.Kind {
	case TransportUDS:
		return messaging.UDSDialer{}
	case TransportWebSocket:
		return messaging.WebSocketDialer{}
	case TransportRedis:
		return messaging.RedisDialer{}
	default:
		return broker
	}
}

// RouterVenue converts a venue entry.
func (v VenueConfig) RouterVenue() router.Venue {
	return router.Venue{Name: v.Name, Latency: v.Latency, Reliability: v.Reliability}
}
