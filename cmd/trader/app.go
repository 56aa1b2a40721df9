package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"hftcore/internal/chaos"
	"hftcore/internal/execution"
	"hftcore/internal/obs"
	"hftcore/internal/og"
	"hftcore/internal/ops"
	"hftcore/internal/report"
	"hftcore/internal/risk"
	"hftcore/internal/router"
	"hftcore/internal/schema"
	"hftcore/pkg/conn"
	"hftcore/pkg/messaging"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"
)

// app holds everything one trader process wires together.
type app struct {
	cfg       ops.Config
	metrics   *obs.Metrics
	risk      *risk.Manager
	router    *router.Router
	engine    *execution.Engine
	collector *report.Collector
	registry  *messaging.Registry
	ids       *schema.IDGenerator

	closers []func()
}

func newApp(ctx context.Context, cfg ops.Config, opt runOptions) (*app, error) {
	a := &app{
		cfg:       cfg,
		metrics:   obs.NewMetrics(),
		risk:      risk.NewManager(cfg.Risk),
		collector: report.NewCollector(),
		ids:       schema.NewIDGenerator(0),
	}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	if cfg.Postgres.Enabled() {
		if err := a.loadVenues(ctx); err != nil {
			return nil, err
		}
	}

	a.router = router.New(cfg.RouterConfig(), router.WithObserver(a.metrics))
	sinks := report.Multi{a.collector, report.LogReporter{}}
	if opt.Paper && cfg.Chaos != (chaos.Config{}) {
		logs.Warnf("chaos config ignored in paper mode, no messages are exchanged")
	}

	if !opt.Paper {
		broker := messaging.NewMemoryBroker(0)
		if cfg.Chaos != (chaos.Config{}) {
			engine, err := chaos.NewEngine(cfg.Chaos)
			if err != nil {
				return nil, err
			}
			broker.SetInterceptor(engine.Interceptor())
		}
		a.registry = messaging.NewRegistry(cfg.MessagingOptions(), a.cfg.Dialer(broker))
		a.registry.StartHealthMonitoring(ctx)
		a.closers = append(a.closers, a.registry.Stop)

		pub, _ := a.cfg.VenueAddrs(ops.VenueConfig{Name: "report"})
		rch, err := messaging.NewChannel(ctx, a.registry, "report", pub, "")
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, report.NewChannelReporter(rch, cfg.Report.Topic))
	}
	if len(cfg.Report.KafkaBrokers) > 0 && cfg.Report.KafkaTopic != "" {
		kr := report.NewKafkaReporter(cfg.Report.KafkaBrokers, cfg.Report.KafkaTopic)
		a.closers = append(a.closers, func() {
			if err := kr.Close(); err != nil {
				logs.Warnf("kafka reporter close: %v", err)
			}
		})
		sinks = append(sinks, kr)
	}

	for _, v := range a.cfg.Venues {
		link, err := a.venueLink(ctx, v, opt)
		if err != nil {
			return nil, err
		}
		if err := a.router.AddVenue(v.RouterVenue(), link); err != nil {
			return nil, err
		}
	}

	engine, err := execution.NewEngine(cfg.EngineConfig(), a.router, sinks,
		execution.WithRisk(a.risk), execution.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	a.engine = engine
	a.engine.Start(ctx)
	a.closers = append(a.closers, a.engine.Stop)

	if err := a.serveMetrics(); err != nil {
		return nil, err
	}
	if err := a.startProfiler(); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func (a *app) loadVenues(ctx context.Context) error {
	venues, err := storedVenues(ctx, a.cfg.Postgres)
	if err != nil {
		return err
	}
	if len(venues) == 0 {
		logs.Warnf("no venues in postgres, keeping %d configured", len(a.cfg.Venues))
		return nil
	}
	logs.Infof("loaded %d venues from %s", len(venues), a.cfg.Postgres.Redacted())
	a.cfg.Venues = venues
	return a.cfg.Validate()
}

func storedVenues(ctx context.Context, opt conn.Option) ([]ops.VenueConfig, error) {
	client, err := conn.New(ctx, opt)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return ops.NewVenueStore(client.DB()).List(ctx)
}

// applyConfig pushes a reloaded config into the running process: risk
// limits, router mode and venue availability. A venue stays routable while
// it is listed, in postgres when configured, otherwise in the file.
// Transport, sinks and venues unknown at startup need a restart.
func (a *app) applyConfig(ctx context.Context, cfg ops.Config) {
	a.risk.SetLimits(cfg.Risk)
	a.router.SetMode(cfg.RouterConfig().Mode)

	venues := cfg.Venues
	if cfg.Postgres.Enabled() {
		stored, err := storedVenues(ctx, cfg.Postgres)
		if err != nil {
			logs.Warnf("reload: venue availability unchanged: %v", err)
			return
		}
		if len(stored) > 0 {
			venues = stored
		}
	}

	listed := make(map[string]bool, len(venues))
	for _, v := range venues {
		listed[v.Name] = true
	}
	for _, info := range a.router.Venues() {
		want := listed[info.Name]
		delete(listed, info.Name)
		if info.Available == want {
			continue
		}
		if err := a.router.SetAvailable(info.Name, want); err != nil {
			logs.Warnf("reload: venue %s: %v", info.Name, err)
			continue
		}
		logs.Infof("reload: venue %s available=%v", info.Name, want)
	}
	for name := range listed {
		logs.Warnf("reload: venue %s is new, restart to route to it", name)
	}
}

// venueLink returns a simulated venue in paper mode, otherwise a gateway
// over the transport. The memory transport also gets an in-process responder
// so the full message path runs without external processes.
func (a *app) venueLink(ctx context.Context, v ops.VenueConfig, opt runOptions) (og.VenueLink, error) {
	sim := og.NewSimVenue(og.SimConfig{
		Name:       v.Name,
		Latency:    time.Duration(float64(v.Latency) * opt.LatencyScale),
		RejectRate: v.RejectRate,
	})
	if opt.Paper {
		return sim, nil
	}

	pub, sub := a.cfg.VenueAddrs(v)
	gw, err := og.DialGateway(ctx, a.registry, v.Name, pub, sub)
	if err != nil {
		return nil, err
	}
	if err := gw.Start(ctx); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, gw.Stop)

	if a.cfg.Transport.Kind == ops.TransportMemory {
		resp, err := og.DialResponder(ctx, a.registry, sim, sub, pub)
		if err != nil {
			return nil, err
		}
		if err := resp.Start(ctx); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, resp.Stop)
	}
	return gw, nil
}

func (a *app) serveMetrics() error {
	if a.cfg.Metrics.Addr == "" {
		return nil
	}
	reg := prometheus.NewRegistry()
	var health obs.HealthSource
	if a.registry != nil {
		health = a.registry
	}
	if err := reg.Register(obs.NewCollector(a.metrics, health)); err != nil {
		return err
	}
	reg.MustRegister(collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("metrics server: %v", err)
		}
	}()
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	logs.Infof("metrics on %s/metrics", a.cfg.Metrics.Addr)
	return nil
}

func (a *app) startProfiler() error {
	if a.cfg.Metrics.PyroscopeAddr == "" {
		return nil
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: a.cfg.Metrics.AppName,
		ServerAddress:   a.cfg.Metrics.PyroscopeAddr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = profiler.Stop() })
	return nil
}

// close runs closers in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
