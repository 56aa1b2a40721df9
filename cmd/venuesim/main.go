package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"hftcore/internal/og"
	"hftcore/internal/ops"
	"hftcore/pkg/messaging"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config (HFT_* env vars override)")
	listen := flag.String("listen", "", "HTTP listen address for the websocket hub, e.g. :8090")
	seed := flag.Int64("seed", 0, "Seed for simulated rejects (0=time based)")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, err := serve(ctx, cfg, *listen, *seed)
	if err != nil {
		logs.Errorf("venuesim: %v", err)
		os.Exit(1)
	}
	logs.Infof("venuesim serving %d venues over %s", len(cfg.Venues), cfg.Transport.Kind)

	<-sys.Shutdown()
	logs.Warnf("shutdown signal received")
	cancel()
	stop()
}

// serve starts the hub for the transport, if it needs one, and a responder
// per configured venue. The returned func tears everything down.
func serve(ctx context.Context, cfg ops.Config, listen string, seed int64) (func(), error) {
	var closers []func()
	stop := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := cfg.MessagingOptions()
	switch cfg.Transport.Kind {
	case ops.TransportUDS:
		hub, err := messaging.NewUDSHub(cfg.Transport.Addr, opts.SendTimeout)
		if err != nil {
			return nil, err
		}
		if err := hub.Start(); err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = hub.Close() })
	case ops.TransportWebSocket:
		if listen == "" {
			return nil, errors.New("websocket transport needs -listen")
		}
		hub := messaging.NewWebSocketHub(opts.SendTimeout)
		srv := &http.Server{Addr: listen, Handler: hub, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logs.Errorf("websocket hub: %v", err)
			}
		}()
		closers = append(closers, func() {
			_ = hub.Close()
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		})
	}

	broker := messaging.NewMemoryBroker(0)
	registry := messaging.NewRegistry(opts, cfg.Dialer(broker))
	registry.StartHealthMonitoring(ctx)
	closers = append(closers, registry.Stop)

	for i, v := range cfg.Venues {
		venueSeed := seed
		if seed != 0 {
			venueSeed += int64(i)
		}
		sim := og.NewSimVenue(og.SimConfig{
			Name:       v.Name,
			Latency:    v.Latency,
			RejectRate: v.RejectRate,
			Seed:       venueSeed,
		})
		pub, sub := cfg.VenueAddrs(v)
		// The responder reads what the gateway publishes and answers on
		// the gateway's ack address.
		resp, err := og.DialResponder(ctx, registry, sim, sub, pub)
		if err != nil {
			stop()
			return nil, err
		}
		if err := resp.Start(ctx); err != nil {
			stop()
			return nil, err
		}
		closers = append(closers, resp.Stop)
	}
	return stop, nil
}
