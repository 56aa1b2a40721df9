package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"hftcore/internal/og"
	"hftcore/internal/ops"
	"hftcore/internal/schema"
	"hftcore/pkg/messaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeOverUDS(t *testing.T) {
	cfg, err := ops.Load("")
	require.NoError(t, err)
	cfg.Transport = ops.TransportConfig{Kind: ops.TransportUDS, Addr: filepath.Join(t.TempDir(), "hub.sock")}
	cfg.Venues = []ops.VenueConfig{{Name: "A", Latency: time.Millisecond, Reliability: 1}}
	require.NoError(t, cfg.Validate())

	stop, err := serve(t.Context(), cfg, "", 1)
	require.NoError(t, err)
	defer stop()

	registry := messaging.NewRegistry(cfg.MessagingOptions(), cfg.Dialer(nil))
	defer registry.Stop()
	pub, sub := cfg.VenueAddrs(cfg.Venues[0])
	gw, err := og.DialGateway(t.Context(), registry, "A", pub, sub)
	require.NoError(t, err)
	require.NoError(t, gw.Start(t.Context()))
	defer gw.Stop()

	order, err := schema.NewOrder(1, "EUR/USD", schema.SideBuy, schema.OrderTypeLimit, 1.1234, 10)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	ack, err := gw.SendOrder(ctx, order)
	require.NoError(t, err)
	assert.True(t, ack.Accepted)
	assert.Equal(t, "A", ack.Venue)
}

func TestServeWebSocketNeedsListen(t *testing.T) {
	cfg, err := ops.Load("")
	require.NoError(t, err)
	cfg.Transport = ops.TransportConfig{Kind: ops.TransportWebSocket, Addr: "ws://localhost:1/hub"}
	_, err = serve(t.Context(), cfg, "", 0)
	assert.Error(t, err)
}
