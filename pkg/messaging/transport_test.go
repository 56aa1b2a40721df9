package messaging

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"hftcore/pkg/exception"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, r *Registry, pubAddr, subAddr string) {
	t.Helper()

	ch, err := NewChannel(t.Context(), r, "venue", pubAddr, subAddr, "ack.")
	require.NoError(t, err)
	defer ch.Stop()
	require.True(t, r.Connected(ch.PublisherName()))
	require.True(t, r.Connected(ch.SubscriberName()))

	var got collector
	ch.SetHandler(got.handle)
	require.NoError(t, ch.Start(t.Context()))

	for i := range 20 {
		require.NoError(t, ch.Publish(t.Context(), "ack.venue", []byte(strconv.Itoa(i))))
	}
	require.NoError(t, ch.Publish(t.Context(), "other", []byte("skip")))

	require.Eventually(t, func() bool { return got.len() == 20 }, 2*time.Second, 5*time.Millisecond)
	for i, m := range got.snapshot() {
		assert.Equal(t, "ack.venue", m.Topic)
		assert.Equal(t, strconv.Itoa(i), string(m.Payload))
	}
}

func TestUDSHubRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "hub")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "hub.sock")

	hub, err := NewUDSHub(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, hub.Start())
	defer hub.Close()

	r := NewRegistry(fastOptions(), UDSDialer{})
	defer r.Stop()

	roundTrip(t, r, path, path)
	assert.Equal(t, path, hub.Path())
}

func TestUDSHubCloseDropsPeers(t *testing.T) {
	dir, err := os.MkdirTemp("", "hub")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "hub.sock")

	hub, err := NewUDSHub(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, hub.Start())

	r := NewRegistry(fastOptions(), UDSDialer{})
	defer r.Stop()
	require.NoError(t, r.CreatePublisher(t.Context(), "pub", path))
	require.True(t, r.Connected("pub"))
	require.True(t, r.StartHealthMonitoring(t.Context()))
	require.Eventually(t, func() bool { return hub.Peers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())

	require.Eventually(t, func() bool { return !r.Connected("pub") }, time.Second, 5*time.Millisecond)
	h, _ := r.Health("pub")
	assert.NotEmpty(t, h.LastError)
}

func TestWebSocketHubRoundTrip(t *testing.T) {
	hub := NewWebSocketHub(time.Second)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	addr := "ws" + strings.TrimPrefix(srv.URL, "http")
	r := NewRegistry(fastOptions(), WebSocketDialer{})
	defer r.Stop()

	roundTrip(t, r, addr, addr)
	require.True(t, r.StartHealthMonitoring(t.Context()))

	h, _ := r.Health("venue.sub")
	before := h.LastHeartbeat
	require.Eventually(t, func() bool {
		h, _ := r.Health("venue.sub")
		return h.LastHeartbeat.After(before)
	}, time.Second, 5*time.Millisecond)
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("HFT_REDIS_ADDR")
	if addr == "" {
		t.Skip("HFT_REDIS_ADDR not set")
	}
	r := NewRegistry(fastOptions(), RedisDialer{Options: redis.Options{DB: 0}})
	defer r.Stop()
	roundTrip(t, r, addr, addr)
}

type pipeFrame struct {
	kind  FrameKind
	topic string
}

// pipeLink is a frameLink whose peer is driven by the test.
type pipeLink struct {
	in     chan pipeFrame
	out    chan pipeFrame
	closed chan struct{}
	once   sync.Once
}

func newPipeLink() *pipeLink {
	return &pipeLink{in: make(chan pipeFrame, 8), out: make(chan pipeFrame, 8), closed: make(chan struct{})}
}

func (l *pipeLink) ReadFrame() (FrameKind, string, []byte, error) {
	select {
	case f := <-l.in:
		return f.kind, f.topic, nil, nil
	case <-l.closed:
		return 0, "", nil, exception.ErrConnectionClosed
	}
}

func (l *pipeLink) WriteFrame(_ time.Time, kind FrameKind, topic string, _ []byte) error {
	l.out <- pipeFrame{kind: kind, topic: topic}
	return nil
}

func (l *pipeLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func TestPingIgnoresLatePong(t *testing.T) {
	link := newPipeLink()
	c := newFrameConn(link, 0)
	defer c.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	assert.ErrorIs(t, c.Ping(ctx), context.DeadlineExceeded)
	cancel()
	first := <-link.out
	require.Equal(t, FramePing, first.kind)

	// the answer to the timed out ping arrives after the fact
	link.in <- pipeFrame{kind: FramePong, topic: first.topic}

	ctx, cancel = context.WithTimeout(t.Context(), 50*time.Millisecond)
	assert.ErrorIs(t, c.Ping(ctx), context.DeadlineExceeded, "silent peer must fail the heartbeat")
	cancel()
	second := <-link.out
	assert.NotEqual(t, first.topic, second.topic)

	done := make(chan error, 1)
	go func() { done <- c.Ping(t.Context()) }()
	third := <-link.out
	link.in <- pipeFrame{kind: FramePong, topic: third.topic}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ping not answered")
	}
}
