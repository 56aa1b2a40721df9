package messaging

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"hftcore/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) snapshot() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func TestChannelDeliversInOrder(t *testing.T) {
	broker := NewMemoryBroker(0)
	r := NewRegistry(fastOptions(), broker)
	defer r.Stop()

	ch, err := NewChannel(t.Context(), r, "md", "bus", "bus", "orders.")
	require.NoError(t, err)
	defer ch.Stop()

	var got collector
	ch.SetHandler(got.handle)
	require.NoError(t, ch.Start(t.Context()))

	for i := range 100 {
		require.NoError(t, ch.Publish(t.Context(), "orders.new", []byte(strconv.Itoa(i))))
	}
	require.NoError(t, ch.Publish(t.Context(), "fills.x", []byte("ignored")))

	require.Eventually(t, func() bool { return got.len() == 100 }, time.Second, 5*time.Millisecond)
	for i, m := range got.snapshot() {
		assert.Equal(t, "orders.new", m.Topic)
		assert.Equal(t, strconv.Itoa(i), string(m.Payload))
	}

	pub, _ := r.Health(ch.PublisherName())
	sub, _ := r.Health(ch.SubscriberName())
	assert.Equal(t, uint64(101), pub.MessagesSent)
	assert.Equal(t, uint64(100), sub.MessagesReceived)
}

func TestChannelSurvivesHandlerFailures(t *testing.T) {
	broker := NewMemoryBroker(0)
	r := NewRegistry(fastOptions(), broker)
	defer r.Stop()

	ch, err := NewChannel(t.Context(), r, "c", "bus", "bus")
	require.NoError(t, err)
	defer ch.Stop()

	var got collector
	ch.SetHandler(func(topic string, payload []byte) error {
		switch string(payload) {
		case "panic":
			panic("boom")
		case "error":
			return errors.New("handler failed")
		}
		return got.handle(topic, payload)
	})
	require.NoError(t, ch.Start(t.Context()))

	for _, p := range []string{"a", "panic", "b", "error", "c"} {
		require.NoError(t, ch.Publish(t.Context(), "t", []byte(p)))
	}

	require.Eventually(t, func() bool { return got.len() == 3 }, time.Second, 5*time.Millisecond)
	msgs := got.snapshot()
	assert.Equal(t, "a", string(msgs[0].Payload))
	assert.Equal(t, "b", string(msgs[1].Payload))
	assert.Equal(t, "c", string(msgs[2].Payload))
}

func TestChannelStartStop(t *testing.T) {
	r := NewRegistry(fastOptions(), NewMemoryBroker(0))
	defer r.Stop()

	ch, err := NewChannel(t.Context(), r, "c", "", "bus")
	require.NoError(t, err)

	assert.ErrorIs(t, ch.Start(t.Context()), exception.ErrNilHandler)

	ch.SetHandler(func(string, []byte) error { return nil })
	require.NoError(t, ch.Start(t.Context()))
	assert.ErrorIs(t, ch.Start(t.Context()), exception.ErrChannelStarted)

	assert.ErrorIs(t, ch.Publish(t.Context(), "t", nil), exception.ErrRoleMismatch)

	done := make(chan struct{})
	go func() {
		ch.Stop()
		ch.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not join the receive loop")
	}

	_, err = NewChannel(t.Context(), r, "bad", "", "")
	assert.ErrorIs(t, err, exception.ErrEmptyEndpointAddress)
}

func TestChannelResumesAfterReconnect(t *testing.T) {
	broker := NewMemoryBroker(0)
	r := NewRegistry(fastOptions(), broker)
	defer r.Stop()
	require.True(t, r.StartHealthMonitoring(t.Context()))

	ch, err := NewChannel(t.Context(), r, "c", "bus", "bus")
	require.NoError(t, err)
	defer ch.Stop()

	var got collector
	ch.SetHandler(got.handle)
	require.NoError(t, ch.Start(t.Context()))

	require.NoError(t, ch.Publish(t.Context(), "t", []byte("before")))
	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)

	broker.SetDown("bus", true)
	require.Eventually(t, func() bool {
		return !r.Connected(ch.SubscriberName())
	}, time.Second, 5*time.Millisecond)

	err = ch.Publish(t.Context(), "t", []byte("lost"))
	assert.Error(t, err)

	broker.SetDown("bus", false)
	require.Eventually(t, func() bool {
		return r.Connected(ch.SubscriberName()) && r.Connected(ch.PublisherName())
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, ch.Publish(t.Context(), "t", []byte("after")))
	require.Eventually(t, func() bool { return got.len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "after", string(got.snapshot()[1].Payload))

	h, _ := r.Health(ch.SubscriberName())
	assert.GreaterOrEqual(t, h.ReconnectCount, uint64(1))
}

func TestMemoryBrokerInterceptor(t *testing.T) {
	broker := NewMemoryBroker(0)
	broker.SetInterceptor(func(m Message) []Message {
		if string(m.Payload) == "drop" {
			return nil
		}
		return []Message{m, m}
	})
	r := NewRegistry(fastOptions(), broker)
	defer r.Stop()

	ch, err := NewChannel(t.Context(), r, "c", "bus", "bus")
	require.NoError(t, err)
	defer ch.Stop()
	var got collector
	ch.SetHandler(got.handle)
	require.NoError(t, ch.Start(t.Context()))

	for _, p := range []string{"x", "drop", "y"} {
		require.NoError(t, ch.Publish(t.Context(), "t", []byte(p)))
	}
	require.Eventually(t, func() bool { return got.len() == 4 }, time.Second, 5*time.Millisecond)
	var payloads []string
	for _, m := range got.snapshot() {
		payloads = append(payloads, string(m.Payload))
	}
	assert.Equal(t, []string{"x", "x", "y", "y"}, payloads)
	assert.Equal(t, 1, broker.Subscribers("bus"))
}

func TestMatchTopic(t *testing.T) {
	assert.True(t, MatchTopic(nil, "anything"))
	assert.True(t, MatchTopic([]string{"orders."}, "orders.new"))
	assert.False(t, MatchTopic([]string{"orders."}, "fills.new"))
	assert.True(t, MatchTopic([]string{"a", ""}, "zzz"))
	assert.Equal(t, "publisher", fmt.Sprint(RolePublisher))
}
