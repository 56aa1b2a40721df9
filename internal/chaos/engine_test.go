package chaos

import (
	"context"
	"fmt"
	"testing"
	"time"

	"hftcore/pkg/exception"
	"hftcore/pkg/messaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgs(n int) []messaging.Message {
	out := make([]messaging.Message, n)
	for i := range out {
		out[i] = messaging.Message{Topic: "ack.A", Payload: []byte(fmt.Sprint(i))}
	}
	return out
}

func TestValidate(t *testing.T) {
	_, err := NewEngine(Config{DropRate: 1.5})
	assert.ErrorIs(t, err, exception.ErrInvalidArgument)
	_, err = NewEngine(Config{DuplicateRate: -0.1})
	assert.ErrorIs(t, err, exception.ErrInvalidArgument)
	_, err = NewEngine(Config{MaxDelay: -time.Second})
	assert.ErrorIs(t, err, exception.ErrInvalidArgument)
}

func TestPassThrough(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1})
	require.NoError(t, err)
	for _, m := range msgs(10) {
		assert.Equal(t, []messaging.Message{m}, e.Process(m))
	}
	assert.Empty(t, e.Flush())

	var nilEngine *Engine
	m := msgs(1)[0]
	assert.Equal(t, []messaging.Message{m}, nilEngine.Process(m))
}

func TestDropAndDuplicate(t *testing.T) {
	drop, err := NewEngine(Config{Seed: 1, DropRate: 1})
	require.NoError(t, err)
	for _, m := range msgs(5) {
		assert.Empty(t, drop.Process(m))
	}

	dup, err := NewEngine(Config{Seed: 1, DuplicateRate: 1})
	require.NoError(t, err)
	m := msgs(1)[0]
	assert.Equal(t, []messaging.Message{m, m}, dup.Process(m))
}

func TestReorderKeepsEveryMessage(t *testing.T) {
	e, err := NewEngine(Config{Seed: 7, ReorderWindow: 4})
	require.NoError(t, err)

	in := msgs(20)
	var out []messaging.Message
	for _, m := range in[:3] {
		assert.Empty(t, e.Process(m))
	}
	for _, m := range in[3:] {
		got := e.Process(m)
		assert.Len(t, got, 1)
		out = append(out, got...)
	}
	out = append(out, e.Flush()...)
	assert.ElementsMatch(t, in, out)
}

func TestDelay(t *testing.T) {
	e, err := NewEngine(Config{Seed: 3, MaxDelay: time.Millisecond})
	require.NoError(t, err)
	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	for _, m := range msgs(50) {
		e.Process(m)
	}
	require.NotEmpty(t, slept)
	for _, d := range slept {
		assert.LessOrEqual(t, d, time.Millisecond)
	}
}

func TestBrokerInterceptor(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, DropRate: 1})
	require.NoError(t, err)

	broker := messaging.NewMemoryBroker(8)
	broker.SetInterceptor(e.Interceptor())
	sub, err := broker.Dial(t.Context(), messaging.Endpoint{Name: "s", Address: "mem://x", Role: messaging.RoleSubscriber})
	require.NoError(t, err)
	pub, err := broker.Dial(t.Context(), messaging.Endpoint{Name: "p", Address: "mem://x", Role: messaging.RolePublisher})
	require.NoError(t, err)
	require.NoError(t, pub.Send(t.Context(), msgs(1)[0]))

	assert.Equal(t, 1, broker.Subscribers("mem://x"))
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = sub.Receive(ctx)
	assert.Error(t, err)
}
