package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"hftcore/internal/schema"
	"hftcore/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder(id uint64) schema.Order {
	return schema.Order{ID: id, Symbol: "EUR/USD", Side: schema.SideBuy, Type: schema.OrderTypeLimit, Price: 1.1, Quantity: 1}
}

func TestOrderQueueFIFO(t *testing.T) {
	q := NewOrderQueue(8)
	for _, id := range []uint64{1, 2, 3} {
		require.NoError(t, q.Push(testOrder(id)))
	}
	require.Equal(t, 3, q.Len())

	for _, want := range []uint64{1, 2, 3} {
		o, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, o.ID)
	}

	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestOrderQueueFull(t *testing.T) {
	q := NewOrderQueue(2)
	require.NoError(t, q.Push(testOrder(1)))
	require.NoError(t, q.Push(testOrder(2)))
	assert.ErrorIs(t, q.Push(testOrder(3)), exception.ErrQueueFull)

	_, ok := q.TryPop()
	require.True(t, ok)
	assert.NoError(t, q.Push(testOrder(3)))
}

func TestOrderQueueUnbounded(t *testing.T) {
	q := NewOrderQueue(Unbounded)
	for i := 1; i <= 5000; i++ {
		require.NoError(t, q.Push(testOrder(uint64(i))))
	}
	for i := 1; i <= 5000; i++ {
		o, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, uint64(i), o.ID)
	}
	assert.Equal(t, 0, q.Len())
}

func TestOrderQueueCloseDrainsThenFails(t *testing.T) {
	q := NewOrderQueue(4)
	require.NoError(t, q.Push(testOrder(7)))
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Push(testOrder(8)), exception.ErrQueueClosed)

	o, err := q.WaitPop()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), o.ID)

	_, err = q.WaitPop()
	assert.ErrorIs(t, err, exception.ErrQueueClosed)
}

func TestOrderQueueCloseWakesWaiters(t *testing.T) {
	q := NewOrderQueue(4)

	const waiters = 4
	errs := make(chan error, waiters)
	for range waiters {
		go func() {
			_, err := q.WaitPop()
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()

	for range waiters {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, exception.ErrQueueClosed)
		case <-time.After(time.Second):
			t.Fatal("waiter not woken by close")
		}
	}
}

func TestOrderQueueWaitPopContext(t *testing.T) {
	q := NewOrderQueue(4)
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := q.WaitPopContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOrderQueuePerProducerOrder(t *testing.T) {
	const (
		producers = 4
		perProd   = 500
	)
	q := NewOrderQueue(Unbounded)

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 1; i <= perProd; i++ {
				assert.NoError(t, q.Push(testOrder(uint64(p*perProd*10+i))))
			}
		}(p)
	}

	last := make(map[int]uint64, producers)
	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for received < producers*perProd {
			o, err := q.WaitPop()
			if err != nil {
				return
			}
			p := int(o.ID / uint64(perProd*10))
			assert.Greater(t, o.ID, last[p])
			last[p] = o.ID
			received++
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain queue")
	}
	assert.Equal(t, producers*perProd, received)
}
