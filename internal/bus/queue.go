package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"hftcore/internal/schema"
	"hftcore/pkg/exception"
)

// Unbounded disables the capacity limit of an OrderQueue.
const Unbounded = 0

// OrderQueue hands orders from any number of producers to the execution
// worker. Push never blocks. Orders pushed by one producer are popped in the
// order they were pushed.
type OrderQueue struct {
	mu       sync.Mutex
	items    []schema.Order
	head     int
	capacity int

	ready  chan struct{}
	done   chan struct{}
	closed uint32
}

// NewOrderQueue allocates a queue. capacity <= 0 means Unbounded.
func NewOrderQueue(capacity int) *OrderQueue {
	if capacity < 0 {
		capacity = Unbounded
	}
	initial := capacity
	if initial == Unbounded || initial > 1024 {
		initial = 1024
	}
	return &OrderQueue{
		items:    make([]schema.Order, 0, initial),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push enqueues an order without blocking.
func (q *OrderQueue) Push(o schema.Order) error {
	q.mu.Lock()
	if atomic.LoadUint32(&q.closed) != 0 {
		q.mu.Unlock()
		return exception.ErrQueueClosed
	}
	if q.capacity != Unbounded && q.lenLocked() >= q.capacity {
		q.mu.Unlock()
		return exception.ErrQueueFull
	}
	q.items = append(q.items, o)
	q.mu.Unlock()

	q.signal()
	return nil
}

// TryPop returns the oldest order if one is queued.
func (q *OrderQueue) TryPop() (schema.Order, bool) {
	q.mu.Lock()
	o, ok, more := q.popLocked()
	q.mu.Unlock()
	if more {
		q.signal()
	}
	return o, ok
}

// WaitPop blocks until an order is available. It returns ErrQueueClosed once
// the queue is closed and drained.
func (q *OrderQueue) WaitPop() (schema.Order, error) {
	return q.WaitPopContext(context.Background())
}

// WaitPopContext is WaitPop that also returns when ctx is done.
func (q *OrderQueue) WaitPopContext(ctx context.Context) (schema.Order, error) {
	for {
		q.mu.Lock()
		o, ok, more := q.popLocked()
		closed := atomic.LoadUint32(&q.closed) != 0
		q.mu.Unlock()

		if ok {
			if more {
				q.signal()
			}
			return o, nil
		}
		if closed {
			return schema.Order{}, exception.ErrQueueClosed
		}

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return schema.Order{}, ctx.Err()
		}
	}
}

// Close stops accepting orders and wakes every waiter. Queued orders can
// still be popped.
func (q *OrderQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.done)
	}
}

// Closed reports whether Close was called.
func (q *OrderQueue) Closed() bool {
	return atomic.LoadUint32(&q.closed) != 0
}

// Len returns the number of queued orders.
func (q *OrderQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Cap returns the configured capacity, Unbounded for no limit.
func (q *OrderQueue) Cap() int {
	return q.capacity
}

func (q *OrderQueue) lenLocked() int {
	return len(q.items) - q.head
}

func (q *OrderQueue) popLocked() (schema.Order, bool, bool) {
	if q.lenLocked() == 0 {
		return schema.Order{}, false, false
	}
	o := q.items[q.head]
	q.items[q.head] = schema.Order{}
	q.head++
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= 1024 && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return o, true, q.lenLocked() > 0
}

func (q *OrderQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
