package og

import (
	"sync"

	"hftcore/internal/schema"
	"hftcore/pkg/exception"

	"github.com/yanun0323/errors"
)

// Tracked holds the gateway's view of an order copy.
type Tracked struct {
	Order schema.Order
	State schema.OrderState
}

// StateMachine tracks venue-side order states. It is safe for concurrent
// use.
type StateMachine struct {
	mu     sync.Mutex
	orders map[uint64]*Tracked
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{orders: make(map[uint64]*Tracked)}
}

// Get returns a copy of the tracked order.
func (m *StateMachine) Get(id uint64) (Tracked, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.orders[id]
	if !ok {
		return Tracked{}, false
	}
	return *t, true
}

// Len returns the number of tracked orders.
func (m *StateMachine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// ApplySent records an order copy handed to the venue.
func (m *StateMachine) ApplySent(o schema.Order) error {
	if o.ID == 0 {
		return exception.ErrInvalidOrder
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.orders[o.ID]; ok && !t.State.Terminal() {
		return errors.Wrapf(exception.ErrInvalidTransition, "order %d already in flight", o.ID)
	}
	m.orders[o.ID] = &Tracked{Order: o, State: schema.OrderStateRouted}
	return nil
}

// ApplyAck moves an order according to a venue status.
func (m *StateMachine) ApplyAck(id uint64, status string) (Tracked, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.orders[id]
	if !ok {
		return Tracked{}, errors.Wrapf(exception.ErrInvalidTransition, "order %d not tracked", id)
	}
	if t.State.Terminal() {
		return *t, exception.ErrInvalidTransition
	}

	switch status {
	case StatusAccepted:
		if t.State >= schema.OrderStateAcknowledged {
			return *t, exception.ErrInvalidTransition
		}
		t.State = schema.OrderStateAcknowledged
	case StatusRejected:
		t.State = schema.OrderStateFailed
	case StatusCancelled:
		t.State = schema.OrderStateCancelled
	case StatusCancelRejected:
	default:
		return *t, errors.Errorf("unknown ack status %q", status)
	}
	return *t, nil
}

// Forget drops an order.
func (m *StateMachine) Forget(id uint64) {
	m.mu.Lock()
	delete(m.orders, id)
	m.mu.Unlock()
}
