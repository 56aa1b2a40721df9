package execution

import (
	"sync"
	"sync/atomic"

	"hftcore/internal/schema"
)

// orderCell holds one order's state. Transitions only move forward and a
// terminal state is written at most once.
type orderCell struct {
	state atomic.Uint32
}

func (c *orderCell) load() schema.OrderState {
	return schema.OrderState(c.state.Load())
}

// advance moves to next if it is later than the current state.
func (c *orderCell) advance(next schema.OrderState) bool {
	for {
		cur := c.state.Load()
		if schema.OrderState(cur).Terminal() || uint32(next) <= cur {
			return false
		}
		if c.state.CompareAndSwap(cur, uint32(next)) {
			return true
		}
	}
}

// tracker maps in-flight order IDs to their cells.
type tracker struct {
	cells sync.Map
	size  atomic.Int64
}

func (t *tracker) add(id uint64) (*orderCell, bool) {
	cell := &orderCell{}
	if _, loaded := t.cells.LoadOrStore(id, cell); loaded {
		return nil, false
	}
	t.size.Add(1)
	return cell, true
}

func (t *tracker) get(id uint64) (*orderCell, bool) {
	v, ok := t.cells.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*orderCell), true
}

func (t *tracker) remove(id uint64) {
	if _, loaded := t.cells.LoadAndDelete(id); loaded {
		t.size.Add(-1)
	}
}

func (t *tracker) len() int {
	return int(t.size.Load())
}
