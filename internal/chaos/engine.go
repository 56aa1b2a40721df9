package chaos

import (
	"math/rand"
	"sync"
	"time"

	"hftcore/pkg/exception"
	"hftcore/pkg/messaging"

	"github.com/yanun0323/errors"
)

// Config controls fault injection on a message stream.
type Config struct {
	Seed          int64         `mapstructure:"seed"`
	DropRate      float64       `mapstructure:"drop_rate"`
	DuplicateRate float64       `mapstructure:"duplicate_rate"`
	ReorderWindow int           `mapstructure:"reorder_window"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
}

// Engine drops, duplicates, delays and reorders messages. It is safe for
// concurrent use.
type Engine struct {
	cfg   Config
	sleep func(time.Duration)

	mu      sync.Mutex
	rng     *rand.Rand
	pending []messaging.Message
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg:   cfg,
		sleep: time.Sleep,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.Wrap(exception.ErrInvalidArgument, "dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.Wrap(exception.ErrInvalidArgument, "duplicateRate must be between 0 and 1")
	}
	if c.ReorderWindow <= 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "reorderWindow must be >= 1")
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "maxDelay must be >= 0")
	}
	return nil
}

// Interceptor returns e.Process as a broker interceptor.
func (e *Engine) Interceptor() messaging.Interceptor {
	return e.Process
}

// Process applies chaos to a single message and returns what should be
// delivered now. Delay blocks the publishing goroutine.
func (e *Engine) Process(msg messaging.Message) []messaging.Message {
	if e == nil {
		return []messaging.Message{msg}
	}
	e.mu.Lock()
	if e.shouldDrop() {
		e.mu.Unlock()
		return nil
	}
	delay := e.delay()
	var out []messaging.Message
	if e.cfg.ReorderWindow <= 1 {
		out = e.applyDuplicate(msg)
	} else {
		e.pending = append(e.pending, msg)
		if len(e.pending) >= e.cfg.ReorderWindow {
			out = e.applyDuplicate(e.take())
		}
	}
	e.mu.Unlock()

	if delay > 0 {
		e.sleep(delay)
	}
	return out
}

// Flush returns any buffered messages.
func (e *Engine) Flush() []messaging.Message {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]messaging.Message, 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.applyDuplicate(e.take())...)
	}
	return out
}

func (e *Engine) take() messaging.Message {
	idx := e.rng.Intn(len(e.pending))
	msg := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return msg
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine) applyDuplicate(msg messaging.Message) []messaging.Message {
	out := []messaging.Message{msg}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, msg)
	}
	return out
}

func (e *Engine) delay() time.Duration {
	maxDelay := e.cfg.MaxDelay.Nanoseconds()
	if maxDelay <= 0 {
		return 0
	}
	return time.Duration(e.rng.Int63n(maxDelay + 1))
}
