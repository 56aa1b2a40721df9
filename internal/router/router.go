package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"hftcore/internal/og"
	"hftcore/internal/schema"
	"hftcore/pkg/exception"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Mode selects how many venues receive an order.
type Mode uint8

const (
	// ModeBroadcast sends a copy to every eligible venue.
	ModeBroadcast Mode = iota
	// ModeBestVenue sends to the top ranked eligible venue only.
	ModeBestVenue
)

func (m Mode) String() string {
	switch m {
	case ModeBroadcast:
		return "broadcast"
	case ModeBestVenue:
		return "best_venue"
	default:
		return "unknown"
	}
}

// ParseMode accepts the String form of a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "", "broadcast":
		return ModeBroadcast, true
	case "best_venue", "best":
		return ModeBestVenue, true
	default:
		return ModeBroadcast, false
	}
}

// Config controls routing.
type Config struct {
	VenueTimeout time.Duration `json:"venue_timeout"`
	Mode         Mode          `json:"mode"`
	Breaker      BreakerConfig `json:"breaker"`
}

// DefaultConfig returns the routing defaults.
func DefaultConfig() Config {
	return Config{
		VenueTimeout: 500 * time.Millisecond,
		Mode:         ModeBroadcast,
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			CoolDown:         5 * time.Second,
		},
	}
}

// Observer receives one call per venue dispatch.
type Observer interface {
	ObserveVenue(venue string, latency time.Duration, err error)
}

// Option customizes a Router.
type Option func(*Router)

// WithObserver reports venue outcomes to o.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		r.observer = o
	}
}

// Outcome is the result of one venue copy.
type Outcome struct {
	Venue         string
	ClientOrderID string
	Ack           og.Ack
	Err           error
	Latency       time.Duration
}

// Accepted reports whether the venue took the order.
func (o Outcome) Accepted() bool {
	return o.Err == nil && o.Ack.Accepted
}

// RouteResult holds every venue outcome of one order, in rank order.
type RouteResult struct {
	OrderID  uint64
	Outcomes []Outcome
}

// Best returns the best ranked accepted outcome.
func (r RouteResult) Best() (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Accepted() {
			return o, true
		}
	}
	return Outcome{}, false
}

// AcceptedCount returns how many venues took the order.
func (r RouteResult) AcceptedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Accepted() {
			n++
		}
	}
	return n
}

// Router ranks venues and fans orders out to them.
type Router struct {
	cfg      Config
	mode     atomic.Uint32
	observer Observer

	mu     sync.Mutex
	venues map[string]*venueEntry
	seq    uint64
}

// New creates a router. Zero config fields take DefaultConfig values.
func New(cfg Config, opts ...Option) *Router {
	def := DefaultConfig()
	if cfg.VenueTimeout <= 0 {
		cfg.VenueTimeout = def.VenueTimeout
	}
	if cfg.Breaker.CoolDown <= 0 {
		cfg.Breaker.CoolDown = def.Breaker.CoolDown
	}
	r := &Router{
		cfg:    cfg,
		venues: make(map[string]*venueEntry),
	}
	r.mode.Store(uint32(cfg.Mode))
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective config.
func (r *Router) Config() Config {
	cfg := r.cfg
	cfg.Mode = r.Mode()
	return cfg
}

// Mode returns the dispatch mode.
func (r *Router) Mode() Mode {
	return Mode(r.mode.Load())
}

// SetMode switches the dispatch mode for orders routed from now on.
func (r *Router) SetMode(m Mode) {
	if r.Mode() != m {
		logs.Infof("router: mode %s", m)
	}
	r.mode.Store(uint32(m))
}

// AddVenue registers an available venue.
func (r *Router) AddVenue(v Venue, link og.VenueLink) error {
	if !v.valid() {
		return errors.Wrapf(exception.ErrInvalidVenue, "%+v", v)
	}
	if link == nil {
		return errors.Wrapf(exception.ErrInvalidVenue, "%s has no link", v.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.venues[v.Name]; ok {
		return errors.Wrap(exception.ErrDuplicateVenue, v.Name)
	}
	r.seq++
	e := &venueEntry{venue: v, link: link, seq: r.seq, breaker: NewBreaker(r.cfg.Breaker)}
	e.available.Store(true)
	r.venues[v.Name] = e
	return nil
}

// RemoveVenue drops a venue. Orders already dispatched to it are unaffected.
func (r *Router) RemoveVenue(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.venues[name]; !ok {
		return errors.Wrap(exception.ErrUnknownVenue, name)
	}
	delete(r.venues, name)
	return nil
}

// SetAvailable toggles whether a venue is eligible for routing.
func (r *Router) SetAvailable(name string, available bool) error {
	r.mu.Lock()
	e, ok := r.venues[name]
	r.mu.Unlock()
	if !ok {
		return errors.Wrap(exception.ErrUnknownVenue, name)
	}
	e.available.Store(available)
	return nil
}

// ResetBreaker closes a venue's circuit breaker.
func (r *Router) ResetBreaker(name string) error {
	r.mu.Lock()
	e, ok := r.venues[name]
	r.mu.Unlock()
	if !ok {
		return errors.Wrap(exception.ErrUnknownVenue, name)
	}
	e.breaker.Reset()
	return nil
}

// Venues returns every venue in insertion order.
func (r *Router) Venues() []VenueInfo {
	entries := r.snapshot(false)
	out := make([]VenueInfo, len(entries))
	for i, e := range entries {
		out[i] = e.info()
	}
	return out
}

// RankVenues returns available venues by ascending latency/reliability.
// Equal costs keep insertion order.
func (r *Router) RankVenues() []VenueInfo {
	entries := r.ranked()
	out := make([]VenueInfo, len(entries))
	for i, e := range entries {
		out[i] = e.info()
	}
	return out
}

func (r *Router) snapshot(availableOnly bool) []*venueEntry {
	r.mu.Lock()
	out := make([]*venueEntry, 0, len(r.venues))
	for _, e := range r.venues {
		if availableOnly && !e.available.Load() {
			continue
		}
		out = append(out, e)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *Router) ranked() []*venueEntry {
	out := r.snapshot(true)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].venue.Cost() < out[j].venue.Cost()
	})
	return out
}

// RouteOrder dispatches order to the eligible venues concurrently, each
// bounded by VenueTimeout, and waits for every outcome. It succeeds when at
// least one venue accepted; otherwise the result still carries every
// per-venue outcome and the error wraps ErrRoutingFailed.
func (r *Router) RouteOrder(ctx context.Context, order schema.Order) (RouteResult, error) {
	result := RouteResult{OrderID: order.ID}
	if err := order.Validate(); err != nil {
		return result, err
	}

	targets, tripped := r.eligible(time.Now())
	if len(targets) == 0 {
		if tripped > 0 {
			return result, fmt.Errorf("%w: %w: %d venues, order %d", exception.ErrNoEligibleVenue, exception.ErrVenueCircuitOpen, tripped, order.ID)
		}
		return result, errors.Wrapf(exception.ErrNoEligibleVenue, "order %d", order.ID)
	}

	type indexed struct {
		idx int
		out Outcome
	}
	results := make(chan indexed, len(targets))
	for i, e := range targets {
		go func(i int, e *venueEntry) {
			results <- indexed{idx: i, out: r.dispatch(ctx, e, order)}
		}(i, e)
	}

	result.Outcomes = make([]Outcome, len(targets))
	received := make([]bool, len(targets))
	grace := time.NewTimer(r.cfg.VenueTimeout + r.cfg.VenueTimeout/2)
	defer grace.Stop()

collect:
	for n := 0; n < len(targets); n++ {
		select {
		case res := <-results:
			result.Outcomes[res.idx] = res.out
			received[res.idx] = true
		case <-grace.C:
			break collect
		}
	}
	for i, ok := range received {
		if !ok {
			// the link ignored its deadline
			result.Outcomes[i] = Outcome{
				Venue:   targets[i].venue.Name,
				Err:     errors.Wrap(exception.ErrVenueTimeout, targets[i].venue.Name),
				Latency: r.cfg.VenueTimeout,
			}
		}
	}

	for i, o := range result.Outcomes {
		if o.Accepted() {
			targets[i].link.OnOrderAcknowledgement(order.ID)
		}
	}

	if result.AcceptedCount() == 0 {
		return result, errors.Wrapf(exception.ErrRoutingFailed, "order %d on %d venues", order.ID, len(targets))
	}
	return result, nil
}

// eligible returns the ranked venues allowed by their breakers and how many
// were skipped because their breaker is open.
func (r *Router) eligible(now time.Time) (out []*venueEntry, tripped int) {
	ranked := r.ranked()
	out = make([]*venueEntry, 0, len(ranked))
	for _, e := range ranked {
		if !e.breaker.Allow(now) {
			tripped++
			continue
		}
		out = append(out, e)
		if r.Mode() == ModeBestVenue {
			break
		}
	}
	return out, tripped
}

func (r *Router) dispatch(ctx context.Context, e *venueEntry, order schema.Order) Outcome {
	cid := uuid.NewString()
	out := Outcome{Venue: e.venue.Name, ClientOrderID: cid}

	vctx, cancel := context.WithTimeout(ctx, r.cfg.VenueTimeout)
	defer cancel()

	start := time.Now()
	ack, err := e.link.SendOrder(vctx, order.WithClientOrderID(cid))
	out.Latency = time.Since(start)
	out.Ack = ack
	out.Err = classify(vctx, e.venue.Name, err)
	if out.Err == nil && !ack.Accepted {
		out.Err = errors.Wrapf(exception.ErrVenueRejected, "%s: not accepted", e.venue.Name)
	}

	switch {
	case out.Err == nil, errors.Is(out.Err, exception.ErrVenueRejected):
		e.breaker.RecordSuccess()
	default:
		if e.breaker.RecordFailure(time.Now()) {
			logs.Warnf("router: circuit opened for venue %s: %v", e.venue.Name, out.Err)
		}
	}

	if r.observer != nil {
		r.observer.ObserveVenue(e.venue.Name, out.Latency, out.Err)
	}
	return out
}

// classify maps a link error onto the per-venue sentinels.
func classify(ctx context.Context, venue string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, exception.ErrVenueRejected) ||
		errors.Is(err, exception.ErrVenueTimeout) ||
		errors.Is(err, exception.ErrVenueUnreachable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", exception.ErrVenueTimeout, venue, err)
	}
	return fmt.Errorf("%w: %s: %w", exception.ErrVenueUnreachable, venue, err)
}

// CancelOrder cancels orderID on every venue concurrently. It reports true
// when at least one venue cancelled; the error joins the venue failures.
func (r *Router) CancelOrder(ctx context.Context, orderID uint64) (bool, error) {
	entries := r.snapshot(false)
	if len(entries) == 0 {
		return false, errors.Wrapf(exception.ErrNoEligibleVenue, "order %d", orderID)
	}

	type result struct {
		ok  bool
		err error
	}
	results := make(chan result, len(entries))
	for _, e := range entries {
		go func(e *venueEntry) {
			vctx, cancel := context.WithTimeout(ctx, r.cfg.VenueTimeout)
			defer cancel()
			ok, err := e.link.CancelOrder(vctx, orderID)
			results <- result{ok: ok, err: classify(vctx, e.venue.Name, err)}
		}(e)
	}

	cancelled := false
	var errs []error
	for range entries {
		res := <-results
		cancelled = cancelled || res.ok
		if res.err != nil {
			errs = append(errs, res.err)
		}
	}
	if cancelled {
		return true, nil
	}
	return false, errors.Join(errs...)
}
