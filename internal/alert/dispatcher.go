// Package alert classifies discrete fleet events and runs the single
// full-screen alert: Idle until a permitted event arrives, Active until it is
// dismissed or, for non-sos categories, until the auto-close timer fires.
package alert

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fleetwatch/internal/domain/fleet"
)

// DefaultTimeout is how long a non-sos alert stays open.
const DefaultTimeout = 10 * time.Second

// Reason explains why an alert left the Active state.
type Reason string

const (
	ReasonTimeout   Reason = "timeout"
	ReasonDismissed Reason = "dismissed"
	ReasonReplaced  Reason = "replaced"
	ReasonShutdown  Reason = "shutdown"
)

// Alert is one active alert cycle. Seq increases with every cycle.
type Alert struct {
	Seq            uint64         `json:"seq"`
	Event          fleet.Event    `json:"event"`
	Classification Classification `json:"classification"`
	OpenedAt       time.Time      `json:"openedAt"`
	// ClosesAt is nil for sos alerts, which only close on dismissal.
	ClosesAt *time.Time `json:"closesAt,omitempty"`
}

// State is the observable alert state.
type State struct {
	Active bool   `json:"active"`
	Alert  *Alert `json:"alert,omitempty"`
	// Lit is the blink phase of the visual cue; always false when idle.
	Lit bool `json:"lit"`
}

// Observer receives the side effects of alert transitions. OnClose is
// delivered on every exit path, including replacement and shutdown, before
// the next OnOpen. Observers must not call back into the Dispatcher.
type Observer interface {
	OnOpen(a Alert)
	OnClose(a Alert, reason Reason)
}

type Option func(*Dispatcher)

func WithClock(c Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithObservers(observers ...Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, observers...) }
}

func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// Dispatcher owns the process-wide alert. At most one alert is active; a new
// permitted event replaces it.
type Dispatcher struct {
	allow   AllowList
	clock   Clock
	timeout time.Duration
	log     *zap.Logger

	mu        sync.Mutex
	observers []Observer
	active    *Alert
	timer     Timer
	seq       uint64
	closed    bool

	state atomic.Pointer[State]
}

func NewDispatcher(allow AllowList, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		allow:   allow,
		clock:   systemClock{},
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.allow == nil {
		d.allow = StaticAllowList{}
	}
	d.state.Store(&State{})
	return d
}

// Subscribe adds an observer for subsequent transitions.
func (d *Dispatcher) Subscribe(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Permitted reports whether events of type t may raise an alert.
func (d *Dispatcher) Permitted(t fleet.EventType) bool {
	return d.allow.Allowed(t)
}

// Handle opens an alert for e when its type is permitted, replacing any
// active alert. It returns the new alert and whether one was opened.
func (d *Dispatcher) Handle(e fleet.Event, c Classification) (Alert, bool) {
	if !d.allow.Allowed(e.Type) {
		d.log.Debug("Event type not permitted for alerts", zap.String("type", string(e.Type)))
		return Alert{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Alert{}, false
	}
	if d.active != nil {
		d.closeLocked(ReasonReplaced)
	}

	d.seq++
	now := d.clock.Now()
	a := &Alert{
		Seq:            d.seq,
		Event:          e,
		Classification: c,
		OpenedAt:       now,
	}
	if c.Category != CategorySOS {
		closesAt := now.Add(d.timeout)
		a.ClosesAt = &closesAt
		seq := a.Seq
		d.timer = d.clock.AfterFunc(d.timeout, func() { d.expire(seq) })
	}
	d.active = a
	d.publishLocked()

	d.log.Info("Alert opened",
		zap.Uint64("seq", a.Seq),
		zap.String("category", string(c.Category)),
		zap.String("type", string(e.Type)),
		zap.String("device", e.Label()),
	)
	for _, o := range d.observers {
		o.OnOpen(*a)
	}
	return *a, true
}

// Dismiss closes the active alert, whatever its category.
func (d *Dispatcher) Dismiss() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active == nil {
		return ErrNoActiveAlert
	}
	d.closeLocked(ReasonDismissed)
	return nil
}

// Shutdown closes any active alert, cancels its timer and ignores further
// events. It is safe to call more than once.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != nil {
		d.closeLocked(ReasonShutdown)
	}
	d.closed = true
}

// State returns the current alert state without blocking on transitions.
func (d *Dispatcher) State() State {
	return *d.state.Load()
}

// expire is the timer callback. A timer that outlived its alert is a no-op.
func (d *Dispatcher) expire(seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active == nil || d.active.Seq != seq {
		return
	}
	d.closeLocked(ReasonTimeout)
}

func (d *Dispatcher) closeLocked(reason Reason) {
	a := *d.active
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.active = nil
	d.publishLocked()

	d.log.Info("Alert closed",
		zap.Uint64("seq", a.Seq),
		zap.String("reason", string(reason)),
	)
	for _, o := range d.observers {
		o.OnClose(a, reason)
	}
}

func (d *Dispatcher) publishLocked() {
	if d.active == nil {
		d.state.Store(&State{})
		return
	}
	a := *d.active
	d.state.Store(&State{Active: true, Alert: &a})
}
