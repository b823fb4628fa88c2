// Package tracking wires the stream into fleet state, the alert dispatcher,
// the notification feed and the map renderer. A Controller consumes stream
// messages strictly one at a time, in arrival order.
package tracking

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"fleetwatch/internal/alert"
	"fleetwatch/internal/domain/fleet"
	"fleetwatch/internal/mapview"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/notification"
	"fleetwatch/internal/state"
	"fleetwatch/internal/stream"
)

// UpdateKind names what changed in an Update.
type UpdateKind string

const (
	UpdateDevices   UpdateKind = "devices"
	UpdatePositions UpdateKind = "positions"
	UpdateEvent     UpdateKind = "event"
	UpdateFocus     UpdateKind = "focus"
)

// Update is delivered to listeners after each handled message.
type Update struct {
	Kind     UpdateKind
	Snapshot *state.Snapshot
	// Entry is set for event updates.
	Entry *notification.Entry
	// Viewport is set when the map viewport moved.
	Viewport *mapview.Viewport
}

// Listener must not block; it runs on the controller goroutine.
type Listener func(Update)

type Controller struct {
	store      *state.Store
	dispatcher *alert.Dispatcher
	feed       *notification.Feed
	renderer   *mapview.Renderer
	blinker    *alert.Blinker
	metrics    *metrics.Tracker
	log        *zap.Logger

	handleMu sync.Mutex
	latest   atomic.Pointer[notification.Entry]

	listenMu  sync.RWMutex
	listeners []Listener
}

type Deps struct {
	Store      *state.Store
	Dispatcher *alert.Dispatcher
	Feed       *notification.Feed
	Renderer   *mapview.Renderer
	// Blinker is optional; when set, Alert reports its phase.
	Blinker *alert.Blinker
	Metrics *metrics.Tracker
	Logger  *zap.Logger
}

func NewController(deps Deps) *Controller {
	c := &Controller{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		feed:       deps.Feed,
		renderer:   deps.Renderer,
		blinker:    deps.Blinker,
		metrics:    deps.Metrics,
		log:        deps.Logger,
	}
	if c.store == nil {
		c.store = state.NewStore()
	}
	if c.dispatcher == nil {
		c.dispatcher = alert.NewDispatcher(alert.StaticAllowList{})
	}
	if c.feed == nil {
		c.feed = notification.NewFeed()
	}
	if c.renderer == nil {
		c.renderer = mapview.NewRenderer(mapview.Config{})
	}
	if c.metrics == nil {
		c.metrics = metrics.NewTracker()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// OnUpdate registers a listener for subsequent updates.
func (c *Controller) OnUpdate(l Listener) {
	if l == nil {
		return
	}
	c.listenMu.Lock()
	defer c.listenMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Run handles messages until the channel closes or ctx is cancelled.
func (c *Controller) Run(ctx context.Context, msgs <-chan stream.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.Handle(msg)
		}
	}
}

// Handle applies one stream message.
func (c *Controller) Handle(msg stream.Message) {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	switch m := msg.(type) {
	case stream.DeviceBatch:
		c.applyDevices(m.Records)
	case stream.PositionBatch:
		c.applyPositions(m.Records)
	case stream.DiscreteEvent:
		c.handleEvent(m.Event)
	case stream.Error:
		c.log.Debug("Stream reported an error", zap.Error(m.Err))
	case stream.Closed:
		if m.Err != nil {
			c.log.Warn("Stream closed by remote", zap.Error(m.Err))
		} else {
			c.log.Info("Stream closed")
		}
	}
}

// Bootstrap merges a REST device snapshot before streaming starts.
func (c *Controller) Bootstrap(devices []fleet.Record) *state.Snapshot {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()
	return c.applyDevices(devices)
}

func (c *Controller) applyDevices(records []fleet.Record) *state.Snapshot {
	snap := c.store.ApplyDevices(records)
	c.metrics.Update(func(s *metrics.StreamMetrics) {
		s.DeviceUpdates += int64(len(records))
		s.Devices = len(snap.DeviceRecords())
	})
	c.notify(Update{Kind: UpdateDevices, Snapshot: snap})
	return snap
}

func (c *Controller) applyPositions(records []fleet.Record) {
	snap := c.store.ApplyPositions(records)
	c.metrics.Update(func(s *metrics.StreamMetrics) {
		s.PositionUpdates += int64(len(records))
		s.Positions = len(snap.PositionRecords())
	})

	u := Update{Kind: UpdatePositions, Snapshot: snap}
	if c.renderer.Follow(snap) {
		vp := c.renderer.Viewport()
		u.Viewport = &vp
	}
	c.notify(u)
}

// handleEvent records e in the feed and offers it to the dispatcher. Events
// not on the allow-list still reach the feed.
func (c *Controller) handleEvent(e fleet.Event) {
	if e.DeviceName == "" && e.DeviceID != "" {
		if d, ok := c.store.Snapshot().Device(e.DeviceID); ok {
			e.DeviceName = d.Name
		}
	}

	cls := alert.Classify(e)
	_, alerted := c.dispatcher.Handle(e, cls)
	entry := c.feed.Append(e, cls, alerted)
	c.latest.Store(&entry)

	c.metrics.Update(func(s *metrics.StreamMetrics) {
		s.EventsReceived++
		if alerted {
			s.AlertsRaised++
		}
		s.NotificationSize = c.feed.Len()
	})
	c.notify(Update{Kind: UpdateEvent, Snapshot: c.store.Snapshot(), Entry: &entry})
}

func (c *Controller) notify(u Update) {
	c.listenMu.RLock()
	defer c.listenMu.RUnlock()
	for _, l := range c.listeners {
		l(u)
	}
}

// Close shuts the dispatcher down, cancelling any pending auto-close timer.
func (c *Controller) Close() {
	c.dispatcher.Shutdown()
}

func (c *Controller) Snapshot() *state.Snapshot { return c.store.Snapshot() }

// View is the merged state as pushed to dashboard clients.
type View struct {
	Version   uint64           `json:"version"`
	Devices   []fleet.Record   `json:"devices"`
	Positions []fleet.Record   `json:"positions"`
	Markers   []mapview.Marker `json:"markers"`
}

// View renders the current snapshot with its map markers.
func (c *Controller) View() View {
	snap := c.store.Snapshot()
	return View{
		Version:   snap.Version,
		Devices:   nonNil(snap.DeviceRecords()),
		Positions: nonNil(snap.PositionRecords()),
		Markers:   c.renderer.Markers(snap),
	}
}

func nonNil(records []fleet.Record) []fleet.Record {
	if records == nil {
		return []fleet.Record{}
	}
	return records
}

// LatestEvent returns the most recently received event entry.
func (c *Controller) LatestEvent() (notification.Entry, bool) {
	e := c.latest.Load()
	if e == nil {
		return notification.Entry{}, false
	}
	return *e, true
}

// Alert returns the alert state with the current blink phase.
func (c *Controller) Alert() alert.State {
	st := c.dispatcher.State()
	if st.Active && c.blinker != nil {
		st.Lit = c.blinker.Lit()
	}
	return st
}

func (c *Controller) DismissAlert() error { return c.dispatcher.Dismiss() }

func (c *Controller) Markers() []mapview.Marker {
	return c.renderer.Markers(c.store.Snapshot())
}

func (c *Controller) Renderer() *mapview.Renderer { return c.renderer }

// Focus sets the focused device and returns the new viewport.
func (c *Controller) Focus(deviceID string) (mapview.Viewport, error) {
	snap := c.store.Snapshot()
	vp, err := c.renderer.Focus(deviceID, snap)
	if err != nil {
		return mapview.Viewport{}, err
	}
	c.notify(Update{Kind: UpdateFocus, Snapshot: snap, Viewport: &vp})
	return vp, nil
}

// Click routes a map click: a marker focuses its device, empty area clears
// the focus.
func (c *Controller) Click(click mapview.Click) (mapview.Viewport, error) {
	snap := c.store.Snapshot()
	vp, err := c.renderer.HandleClick(click, snap)
	if err != nil {
		return mapview.Viewport{}, err
	}
	c.notify(Update{Kind: UpdateFocus, Snapshot: snap, Viewport: &vp})
	return vp, nil
}

func (c *Controller) ClearFocus() mapview.Viewport {
	vp := c.renderer.ClearFocus()
	c.notify(Update{Kind: UpdateFocus, Snapshot: c.store.Snapshot(), Viewport: &vp})
	return vp
}

func (c *Controller) Notifications(mode notification.Filter) []notification.Entry {
	return c.feed.Filter(mode)
}

func (c *Controller) UnreadCount() int { return c.feed.UnreadCount() }

// MarkAllRead clears the unread flag of every entry and returns how many
// changed.
func (c *Controller) MarkAllRead() int { return c.feed.MarkAllRead() }

func (c *Controller) ClearNotifications() {
	c.feed.Clear()
	c.metrics.Update(func(s *metrics.StreamMetrics) { s.NotificationSize = 0 })
}
