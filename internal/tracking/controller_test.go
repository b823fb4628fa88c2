package tracking

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/internal/alert"
	"fleetwatch/internal/domain/fleet"
	"fleetwatch/internal/mapview"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/notification"
	"fleetwatch/internal/stream"
)

// stepClock never fires on its own; fire runs the pending callbacks.
type stepClock struct {
	mu      sync.Mutex
	pending map[*stepTimer]func()
}

type stepTimer struct{ clock *stepClock }

func newStepClock() *stepClock {
	return &stepClock{pending: make(map[*stepTimer]func())}
}

func (c *stepClock) Now() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

func (c *stepClock) AfterFunc(_ time.Duration, f func()) alert.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &stepTimer{clock: c}
	c.pending[t] = f
	return t
}

func (c *stepClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *stepClock) fire() {
	c.mu.Lock()
	var fns []func()
	for t, f := range c.pending {
		fns = append(fns, f)
		delete(c.pending, t)
	}
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func (t *stepTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	_, ok := t.clock.pending[t]
	delete(t.clock.pending, t)
	return ok
}

type fixture struct {
	ctrl    *Controller
	clock   *stepClock
	metrics *metrics.Tracker
}

func newFixture(t *testing.T, allowed ...string) fixture {
	t.Helper()
	clock := newStepClock()
	tracker := metrics.NewTracker()
	ctrl := NewController(Deps{
		Dispatcher: alert.NewDispatcher(alert.NewAllowList(allowed...), alert.WithClock(clock)),
		Renderer:   mapview.NewRenderer(mapview.Config{DefaultZoom: 5, FocusZoom: 16}),
		Metrics:    tracker,
	})
	return fixture{ctrl: ctrl, clock: clock, metrics: tracker}
}

func feed(t *testing.T, c *Controller, frames ...string) {
	t.Helper()
	for _, raw := range frames {
		f, err := stream.ParseFrame([]byte(raw))
		require.NoError(t, err)
		for _, msg := range f.Messages(time.Now()) {
			c.Handle(msg)
		}
	}
}

func TestControllerMergesDeviceStatus(t *testing.T) {
	fx := newFixture(t)
	feed(t, fx.ctrl,
		`{"devices":[{"id":1,"name":"Truck1","status":"offline"}]}`,
		`{"devices":[{"id":1,"status":"online","lastUpdate":"2024-01-01T00:00:00"}]}`,
	)

	d, ok := fx.ctrl.Snapshot().Device("1")
	require.True(t, ok)
	assert.Equal(t, fleet.StatusOnline, d.Status)
	assert.Equal(t, "Truck1", d.Name)
	require.NotNil(t, d.LastUpdate)
	assert.Len(t, fx.ctrl.Snapshot().DeviceRecords(), 1)

	m := fx.metrics.Snapshot()
	assert.EqualValues(t, 2, m.DeviceUpdates)
	assert.Equal(t, 1, m.Devices)
}

func TestControllerSOSScenario(t *testing.T) {
	fx := newFixture(t, "sos")
	feed(t, fx.ctrl, `{"event":{"type":"sos","name":"Truck1","contactos":[{"phone":"123"}]}}`)

	st := fx.ctrl.Alert()
	require.True(t, st.Active)
	assert.Equal(t, alert.CategorySOS, st.Alert.Classification.Category)
	assert.Contains(t, st.Alert.Classification.Message, "Truck1")
	assert.Contains(t, st.Alert.Classification.Message, "123")
	assert.Zero(t, fx.clock.Pending(), "sos alerts do not arm a timer")

	require.NoError(t, fx.ctrl.DismissAlert())
	assert.False(t, fx.ctrl.Alert().Active)

	entry, ok := fx.ctrl.LatestEvent()
	require.True(t, ok)
	assert.True(t, entry.Alerted)
	assert.True(t, entry.Unread)
}

func TestControllerAlertReportsBlinkPhase(t *testing.T) {
	blinker := alert.NewBlinker(time.Hour, nil)
	dispatcher := alert.NewDispatcher(alert.NewAllowList("sos"), alert.WithObservers(blinker))
	ctrl := NewController(Deps{Dispatcher: dispatcher, Blinker: blinker})
	t.Cleanup(ctrl.Close)

	assert.False(t, ctrl.Alert().Lit)

	feed(t, ctrl, `{"event":{"type":"sos","name":"Truck1"}}`)
	st := ctrl.Alert()
	require.True(t, st.Active)
	assert.True(t, st.Lit)

	require.NoError(t, ctrl.DismissAlert())
	st = ctrl.Alert()
	assert.False(t, st.Active)
	assert.False(t, st.Lit)
	assert.False(t, blinker.Running())
}

func TestControllerGatedEventStillNotifies(t *testing.T) {
	fx := newFixture(t, "sos")
	feed(t, fx.ctrl, `{"event":{"type":"ignitionOn","name":"Van"}}`)

	assert.False(t, fx.ctrl.Alert().Active)
	entries := fx.ctrl.Notifications(notification.FilterAll)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Alerted)
	assert.Equal(t, fleet.EventIgnitionOn, entries[0].Event.Type)
	assert.Equal(t, 1, fx.ctrl.UnreadCount())

	assert.Equal(t, 1, fx.ctrl.MarkAllRead())
	assert.Empty(t, fx.ctrl.Notifications(notification.FilterUnread))

	fx.ctrl.ClearNotifications()
	assert.Empty(t, fx.ctrl.Notifications(notification.FilterAll))
	assert.Zero(t, fx.metrics.Snapshot().NotificationSize)
}

func TestControllerNonSOSAlertAutoCloses(t *testing.T) {
	fx := newFixture(t, "alarm")
	feed(t, fx.ctrl, `{"event":{"type":"alarm","name":"Van","attributes":{"alarm":"tow"}}}`)

	require.True(t, fx.ctrl.Alert().Active)
	require.Equal(t, 1, fx.clock.Pending())
	fx.clock.fire()
	assert.False(t, fx.ctrl.Alert().Active)
}

func TestControllerNaNPositionHiddenButKept(t *testing.T) {
	fx := newFixture(t)
	fx.ctrl.Handle(stream.DeviceBatch{Records: []fleet.Record{{"id": "1"}, {"id": "2"}}})
	fx.ctrl.Handle(stream.PositionBatch{Records: []fleet.Record{
		{"deviceId": "1", "latitude": math.NaN(), "longitude": 2.0},
		{"deviceId": "2", "latitude": 1.0, "longitude": 2.0},
	}})

	assert.Len(t, fx.ctrl.Snapshot().PositionRecords(), 2)
	markers := fx.ctrl.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, "2", markers[0].DeviceID)
}

func TestControllerFollowsFocusedDevice(t *testing.T) {
	fx := newFixture(t)
	var updates []Update
	fx.ctrl.OnUpdate(func(u Update) { updates = append(updates, u) })

	fx.ctrl.Handle(stream.DeviceBatch{Records: []fleet.Record{{"id": "7"}}})
	fx.ctrl.Handle(stream.PositionBatch{Records: []fleet.Record{{"deviceId": "7", "latitude": 1.0, "longitude": 1.0}}})

	vp, err := fx.ctrl.Focus("7")
	require.NoError(t, err)
	assert.Equal(t, 16.0, vp.Zoom)

	fx.ctrl.Handle(stream.PositionBatch{Records: []fleet.Record{{"deviceId": "7", "latitude": 2.0}}})
	last := updates[len(updates)-1]
	assert.Equal(t, UpdatePositions, last.Kind)
	require.NotNil(t, last.Viewport)
	assert.Equal(t, 2.0, last.Viewport.Center.Lat)
	assert.Equal(t, 1.0, last.Viewport.Center.Lng)

	vp, err = fx.ctrl.Click(mapview.Click{})
	require.NoError(t, err)
	assert.Equal(t, 5.0, vp.Zoom)
	assert.Empty(t, fx.ctrl.Renderer().Focused())

	_, err = fx.ctrl.Focus("missing")
	assert.ErrorIs(t, err, fleet.ErrUnknownDevice)
}

func TestControllerFillsEventNameFromState(t *testing.T) {
	fx := newFixture(t)
	feed(t, fx.ctrl,
		`{"devices":[{"id":3,"name":"Bus 3"}]}`,
		`{"event":{"type":"deviceOnline","deviceId":3}}`,
	)

	entry, ok := fx.ctrl.LatestEvent()
	require.True(t, ok)
	assert.Equal(t, "Bus 3", entry.Event.DeviceName)
	assert.Contains(t, entry.Classification.Message, "Bus 3")
}

func TestControllerRun(t *testing.T) {
	fx := newFixture(t)
	msgs := make(chan stream.Message, 2)
	msgs <- stream.DeviceBatch{Records: []fleet.Record{{"id": "1"}}}
	msgs <- stream.Closed{}
	close(msgs)

	require.NoError(t, fx.ctrl.Run(context.Background(), msgs))
	assert.Len(t, fx.ctrl.Snapshot().DeviceRecords(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, fx.ctrl.Run(ctx, make(chan stream.Message)), context.Canceled)
}

func TestControllerCloseCancelsTimer(t *testing.T) {
	fx := newFixture(t, "geofenceEnter")
	feed(t, fx.ctrl, `{"event":{"type":"geofenceEnter","name":"Van","geofenceName":"Depot"}}`)
	require.Equal(t, 1, fx.clock.Pending())

	fx.ctrl.Close()
	assert.Zero(t, fx.clock.Pending())
	assert.False(t, fx.ctrl.Alert().Active)
}
