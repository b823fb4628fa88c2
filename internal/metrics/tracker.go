// Package metrics counts what flows through the tracking pipeline.
package metrics

import (
	"sync"
	"time"
)

// StreamMetrics is a point-in-time view of pipeline counters.
type StreamMetrics struct {
	FramesReceived   int64
	MalformedFrames  int64
	DeviceUpdates    int64
	PositionUpdates  int64
	EventsReceived   int64
	AlertsRaised     int64
	StreamErrors     int64
	Devices          int
	Positions        int
	Connected        bool
	LastMessageAt    time.Time
	NotificationSize int
}

// Tracker provides a goroutine-safe wrapper around StreamMetrics.
type Tracker struct {
	mu        sync.RWMutex
	metrics   StreamMetrics
	listeners []func(StreamMetrics)
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Update applies a mutation and notifies listeners with the result.
func (t *Tracker) Update(fn func(*StreamMetrics)) {
	if fn == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fn(&t.metrics)
	snapshot := t.metrics
	for _, listener := range t.listeners {
		listener(snapshot)
	}
}

// Snapshot returns a copy of the current metrics.
func (t *Tracker) Snapshot() StreamMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = StreamMetrics{}
}

// OnChange registers a callback invoked after every Update. Listeners run
// under the tracker lock and must not call back into it.
func (t *Tracker) OnChange(listener func(StreamMetrics)) {
	if listener == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, listener)
}
