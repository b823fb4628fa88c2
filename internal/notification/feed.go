// Package notification keeps the persistent log of classified events shown in
// the notification panel, independent of the transient alert overlay.
package notification

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetwatch/internal/alert"
	"fleetwatch/internal/domain/fleet"
)

var ErrInvalidFilter = errors.New("invalid notification filter")

// Filter selects entries by read state.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterRead   Filter = "read"
	FilterUnread Filter = "unread"
)

// ParseFilter accepts all, read and unread. The empty string means all.
func ParseFilter(raw string) (Filter, error) {
	switch Filter(raw) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterRead, FilterUnread:
		return Filter(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFilter, raw)
	}
}

type Entry struct {
	ID             uuid.UUID            `json:"id"`
	Event          fleet.Event          `json:"event"`
	Classification alert.Classification `json:"classification"`
	ReceivedAt     time.Time            `json:"receivedAt"`
	Unread         bool                 `json:"unread"`
	// Alerted is set when the event also raised the alert overlay.
	Alerted bool `json:"alerted"`
}

// Apply returns the entries matching mode, newest first. entries is expected
// oldest first, as the feed stores them, and is never modified.
func Apply(entries []Entry, mode Filter) []Entry {
	out := make([]Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		switch mode {
		case FilterRead:
			if e.Unread {
				continue
			}
		case FilterUnread:
			if !e.Unread {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

type Option func(*Feed)

// WithCapacity bounds the feed; the oldest entries are evicted first.
// Zero means unbounded.
func WithCapacity(n int) Option {
	return func(f *Feed) { f.capacity = n }
}

func WithNow(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// Feed is an append-only log of events. Entries start unread and only become
// read through MarkAllRead.
type Feed struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	now      func() time.Time
}

func NewFeed(opts ...Option) *Feed {
	f := &Feed{now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Append records an event and returns the stored entry.
func (f *Feed) Append(e fleet.Event, c alert.Classification, alerted bool) Entry {
	entry := Entry{
		ID:             uuid.New(),
		Event:          e,
		Classification: c,
		ReceivedAt:     f.now(),
		Unread:         true,
		Alerted:        alerted,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, entry)
	if f.capacity > 0 && len(f.entries) > f.capacity {
		drop := len(f.entries) - f.capacity
		f.entries = append([]Entry(nil), f.entries[drop:]...)
	}
	return entry
}

// MarkAllRead clears the unread flag on every entry and returns how many
// changed.
func (f *Feed) MarkAllRead() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	changed := 0
	for i := range f.entries {
		if f.entries[i].Unread {
			f.entries[i].Unread = false
			changed++
		}
	}
	return changed
}

// Filter projects the feed, newest first, without changing it.
func (f *Feed) Filter(mode Filter) []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Apply(f.entries, mode)
}

// Clear empties the feed.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
}

func (f *Feed) UnreadCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := 0
	for _, e := range f.entries {
		if e.Unread {
			n++
		}
	}
	return n
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}
