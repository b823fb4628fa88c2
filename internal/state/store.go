// Package state owns the merged fleet state. Writers derive a new Snapshot on
// every update; readers load the current one without locking and never see a
// partially applied batch.
package state

import (
	"sync"
	"sync/atomic"

	"fleetwatch/internal/domain/fleet"
	"fleetwatch/internal/merge"
)

// Snapshot is an immutable view of the fleet at one version.
type Snapshot struct {
	Version   uint64
	devices   []fleet.Record
	positions []fleet.Record

	deviceIndex   map[string]int
	positionIndex map[string]int
}

func newSnapshot(version uint64, devices, positions []fleet.Record) *Snapshot {
	return &Snapshot{
		Version:       version,
		devices:       devices,
		positions:     positions,
		deviceIndex:   indexBy(devices, merge.Devices),
		positionIndex: indexBy(positions, merge.Positions),
	}
}

func indexBy(records []fleet.Record, key merge.KeyFunc) map[string]int {
	idx := make(map[string]int, len(records))
	for i, r := range records {
		if id, ok := key(r); ok {
			idx[id] = i
		}
	}
	return idx
}

// DeviceRecords returns the merged device records in first-seen order.
// The slice must not be modified.
func (s *Snapshot) DeviceRecords() []fleet.Record { return s.devices }

// PositionRecords returns the merged position records in first-seen order.
// The slice must not be modified.
func (s *Snapshot) PositionRecords() []fleet.Record { return s.positions }

func (s *Snapshot) Devices() []fleet.Device {
	out := make([]fleet.Device, len(s.devices))
	for i, r := range s.devices {
		out[i] = fleet.DeviceFromRecord(r)
	}
	return out
}

func (s *Snapshot) Positions() []fleet.Position {
	out := make([]fleet.Position, len(s.positions))
	for i, r := range s.positions {
		out[i] = fleet.PositionFromRecord(r)
	}
	return out
}

func (s *Snapshot) Device(id string) (fleet.Device, bool) {
	i, ok := s.deviceIndex[id]
	if !ok {
		return fleet.Device{}, false
	}
	return fleet.DeviceFromRecord(s.devices[i]), true
}

// DeviceRecord returns the merged record of a device with every field seen.
func (s *Snapshot) DeviceRecord(id string) (fleet.Record, bool) {
	i, ok := s.deviceIndex[id]
	if !ok {
		return nil, false
	}
	return s.devices[i], true
}

func (s *Snapshot) PositionRecord(deviceID string) (fleet.Record, bool) {
	i, ok := s.positionIndex[deviceID]
	if !ok {
		return nil, false
	}
	return s.positions[i], true
}

// Position returns the live position of a device. Absence means no known
// position.
func (s *Snapshot) Position(deviceID string) (fleet.Position, bool) {
	i, ok := s.positionIndex[deviceID]
	if !ok {
		return fleet.Position{}, false
	}
	return fleet.PositionFromRecord(s.positions[i]), true
}

// Known reports whether the id names a device or a device with a position.
func (s *Snapshot) Known(id string) bool {
	_, d := s.deviceIndex[id]
	_, p := s.positionIndex[id]
	return d || p
}

// Store is the single writer of fleet state. Entities are never removed.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

func NewStore() *Store {
	s := &Store{}
	s.current.Store(newSnapshot(0, nil, nil))
	return s
}

// Snapshot returns the latest published state.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// ApplyDevices merges a device batch and publishes the result.
func (s *Store) ApplyDevices(batch []fleet.Record) *Snapshot {
	return s.apply(func(cur *Snapshot) *Snapshot {
		return newSnapshot(cur.Version+1, merge.Merge(cur.devices, batch, merge.Devices), cur.positions)
	})
}

// ApplyPositions merges a position batch and publishes the result.
func (s *Store) ApplyPositions(batch []fleet.Record) *Snapshot {
	return s.apply(func(cur *Snapshot) *Snapshot {
		return newSnapshot(cur.Version+1, cur.devices, merge.Merge(cur.positions, batch, merge.Positions))
	})
}

func (s *Store) apply(next func(*Snapshot) *Snapshot) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := next(s.current.Load())
	s.current.Store(snap)
	return snap
}
