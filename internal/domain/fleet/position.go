package fleet

import (
	"math"
	"time"
)

// PositionIdentity is the identity field of a position record. A position is
// keyed by the device it belongs to, not by its own id.
const PositionIdentity = "deviceId"

// Position is the typed view of the live position of one device.
type Position struct {
	DeviceID      string     `json:"deviceId"`
	Latitude      *float64   `json:"latitude"`
	Longitude     *float64   `json:"longitude"`
	Speed         float64    `json:"speed"`
	Course        float64    `json:"course"`
	BatteryLevel  *float64   `json:"batteryLevel,omitempty"`
	Ignition      *bool      `json:"ignition,omitempty"`
	TotalDistance *float64   `json:"totalDistance,omitempty"`
	FixTime       *time.Time `json:"fixTime,omitempty"`
}

// PositionFromRecord projects a position record onto the typed view.
// Battery, ignition and distance are read from the top level first and then
// from the nested attributes object.
func PositionFromRecord(r Record) Position {
	p := Position{DeviceID: r.String(PositionIdentity)}

	if v, ok := r.Float("latitude"); ok && finite(v) {
		p.Latitude = &v
	}
	if v, ok := r.Float("longitude"); ok && finite(v) {
		p.Longitude = &v
	}

	if v, ok := r.Float("speed"); ok && finite(v) {
		p.Speed = v
	}
	if v, ok := r.Float("course"); ok && finite(v) {
		p.Course = v
	}
	if src, ok := r.lookup("batteryLevel"); ok {
		if v, ok := src.Float("batteryLevel"); ok {
			p.BatteryLevel = &v
		}
	}
	if src, ok := r.lookup("ignition"); ok {
		if v, ok := src.Bool("ignition"); ok {
			p.Ignition = &v
		}
	}
	if src, ok := r.lookup("totalDistance"); ok {
		if v, ok := src.Float("totalDistance"); ok {
			p.TotalDistance = &v
		}
	}
	for _, key := range []string{"fixTime", "deviceTime", "serverTime"} {
		if t, ok := r.Time(key); ok {
			p.FixTime = &t
			break
		}
	}
	return p
}

// HasCoordinates reports whether latitude and longitude were both present,
// numeric and finite. Latitude and Longitude are nil otherwise.
func (p Position) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
