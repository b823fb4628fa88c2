// Package mapview derives what the live map shows from merged fleet state:
// markers, the focused device and the viewport.
package mapview

import (
	"math"
	"strings"
	"sync"

	"fleetwatch/internal/domain/fleet"
	"fleetwatch/internal/geofence"
	"fleetwatch/internal/state"
)

// Icon names by device category.
var icons = map[string]string{
	"car":        "car",
	"truck":      "truck",
	"bus":        "bus",
	"motorcycle": "motorcycle",
	"bicycle":    "bicycle",
	"boat":       "boat",
	"person":     "person",
	"animal":     "animal",
	"van":        "van",
	"tractor":    "tractor",
}

const DefaultIcon = "default"

// IconFor returns the marker icon for a device category.
func IconFor(category string) string {
	if icon, ok := icons[strings.ToLower(category)]; ok {
		return icon
	}
	return DefaultIcon
}

// Rotation applies the icon offset to a heading and normalises to [0, 360).
func Rotation(course, offset float64) float64 {
	r := math.Mod(course+offset, 360)
	if r < 0 {
		r += 360
	}
	return r
}

type Marker struct {
	DeviceID  string       `json:"deviceId"`
	Name      string       `json:"name"`
	Category  string       `json:"category,omitempty"`
	Status    fleet.Status `json:"status"`
	Icon      string       `json:"icon"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Rotation  float64      `json:"rotation"`
	Speed     float64      `json:"speed"`
	Focused   bool         `json:"focused"`
}

type Viewport struct {
	Center geofence.Point `json:"center"`
	Zoom   float64        `json:"zoom"`
	// Animate is set when the viewport moved because of a focus change.
	Animate bool `json:"animate"`
}

type Config struct {
	DefaultCenter geofence.Point
	DefaultZoom   float64
	FocusZoom     float64
	HeadingOffset float64
}

// Click is a pointer event on the map. DeviceID is empty for empty map area.
type Click struct {
	DeviceID string
}

// Renderer tracks the focused device and the viewport. It never mutates fleet
// state; invalid positions are hidden from the map only.
type Renderer struct {
	cfg Config

	mu        sync.RWMutex
	focused   string
	viewport  Viewport
	geofences []geofence.Geofence
}

func NewRenderer(cfg Config) *Renderer {
	return &Renderer{
		cfg:      cfg,
		viewport: Viewport{Center: cfg.DefaultCenter, Zoom: cfg.DefaultZoom},
	}
}

// Markers projects every position with usable coordinates onto a marker.
func (r *Renderer) Markers(snap *state.Snapshot) []Marker {
	r.mu.RLock()
	focused := r.focused
	r.mu.RUnlock()

	positions := snap.Positions()
	markers := make([]Marker, 0, len(positions))
	for _, p := range positions {
		if !p.HasCoordinates() {
			continue
		}
		d, _ := snap.Device(p.DeviceID)
		markers = append(markers, Marker{
			DeviceID:  p.DeviceID,
			Name:      d.Name,
			Category:  d.Category,
			Status:    d.Status,
			Icon:      IconFor(d.Category),
			Latitude:  *p.Latitude,
			Longitude: *p.Longitude,
			Rotation:  Rotation(p.Course, r.cfg.HeadingOffset),
			Speed:     p.Speed,
			Focused:   p.DeviceID == focused,
		})
	}
	return markers
}

// Focus makes deviceID the single focused device and recenters on its current
// position at the focus zoom. A device without a usable position stays
// focused; the viewport is left where it is, without animation, and moves
// once a position arrives.
func (r *Renderer) Focus(deviceID string, snap *state.Snapshot) (Viewport, error) {
	if !snap.Known(deviceID) {
		return r.Viewport(), fleet.ErrUnknownDevice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := r.focused != deviceID
	r.focused = deviceID
	if p, ok := snap.Position(deviceID); ok && p.HasCoordinates() {
		r.viewport = Viewport{
			Center:  geofence.Point{Lat: *p.Latitude, Lng: *p.Longitude},
			Zoom:    r.cfg.FocusZoom,
			Animate: changed,
		}
		return r.viewport, nil
	}
	r.viewport.Animate = false
	return r.viewport, nil
}

// ClearFocus drops the focus and returns to the default viewport.
func (r *Renderer) ClearFocus() Viewport {
	r.mu.Lock()
	defer r.mu.Unlock()

	animate := r.focused != ""
	r.focused = ""
	r.viewport = Viewport{Center: r.cfg.DefaultCenter, Zoom: r.cfg.DefaultZoom, Animate: animate}
	return r.viewport
}

// HandleClick routes a map click. A marker click focuses its device and is
// not propagated to the empty-area handler, which clears the focus.
func (r *Renderer) HandleClick(c Click, snap *state.Snapshot) (Viewport, error) {
	if c.DeviceID != "" {
		return r.Focus(c.DeviceID, snap)
	}
	return r.ClearFocus(), nil
}

// Follow keeps the viewport on the focused device as its position changes.
// It reports whether the viewport moved.
func (r *Renderer) Follow(snap *state.Snapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.focused == "" {
		return false
	}
	p, ok := snap.Position(r.focused)
	if !ok || !p.HasCoordinates() {
		return false
	}
	center := geofence.Point{Lat: *p.Latitude, Lng: *p.Longitude}
	if center == r.viewport.Center && r.viewport.Zoom == r.cfg.FocusZoom {
		return false
	}
	r.viewport = Viewport{Center: center, Zoom: r.cfg.FocusZoom}
	return true
}

// Focused returns the focused device id, or "" when nothing is focused.
func (r *Renderer) Focused() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.focused
}

func (r *Renderer) Viewport() Viewport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewport
}

// SetGeofences replaces the overlay. Geofences are loaded once at startup.
func (r *Renderer) SetGeofences(fences []geofence.Geofence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.geofences = append([]geofence.Geofence(nil), fences...)
}

func (r *Renderer) Geofences() []geofence.Geofence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.geofences
}
