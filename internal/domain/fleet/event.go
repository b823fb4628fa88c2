package fleet

import (
	"strings"
	"time"
)

// EventType is the closed set of discrete occurrences the dashboard reacts to.
type EventType string

const (
	EventAlarm         EventType = "alarm"
	EventSOS           EventType = "sos"
	EventIgnitionOn    EventType = "ignitionOn"
	EventIgnitionOff   EventType = "ignitionOff"
	EventGeofenceEnter EventType = "geofenceEnter"
	EventGeofenceExit  EventType = "geofenceExit"
	EventOverspeed     EventType = "overspeed"
	EventLowBattery    EventType = "lowBattery"
	EventDeviceOnline  EventType = "deviceOnline"
	EventDeviceOffline EventType = "deviceOffline"
	EventUnknown       EventType = "unknown"
)

// EventTypes lists every known type except EventUnknown.
var EventTypes = []EventType{
	EventAlarm, EventSOS, EventIgnitionOn, EventIgnitionOff,
	EventGeofenceEnter, EventGeofenceExit, EventOverspeed,
	EventLowBattery, EventDeviceOnline, EventDeviceOffline,
}

var eventAliases = map[string]EventType{
	"deviceoverspeed": EventOverspeed,
	"speeding":        EventOverspeed,
	"lowbattery":      EventLowBattery,
	"batterylow":      EventLowBattery,
	"panic":           EventSOS,
}

// ParseEventType maps a raw wire type onto EventType. Matching is
// case-insensitive; anything unrecognised becomes EventUnknown.
func ParseEventType(raw string) EventType {
	key := strings.ToLower(strings.TrimSpace(raw))
	for _, t := range EventTypes {
		if strings.ToLower(string(t)) == key {
			return t
		}
	}
	if t, ok := eventAliases[key]; ok {
		return t
	}
	return EventUnknown
}

// Contact is an emergency contact attached to an sos event.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone"`
}

// Event is one immutable discrete occurrence.
type Event struct {
	Type         EventType `json:"type"`
	RawType      string    `json:"rawType"`
	DeviceID     string    `json:"deviceId,omitempty"`
	DeviceName   string    `json:"name"`
	ServerTime   time.Time `json:"serverTime"`
	GeofenceName string    `json:"geofenceName,omitempty"`
	Alarm        string    `json:"alarm,omitempty"`
	Speed        *float64  `json:"speed,omitempty"`
	SpeedLimit   *float64  `json:"speedLimit,omitempty"`
	BatteryLevel *float64  `json:"batteryLevel,omitempty"`
	Contacts     []Contact `json:"contacts,omitempty"`
}

// EventFromRecord builds an Event from a raw event payload. receivedAt is used
// when the payload carries no parseable server timestamp.
func EventFromRecord(r Record, receivedAt time.Time) Event {
	e := Event{
		RawType:    r.String("type"),
		DeviceID:   r.String("deviceId"),
		DeviceName: firstString(r, "name", "deviceName"),
		ServerTime: receivedAt,
	}
	e.Type = ParseEventType(e.RawType)

	if src, ok := r.lookup("alarm"); ok {
		e.Alarm = src.String("alarm")
	}
	// Traccar reports sos as an alarm with a "sos" kind.
	if e.Type == EventAlarm && strings.EqualFold(e.Alarm, "sos") {
		e.Type = EventSOS
	}

	for _, key := range []string{"eventTime", "serverTime", "timestamp"} {
		if t, ok := r.Time(key); ok {
			e.ServerTime = t
			break
		}
	}

	e.GeofenceName = firstString(r, "geofenceName", "geofence")
	if e.GeofenceName == "" {
		if attrs := r.Object("attributes"); attrs != nil {
			e.GeofenceName = attrs.String("geofenceName")
		}
	}

	e.Speed = floatPtr(r, "speed")
	e.SpeedLimit = floatPtr(r, "speedLimit")
	e.BatteryLevel = floatPtr(r, "batteryLevel")
	e.Contacts = contacts(r)
	return e
}

// Label is the name used in human readable text, falling back to the id.
func (e Event) Label() string {
	if e.DeviceName != "" {
		return e.DeviceName
	}
	if e.DeviceID != "" {
		return "device " + e.DeviceID
	}
	return "unknown device"
}

func firstString(r Record, keys ...string) string {
	for _, key := range keys {
		if s := r.String(key); s != "" {
			return s
		}
	}
	return ""
}

func floatPtr(r Record, key string) *float64 {
	src, ok := r.lookup(key)
	if !ok {
		return nil
	}
	v, ok := src.Float(key)
	if !ok || !finite(v) {
		return nil
	}
	return &v
}

func contacts(r Record) []Contact {
	raw, ok := r["contactos"].([]any)
	if !ok {
		raw, ok = r["contacts"].([]any)
	}
	if !ok {
		return nil
	}
	out := make([]Contact, 0, len(raw))
	for _, item := range raw {
		var obj Record
		switch t := item.(type) {
		case map[string]any:
			obj = Record(t)
		case Record:
			obj = t
		default:
			continue
		}
		c := Contact{
			Name:  firstString(obj, "name", "nombre"),
			Phone: firstString(obj, "phone", "telefono"),
		}
		if c.Phone == "" && c.Name == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
