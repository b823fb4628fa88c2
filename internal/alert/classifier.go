package alert

import (
	"fmt"
	"strings"

	"fleetwatch/internal/domain/fleet"
)

// Category drives the audio, colour and persistence of an alert.
type Category string

const (
	CategorySOS   Category = "sos"
	CategoryAlarm Category = "alarm"
	CategoryInfo  Category = "info"
)

// Treatment is the audio/visual presentation of a category.
type Treatment struct {
	Color     string `json:"color"`
	Audio     string `json:"audio"`
	LoopAudio bool   `json:"loopAudio"`
}

var treatments = map[Category]Treatment{
	CategorySOS:   {Color: "red", Audio: "sos.mp3", LoopAudio: true},
	CategoryAlarm: {Color: "orange", Audio: "alarm.mp3"},
	CategoryInfo:  {Color: "blue", Audio: "notification.mp3"},
}

// TreatmentFor returns the presentation of a category; unknown categories
// are shown as info.
func TreatmentFor(c Category) Treatment {
	if t, ok := treatments[c]; ok {
		return t
	}
	return treatments[CategoryInfo]
}

// Classification is the derived, human facing form of an event.
type Classification struct {
	Type     fleet.EventType `json:"type"`
	Category Category        `json:"category"`
	Message  string          `json:"message"`
	// Spoken is the shorter text handed to speech synthesis.
	Spoken string `json:"spoken"`
	Image  string `json:"image"`
	Treatment
}

// Classify maps an event onto its message templates, image and category.
// Unknown types fall back to a generic info classification.
func Classify(e fleet.Event) Classification {
	name := e.Label()
	c := Classification{Type: e.Type}

	switch e.Type {
	case fleet.EventSOS:
		c.Category = CategorySOS
		c.Image = "sos.png"
		c.Message = fmt.Sprintf("SOS from %s", name)
		if len(e.Contacts) > 0 {
			c.Message += ". Contacts: " + formatContacts(e.Contacts)
		}
		c.Spoken = fmt.Sprintf("SOS alert from %s", name)
	case fleet.EventAlarm:
		c.Category = CategoryAlarm
		c.Image = "alarm.png"
		if e.Alarm != "" {
			c.Message = fmt.Sprintf("Alarm %s on %s", e.Alarm, name)
		} else {
			c.Message = fmt.Sprintf("Alarm on %s", name)
		}
		c.Spoken = fmt.Sprintf("Alarm on %s", name)
	case fleet.EventOverspeed:
		c.Category = CategoryAlarm
		c.Image = "speed.png"
		c.Message = fmt.Sprintf("%s is speeding", name)
		if e.Speed != nil {
			c.Message += fmt.Sprintf(" at %.0f km/h", *e.Speed)
		}
		if e.SpeedLimit != nil {
			c.Message += fmt.Sprintf(" (limit %.0f km/h)", *e.SpeedLimit)
		}
		c.Spoken = fmt.Sprintf("%s overspeed", name)
	case fleet.EventLowBattery:
		c.Category = CategoryAlarm
		c.Image = "battery.png"
		c.Message = fmt.Sprintf("%s battery low", name)
		if e.BatteryLevel != nil {
			c.Message += fmt.Sprintf(" (%.0f%%)", *e.BatteryLevel)
		}
		c.Spoken = fmt.Sprintf("%s low battery", name)
	case fleet.EventGeofenceEnter, fleet.EventGeofenceExit:
		c.Category = CategoryInfo
		c.Image = "geofence.png"
		verb := "entered"
		if e.Type == fleet.EventGeofenceExit {
			verb = "left"
		}
		fence := e.GeofenceName
		if fence == "" {
			fence = "a geofence"
		}
		c.Message = fmt.Sprintf("%s %s %s", name, verb, fence)
		c.Spoken = fmt.Sprintf("%s %s geofence", name, verb)
	case fleet.EventIgnitionOn, fleet.EventIgnitionOff:
		c.Category = CategoryInfo
		c.Image = "ignition.png"
		state := "on"
		if e.Type == fleet.EventIgnitionOff {
			state = "off"
		}
		c.Message = fmt.Sprintf("%s ignition %s", name, state)
		c.Spoken = c.Message
	case fleet.EventDeviceOnline:
		c.Category = CategoryInfo
		c.Image = "online.png"
		c.Message = fmt.Sprintf("%s is online", name)
		c.Spoken = c.Message
	case fleet.EventDeviceOffline:
		c.Category = CategoryInfo
		c.Image = "offline.png"
		c.Message = fmt.Sprintf("%s is offline", name)
		c.Spoken = c.Message
	default:
		c.Type = fleet.EventUnknown
		c.Category = CategoryInfo
		c.Image = "info.png"
		raw := e.RawType
		if raw == "" {
			raw = "event"
		}
		c.Message = fmt.Sprintf("%s: %s", name, raw)
		c.Spoken = fmt.Sprintf("New event for %s", name)
	}

	c.Treatment = TreatmentFor(c.Category)
	return c
}

func formatContacts(contacts []fleet.Contact) string {
	parts := make([]string, 0, len(contacts))
	for _, ct := range contacts {
		switch {
		case ct.Name != "" && ct.Phone != "":
			parts = append(parts, fmt.Sprintf("%s (%s)", ct.Name, ct.Phone))
		case ct.Phone != "":
			parts = append(parts, ct.Phone)
		default:
			parts = append(parts, ct.Name)
		}
	}
	return strings.Join(parts, ", ")
}
