package fleet

import "time"

// Status is the connectivity state reported for a device.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusUnknown Status = "unknown"
)

// ParseStatus maps a raw status string, defaulting to StatusUnknown.
func ParseStatus(raw string) Status {
	switch Status(raw) {
	case StatusOnline, StatusOffline:
		return Status(raw)
	default:
		return StatusUnknown
	}
}

// DeviceIdentity is the identity field of a device record.
const DeviceIdentity = "id"

// Device is the typed view of a merged device record.
type Device struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	UniqueID   string     `json:"uniqueId,omitempty"`
	Category   string     `json:"category,omitempty"`
	GroupID    string     `json:"groupId,omitempty"`
	Status     Status     `json:"status"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
	Disabled   bool       `json:"disabled"`
}

// DeviceFromRecord projects a device record onto the typed view.
func DeviceFromRecord(r Record) Device {
	d := Device{
		ID:       r.String(DeviceIdentity),
		Name:     r.String("name"),
		UniqueID: r.String("uniqueId"),
		Category: r.String("category"),
		GroupID:  r.String("groupId"),
		Status:   ParseStatus(r.String("status")),
	}
	if t, ok := r.Time("lastUpdate"); ok {
		d.LastUpdate = &t
	}
	if disabled, ok := r.Bool("disabled"); ok {
		d.Disabled = disabled
	}
	return d
}
