package geofence

import (
	"go.uber.org/zap"

	"fleetwatch/internal/domain/fleet"
)

// Geofence is a static, advisory area loaded once at startup.
type Geofence struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Area        string `json:"area"`
	Shape       Shape  `json:"shape"`
}

// Load parses geofence records ({id, name, description, area}). Records whose
// area cannot be parsed are skipped and logged at debug level.
func Load(records []fleet.Record, log *zap.Logger) []Geofence {
	if log == nil {
		log = zap.NewNop()
	}

	out := make([]Geofence, 0, len(records))
	for _, r := range records {
		area := r.String("area")
		shape, ok := Parse(area)
		if !ok {
			log.Debug("Skipping geofence with unsupported area",
				zap.String("geofence_id", r.String("id")),
				zap.String("area", area),
			)
			continue
		}
		out = append(out, Geofence{
			ID:          r.String("id"),
			Name:        r.String("name"),
			Description: r.String("description"),
			Area:        area,
			Shape:       shape,
		})
	}
	return out
}
