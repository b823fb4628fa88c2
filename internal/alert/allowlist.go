package alert

import "fleetwatch/internal/domain/fleet"

// AllowList is the user's set of event types permitted to raise an alert.
type AllowList interface {
	Allowed(t fleet.EventType) bool
}

// StaticAllowList is an in-memory allow-list.
type StaticAllowList map[fleet.EventType]struct{}

// NewAllowList builds an allow-list from raw type names. Aliases such as
// "deviceOverspeed" resolve to their canonical type.
func NewAllowList(types ...string) StaticAllowList {
	list := make(StaticAllowList, len(types))
	for _, raw := range types {
		if raw == string(fleet.EventUnknown) {
			list[fleet.EventUnknown] = struct{}{}
			continue
		}
		if t := fleet.ParseEventType(raw); t != fleet.EventUnknown {
			list[t] = struct{}{}
		}
	}
	return list
}

func (l StaticAllowList) Allowed(t fleet.EventType) bool {
	_, ok := l[t]
	return ok
}

// Types lists the permitted types in declaration order.
func (l StaticAllowList) Types() []fleet.EventType {
	out := make([]fleet.EventType, 0, len(l))
	for _, t := range fleet.EventTypes {
		if l.Allowed(t) {
			out = append(out, t)
		}
	}
	if l.Allowed(fleet.EventUnknown) {
		out = append(out, fleet.EventUnknown)
	}
	return out
}
