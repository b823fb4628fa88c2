// Package merge consolidates partial entity records into canonical state.
package merge

import "fleetwatch/internal/domain/fleet"

// KeyFunc selects the identity of a record. ok is false when the record
// carries no usable identity.
type KeyFunc func(fleet.Record) (key string, ok bool)

// ByField returns a KeyFunc reading the identity from one field.
func ByField(field string) KeyFunc {
	return func(r fleet.Record) (string, bool) {
		return r.Key(field)
	}
}

var (
	// Devices are keyed by their own id.
	Devices = ByField(fleet.DeviceIdentity)
	// Positions are keyed by the device they belong to.
	Positions = ByField(fleet.PositionIdentity)
)

// Merge upserts incoming into current and returns a new slice. For every
// incoming record whose identity already exists, the incoming fields
// overwrite the matching fields and every other field is kept; unseen
// identities are appended in arrival order. The result holds exactly one
// record per identity. Neither input slice nor any record in them is
// modified, so readers holding current never observe a partial merge.
//
// Records without an identity are dropped. There is no timestamp
// arbitration: the last record for an identity wins field by field.
func Merge(current, incoming []fleet.Record, key KeyFunc) []fleet.Record {
	if len(incoming) == 0 && unique(current, key) {
		return current
	}

	out := make([]fleet.Record, 0, len(current)+len(incoming))
	index := make(map[string]int, len(current)+len(incoming))

	upsert := func(r fleet.Record) {
		id, ok := key(r)
		if !ok {
			return
		}
		pos, seen := index[id]
		if !seen {
			index[id] = len(out)
			out = append(out, r)
			return
		}
		merged := out[pos].Clone()
		for field, value := range r {
			merged[field] = value
		}
		out[pos] = merged
	}

	for _, r := range current {
		upsert(r)
	}
	for _, r := range incoming {
		upsert(r)
	}
	return out
}

func unique(records []fleet.Record, key KeyFunc) bool {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		id, ok := key(r)
		if !ok {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}
