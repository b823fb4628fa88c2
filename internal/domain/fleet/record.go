package fleet

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is one entity exactly as received on the wire: a flat set of JSON
// fields. Records are treated as immutable once they enter the state store;
// use With or Clone to derive a changed copy.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// With returns a copy of r with key set to value.
func (r Record) With(key string, value any) Record {
	out := r.Clone()
	out[key] = value
	return out
}

// Key renders the value under key as an identity string. Numbers keep their
// textual form, so {"id": 1} and {"id": "1"} identify the same entity.
func (r Record) Key(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// String returns the value under key when it is a string or a number.
func (r Record) String(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	s, _ := r.Key(key)
	return s
}

// Float returns the numeric value under key. NaN is returned as-is so callers
// decide whether it is usable; strings are never coerced.
func (r Record) Float(key string) (float64, bool) {
	switch t := r[key].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (r Record) Bool(key string) (bool, bool) {
	b, ok := r[key].(bool)
	return b, ok
}

// Object returns a nested JSON object such as "attributes".
func (r Record) Object(key string) Record {
	switch t := r[key].(type) {
	case Record:
		return t
	case map[string]any:
		return Record(t)
	default:
		return nil
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Time parses the timestamp under key. Zone-less values are read as UTC.
func (r Record) Time(key string) (time.Time, bool) {
	s, ok := r[key].(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// lookup reads key from the record itself, falling back to its attributes.
func (r Record) lookup(key string) (Record, bool) {
	if _, ok := r[key]; ok {
		return r, true
	}
	if attrs := r.Object("attributes"); attrs != nil {
		if _, ok := attrs[key]; ok {
			return attrs, true
		}
	}
	return nil, false
}
