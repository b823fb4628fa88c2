package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"fleetwatch/internal/domain/fleet"
)

// Message is one typed unit emitted by the Manager, in arrival order.
type Message interface {
	isMessage()
}

// DeviceBatch carries partial device records.
type DeviceBatch struct {
	Records []fleet.Record
}

// PositionBatch carries partial position records keyed by deviceId.
type PositionBatch struct {
	Records []fleet.Record
}

// DiscreteEvent is a single one-shot occurrence.
type DiscreteEvent struct {
	Event fleet.Event
	Raw   fleet.Record
}

// Closed is the last message of a stream. Err is nil after a local Close.
type Closed struct {
	Err error
}

// Error reports a problem that did not end the stream, such as a malformed
// frame.
type Error struct {
	Err error
}

func (DeviceBatch) isMessage()   {}
func (PositionBatch) isMessage() {}
func (DiscreteEvent) isMessage() {}
func (Closed) isMessage()        {}
func (Error) isMessage()         {}

// Frame is one decoded inbound frame. Any key may be absent.
type Frame struct {
	Devices   []fleet.Record `json:"devices"`
	Positions []fleet.Record `json:"positions"`
	Event     fleet.Record   `json:"event"`
	Events    []fleet.Record `json:"events"`
}

// ParseFrame decodes a JSON frame. Numbers keep their textual form so
// numeric ids make stable identity keys.
func ParseFrame(data []byte) (Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var f Frame
	if err := dec.Decode(&f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return f, nil
}

// Messages splits the frame into typed messages: devices, then positions,
// then the single event, then the event array.
func (f Frame) Messages(receivedAt time.Time) []Message {
	var out []Message
	if len(f.Devices) > 0 {
		out = append(out, DeviceBatch{Records: f.Devices})
	}
	if len(f.Positions) > 0 {
		out = append(out, PositionBatch{Records: f.Positions})
	}
	if f.Event != nil {
		out = append(out, DiscreteEvent{Event: fleet.EventFromRecord(f.Event, receivedAt), Raw: f.Event})
	}
	for _, raw := range f.Events {
		if raw == nil {
			continue
		}
		out = append(out, DiscreteEvent{Event: fleet.EventFromRecord(raw, receivedAt), Raw: raw})
	}
	return out
}
