package proto

import (
	"errors"
	"fmt"
)

var ErrUnknownRequest = errors.New("proto: unknown request kind")

// RequestKind enumerates the outbound requests the device issues.
type RequestKind uint8

const (
	RequestCalendar RequestKind = iota + 1
	RequestReminders
	RequestReminderLists
	RequestBattery
	RequestSettings
)

func (k RequestKind) String() string {
	switch k {
	case RequestCalendar:
		return "calendar"
	case RequestReminders:
		return "reminders"
	case RequestReminderLists:
		return "reminder_lists"
	case RequestBattery:
		return "battery"
	case RequestSettings:
		return "settings"
	default:
		return "unknown"
	}
}

// Request carries the parameters of one outbound request. Only the fields
// relevant to Kind are encoded; Generation 0 means untagged.
type Request struct {
	Kind       RequestKind
	Format     ResponseFormat
	ListIndex  int8
	Generation uint32
}

// RequestDict builds the dictionary for r.
//
// Shapes:
//   - calendar:       {1: i8 -1, 36: u8 format, 40: u32 generation}
//   - reminders:      {18: i8 list index (-1 = all), 40: u32 generation}
//   - reminder lists: {37: i8 -1, 40: u32 generation}
//   - battery:        {8: i8 -1}
//   - settings:       {27: i8 -1}
func RequestDict(r Request) (Dict, error) {
	var d Dict
	switch r.Kind {
	case RequestCalendar:
		d = Dict{Int8(KeyRequestCalendar, -1), Uint8(KeyCalendarResponseFormat, uint8(r.Format))}
	case RequestReminders:
		d = Dict{Int8(KeyRequestReminders, r.ListIndex)}
	case RequestReminderLists:
		d = Dict{Int8(KeyRequestReminderLists, -1)}
	case RequestBattery:
		return Dict{Int8(KeyRequestBattery, -1)}, nil
	case RequestSettings:
		return Dict{Int8(KeyRequestSettings, -1)}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownRequest, r.Kind)
	}
	if r.Generation != 0 {
		d = append(d, Uint32(KeyGeneration, r.Generation))
	}
	return d, nil
}

// EncodeRequest builds the wire payload for r.
func EncodeRequest(r Request) ([]byte, error) {
	d, err := RequestDict(r)
	if err != nil {
		return nil, err
	}
	return EncodeDict(d)
}

// ParseRequest recognizes an inbound request dictionary. ok is false when d
// carries no request key.
func ParseRequest(d Dict) (r Request, ok bool, err error) {
	switch {
	case d.Has(KeyRequestCalendar):
		r.Kind = RequestCalendar
		r.Format = FormatExtended
		if t, found := d.Find(KeyCalendarResponseFormat); found {
			v, err := t.AsUint()
			if err != nil {
				return Request{}, true, err
			}
			r.Format = ResponseFormat(v)
		}
	case d.Has(KeyRequestReminders):
		t, _ := d.Find(KeyRequestReminders)
		idx, err := t.AsInt8()
		if err != nil {
			return Request{}, true, err
		}
		r.Kind = RequestReminders
		r.ListIndex = idx
	case d.Has(KeyRequestReminderLists):
		r.Kind = RequestReminderLists
	case d.Has(KeyRequestBattery):
		return Request{Kind: RequestBattery}, true, nil
	case d.Has(KeyRequestSettings):
		return Request{Kind: RequestSettings}, true, nil
	default:
		return Request{}, false, nil
	}
	gen, err := Generation(d)
	if err != nil {
		return Request{}, true, err
	}
	r.Generation = gen
	return r, true, nil
}

// Generation returns the generation tag of d, or 0 when absent.
func Generation(d Dict) (uint32, error) {
	t, ok := d.Find(KeyGeneration)
	if !ok {
		return 0, nil
	}
	return t.AsUint()
}

// ResponseOverhead is the dictionary overhead around one response blob,
// including the generation tuple when tagged.
func ResponseOverhead(tagged bool) int {
	n := DictHeaderLen + TupleHeaderLen
	if tagged {
		n += TupleHeaderLen + 4
	}
	return n
}

// ResponseDict wraps one response blob, echoing generation when non-zero.
func ResponseDict(key Key, blob []byte, generation uint32) Dict {
	d := Dict{Bytes(key, blob)}
	if generation != 0 {
		d = append(d, Uint32(KeyGeneration, generation))
	}
	return d
}

// BatteryPayload encodes a battery response.
//
// Layout:
//   - u8: charge state
//   - i8: level percent
func BatteryPayload(state uint8, level int8) []byte {
	return []byte{state, uint8(level)}
}

// DecodeBatteryPayload decodes a BatteryPayload.
func DecodeBatteryPayload(b []byte) (state uint8, level int8, ok bool) {
	if len(b) != 2 {
		return 0, 0, false
	}
	return b[0], int8(b[1]), true
}
