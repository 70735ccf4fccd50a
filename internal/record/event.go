package record

import (
	"encoding/binary"
	"fmt"
	"time"

	"diaryface/internal/model"
)

// Event layout sizes.
const (
	ExtendedEventSize = 104
	ColoredEventSize  = 104

	ExtendedTitleLen = 42
	ColoredTitleLen  = 40
)

// Extended layout:
//   - u8 index                 @0
//   - [42]byte title           @1
//   - u8 has_location          @43
//   - [42]byte location        @44
//   - u8 all_day               @86
//   - pad                      @87
//   - i32 start (local wall)   @88
//   - i32 end (local wall)     @92
//   - i32 alarms[2]            @96
const (
	extTitle    = 1
	extHasLoc   = 43
	extLocation = 44
	extAllDay   = 86
	extStart    = 88
	extEnd      = 92
	extAlarms   = 96
)

// Colored layout:
//   - u8 index                 @0
//   - [40]byte title           @1
//   - u8 has_location          @41
//   - [40]byte location        @42
//   - u8 all_day               @82
//   - pad                      @83
//   - i32 start (UTC)          @84
//   - i32 end (UTC)            @88
//   - i32 alarms[2]            @92
//   - u8 has_color             @100
//   - [3]u8 rgb                @101
const (
	colTitle    = 1
	colHasLoc   = 41
	colLocation = 42
	colAllDay   = 82
	colStart    = 84
	colEnd      = 88
	colAlarms   = 92
	colHasColor = 100
	colColor    = 101
)

// EventCodec encodes and decodes events of one configured variant. Loc is
// the wall-clock zone used by the extended layout, whose timestamps are local
// seconds rather than UTC.
type EventCodec struct {
	Variant model.EventVariant
	Loc     *time.Location
}

// NewEventCodec validates the variant. A nil loc means time.Local.
func NewEventCodec(v model.EventVariant, loc *time.Location) (EventCodec, error) {
	if v != model.VariantExtended && v != model.VariantColored {
		return EventCodec{}, fmt.Errorf("%w: %d", ErrUnknownVariant, v)
	}
	if loc == nil {
		loc = time.Local
	}
	return EventCodec{Variant: v, Loc: loc}, nil
}

// Size is the record stride of the codec's variant.
func (c EventCodec) Size() int {
	if c.Variant == model.VariantColored {
		return ColoredEventSize
	}
	return ExtendedEventSize
}

// TitleMax is the longest title the layout can carry.
func (c EventCodec) TitleMax() int {
	if c.Variant == model.VariantColored {
		return ColoredTitleLen - 1
	}
	return ExtendedTitleLen - 1
}

func (c EventCodec) Decode(b []byte) (model.Event, error) {
	if len(b) < c.Size() {
		return model.Event{}, fmt.Errorf("%w: event needs %d bytes, got %d", ErrMalformed, c.Size(), len(b))
	}
	switch c.Variant {
	case model.VariantExtended:
		return model.Event{
			Variant:     model.VariantExtended,
			Index:       b[0],
			Title:       getString(b[extTitle : extTitle+ExtendedTitleLen]),
			HasLocation: getBool(b[extHasLoc]),
			Location:    getString(b[extLocation : extLocation+ExtendedTitleLen]),
			AllDay:      getBool(b[extAllDay]),
			Start:       c.fromWall(getI32(b, extStart)),
			End:         c.fromWall(getI32(b, extEnd)),
			Alarms:      [2]int32{getI32(b, extAlarms), getI32(b, extAlarms+4)},
		}, nil
	case model.VariantColored:
		ev := model.Event{
			Variant:     model.VariantColored,
			Index:       b[0],
			Title:       getString(b[colTitle : colTitle+ColoredTitleLen]),
			HasLocation: getBool(b[colHasLoc]),
			Location:    getString(b[colLocation : colLocation+ColoredTitleLen]),
			AllDay:      getBool(b[colAllDay]),
			Start:       time.Unix(int64(getI32(b, colStart)), 0).In(c.Loc),
			End:         time.Unix(int64(getI32(b, colEnd)), 0).In(c.Loc),
			Alarms:      [2]int32{getI32(b, colAlarms), getI32(b, colAlarms+4)},
			HasColor:    getBool(b[colHasColor]),
		}
		copy(ev.Color[:], b[colColor:colColor+3])
		return ev, nil
	default:
		return model.Event{}, fmt.Errorf("%w: %d", ErrUnknownVariant, c.Variant)
	}
}

func (c EventCodec) Encode(ev model.Event) []byte {
	buf := make([]byte, c.Size())
	buf[0] = ev.Index
	switch c.Variant {
	case model.VariantExtended:
		putString(buf[extTitle:extTitle+ExtendedTitleLen], ev.Title)
		buf[extHasLoc] = putBool(ev.HasLocation)
		putString(buf[extLocation:extLocation+ExtendedTitleLen], ev.Location)
		buf[extAllDay] = putBool(ev.AllDay)
		putI32(buf, extStart, c.toWall(ev.Start))
		putI32(buf, extEnd, c.toWall(ev.End))
		putI32(buf, extAlarms, ev.Alarms[0])
		putI32(buf, extAlarms+4, ev.Alarms[1])
	case model.VariantColored:
		putString(buf[colTitle:colTitle+ColoredTitleLen], ev.Title)
		buf[colHasLoc] = putBool(ev.HasLocation)
		putString(buf[colLocation:colLocation+ColoredTitleLen], ev.Location)
		buf[colAllDay] = putBool(ev.AllDay)
		putI32(buf, colStart, int32(ev.Start.Unix()))
		putI32(buf, colEnd, int32(ev.End.Unix()))
		putI32(buf, colAlarms, ev.Alarms[0])
		putI32(buf, colAlarms+4, ev.Alarms[1])
		buf[colHasColor] = putBool(ev.HasColor)
		copy(buf[colColor:colColor+3], ev.Color[:])
	}
	return buf
}

// fromWall turns local wall-clock seconds into an instant in c.Loc.
func (c EventCodec) fromWall(secs int32) time.Time {
	w := time.Unix(int64(secs), 0).UTC()
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), 0, c.Loc)
}

func (c EventCodec) toWall(t time.Time) int32 {
	l := t.In(c.Loc)
	w := time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), 0, time.UTC)
	return int32(w.Unix())
}

func getI32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off : off+4]))
}

func putI32(b []byte, off int, v int32) {
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(v))
}
