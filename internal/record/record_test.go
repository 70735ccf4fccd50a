package record

import (
	"errors"
	"strings"
	"testing"
	"time"

	"diaryface/internal/model"
)

func TestDecodeRecordsStride(t *testing.T) {
	buf := make([]byte, 3*ReminderListSize+5)
	for i := 0; i < 3; i++ {
		buf[i*ReminderListSize] = byte(i + 1)
	}
	recs, err := DecodeRecords(buf, ReminderListSize)
	if err != nil {
		t.Fatalf("DecodeRecords: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records want 3", len(recs))
	}
	for i, r := range recs {
		if len(r) != ReminderListSize || r[0] != byte(i+1) {
			t.Fatalf("record %d: len=%d first=%d", i, len(r), r[0])
		}
		if cap(r) != ReminderListSize {
			t.Fatalf("record %d must not expose bytes past its stride (cap=%d)", i, cap(r))
		}
	}
}

func TestDecodeRecordsShortBufferIsMalformed(t *testing.T) {
	recs, err := DecodeRecords(make([]byte, ReminderSize-1), ReminderSize)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected zero records, got %d", len(recs))
	}
	if _, err := DecodeRecords(nil, 0); !errors.Is(err, ErrMalformed) {
		t.Fatalf("zero stride: expected ErrMalformed, got %v", err)
	}
}

func TestEventCodecRoundTrip(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	start := time.Date(2026, 10, 18, 9, 30, 0, 0, loc)
	ev := model.Event{
		Index:       4,
		Title:       "Standup",
		HasLocation: true,
		Location:    "Room 3",
		Start:       start,
		End:         start.Add(15 * time.Minute),
		Alarms:      [2]int32{-600, -60},
		HasColor:    true,
		Color:       model.RGB{0xff, 0x55, 0x00},
	}
	for _, v := range []model.EventVariant{model.VariantExtended, model.VariantColored} {
		c, err := NewEventCodec(v, loc)
		if err != nil {
			t.Fatal(err)
		}
		buf := c.Encode(ev)
		if len(buf) != c.Size() {
			t.Fatalf("%s: encoded %d bytes want %d", v, len(buf), c.Size())
		}
		got, err := c.Decode(buf)
		if err != nil {
			t.Fatalf("%s: decode: %v", v, err)
		}
		if got.Variant != v || got.Index != 4 || got.Title != "Standup" || got.Location != "Room 3" || !got.HasLocation {
			t.Fatalf("%s: fields mismatch: %+v", v, got)
		}
		if !got.Start.Equal(ev.Start) || !got.End.Equal(ev.End) {
			t.Fatalf("%s: times mismatch: %v/%v", v, got.Start, got.End)
		}
		if got.Alarms != ev.Alarms {
			t.Fatalf("%s: alarms %v", v, got.Alarms)
		}
		if v == model.VariantColored && (!got.HasColor || got.Color != ev.Color) {
			t.Fatalf("colored: color lost: %+v", got)
		}
		if v == model.VariantExtended && got.HasColor {
			t.Fatal("extended layout carries no color")
		}
	}
}

func TestExtendedStoresWallClockSeconds(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	c, _ := NewEventCodec(model.VariantExtended, loc)
	start := time.Date(2026, 1, 2, 8, 0, 0, 0, loc)
	buf := c.Encode(model.Event{Start: start})
	wall := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC).Unix()
	if got := int64(getI32(buf, extStart)); got != wall {
		t.Fatalf("start seconds=%d want wall %d", got, wall)
	}
}

func TestTitleClampedToBuffer(t *testing.T) {
	long := strings.Repeat("x", 100)
	c, _ := NewEventCodec(model.VariantColored, time.UTC)
	got, err := c.Decode(c.Encode(model.Event{Title: long}))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Title) != c.TitleMax() {
		t.Fatalf("title len=%d want %d", len(got.Title), c.TitleMax())
	}

	// A multi-byte rune straddling the limit is dropped, not split.
	r, _ := DecodeReminder(EncodeReminder(model.Reminder{Title: strings.Repeat("a", 19) + "é"}))
	if r.Title != strings.Repeat("a", 19) {
		t.Fatalf("title=%q", r.Title)
	}
}

func TestUnterminatedStringReadsWholeBuffer(t *testing.T) {
	buf := make([]byte, ReminderListSize)
	for i := 1; i < len(buf); i++ {
		buf[i] = 'z'
	}
	l, err := DecodeReminderList(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Title) != ReminderListTitleLen {
		t.Fatalf("title len=%d", len(l.Title))
	}
}

func TestReminderRoundTrip(t *testing.T) {
	in := model.Reminder{Index: 2, Title: "Buy milk", Completed: true, HasDueDate: true, DueDate: "Sun 18 Oct 17:00"}
	buf := EncodeReminder(in)
	if len(buf) != ReminderSize {
		t.Fatalf("size=%d", len(buf))
	}
	out, err := DecodeReminder(buf)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
	if _, err := DecodeReminder(buf[:10]); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestUnknownVariant(t *testing.T) {
	if _, err := NewEventCodec(0, nil); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
}
