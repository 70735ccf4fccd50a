package companion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"diaryface/internal/battery"
	"diaryface/internal/model"
	"diaryface/internal/proto"
	"diaryface/internal/scheduler"
	"diaryface/internal/transport"
)

var t0 = time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

type fakeSource struct {
	occ   []model.Occurrence
	todos []model.Todo
	lists []string
}

func (f *fakeSource) Upcoming(_ time.Time, max int) []model.Occurrence {
	if len(f.occ) > max {
		return f.occ[:max]
	}
	return f.occ
}

func (f *fakeSource) Todos(list int) []model.Todo { return f.todos }
func (f *fakeSource) Lists() []string             { return f.lists }

func events(n int) []model.Occurrence {
	out := make([]model.Occurrence, n)
	for i := range out {
		start := t0.Add(time.Duration(i+1)*30*time.Minute + 90*time.Second)
		out[i] = model.Occurrence{
			SourceID: "home",
			UID:      fmt.Sprintf("ev%d", i),
			Summary:  fmt.Sprintf("Event %d", i),
			Start:    start,
			End:      start.Add(time.Hour),
			Alarms:   []int32{-600},
		}
	}
	return out
}

type rig struct {
	link  *transport.Link
	comp  *Companion
	sched *scheduler.Scheduler
	ctx   context.Context
}

func newRig(t *testing.T, src Source) *rig {
	t.Helper()
	link := transport.New(256, 64)
	link.SetConnected(true)
	comp := New(Config{
		Loc:      time.UTC,
		Settings: proto.Settings{Config: model.ConfigData{DayName: true}},
		Colors:   map[string]model.RGB{"home": {0x11, 0x22, 0x33}},
	}, src, link.Phone(), battery.StaticReader{Percent: 77})
	comp.SetClock(func() time.Time { return t0 })

	sched, err := scheduler.New(scheduler.Config{
		Format:    proto.FormatColored,
		Loc:       time.UTC,
		TitleMax:  13,
		ListIndex: proto.AllReminders,
	}, link.Device(), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return &rig{link: link, comp: comp, sched: sched, ctx: context.Background()}
}

// pump relays messages both ways until neither side has anything queued.
func (r *rig) pump(t *testing.T) (toDevice [][]byte) {
	t.Helper()
	for {
		select {
		case msg := <-r.link.Phone().Inbox():
			if err := r.comp.Handle(r.ctx, msg); err != nil {
				t.Fatalf("companion: %v", err)
			}
		case msg := <-r.link.Device().Inbox():
			toDevice = append(toDevice, msg)
			r.sched.HandleInbound(t0, msg)
		default:
			return toDevice
		}
	}
}

func TestFullCycleOverTransport(t *testing.T) {
	src := &fakeSource{
		occ:   events(20),
		todos: []model.Todo{{Summary: "milk"}, {Summary: "bread", Completed: true}},
		lists: []string{"Home", "Work"},
	}
	r := newRig(t, src)
	r.sched.Start(t0)
	msgs := r.pump(t)

	calendarChunks := 0
	for _, m := range msgs {
		if len(m) > 256 {
			t.Fatalf("message of %d bytes exceeds the link bound", len(m))
		}
		d, err := proto.DecodeDict(m)
		if err != nil {
			t.Fatal(err)
		}
		if d.Has(proto.KeyCalendarResponse) {
			calendarChunks++
			if g, _ := proto.Generation(d); g == 0 {
				t.Fatal("calendar chunk without generation")
			}
		}
	}
	if calendarChunks < 2 {
		t.Fatalf("expected a multi-chunk calendar, got %d chunks", calendarChunks)
	}

	f := r.sched.Snapshot()
	if len(f.Events) != MaxEvents {
		t.Fatalf("events=%d want %d", len(f.Events), MaxEvents)
	}
	if !f.Events[0].HasColor || f.Events[0].Color != (model.RGB{0x11, 0x22, 0x33}) {
		t.Fatalf("color not carried: %+v", f.Events[0])
	}
	if f.Events[0].Alarms[0] != -600 {
		t.Fatalf("alarm not carried: %+v", f.Events[0].Alarms)
	}
	if f.Label != "31m:Event 0\n1H1:Event 1" {
		t.Fatalf("label=%q", f.Label)
	}
	if f.Reminders != "milk\nbread" {
		t.Fatalf("reminders=%q", f.Reminders)
	}
	if len(f.Lists) != 2 || f.Lists[1].Title != "Work" {
		t.Fatalf("lists=%+v", f.Lists)
	}
	if !f.Settings.DayName {
		t.Fatalf("settings=%+v", f.Settings)
	}
	if f.State != scheduler.Idle {
		t.Fatalf("state=%s", f.State)
	}
}

func TestEmptyCalendar(t *testing.T) {
	r := newRig(t, &fakeSource{})
	r.sched.Start(t0)
	r.pump(t)
	f := r.sched.Snapshot()
	if len(f.Events) != 0 || f.Label != "No events." || f.State != scheduler.Idle {
		t.Fatalf("frame=%+v", f)
	}
}

func TestBatteryRequest(t *testing.T) {
	r := newRig(t, &fakeSource{})
	r.sched.RequestPeerBattery()
	r.pump(t)
	if b := r.sched.Snapshot().PeerBattery; b.Level != 77 || b.State != model.BatteryDischarging {
		t.Fatalf("peer battery=%+v", b)
	}
}

func TestReconnectTriggersRefetch(t *testing.T) {
	r := newRig(t, &fakeSource{occ: events(1)})
	if err := r.comp.SendReconnect(r.ctx); err != nil {
		t.Fatal(err)
	}
	r.pump(t)
	if len(r.sched.Snapshot().Events) != 1 {
		t.Fatalf("reconnect did not refetch: %+v", r.sched.Snapshot())
	}
}

func TestLegacyFormatRejected(t *testing.T) {
	r := newRig(t, &fakeSource{})
	msg, err := proto.EncodeRequest(proto.Request{Kind: proto.RequestCalendar, Format: proto.FormatLegacy})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.comp.Handle(r.ctx, msg); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestNonRequestIgnored(t *testing.T) {
	r := newRig(t, &fakeSource{})
	msg, err := proto.EncodeDict(proto.Dict{proto.Uint8(proto.KeyReconnect, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.comp.Handle(r.ctx, msg); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-r.link.Device().Inbox():
		t.Fatalf("unexpected reply %v", m)
	default:
	}
}
