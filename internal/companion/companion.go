// Package companion is the phone side of the link. It answers device
// requests from the ICS store, streaming collections in chunks that fit the
// link's message bound.
package companion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"diaryface/internal/battery"
	"diaryface/internal/chunk"
	"diaryface/internal/log"
	"diaryface/internal/model"
	"diaryface/internal/proto"
	"diaryface/internal/record"
)

// MaxEvents is the most events one calendar response carries.
const MaxEvents = 15

// ErrUnsupportedFormat answers a calendar request for a layout the
// companion cannot produce.
var ErrUnsupportedFormat = errors.New("companion: unsupported response format")

// Source supplies calendar data.
type Source interface {
	Upcoming(now time.Time, max int) []model.Occurrence
	Todos(list int) []model.Todo
	Lists() []string
}

// Link is the phone endpoint of the transport.
type Link interface {
	Connected() bool
	SendWait(ctx context.Context, msg []byte) error
	MaxMessageBytes() int
}

// Config holds the companion's tunables.
type Config struct {
	Loc       *time.Location
	MaxEvents int
	Settings  proto.Settings
	// Colors maps a source ID to the color sent with the colored layout.
	Colors map[string]model.RGB
}

// Companion answers requests arriving on a Link.
type Companion struct {
	cfg     Config
	src     Source
	link    Link
	battery battery.Reader
	now     func() time.Time
}

// New creates a companion. batt may be nil, in which case battery requests
// are answered with the unknown level.
func New(cfg Config, src Source, link Link, batt battery.Reader) *Companion {
	if cfg.Loc == nil {
		cfg.Loc = time.Local
	}
	if cfg.MaxEvents <= 0 || cfg.MaxEvents > MaxEvents {
		cfg.MaxEvents = MaxEvents
	}
	return &Companion{cfg: cfg, src: src, link: link, battery: batt, now: time.Now}
}

// SetClock replaces the clock used to select upcoming events.
func (c *Companion) SetClock(now func() time.Time) { c.now = now }

// Run answers requests until ctx is done. Every signal on reconnected sends
// a reconnect message so the device refetches.
func (c *Companion) Run(ctx context.Context, inbox <-chan []byte, reconnected <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-inbox:
			if err := c.Handle(ctx, msg); err != nil {
				log.Warn("companion: request failed", "err", err)
			}
		case <-reconnected:
			if err := c.SendReconnect(ctx); err != nil {
				log.Warn("companion: reconnect notice failed", "err", err)
			}
		}
	}
}

// SendReconnect tells the device the phone is reachable again.
func (c *Companion) SendReconnect(ctx context.Context) error {
	return c.send(ctx, proto.Dict{proto.Uint8(proto.KeyReconnect, 1)})
}

// Handle answers one inbound message. Messages that are not requests are
// ignored.
func (c *Companion) Handle(ctx context.Context, msg []byte) error {
	d, err := proto.DecodeDict(msg)
	if err != nil {
		return fmt.Errorf("companion: decode: %w", err)
	}
	req, ok, err := proto.ParseRequest(d)
	if err != nil {
		return fmt.Errorf("companion: parse request: %w", err)
	}
	if !ok {
		return nil
	}
	log.Debug("companion: request", "kind", req.Kind.String(), "generation", req.Generation)

	switch req.Kind {
	case proto.RequestCalendar:
		return c.answerCalendar(ctx, req)
	case proto.RequestReminders:
		return c.answerReminders(ctx, req)
	case proto.RequestReminderLists:
		return c.answerLists(ctx, req)
	case proto.RequestBattery:
		return c.answerBattery(ctx)
	case proto.RequestSettings:
		return c.send(ctx, proto.SettingsDict(c.cfg.Settings))
	default:
		return fmt.Errorf("%w: %d", proto.ErrUnknownRequest, req.Kind)
	}
}

func (c *Companion) answerCalendar(ctx context.Context, req proto.Request) error {
	var v model.EventVariant
	switch req.Format {
	case proto.FormatExtended:
		v = model.VariantExtended
	case proto.FormatColored:
		v = model.VariantColored
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	codec, err := record.NewEventCodec(v, c.cfg.Loc)
	if err != nil {
		return err
	}

	occ := c.src.Upcoming(c.now(), c.cfg.MaxEvents)
	recs := make([][]byte, 0, len(occ))
	for i, o := range occ {
		recs = append(recs, codec.Encode(c.event(uint8(i), v, o)))
	}
	return c.stream(ctx, proto.KeyCalendarResponse, recs, codec.Size(), req.Generation)
}

func (c *Companion) event(idx uint8, v model.EventVariant, o model.Occurrence) model.Event {
	ev := model.Event{
		Variant:     v,
		Index:       idx,
		Title:       o.Summary,
		HasLocation: o.Location != "",
		Location:    o.Location,
		AllDay:      o.AllDay,
		Start:       o.Start,
		End:         o.End,
	}
	copy(ev.Alarms[:], o.Alarms)
	if rgb, ok := c.cfg.Colors[o.SourceID]; ok {
		ev.HasColor, ev.Color = true, rgb
	}
	return ev
}

func (c *Companion) answerReminders(ctx context.Context, req proto.Request) error {
	todos := c.src.Todos(int(req.ListIndex))
	if len(todos) > chunk.MaxRecords {
		todos = todos[:chunk.MaxRecords]
	}
	recs := make([][]byte, 0, len(todos))
	for i, td := range todos {
		r := model.Reminder{Index: uint8(i), Title: td.Summary, Completed: td.Completed}
		if td.Due != nil {
			r.HasDueDate = true
			r.DueDate = td.Due.In(c.cfg.Loc).Format("01/02 15:04")
		}
		recs = append(recs, record.EncodeReminder(r))
	}
	return c.stream(ctx, proto.KeyRemindersResponse, recs, record.ReminderSize, req.Generation)
}

func (c *Companion) answerLists(ctx context.Context, req proto.Request) error {
	names := c.src.Lists()
	if len(names) > chunk.MaxRecords {
		names = names[:chunk.MaxRecords]
	}
	recs := make([][]byte, 0, len(names))
	for i, n := range names {
		recs = append(recs, record.EncodeReminderList(model.ReminderList{Index: uint8(i), Title: n}))
	}
	return c.stream(ctx, proto.KeyReminderListsResponse, recs, record.ReminderListSize, req.Generation)
}

func (c *Companion) answerBattery(ctx context.Context) error {
	st := model.UnknownBattery()
	if c.battery != nil {
		s, err := c.battery.Read(ctx)
		if err != nil {
			log.Warn("companion: battery read failed", "err", err)
		} else {
			st = s.Model()
		}
	}
	return c.send(ctx, proto.Dict{proto.Bytes(proto.KeyBatteryResponse, proto.BatteryPayload(st.State, st.Level))})
}

// stream splits recs into chunks that fit one message each and sends them
// in order, echoing gen.
func (c *Companion) stream(ctx context.Context, key proto.Key, recs [][]byte, size int, gen uint32) error {
	maxBlob := c.link.MaxMessageBytes() - proto.ResponseOverhead(gen != 0)
	blobs, err := chunk.Split(recs, size, maxBlob)
	if err != nil {
		return fmt.Errorf("companion: %s: %w", key, err)
	}
	for i, b := range blobs {
		if err := c.send(ctx, proto.ResponseDict(key, b, gen)); err != nil {
			return fmt.Errorf("companion: %s chunk %d/%d: %w", key, i+1, len(blobs), err)
		}
	}
	log.Debug("companion: response sent", "key", key.String(), "records", len(recs), "chunks", len(blobs), "generation", gen)
	return nil
}

func (c *Companion) send(ctx context.Context, d proto.Dict) error {
	b, err := proto.EncodeDict(d)
	if err != nil {
		return err
	}
	return c.link.SendWait(ctx, b)
}
