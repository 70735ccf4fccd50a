// Package scheduler is the device core: it owns the sessions, decides when
// to request data, renders the countdown and fires the haptic pulse.
//
// Every handler runs to completion before the next one starts. The Run loop
// in runner.go is the only caller in production; tests call the handlers
// directly with explicit timestamps.
package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"diaryface/internal/countdown"
	"diaryface/internal/log"
	"diaryface/internal/model"
	"diaryface/internal/proto"
	"diaryface/internal/record"
	"diaryface/internal/session"
)

// ErrFormat rejects a response format the device cannot decode.
var ErrFormat = errors.New("scheduler: unsupported response format")

// State is the refresh state machine position.
type State uint8

const (
	Idle State = iota
	AwaitingCalendar
	AwaitingReminders
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingCalendar:
		return "awaiting_calendar"
	case AwaitingReminders:
		return "awaiting_reminders"
	default:
		return "unknown"
	}
}

// Transport sends fire-and-forget messages to the peer. Send returning nil
// only means the message was queued; delivery failures come back later
// through HandleSendFailed.
type Transport interface {
	Connected() bool
	Send(msg []byte) error
}

// Haptics fires a vibration pulse.
type Haptics interface {
	Pulse()
}

// Display receives every rendered frame.
type Display interface {
	Show(Frame)
}

// SettingsStore persists the display toggles.
type SettingsStore interface {
	SaveSettings(model.ConfigData) error
}

// Config holds the scheduler's tunables.
type Config struct {
	Format   proto.ResponseFormat
	Loc      *time.Location
	TitleMax int

	// NotifyMinutes is the upper edge of the haptic window.
	NotifyMinutes int
	// RefreshEvery re-requests the calendar when the second event's minute
	// count is a multiple of it. 0 disables.
	RefreshEvery int
	// StaleAfter returns an unanswered fetch to Idle. 0 disables.
	StaleAfter time.Duration

	ListIndex int8
	Settings  model.ConfigData
	Clock12   bool
}

// Variant maps a response format to the record layout it carries.
func Variant(f proto.ResponseFormat) (model.EventVariant, error) {
	switch f {
	case proto.FormatExtended:
		return model.VariantExtended, nil
	case proto.FormatColored:
		return model.VariantColored, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrFormat, f)
	}
}

// Frame is everything the display shows after one handler ran.
type Frame struct {
	Time        time.Time
	Label       string
	First       countdown.Label
	Second      countdown.Label
	Reminders   string
	Status      string
	State       State
	Events      []model.Event
	Lists       []model.ReminderList
	Battery     model.BatteryStatus
	PeerBattery model.BatteryStatus
	Settings    model.ConfigData
	Connected   bool
	Pulses      int
}

// Scheduler is the single context threaded through every callback.
type Scheduler struct {
	cfg     Config
	link    Transport
	haptics Haptics
	display Display
	store   SettingsStore

	format    countdown.Formatter
	calendar  *session.Calendar
	reminders *session.Reminders
	lists     *session.ReminderLists

	state      State
	since      time.Time
	generation uint32

	first, second countdown.Label
	label         string
	pulsedFor     string
	pulses        int

	battery     model.BatteryStatus
	peerBattery model.BatteryStatus
	settings    model.ConfigData
	clock12     bool
	connected   bool
	lastFrame   Frame
}

// New builds a scheduler. store and display may be nil.
func New(cfg Config, link Transport, haptics Haptics, display Display, store SettingsStore) (*Scheduler, error) {
	v, err := Variant(cfg.Format)
	if err != nil {
		return nil, err
	}
	codec, err := record.NewEventCodec(v, cfg.Loc)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, errors.New("scheduler: nil transport")
	}
	if cfg.NotifyMinutes <= 0 {
		cfg.NotifyMinutes = countdown.NotifyMax
	}
	return &Scheduler{
		cfg:         cfg,
		link:        link,
		haptics:     haptics,
		display:     display,
		store:       store,
		format:      countdown.Formatter{TitleMax: cfg.TitleMax},
		calendar:    session.NewCalendar(codec),
		reminders:   session.NewReminders(),
		lists:       session.NewReminderLists(),
		label:       countdown.NoEvents,
		battery:     model.UnknownBattery(),
		peerBattery: model.UnknownBattery(),
		settings:    cfg.Settings,
		clock12:     cfg.Clock12,
		connected:   link.Connected(),
	}, nil
}

// State returns the refresh state.
func (s *Scheduler) State() State { return s.state }

// Snapshot returns the last rendered frame. It is not safe to call while
// Run is active; use a Display for that.
func (s *Scheduler) Snapshot() Frame { return s.lastFrame }

// Start issues the startup requests: settings, reminder lists, calendar.
func (s *Scheduler) Start(now time.Time) {
	s.send(proto.Request{Kind: proto.RequestSettings})
	s.requestLists()
	s.requestCalendar(now)
	s.render(now)
}

// HandleInbound processes one message from the peer.
func (s *Scheduler) HandleInbound(now time.Time, msg []byte) {
	d, err := proto.DecodeDict(msg)
	if err != nil {
		log.Warn("inbound: malformed message", "err", err, "len", len(msg))
		return
	}
	gen, err := proto.Generation(d)
	if err != nil {
		log.Warn("inbound: malformed generation", "err", err)
		return
	}

	if d.Has(proto.KeyReconnect) {
		log.Info("inbound: peer reconnected, refetching calendar")
		s.requestCalendar(now)
	}
	if t, ok := d.Find(proto.KeyCalendarResponse); ok {
		s.applyCalendar(now, t, gen)
	}
	if t, ok := d.Find(proto.KeyRemindersResponse); ok {
		s.applyReminders(t, gen)
	}
	if t, ok := d.Find(proto.KeyReminderListsResponse); ok {
		s.applyLists(t, gen)
	}
	if t, ok := d.Find(proto.KeyBatteryResponse); ok {
		s.applyPeerBattery(t)
	}
	if d.Has(proto.KeySettingsResponse) {
		s.applySettings(d)
	}
	if d.Has(proto.KeyReminderChange) && s.state == Idle {
		s.requestReminders(now)
	}
	s.render(now)
}

func (s *Scheduler) applyCalendar(now time.Time, t proto.Tuple, gen uint32) {
	blob, err := t.AsBytes()
	if err != nil {
		log.Warn("calendar: malformed tuple", "err", err)
		return
	}
	u, err := s.calendar.Apply(blob, gen)
	if !s.logApply(session.KindCalendar, err) {
		return
	}
	log.Debug("calendar: chunk applied",
		"phase", u.Phase.String(),
		"records", u.Records,
		"progress", s.calendar.Progress().Received,
		"expected", s.calendar.Progress().Expected,
	)
	if u.Complete {
		log.Info("calendar: fetch complete", "events", len(s.calendar.Events()), "generation", s.calendar.Generation())
		if !s.requestReminders(now) && s.state == AwaitingCalendar {
			s.state = Idle
		}
	}
}

func (s *Scheduler) applyReminders(t proto.Tuple, gen uint32) {
	blob, err := t.AsBytes()
	if err != nil {
		log.Warn("reminders: malformed tuple", "err", err)
		return
	}
	u, err := s.reminders.Apply(blob, gen)
	if !s.logApply(session.KindReminders, err) {
		return
	}
	if u.Complete {
		log.Info("reminders: fetch complete", "items", len(s.reminders.Items()))
		if s.state == AwaitingReminders {
			s.state = Idle
		}
	}
}

func (s *Scheduler) applyLists(t proto.Tuple, gen uint32) {
	blob, err := t.AsBytes()
	if err != nil {
		log.Warn("lists: malformed tuple", "err", err)
		return
	}
	u, err := s.lists.Apply(blob, gen)
	if !s.logApply(session.KindReminderLists, err) {
		return
	}
	if u.Complete {
		log.Info("lists: fetch complete", "lists", len(s.lists.Items()))
	}
}

// logApply reports a failed chunk at the level its class deserves and
// returns whether processing should continue.
func (s *Scheduler) logApply(kind session.Kind, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, session.ErrStale):
		log.Debug("inbound: stale chunk ignored", "kind", kind.String(), "err", err)
	default:
		log.Warn("inbound: malformed chunk dropped", "kind", kind.String(), "err", err)
	}
	return false
}

func (s *Scheduler) applyPeerBattery(t proto.Tuple) {
	b, err := t.AsBytes()
	if err != nil {
		log.Warn("battery: malformed tuple", "err", err)
		return
	}
	state, level, ok := proto.DecodeBatteryPayload(b)
	if !ok {
		log.Warn("battery: malformed payload", "len", len(b))
		return
	}
	s.peerBattery = model.BatteryStatus{State: state, Level: level}
}

func (s *Scheduler) applySettings(d proto.Dict) {
	cur := proto.Settings{Config: s.settings, Clock12: s.clock12}
	next, _, err := proto.ParseSettings(d, cur)
	if err != nil {
		log.Warn("settings: malformed response", "err", err)
		return
	}
	s.clock12 = next.Clock12
	if next.Config == s.settings {
		return
	}
	s.settings = next.Config
	if s.store != nil {
		if err := s.store.SaveSettings(s.settings); err != nil {
			log.Error("settings: persist failed", err)
		}
	}
	log.Info("settings: updated",
		"invert", s.settings.Invert,
		"day_name", s.settings.DayName,
		"month_name", s.settings.MonthName,
		"week_no", s.settings.WeekNo,
	)
}

// HandleTick runs the minute tick: stale recovery, label, haptics, refresh.
func (s *Scheduler) HandleTick(now time.Time) {
	if s.state != Idle && s.cfg.StaleAfter > 0 && now.Sub(s.since) >= s.cfg.StaleAfter {
		log.Warn("tick: fetch went stale, returning to idle", "state", s.state.String(), "since", s.since.Format(time.RFC3339))
		s.state = Idle
	}

	s.render(now)
	s.maybePulse()

	refresh := s.state == Idle
	if s.cfg.RefreshEvery > 0 && s.first.Valid && s.second.Valid && s.second.Minutes%s.cfg.RefreshEvery == 0 {
		refresh = true
	}
	if refresh {
		s.requestCalendar(now)
		s.render(now)
	}
}

// maybePulse fires one pulse per event instance entering the window.
func (s *Scheduler) maybePulse() {
	cur, ok := s.calendar.Current()
	if !ok || !s.first.Valid || !s.first.Breakdown.InWindow(s.cfg.NotifyMinutes) {
		return
	}
	key := instanceKey(cur)
	if key == s.pulsedFor {
		return
	}
	s.pulsedFor = key
	s.pulses++
	log.Info("tick: event starting soon", "title", cur.Title, "minutes", s.first.Minutes)
	if s.haptics != nil {
		s.haptics.Pulse()
	}
}

func instanceKey(ev model.Event) string {
	return strconv.Itoa(int(ev.Index)) + "|" + strconv.FormatInt(ev.Start.Unix(), 10) + "|" + ev.Title
}

// undelivered is implemented by delivery failures that carry the message
// they lost.
type undelivered interface {
	Message() []byte
}

// HandleSendFailed records an asynchronous delivery failure. Only the loss of
// the outstanding calendar or reminders request returns the scheduler to
// Idle; there is no resend and the next tick retries. Failures that cannot
// be attributed are left to stale recovery.
func (s *Scheduler) HandleSendFailed(now time.Time, err error) {
	log.Error("transport: send failed", err, "state", s.state.String())
	if s.outstanding(err) {
		s.state = Idle
	}
	s.render(now)
}

// outstanding reports whether err lost the request the scheduler is waiting
// on.
func (s *Scheduler) outstanding(err error) bool {
	var u undelivered
	if !errors.As(err, &u) {
		return false
	}
	d, derr := proto.DecodeDict(u.Message())
	if derr != nil {
		return false
	}
	r, ok, perr := proto.ParseRequest(d)
	if perr != nil || !ok {
		return false
	}
	switch {
	case s.state == AwaitingCalendar && r.Kind == proto.RequestCalendar:
		return r.Generation == s.calendar.Generation()
	case s.state == AwaitingReminders && r.Kind == proto.RequestReminders:
		return r.Generation == s.reminders.Generation()
	default:
		return false
	}
}

// HandleConnection records a connectivity change.
func (s *Scheduler) HandleConnection(now time.Time, connected bool) {
	if connected == s.connected {
		return
	}
	s.connected = connected
	log.Info("transport: connectivity changed", "connected", connected)
	s.render(now)
}

// HandleBattery records a local battery reading.
func (s *Scheduler) HandleBattery(now time.Time, b model.BatteryStatus) {
	s.battery = b
	s.render(now)
}

// RequestPeerBattery asks the peer for its battery status.
func (s *Scheduler) RequestPeerBattery() {
	s.send(proto.Request{Kind: proto.RequestBattery})
}

func (s *Scheduler) requestCalendar(now time.Time) {
	gen := s.generation + 1
	if !s.send(proto.Request{Kind: proto.RequestCalendar, Format: s.cfg.Format, Generation: gen}) {
		return
	}
	s.generation = gen
	s.calendar.Reset(gen)
	s.state = AwaitingCalendar
	s.since = now
}

func (s *Scheduler) requestReminders(now time.Time) bool {
	gen := s.generation + 1
	if !s.send(proto.Request{Kind: proto.RequestReminders, ListIndex: s.cfg.ListIndex, Generation: gen}) {
		return false
	}
	s.generation = gen
	s.reminders.Reset(gen)
	s.state = AwaitingReminders
	s.since = now
	return true
}

func (s *Scheduler) requestLists() {
	gen := s.generation + 1
	if !s.send(proto.Request{Kind: proto.RequestReminderLists, Generation: gen}) {
		return
	}
	s.generation = gen
	s.lists.Reset(gen)
}

// send reports whether r left the device. Without connectivity the request
// is skipped silently.
func (s *Scheduler) send(r proto.Request) bool {
	if !s.link.Connected() {
		log.Info("transport: unavailable, request skipped", "kind", r.Kind.String())
		return false
	}
	msg, err := proto.EncodeRequest(r)
	if err != nil {
		log.Error("transport: encode request", err, "kind", r.Kind.String())
		return false
	}
	if err := s.link.Send(msg); err != nil {
		log.Error("transport: send request", err, "kind", r.Kind.String())
		return false
	}
	log.Debug("transport: request sent", "kind", r.Kind.String(), "generation", r.Generation)
	return true
}

func (s *Scheduler) render(now time.Time) {
	if cur, ok := s.calendar.Current(); ok {
		var next countdown.Event
		if n, ok := s.calendar.Next(); ok {
			next = n
		}
		s.first, s.second, s.label = s.format.FormatPair(now, cur, next)
	} else {
		s.first = countdown.Label{Text: countdown.NoEvents}
		s.second = countdown.Label{Text: countdown.NoEvents}
		s.label = countdown.NoEvents
	}

	s.lastFrame = Frame{
		Time:        now,
		Label:       s.label,
		First:       s.first,
		Second:      s.second,
		Reminders:   s.reminders.Text(),
		Status:      countdown.StatusLine(now.In(s.loc()), s.clock12, s.settings, s.battery, s.connected),
		State:       s.state,
		Events:      s.calendar.Events(),
		Lists:       s.lists.Items(),
		Battery:     s.battery,
		PeerBattery: s.peerBattery,
		Settings:    s.settings,
		Connected:   s.connected,
		Pulses:      s.pulses,
	}
	if s.display != nil {
		s.display.Show(s.lastFrame)
	}
}

func (s *Scheduler) loc() *time.Location {
	if s.cfg.Loc == nil {
		return time.Local
	}
	return s.cfg.Loc
}
