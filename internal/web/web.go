package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"diaryface/internal/battery"
	"diaryface/internal/config"
	"diaryface/internal/countdown"
	appLog "diaryface/internal/log"
	"diaryface/internal/model"
	"diaryface/internal/scheduler"
)

// Events supplies the companion's expanded calendar.
type Events interface {
	Upcoming(now time.Time, max int) []model.Occurrence
	Refreshed() time.Time
}

// View is the status server's display and haptics sink. It keeps the
// latest frame the scheduler rendered.
type View struct {
	mu     sync.RWMutex
	frame  scheduler.Frame
	shown  bool
	pulses int
}

func NewView() *View {
	return &View{}
}

// Show implements scheduler.Display.
func (v *View) Show(f scheduler.Frame) {
	f.Events = append([]model.Event(nil), f.Events...)
	f.Lists = append([]model.ReminderList(nil), f.Lists...)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.frame = f
	v.shown = true
}

// Pulse implements scheduler.Haptics.
func (v *View) Pulse() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pulses++
	appLog.Info("haptic pulse", "count", v.pulses)
}

// Pulses counts haptic pulses since start.
func (v *View) Pulses() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.pulses
}

// Frame returns the latest frame and whether one has been shown yet.
func (v *View) Frame() (scheduler.Frame, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.frame, v.shown
}

// Server provides the read-only status API.
type Server struct {
	cfg     *config.Config
	view    *View
	events  Events
	battery *battery.Cache
	mux     *http.ServeMux
	now     func() time.Time
}

// NewServer constructs a new Server. events and batt may be nil.
func NewServer(cfg *config.Config, view *View, events Events, batt *battery.Cache) *Server {
	s := &Server{
		cfg:     cfg,
		view:    view,
		events:  events,
		battery: batt,
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health 는 항상 무인증으로 노출한다.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="diaryface", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/display", s.handleDisplay)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/battery", s.handleBattery)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type labelDTO struct {
	Text    string `json:"text"`
	Minutes int    `json:"minutes"`
	Valid   bool   `json:"valid"`
}

func toLabel(l countdown.Label) labelDTO {
	return labelDTO{Text: l.Text, Minutes: l.Minutes, Valid: l.Valid}
}

type eventDTO struct {
	Index    uint8     `json:"index"`
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	AllDay   bool      `json:"all_day"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Color    string    `json:"color,omitempty"`
}

type batteryDTO struct {
	Known bool  `json:"known"`
	Level int8  `json:"level"`
	State uint8 `json:"state"`
}

func toBattery(b model.BatteryStatus) batteryDTO {
	return batteryDTO{Known: b.Known(), Level: b.Level, State: b.State}
}

// displayResponse is the JSON response shape for /api/display.
type displayResponse struct {
	Time        time.Time  `json:"time"`
	State       string     `json:"state"`
	Label       string     `json:"label"`
	First       labelDTO   `json:"first"`
	Second      labelDTO   `json:"second"`
	Reminders   string     `json:"reminders"`
	Status      string     `json:"status"`
	Events      []eventDTO `json:"events"`
	Lists       []string   `json:"lists"`
	Battery     batteryDTO `json:"battery"`
	PeerBattery batteryDTO `json:"peer_battery"`
	Connected   bool       `json:"connected"`
	Pulses      int        `json:"pulses"`
}

// handleDisplay returns the latest rendered frame.
func (s *Server) handleDisplay(w http.ResponseWriter, _ *http.Request) {
	f, ok := s.view.Frame()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no frame rendered yet")
		return
	}

	events := make([]eventDTO, 0, len(f.Events))
	for _, ev := range f.Events {
		dto := eventDTO{
			Index:    ev.Index,
			Title:    ev.Title,
			Location: ev.Location,
			AllDay:   ev.AllDay,
			Start:    ev.Start,
			End:      ev.End,
		}
		if ev.HasColor {
			dto.Color = colorHex(ev.Color)
		}
		events = append(events, dto)
	}
	lists := make([]string, 0, len(f.Lists))
	for _, l := range f.Lists {
		lists = append(lists, l.Title)
	}

	writeJSON(w, http.StatusOK, displayResponse{
		Time:        f.Time,
		State:       f.State.String(),
		Label:       f.Label,
		First:       toLabel(f.First),
		Second:      toLabel(f.Second),
		Reminders:   f.Reminders,
		Status:      f.Status,
		Events:      events,
		Lists:       lists,
		Battery:     toBattery(f.Battery),
		PeerBattery: toBattery(f.PeerBattery),
		Connected:   f.Connected,
		Pulses:      f.Pulses,
	})
}

func colorHex(c model.RGB) string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// occurrenceDTO is a JSON-friendly view of occurrences.
type occurrenceDTO struct {
	SourceID    string    `json:"source_id"`
	UID         string    `json:"uid"`
	InstanceKey string    `json:"instance_key"`
	Summary     string    `json:"summary"`
	Location    string    `json:"location"`
	AllDay      bool      `json:"all_day"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
	Refreshed   time.Time       `json:"refreshed"`
}

// handleEvents lists the companion's upcoming occurrences.
//
// GET /api/events?max=15
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, "no calendar store")
		return
	}
	n := parseIntDefault(r.URL.Query().Get("max"), 15)
	if n <= 0 {
		n = 15
	}

	occ := s.events.Upcoming(s.now(), n)
	dtos := make([]occurrenceDTO, 0, len(occ))
	for _, o := range occ {
		dtos = append(dtos, occurrenceDTO{
			SourceID:    o.SourceID,
			UID:         o.UID,
			InstanceKey: o.InstanceKey,
			Summary:     o.Summary,
			Location:    o.Location,
			AllDay:      o.AllDay,
			Start:       o.Start,
			End:         o.End,
		})
	}
	writeJSON(w, http.StatusOK, eventsResponse{Occurrences: dtos, Refreshed: s.events.Refreshed()})
}

// batteryResponse is the JSON response shape for /api/battery.
type batteryResponse struct {
	Percent   int  `json:"percent"`
	VoltageMv int  `json:"voltage_mv"`
	Charging  bool `json:"charging"`
}

// handleBattery exposes the local battery through the shared TTL cache.
func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	if s.battery == nil {
		writeError(w, http.StatusInternalServerError, "battery reader unavailable")
		return
	}
	status, err := s.battery.Read(r.Context())
	if err != nil {
		appLog.Error("battery read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read battery")
		return
	}
	writeJSON(w, http.StatusOK, batteryResponse{
		Percent:   status.Percent,
		VoltageMv: status.VoltageMv,
		Charging:  status.Charging,
	})
}

// handleSettings returns the display toggles currently in effect.
func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	settings := s.cfg.Settings
	if f, ok := s.view.Frame(); ok {
		settings = f.Settings
	}
	writeJSON(w, http.StatusOK, settings)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
