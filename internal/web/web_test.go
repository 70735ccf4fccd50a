package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"diaryface/internal/battery"
	"diaryface/internal/config"
	"diaryface/internal/countdown"
	"diaryface/internal/model"
	"diaryface/internal/scheduler"
)

type fakeEvents struct{ occ []model.Occurrence }

func (f fakeEvents) Upcoming(time.Time, int) []model.Occurrence { return f.occ }
func (f fakeEvents) Refreshed() time.Time                       { return time.Time{} }

func newTestServer(cfg *config.Config) (*Server, *View) {
	view := NewView()
	ev := fakeEvents{occ: []model.Occurrence{{UID: "a", Summary: "Standup"}}}
	cache := battery.NewCache(battery.StaticReader{Percent: 64, VoltageMv: 3900}, time.Minute)
	return NewServer(cfg, view, ev, cache), view
}

func get(t *testing.T, h http.Handler, path string, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDisplayBeforeAndAfterFrame(t *testing.T) {
	s, view := newTestServer(config.DefaultConfig())
	h := s.Handler()

	if rec := get(t, h, "/api/display", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rec.Code)
	}

	view.Show(scheduler.Frame{
		Label:  "0m:A\n1H0:B",
		First:  countdown.Label{Text: "0m:A", Valid: true},
		Status: "08:00 10/18 85% B",
		State:  scheduler.AwaitingReminders,
		Events: []model.Event{{Title: "A", HasColor: true, Color: model.RGB{0xff, 0x00, 0x10}}},
		Lists:  []model.ReminderList{{Title: "Home"}},
	})
	view.Pulse()

	rec := get(t, h, "/api/display", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var got displayResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Label != "0m:A\n1H0:B" || got.State != "awaiting_reminders" || !got.First.Valid {
		t.Fatalf("display=%+v", got)
	}
	if len(got.Events) != 1 || got.Events[0].Color != "#ff0010" {
		t.Fatalf("events=%+v", got.Events)
	}
	if len(got.Lists) != 1 || got.Lists[0] != "Home" {
		t.Fatalf("lists=%+v", got.Lists)
	}
	if view.Pulses() != 1 {
		t.Fatalf("pulses=%d", view.Pulses())
	}
}

func TestBasicAuthExemptsHealth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	s, _ := newTestServer(cfg)
	h := s.Handler()

	if rec := get(t, h, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("health status=%d", rec.Code)
	}
	if rec := get(t, h, "/api/battery", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status=%d", rec.Code)
	}
	if rec := get(t, h, "/api/battery", "admin", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status=%d", rec.Code)
	}
	if rec := get(t, h, "/api/battery", "admin", "secret"); rec.Code != http.StatusOK {
		t.Fatalf("authenticated status=%d", rec.Code)
	}
}

func TestBattery(t *testing.T) {
	s, _ := newTestServer(config.DefaultConfig())
	rec := get(t, s.Handler(), "/api/battery", "", "")
	var got batteryResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Percent != 64 || got.VoltageMv != 3900 {
		t.Fatalf("battery=%+v", got)
	}
}

func TestEventsAndSettings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Settings = model.ConfigData{WeekNo: true}
	s, view := newTestServer(cfg)
	h := s.Handler()

	var ev eventsResponse
	if err := json.NewDecoder(get(t, h, "/api/events", "", "").Body).Decode(&ev); err != nil {
		t.Fatal(err)
	}
	if len(ev.Occurrences) != 1 || ev.Occurrences[0].Summary != "Standup" {
		t.Fatalf("events=%+v", ev)
	}

	var settings model.ConfigData
	if err := json.NewDecoder(get(t, h, "/api/settings", "", "").Body).Decode(&settings); err != nil {
		t.Fatal(err)
	}
	if !settings.WeekNo {
		t.Fatalf("config settings=%+v", settings)
	}

	view.Show(scheduler.Frame{Settings: model.ConfigData{Invert: true}})
	settings = model.ConfigData{}
	if err := json.NewDecoder(get(t, h, "/api/settings", "", "").Body).Decode(&settings); err != nil {
		t.Fatal(err)
	}
	if !settings.Invert || settings.WeekNo {
		t.Fatalf("frame settings=%+v", settings)
	}
}
