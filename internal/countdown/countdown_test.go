package countdown

import (
	"strings"
	"testing"
	"time"

	"diaryface/internal/model"
)

var base = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func at(title string, offset int64) model.Event {
	return model.Event{Title: title, Start: base.Add(time.Duration(offset) * time.Second)}
}

func TestDecompose(t *testing.T) {
	cases := []struct {
		diff int64
		want Breakdown
	}{
		{0, Breakdown{}},
		{90, Breakdown{0, 0, 1}},
		{3700, Breakdown{0, 1, 1}},
		{86400 + 2*3600 + 5*60, Breakdown{1, 2, 5}},
		{-30 * 60, Breakdown{0, 0, -30}},
		{-86400 - 60, Breakdown{-1, 0, -1}},
	}
	for _, tc := range cases {
		if got := Decompose(tc.diff); got != tc.want {
			t.Errorf("Decompose(%d) = %+v, want %+v", tc.diff, got, tc.want)
		}
	}
}

func TestFormatShapesInValidRange(t *testing.T) {
	f := Formatter{TitleMax: 13}
	for days := 0; days <= 100; days += 7 {
		for hours := 0; hours <= 23; hours++ {
			for minutes := 0; minutes <= 59; minutes += 11 {
				diff := int64(days*86400 + hours*3600 + minutes*60)
				l := f.Format(base, at("T", diff))
				if !l.Valid || l.Text == NoEvents {
					t.Fatalf("d=%d h=%d m=%d: got sentinel", days, hours, minutes)
				}
				var want string
				switch {
				case days > 0:
					want = "D"
				case hours > 0:
					want = "H"
				default:
					want = "m:"
				}
				if !strings.Contains(l.Text, want) {
					t.Fatalf("d=%d h=%d m=%d: label %q lacks %q", days, hours, minutes, l.Text, want)
				}
			}
		}
	}
}

func TestBreakdownValidityBounds(t *testing.T) {
	cases := []struct {
		b    Breakdown
		want bool
	}{
		{Breakdown{0, 0, 0}, true},
		{Breakdown{100, 25, 61}, true},
		{Breakdown{0, 0, -60}, true},
		{Breakdown{-1, 0, 0}, false},
		{Breakdown{101, 0, 0}, false},
		{Breakdown{0, 26, 0}, false},
		{Breakdown{0, -1, 0}, false},
		{Breakdown{0, 0, 62}, false},
		{Breakdown{0, 0, -61}, false},
	}
	for _, tc := range cases {
		if got := tc.b.Valid(); got != tc.want {
			t.Errorf("%+v.Valid() = %v, want %v", tc.b, got, tc.want)
		}
	}
}

func TestFormatOutOfRangeIsSentinel(t *testing.T) {
	f := Formatter{}
	for _, diff := range []int64{-2 * 3600, 101 * 86400, 200 * 86400} {
		l := f.Format(base, at("x", diff))
		if l.Valid || l.Text != NoEvents {
			t.Errorf("diff=%d: got %+v", diff, l)
		}
	}
}

func TestFormatLabels(t *testing.T) {
	f := Formatter{TitleMax: 13}
	cases := []struct {
		diff int64
		want string
	}{
		{30, "0m:A"},
		{90, "1m:A"},
		{3640, "1H0:A"},
		{2*86400 + 3*3600, "2D3:A"},
	}
	for _, tc := range cases {
		if got := f.Format(base, at("A", tc.diff)).Text; got != tc.want {
			t.Errorf("diff=%d: got %q want %q", tc.diff, got, tc.want)
		}
	}
}

func TestTitleTruncation(t *testing.T) {
	f := Formatter{TitleMax: 5}
	l := f.Format(base, at("Weekly planning", 120))
	if l.Text != "2m:Weekl" {
		t.Fatalf("got %q", l.Text)
	}
	if got := Truncate("Kaffee mit Jürgen", 16); got != "Kaffee mit Jürge" {
		t.Fatalf("rune truncation: %q", got)
	}
	if got := Truncate("short", 13); got != "short" {
		t.Fatalf("short title changed: %q", got)
	}
}

func TestFormatPair(t *testing.T) {
	f := Formatter{TitleMax: 13}
	_, _, text := f.FormatPair(base, at("A", 30), at("B", 3640))
	if text != "0m:A\n1H0:B" {
		t.Fatalf("pair=%q", text)
	}
	_, second, text := f.FormatPair(base, at("A", 30), at("B", 300*86400))
	if second.Valid || text != "0m:A" {
		t.Fatalf("invalid second must be omitted: %q", text)
	}
	_, _, text = f.FormatPair(base, at("A", 30), nil)
	if text != "0m:A" {
		t.Fatalf("single=%q", text)
	}
}

func TestInWindow(t *testing.T) {
	if !Decompose(4 * 60).InWindow(NotifyMax) {
		t.Fatal("4 minutes out should be in window")
	}
	if Decompose(6 * 60).InWindow(NotifyMax) {
		t.Fatal("6 minutes out should be outside window")
	}
	if Decompose(3600 + 60).InWindow(NotifyMax) {
		t.Fatal("hours must be zero")
	}
	if Decompose(-120).InWindow(NotifyMax) {
		t.Fatal("past events are outside window")
	}
}

func TestStatusLine(t *testing.T) {
	now := time.Date(2026, 10, 18, 7, 5, 0, 0, time.UTC)
	got := StatusLine(now, false, model.ConfigData{}, model.BatteryStatus{State: model.BatteryDischarging, Level: 85}, true)
	if got != "07:05 10/18 85% B" {
		t.Fatalf("status=%q", got)
	}
	cfg := model.ConfigData{DayName: true, MonthName: true, WeekNo: true}
	if d := Date(now, cfg); d != "Sun Oct 18 W42" {
		t.Fatalf("date=%q", d)
	}
	if b := Battery(model.UnknownBattery()); b != "--%" {
		t.Fatalf("unknown battery=%q", b)
	}
	if b := Battery(model.BatteryStatus{State: model.BatteryCharging, Level: 40}); b != "40+" {
		t.Fatalf("charging=%q", b)
	}
	if Link(false) != "-" || Clock(now.Add(6*time.Hour), true) != "1:05" {
		t.Fatal("link/clock")
	}
}
