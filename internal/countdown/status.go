package countdown

import (
	"fmt"
	"strings"
	"time"

	"diaryface/internal/model"
)

// Clock renders the time of day as HH:MM, or h:MM when h12 is set.
func Clock(now time.Time, h12 bool) string {
	if h12 {
		return now.Format("3:04")
	}
	return now.Format("15:04")
}

// Date renders the date line. day_name prefixes the weekday, month_name
// spells the month out, week_no appends the ISO week.
func Date(now time.Time, cfg model.ConfigData) string {
	var parts []string
	if cfg.DayName {
		parts = append(parts, now.Format("Mon"))
	}
	if cfg.MonthName {
		parts = append(parts, now.Format("Jan 2"))
	} else {
		parts = append(parts, now.Format("01/02"))
	}
	if cfg.WeekNo {
		_, wk := now.ISOWeek()
		parts = append(parts, fmt.Sprintf("W%02d", wk))
	}
	return strings.Join(parts, " ")
}

// Battery renders a level as "85%", or "85+" while charging.
func Battery(b model.BatteryStatus) string {
	if !b.Known() {
		return "--%"
	}
	if b.State == model.BatteryCharging || b.State == model.BatteryPlugged {
		return fmt.Sprintf("%d+", b.Level)
	}
	return fmt.Sprintf("%d%%", b.Level)
}

// Link renders the peer connectivity marker.
func Link(connected bool) string {
	if connected {
		return "B"
	}
	return "-"
}

// StatusLine joins clock, date, battery and link markers.
func StatusLine(now time.Time, h12 bool, cfg model.ConfigData, batt model.BatteryStatus, connected bool) string {
	return strings.Join([]string{Clock(now, h12), Date(now, cfg), Battery(batt), Link(connected)}, " ")
}
