package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "diaryface/internal/log"
	"diaryface/internal/model"
)

// ErrEmptyBody is returned for a zero-length ICS payload.
var ErrEmptyBody = errors.New("ics: empty body")

// ParsedEvent is the normalized representation of a VEVENT. Recurrence
// expansion operates on this type.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Alarms are VALARM trigger offsets relative to Start, in seconds.
	Alarms []int32

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID
	IsOverride bool
}

// Parsed is everything one ICS payload contributes.
type Parsed struct {
	Events []ParsedEvent
	Todos  []model.Todo
}

// Parse reads VEVENT and VTODO components from one ICS payload. Components
// that fail to parse are logged and skipped.
func Parse(src Source, body []byte) (Parsed, error) {
	var out Parsed
	if len(body) == 0 {
		return out, ErrEmptyBody
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return out, err
	}

	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "err", perr, "id", src.ID)
			continue
		}
		out.Events = append(out.Events, ev)
	}
	for _, comp := range cal.Todos() {
		td, perr := parseVTodo(src, comp)
		if perr != nil {
			appLog.Warn("ics vtodo skipped", "err", perr, "id", src.ID)
			continue
		}
		out.Todos = append(out.Todos, td)
	}

	appLog.Info("ics parse completed", "id", src.ID, "events", len(out.Events), "todos", len(out.Todos))
	return out, nil
}

func propValue(c *ical.ComponentBase, p ical.ComponentProperty) string {
	if prop := c.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	out.UID = propValue(&ve.ComponentBase, ical.ComponentPropertyUniqueId)
	if out.UID == "" {
		return out, errors.New("missing UID")
	}
	if n, err := strconv.Atoi(strings.TrimSpace(propValue(&ve.ComponentBase, ical.ComponentPropertySequence))); err == nil {
		out.Seq = n
	}
	out.Summary = propValue(&ve.ComponentBase, ical.ComponentPropertySummary)
	out.Description = propValue(&ve.ComponentBase, ical.ComponentPropertyDescription)
	out.Location = propValue(&ve.ComponentBase, ical.ComponentPropertyLocation)

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("uid %s: DTSTART: %w", out.UID, err)
	}
	out.Start = start
	out.AllDay = isDateValue(ve.GetProperty(ical.ComponentPropertyDtStart))

	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	} else if out.AllDay {
		out.End = start.AddDate(0, 0, 1)
	} else {
		out.End = start
	}

	for _, a := range ve.Alarms() {
		if off, ok := alarmOffset(a, out.Start); ok {
			out.Alarms = append(out.Alarms, off)
		}
	}

	out.RawRRule = propValue(&ve.ComponentBase, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		if t, err := parseICSTime(rid.Value); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func parseVTodo(src Source, vt *ical.VTodo) (model.Todo, error) {
	td := model.Todo{SourceID: src.ID}
	td.UID = propValue(&vt.ComponentBase, ical.ComponentPropertyUniqueId)
	if td.UID == "" {
		return td, errors.New("missing UID")
	}
	td.Summary = propValue(&vt.ComponentBase, ical.ComponentPropertySummary)

	status := strings.ToUpper(strings.TrimSpace(propValue(&vt.ComponentBase, ical.ComponentPropertyStatus)))
	td.Completed = status == "COMPLETED" || vt.GetProperty(ical.ComponentPropertyCompleted) != nil

	if vt.GetProperty(ical.ComponentPropertyDue) != nil {
		if due, err := vt.GetDueAt(); err == nil {
			td.Due = &due
		}
	}
	return td, nil
}

// isDateValue reports whether a DTSTART carries a date without a time.
func isDateValue(p *ical.IANAProperty) bool {
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// alarmOffset returns a VALARM trigger as seconds relative to start.
// Absolute triggers are converted against start.
func alarmOffset(a *ical.VAlarm, start time.Time) (int32, bool) {
	p := a.GetProperty(ical.ComponentPropertyTrigger)
	if p == nil {
		return 0, false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE-TIME") {
		t, err := parseICSTime(p.Value)
		if err != nil {
			return 0, false
		}
		return int32(t.Sub(start) / time.Second), true
	}
	d, err := parseDuration(p.Value)
	if err != nil {
		return 0, false
	}
	return int32(d / time.Second), true
}

// parseDuration reads an RFC 5545 DURATION such as -PT15M or P1DT2H.
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(v, "-"):
		sign, v = -1, v[1:]
	case strings.HasPrefix(v, "+"):
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") {
		return 0, fmt.Errorf("duration %q: missing P", v)
	}
	v = v[1:]

	var d time.Duration
	inTime := false
	num := 0
	digits := false
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
			digits = true
			continue
		case r == 'T':
			inTime = true
			continue
		}
		if !digits {
			return 0, fmt.Errorf("duration %q: unit %q without value", v, r)
		}
		n := time.Duration(num)
		switch {
		case r == 'W' && !inTime:
			d += n * 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			d += n * 24 * time.Hour
		case r == 'H' && inTime:
			d += n * time.Hour
		case r == 'M' && inTime:
			d += n * time.Minute
		case r == 'S' && inTime:
			d += n * time.Second
		default:
			return 0, fmt.Errorf("duration %q: unexpected %q", v, r)
		}
		num, digits = 0, false
	}
	if digits {
		return 0, fmt.Errorf("duration %q: trailing number", v)
	}
	return sign * d, nil
}

// parseICSTime parses a bare DATE or DATE-TIME value for EXDATE,
// RECURRENCE-ID and absolute triggers, where the TZID parameter is not
// consulted.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.Local)
	}
}
