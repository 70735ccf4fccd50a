// Package countdown renders the relative-time label for upcoming events.
package countdown

import (
	"fmt"
	"time"
)

// NoEvents is the label shown when no event is in range.
const NoEvents = "No events."

// DefaultTitleMax is the title length used when a Formatter has none set.
const DefaultTitleMax = 13

// Notification window, in minutes, for the primary event.
const (
	NotifyMin = 0
	NotifyMax = 5
)

// Breakdown is a signed day/hour/minute decomposition of a time difference.
type Breakdown struct {
	Days    int
	Hours   int
	Minutes int
}

// Decompose splits diff seconds into days, hours and minutes. Each step
// truncates toward zero and removes its own contribution before the next.
func Decompose(diff int64) Breakdown {
	days := diff / 86400
	diff -= days * 86400
	hours := diff / 3600
	diff -= hours * 3600
	return Breakdown{Days: int(days), Hours: int(hours), Minutes: int(diff / 60)}
}

// Valid reports whether b falls inside the displayable range.
func (b Breakdown) Valid() bool {
	switch {
	case b.Days < 0 || b.Days > 100:
		return false
	case b.Minutes < -60 || b.Minutes > 61:
		return false
	case b.Hours < 0 || b.Hours > 25:
		return false
	}
	return true
}

// InWindow reports whether b is inside the haptic notification window.
func (b Breakdown) InWindow(maxMinutes int) bool {
	return b.Days == 0 && b.Hours == 0 && b.Minutes >= NotifyMin && b.Minutes <= maxMinutes
}

// Event is the surface the formatter needs from either record variant.
type Event interface {
	EventTitle() string
	StartTime() time.Time
}

// Label is one rendered countdown.
type Label struct {
	Text      string
	Minutes   int
	Valid     bool
	Breakdown Breakdown
}

// Formatter renders labels with a fixed title length.
type Formatter struct {
	TitleMax int
}

func (f Formatter) titleMax() int {
	if f.TitleMax <= 0 {
		return DefaultTitleMax
	}
	return f.TitleMax
}

// Format computes the label for ev as seen at now.
func (f Formatter) Format(now time.Time, ev Event) Label {
	b := Decompose(ev.StartTime().Unix() - now.Unix())
	l := Label{Minutes: b.Minutes, Valid: b.Valid(), Breakdown: b}
	if !l.Valid {
		l.Text = NoEvents
		return l
	}
	title := Truncate(ev.EventTitle(), f.titleMax())
	switch {
	case b.Days > 0:
		l.Text = fmt.Sprintf("%dD%d:%s", b.Days, b.Hours, title)
	case b.Hours > 0:
		l.Text = fmt.Sprintf("%dH%d:%s", b.Hours, b.Minutes, title)
	default:
		l.Text = fmt.Sprintf("%dm:%s", b.Minutes, title)
	}
	return l
}

// FormatPair renders the primary label and, if next is present, the
// secondary one. The combined text carries the second line only when the
// second label is valid.
func (f Formatter) FormatPair(now time.Time, current Event, next Event) (first, second Label, text string) {
	first = f.Format(now, current)
	text = first.Text
	if next == nil {
		return first, Label{Text: NoEvents}, text
	}
	second = f.Format(now, next)
	if second.Valid {
		text += "\n" + second.Text
	}
	return first, second, text
}

// Truncate returns at most max runes of s.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
