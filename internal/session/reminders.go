package session

import (
	"strings"

	"diaryface/internal/model"
	"diaryface/internal/record"
)

// MaxReminderLines caps how many titles the reminder text carries.
const MaxReminderLines = 4

// Reminders accumulates reminder records and a newline-joined title text.
type Reminders struct {
	tracker
	items []model.Reminder
	lines []string
}

func NewReminders() *Reminders {
	return &Reminders{tracker: newTracker(KindReminders)}
}

func (r *Reminders) Reset(gen uint32) {
	r.tracker.reset(gen)
	r.items = nil
	r.lines = nil
}

// Apply folds one reminders chunk. Titles past MaxReminderLines are kept in
// Items but not in Text.
func (r *Reminders) Apply(blob []byte, gen uint32) (Update, error) {
	ch, err := r.feed(blob, gen, record.ReminderSize)
	if err != nil {
		return Update{}, err
	}
	for _, rec := range ch.Records {
		rem, err := record.DecodeReminder(rec)
		if err != nil {
			return Update{}, err
		}
		r.items = append(r.items, rem)
		if len(r.lines) < MaxReminderLines {
			r.lines = append(r.lines, rem.Title)
		}
	}
	return r.update(ch), nil
}

// Text is the display text: at most MaxReminderLines titles.
func (r *Reminders) Text() string { return strings.Join(r.lines, "\n") }

func (r *Reminders) Items() []model.Reminder {
	out := make([]model.Reminder, len(r.items))
	copy(out, r.items)
	return out
}

// ReminderLists accumulates the list catalog.
type ReminderLists struct {
	tracker
	items []model.ReminderList
}

func NewReminderLists() *ReminderLists {
	return &ReminderLists{tracker: newTracker(KindReminderLists)}
}

func (l *ReminderLists) Reset(gen uint32) {
	l.tracker.reset(gen)
	l.items = nil
}

func (l *ReminderLists) Apply(blob []byte, gen uint32) (Update, error) {
	ch, err := l.feed(blob, gen, record.ReminderListSize)
	if err != nil {
		return Update{}, err
	}
	for _, rec := range ch.Records {
		item, err := record.DecodeReminderList(rec)
		if err != nil {
			return Update{}, err
		}
		l.items = append(l.items, item)
	}
	return l.update(ch), nil
}

func (l *ReminderLists) Items() []model.ReminderList {
	out := make([]model.ReminderList, len(l.items))
	copy(out, l.items)
	return out
}
