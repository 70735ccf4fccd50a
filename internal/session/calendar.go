package session

import (
	"diaryface/internal/model"
	"diaryface/internal/record"
)

// Calendar tracks an event collection. Chunks fill staging slots; the live
// current/next slots change only when a fetch completes, so the last good
// events stay on display while a fetch is in flight.
type Calendar struct {
	tracker
	codec record.EventCodec

	// staged[0] fills the current slot; staged[1] fills next, whether it
	// came in the first chunk or led a continuation chunk.
	staged []model.Event

	current *model.Event
	next    *model.Event
	events  []model.Event
	loaded  bool
}

func NewCalendar(codec record.EventCodec) *Calendar {
	return &Calendar{tracker: newTracker(KindCalendar), codec: codec}
}

// Reset starts a new fetch tagged gen. Live slots are kept.
func (c *Calendar) Reset(gen uint32) {
	c.tracker.reset(gen)
	c.staged = nil
}

// Apply folds one calendar chunk into the session.
func (c *Calendar) Apply(blob []byte, gen uint32) (Update, error) {
	ch, err := c.feed(blob, gen, c.codec.Size())
	if err != nil {
		return Update{}, err
	}
	for _, rec := range ch.Records {
		ev, err := c.codec.Decode(rec)
		if err != nil {
			return Update{}, err
		}
		c.staged = append(c.staged, ev)
	}
	u := c.update(ch)
	if u.Complete {
		c.commit()
	}
	return u, nil
}

func (c *Calendar) commit() {
	c.current, c.next = nil, nil
	if len(c.staged) > 0 {
		ev := c.staged[0]
		c.current = &ev
	}
	if len(c.staged) > 1 {
		ev := c.staged[1]
		c.next = &ev
	}
	c.events = c.staged
	c.staged = nil
	c.loaded = true
}

// Current is the live primary event, if any.
func (c *Calendar) Current() (model.Event, bool) {
	if c.current == nil {
		return model.Event{}, false
	}
	return *c.current, true
}

// Next is the live secondary event, if any.
func (c *Calendar) Next() (model.Event, bool) {
	if c.next == nil {
		return model.Event{}, false
	}
	return *c.next, true
}

// TwoEvents reports whether both live slots are filled.
func (c *Calendar) TwoEvents() bool { return c.current != nil && c.next != nil }

// Events returns every event of the last completed fetch.
func (c *Calendar) Events() []model.Event {
	out := make([]model.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Loaded reports whether any fetch has completed yet.
func (c *Calendar) Loaded() bool { return c.loaded }
