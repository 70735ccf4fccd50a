// Package session keeps per-collection decode progress across chunks.
//
// A session is reset exactly when a new request for its collection is
// issued. Only the scheduler's inbound handler mutates it; formatters read.
package session

import (
	"errors"
	"fmt"

	"diaryface/internal/chunk"
)

// ErrStale marks a chunk that belongs to an abandoned request or arrives
// after its collection already completed.
var ErrStale = errors.New("session: stale chunk")

// Kind names a collection.
type Kind uint8

const (
	KindCalendar Kind = iota + 1
	KindReminders
	KindReminderLists
)

func (k Kind) String() string {
	switch k {
	case KindCalendar:
		return "calendar"
	case KindReminders:
		return "reminders"
	case KindReminderLists:
		return "reminder_lists"
	default:
		return "unknown"
	}
}

// Update describes the effect of one applied chunk.
type Update struct {
	Phase    chunk.Phase
	Records  int
	Complete bool
}

// tracker is the progress and request generation shared by all sessions.
type tracker struct {
	kind       Kind
	progress   chunk.Progress
	generation uint32
}

func newTracker(k Kind) tracker {
	return tracker{kind: k, progress: chunk.NewProgress()}
}

func (t *tracker) reset(gen uint32) {
	t.progress.Reset()
	t.generation = gen
}

// feed checks the chunk against the current request and decodes it. A gen
// of 0 means the peer did not tag the chunk.
func (t *tracker) feed(blob []byte, gen uint32, size int) (chunk.Chunk, error) {
	if gen != 0 && gen != t.generation {
		return chunk.Chunk{}, fmt.Errorf("%w: %s generation %d, want %d", ErrStale, t.kind, gen, t.generation)
	}
	if t.progress.Complete() {
		return chunk.Chunk{}, fmt.Errorf("%w: %s already complete", ErrStale, t.kind)
	}
	return t.progress.Feed(blob, size)
}

func (t *tracker) update(c chunk.Chunk) Update {
	return Update{Phase: c.Phase, Records: len(c.Records), Complete: t.progress.Complete()}
}

// Progress returns the collection's decode progress.
func (t *tracker) Progress() chunk.Progress { return t.progress }

// Generation returns the generation of the request the session belongs to.
func (t *tracker) Generation() uint32 { return t.generation }
