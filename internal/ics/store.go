package ics

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	appLog "diaryface/internal/log"
	"diaryface/internal/model"
)

// ErrNoSources is returned by Refresh when nothing could be fetched.
var ErrNoSources = errors.New("ics: no source produced a body")

// Store keeps the expanded occurrences and todos of all configured
// sources. It is safe for concurrent use; the refresh cron writes while the
// companion reads.
type Store struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location
	horizon time.Duration

	mu          sync.RWMutex
	parsed      map[string]parsedFeed
	occurrences []model.Occurrence
	todos       map[string][]model.Todo
	refreshed   time.Time
}

// parsedFeed is the last body parsed for a source, keyed by its digest.
type parsedFeed struct {
	digest string
	result Parsed
}

// NewStore creates a store over sources. horizonDays bounds how far ahead
// occurrences are expanded.
func NewStore(f *Fetcher, sources []Source, loc *time.Location, horizonDays int) *Store {
	if loc == nil {
		loc = time.Local
	}
	if horizonDays <= 0 {
		horizonDays = 7
	}
	return &Store{
		fetcher: f,
		sources: sources,
		loc:     loc,
		horizon: time.Duration(horizonDays) * 24 * time.Hour,
		parsed:  make(map[string]parsedFeed),
		todos:   make(map[string][]model.Todo),
	}
}

// Refresh fetches every source and replaces the store contents. When every
// fetch fails the previous contents are kept.
func (s *Store) Refresh(ctx context.Context, now time.Time) error {
	results, errs := s.fetcher.FetchAll(ctx, s.sources)
	if len(results) == 0 && len(s.sources) > 0 {
		return errors.Join(append([]error{ErrNoSources}, errs...)...)
	}
	return s.Ingest(now, results)
}

// Ingest parses fetched bodies and replaces the store contents. Bodies
// whose digest matches the last parse of their source are not parsed again,
// and Refreshed only advances when some source changed. Occurrences are
// always re-expanded since the window moves with now.
func (s *Store) Ingest(now time.Time, results []FetchResult) error {
	s.mu.RLock()
	prev := s.parsed
	s.mu.RUnlock()

	parsed := make(map[string]parsedFeed, len(results))
	changed := false
	for _, r := range results {
		d := r.digest()
		if p, ok := prev[r.Source.ID]; ok && p.digest == d {
			parsed[r.Source.ID] = p
			continue
		}
		p, err := Parse(r.Source, r.Body)
		if err != nil {
			appLog.Warn("ics parse failed", "err", err, "id", r.Source.ID)
			continue
		}
		parsed[r.Source.ID] = parsedFeed{digest: d, result: p}
		changed = true
	}
	if len(parsed) != len(prev) {
		changed = true
	}

	var events []ParsedEvent
	todos := make(map[string][]model.Todo, len(parsed))
	for _, r := range results {
		p, ok := parsed[r.Source.ID]
		if !ok {
			continue
		}
		events = append(events, p.result.Events...)
		todos[r.Source.ID] = p.result.Todos
	}

	exp, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: s.loc,
		RangeStart:      now.Add(-time.Hour),
		RangeEnd:        now.Add(s.horizon),
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.parsed = parsed
	s.occurrences = exp.Occurrences
	s.todos = todos
	if changed {
		s.refreshed = now
	}
	s.mu.Unlock()

	appLog.Info("ics store refreshed", "sources", len(parsed), "occurrences", len(exp.Occurrences), "changed", changed)
	return nil
}

// Upcoming returns at most max occurrences not yet over at now.
func (s *Store) Upcoming(now time.Time, max int) []model.Occurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Upcoming(s.occurrences, now, max)
}

// Todos returns the todos of the source at list, or of every source when
// list is negative. Open items come first, then by due date.
func (s *Store) Todos(list int) []model.Todo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Todo
	for i, src := range s.sources {
		if list >= 0 && i != list {
			continue
		}
		out = append(out, s.todos[src.ID]...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		switch {
		case a.Due == nil:
			return false
		case b.Due == nil:
			return true
		default:
			return a.Due.Before(*b.Due)
		}
	})
	return out
}

// Lists returns the display name of every source, in configured order.
func (s *Store) Lists() []string {
	out := make([]string, len(s.sources))
	for i, src := range s.sources {
		out[i] = src.Name
		if out[i] == "" {
			out[i] = src.ID
		}
	}
	return out
}

// Refreshed is when the store last ingested a changed body.
func (s *Store) Refreshed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshed
}
