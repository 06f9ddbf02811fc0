// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package field exposes current confidence scores to surfaces (gutter,
// explorer, status bar) as a read-only view with change notifications.
package field

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
)

// Entry is the published confidence of one code unit.
type Entry struct {
	Unit       string             `json:"unit"`
	Overall    float64            `json:"overall"`
	Criteria   aggregate.Criteria `json:"criteria"`
	Degraded   bool               `json:"degraded,omitempty"`
	ComputedAt time.Time          `json:"computed_at"`
}

// Color is the gutter colour for the entry.
func (e Entry) Color() aggregate.Color { return aggregate.ColorFromConfidence(e.Overall) }

// Band is the triage band for the entry.
func (e Entry) Band() aggregate.Band { return aggregate.BandOf(e.Overall) }

// Event describes one published change.
type Event struct {
	ID    string
	Unit  string
	Old   Entry
	New   Entry
	IsNew bool
	Cause string
	At    time.Time
}

// Delta is New.Overall - Old.Overall, or New.Overall for a first publish.
func (e Event) Delta() float64 {
	if e.IsNew {
		return e.New.Overall
	}
	return e.New.Overall - e.Old.Overall
}

// Handler receives events. It runs on the publishing goroutine and must
// not block.
type Handler func(Event)

// Reader is the read-only surface handed to consumers.
type Reader interface {
	// Get returns the current entry for unit.
	Get(unit string) (Entry, bool)

	// Snapshot returns a copy of every entry.
	Snapshot() []Entry

	// Subscribe registers h for changes to the given units, or every unit
	// when none are given. Returns the subscription ID.
	Subscribe(h Handler, units ...string) string

	// Unsubscribe removes a subscription. Reports whether it existed.
	Unsubscribe(id string) bool
}

type subscription struct {
	id      string
	handler Handler
	units   map[string]struct{}
}

// Field stores published entries and fans out change events.
//
// # Description
//
// Only the owning service publishes; consumers receive Reader(), which
// has no write methods. Handler panics are recovered and logged so one
// consumer cannot starve the others.
//
// # Thread Safety
//
// Safe for concurrent use. Handlers are invoked outside the lock, in
// publish order per publishing goroutine.
type Field struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entry
	subs    map[string]*subscription
}

// New returns an empty field.
func New(logger *slog.Logger) *Field {
	return &Field{
		logger:  logging.OrDefault(logger),
		entries: make(map[string]Entry),
		subs:    make(map[string]*subscription),
	}
}

// Reader returns the read-only view of f.
func (f *Field) Reader() Reader { return readOnly{f} }

// Publish stores e under e.Unit and notifies matching subscribers.
func (f *Field) Publish(e Entry, cause string) Event {
	e.Overall = clamp01(e.Overall)

	f.mu.Lock()
	old, existed := f.entries[e.Unit]
	f.entries[e.Unit] = e
	subs := f.matching(e.Unit)
	f.mu.Unlock()

	ev := Event{
		ID:    uuid.NewString(),
		Unit:  e.Unit,
		Old:   old,
		New:   e,
		IsNew: !existed,
		Cause: cause,
		At:    time.Now(),
	}
	for _, s := range subs {
		f.safeInvoke(s, ev)
	}
	return ev
}

// Remove drops unit from the field without notifying.
func (f *Field) Remove(unit string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[unit]
	delete(f.entries, unit)
	return ok
}

func (f *Field) matching(unit string) []*subscription {
	out := make([]*subscription, 0, len(f.subs))
	for _, s := range f.subs {
		if len(s.units) > 0 {
			if _, ok := s.units[unit]; !ok {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func (f *Field) safeInvoke(s *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("field subscriber panicked",
				slog.String("subscription", s.id),
				slog.String("unit", ev.Unit),
				slog.Any("panic", r),
			)
		}
	}()
	s.handler(ev)
}

// Get implements Reader.
func (f *Field) Get(unit string) (Entry, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[unit]
	return e, ok
}

// Snapshot implements Reader. Entries are sorted by unit.
func (f *Field) Snapshot() []Entry {
	f.mu.RLock()
	out := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
	return out
}

// Subscribe implements Reader.
func (f *Field) Subscribe(h Handler, units ...string) string {
	s := &subscription{id: uuid.NewString(), handler: h}
	if len(units) > 0 {
		s.units = make(map[string]struct{}, len(units))
		for _, u := range units {
			s.units[u] = struct{}{}
		}
	}
	f.mu.Lock()
	f.subs[s.id] = s
	f.mu.Unlock()
	return s.id
}

// Unsubscribe implements Reader.
func (f *Field) Unsubscribe(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[id]; !ok {
		return false
	}
	delete(f.subs, id)
	return true
}

// SubscriptionCount returns the number of active subscriptions.
func (f *Field) SubscriptionCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

type readOnly struct{ f *Field }

func (r readOnly) Get(unit string) (Entry, bool)               { return r.f.Get(unit) }
func (r readOnly) Snapshot() []Entry                           { return r.f.Snapshot() }
func (r readOnly) Subscribe(h Handler, units ...string) string { return r.f.Subscribe(h, units...) }
func (r readOnly) Unsubscribe(id string) bool                  { return r.f.Unsubscribe(id) }

func clamp01(x float64) float64 {
	switch {
	case x != x, x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
