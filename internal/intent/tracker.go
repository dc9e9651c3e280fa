// Package intent tracks the quantity a user wants for each cart line until the
// server has confirmed it.
//
// A Tracker is owned by exactly one cart session. Every edit bumps the line's
// version; an acknowledgement only clears the intent if it carries the version
// that is still current, so a response to an older edit can never erase a
// newer one.
package intent

import (
	"sort"
	"sync"
	"time"
)

// Status is the sync state of a single line intent.
type Status string

const (
	StatusIdle     Status = "idle" // no intent recorded
	StatusQueued   Status = "queued"
	StatusSyncing  Status = "syncing"
	StatusRetrying Status = "retrying"
	StatusError    Status = "error"
)

// Intent is the latest desired quantity for one line.
type Intent struct {
	LineID          string    `json:"lineId"`
	DesiredQuantity int       `json:"desiredQuantity"`
	Version         uint64    `json:"version"`
	Status          Status    `json:"status"`
	RetryCount      int       `json:"retryCount"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Tracker is a concurrency-safe map of line intents.
type Tracker struct {
	mu       sync.Mutex
	intents  map[string]Intent
	versions map[string]uint64 // survives Clear so versions never rewind
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		intents:  make(map[string]Intent),
		versions: make(map[string]uint64),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Upsert records a new desired quantity, resetting retries and queueing the
// line. Quantities of zero or below are kept as-is; callers decide what they
// mean.
func (t *Tracker) Upsert(lineID string, desired int) Intent {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.versions[lineID]++
	in := Intent{
		LineID:          lineID,
		DesiredQuantity: desired,
		Version:         t.versions[lineID],
		Status:          StatusQueued,
		RetryCount:      0,
		UpdatedAt:       t.now(),
	}
	t.intents[lineID] = in
	return in
}

// SetStatus changes the status of an existing intent and, when retryCount is
// non-nil, its retry counter. It reports false if the line has no intent.
func (t *Tracker) SetStatus(lineID string, status Status, retryCount *int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	in, ok := t.intents[lineID]
	if !ok {
		return false
	}
	in.Status = status
	if retryCount != nil {
		in.RetryCount = *retryCount
	}
	in.UpdatedAt = t.now()
	t.intents[lineID] = in
	return true
}

// AckIfCurrent removes the intent only if its version still equals
// sentVersion. It reports whether the intent was removed.
func (t *Tracker) AckIfCurrent(lineID string, sentVersion uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	in, ok := t.intents[lineID]
	if !ok || in.Version != sentVersion {
		return false
	}
	delete(t.intents, lineID)
	return true
}

// Clear drops the intent for lineID. The version counter is kept.
func (t *Tracker) Clear(lineID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.intents, lineID)
}

// Reset drops every intent.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.intents = make(map[string]Intent)
}

// Get returns the intent for lineID, if any.
func (t *Tracker) Get(lineID string) (Intent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	in, ok := t.intents[lineID]
	return in, ok
}

// StatusOf returns the line's status, StatusIdle when no intent exists.
func (t *Tracker) StatusOf(lineID string) Status {
	in, ok := t.Get(lineID)
	if !ok {
		return StatusIdle
	}
	return in.Status
}

// Snapshot returns a copy of all intents keyed by line id.
func (t *Tracker) Snapshot() map[string]Intent {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Intent, len(t.intents))
	for id, in := range t.intents {
		out[id] = in
	}
	return out
}

// Desired returns the desired quantity for every tracked line.
func (t *Tracker) Desired() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.intents))
	for id, in := range t.intents {
		out[id] = in.DesiredQuantity
	}
	return out
}

// Pending returns the ids of all tracked lines in sorted order.
func (t *Tracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.intents))
	for id := range t.intents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked intents.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.intents)
}
