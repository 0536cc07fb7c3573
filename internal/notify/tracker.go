// Package notify decides which incoming notifications are surfaced to the
// user exactly once, across polled and pushed delivery.
package notify

import (
	"sync"

	"github.com/plumeapp/plume/internal/model"
)

// Alerter delivers a user-facing alert (sound keyed by notification type
// plus a platform notification). Implementations live outside the core;
// delivery failures must not affect data correctness.
type Alerter interface {
	Alert(n model.Notification) error
}

// NoopAlerter swallows alerts. Used when alerting is disabled.
type NoopAlerter struct{}

func (NoopAlerter) Alert(model.Notification) error { return nil }

// Tracker remembers every notification identifier it has observed and
// answers whether a given notification should still trigger an alert.
// The known-id set lives for the whole process; session boundaries only
// reset the first-cycle suppression, never the set itself.
type Tracker struct {
	mu         sync.Mutex
	known      *idCache
	firstCycle bool
}

// NewTracker creates a tracker whose known-id set is LRU-capped at
// cacheSize entries (0 or negative means unbounded)
func NewTracker(cacheSize int) *Tracker {
	return &Tracker{
		known:      newIDCache(cacheSize),
		firstCycle: true,
	}
}

// ShouldAlert reports whether n should trigger an alert: it must be
// unread, never seen before, and not part of the first reconciliation
// of the session (everything already on the server at session start is
// old from the user's perspective).
func (t *Tracker) ShouldAlert(n model.Notification) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !n.Read && !t.firstCycle && !t.known.Contains(n.ID)
}

// Record marks n as observed, whether or not it was alerted
func (t *Tracker) Record(n model.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known.Add(n.ID)
}

// Observe combines ShouldAlert and Record atomically and returns the
// alert decision
func (t *Tracker) Observe(n model.Notification) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	alert := !n.Read && !t.firstCycle && !t.known.Contains(n.ID)
	t.known.Add(n.ID)
	return alert
}

// BeginSession re-arms first-cycle suppression for a new session without
// clearing the known-id set
func (t *Tracker) BeginSession() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.firstCycle = true
}

// CompleteFirstCycle lifts the first-cycle suppression; called once the
// initial reconciliation has been applied
func (t *Tracker) CompleteFirstCycle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.firstCycle = false
}

// FirstCycle reports whether first-cycle suppression is still active
func (t *Tracker) FirstCycle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstCycle
}

// KnownCount returns the size of the known-id set
func (t *Tracker) KnownCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.known.Len()
}

// Clear empties the known-id set. Not called on logout; exists for
// explicit operator intervention only.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known.Clear()
}
