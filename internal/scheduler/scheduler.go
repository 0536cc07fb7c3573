// Package scheduler decides when the session reconciler may run, backing
// off while the user is actively interacting.
package scheduler

import (
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/plumeapp/plume/internal/config"
	"github.com/plumeapp/plume/internal/ops"
)

// State is the scheduler lifecycle state
type State string

const (
	StateIdle   State = "idle"
	StateArmed  State = "armed"
	StatePaused State = "paused"
)

const (
	tickInterval = time.Second
	// snoozeDelay is how long a paused scheduler waits before checking
	// again; deliberately much shorter than a full interval so an active
	// user is not starved of refreshes indefinitely
	snoozeDelay = 10 * time.Second
	// interactionDebounce coalesces bursts of input events into one
	// recorded interaction
	interactionDebounce = 250 * time.Millisecond
)

// Scheduler fires a refresh callback on a fixed interval, pausing while
// the user has interacted recently
type Scheduler struct {
	mu              sync.Mutex
	state           State
	interval        time.Duration
	grace           time.Duration
	nextRefresh     time.Time
	snoozeUntil     time.Time
	lastInteraction time.Time

	refresh   func()
	now       func() time.Time
	debounced func(func())
	logger    *ops.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a scheduler that invokes refresh when a cycle is due
func New(cfg *config.Refresh, refresh func(), logger *ops.Logger) *Scheduler {
	return &Scheduler{
		state:     StateIdle,
		interval:  cfg.Interval(),
		grace:     time.Duration(cfg.InteractionGraceSeconds) * time.Second,
		refresh:   refresh,
		now:       time.Now,
		debounced: debounce.New(interactionDebounce),
		logger:    logger.WithComponent("scheduler"),
	}
}

// Start arms the scheduler and begins ticking. No-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateArmed
	s.nextRefresh = s.now().Add(s.interval)
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.logger.Info("auto-refresh armed", "interval", s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop tears the ticking timer down. Called when auto-refresh is disabled
// or the session ends; no timer survives a session boundary.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("auto-refresh stopped")
}

// RecordInteraction notes user activity (mouse, key, scroll, touch).
// Bursts are debounced into a single recorded timestamp.
func (s *Scheduler) RecordInteraction() {
	s.debounced(s.markInteraction)
}

func (s *Scheduler) markInteraction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastInteraction = s.now()
}

// tick evaluates one scheduler step
func (s *Scheduler) tick() {
	s.mu.Lock()

	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}

	now := s.now()
	if now.Before(s.snoozeUntil) {
		s.mu.Unlock()
		return
	}

	if !s.lastInteraction.IsZero() && now.Sub(s.lastInteraction) < s.grace {
		// The user is active: defer the next check by a short delay
		// instead of a full interval
		s.state = StatePaused
		s.snoozeUntil = now.Add(snoozeDelay)
		s.mu.Unlock()
		return
	}

	s.state = StateArmed
	if now.Before(s.nextRefresh) {
		s.mu.Unlock()
		return
	}

	s.nextRefresh = now.Add(s.interval)
	refresh := s.refresh
	s.mu.Unlock()

	// Never hold the lock across the cycle itself
	refresh()
}

// State returns the current lifecycle state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Paused reports whether the scheduler is deferring due to interaction
func (s *Scheduler) Paused() bool {
	return s.State() == StatePaused
}

// Countdown returns the time remaining until the next scheduled refresh
func (s *Scheduler) Countdown() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		return 0
	}
	remaining := s.nextRefresh.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}
