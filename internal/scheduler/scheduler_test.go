package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/plumeapp/plume/internal/config"
	"github.com/plumeapp/plume/internal/ops"
)

// fakeClock drives ticks by hand so the tests never sleep
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupScheduler(t *testing.T) (*Scheduler, *fakeClock, *int) {
	t.Helper()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	fired := 0

	cfg := &config.Refresh{
		Enabled:                 true,
		IntervalMinutes:         5,
		InteractionGraceSeconds: 30,
	}
	logger := ops.NewLogger(&config.Logging{Level: "error", Format: "text"})

	s := New(cfg, func() { fired++ }, logger)
	s.now = clock.Now

	// Arm without the background goroutine; ticks are driven by hand
	s.state = StateArmed
	s.nextRefresh = clock.Now().Add(s.interval)

	return s, clock, &fired
}

func TestFiresWhenDue(t *testing.T) {
	s, clock, fired := setupScheduler(t)

	clock.Advance(4 * time.Minute)
	s.tick()
	if *fired != 0 {
		t.Fatal("fired before the interval elapsed")
	}

	clock.Advance(time.Minute)
	s.tick()
	if *fired != 1 {
		t.Fatalf("expected 1 refresh, got %d", *fired)
	}

	// The next refresh is rescheduled a full interval out
	if got := s.Countdown(); got != 5*time.Minute {
		t.Errorf("expected a full interval countdown, got %v", got)
	}
}

func TestInteractionPauses(t *testing.T) {
	s, clock, fired := setupScheduler(t)

	clock.Advance(5 * time.Minute) // a refresh is due
	s.markInteraction()

	clock.Advance(10 * time.Second) // still within the 30s grace
	s.tick()

	if !s.Paused() {
		t.Error("expected scheduler paused right after interaction")
	}
	if *fired != 0 {
		t.Error("refresh fired mid-interaction")
	}
}

func TestPauseSnoozesWithoutAdvancingNextRefresh(t *testing.T) {
	s, clock, fired := setupScheduler(t)

	clock.Advance(5 * time.Minute)
	next := s.nextRefresh
	s.markInteraction()
	s.tick() // pauses, snoozes 10s

	if s.nextRefresh != next {
		t.Error("pause must not advance nextRefresh by a full interval")
	}

	// Ticks during the snooze are ignored
	clock.Advance(5 * time.Second)
	s.tick()
	if !s.Paused() {
		t.Error("expected still paused during snooze")
	}

	// After the grace window passes with no further interaction, the
	// overdue refresh fires on the next evaluated tick
	clock.Advance(30 * time.Second)
	s.tick()
	if *fired != 1 {
		t.Fatalf("expected the deferred refresh to fire, got %d", *fired)
	}
	if s.State() != StateArmed {
		t.Errorf("expected armed after firing, got %s", s.State())
	}
}

func TestRepeatedInteractionKeepsDeferring(t *testing.T) {
	s, clock, fired := setupScheduler(t)

	clock.Advance(5 * time.Minute)
	for i := 0; i < 3; i++ {
		s.markInteraction()
		s.tick()
		clock.Advance(15 * time.Second)
	}

	if *fired != 0 {
		t.Error("refresh fired while the user kept interacting")
	}

	// User goes idle past the grace window
	clock.Advance(30 * time.Second)
	s.tick()
	if *fired != 1 {
		t.Errorf("expected 1 refresh once idle, got %d", *fired)
	}
}

func TestStartStop(t *testing.T) {
	cfg := &config.Refresh{
		Enabled:                 true,
		IntervalMinutes:         5,
		InteractionGraceSeconds: 30,
	}
	logger := ops.NewLogger(&config.Logging{Level: "error", Format: "text"})
	s := New(cfg, func() {}, logger)

	if s.State() != StateIdle {
		t.Fatalf("expected idle before start, got %s", s.State())
	}

	s.Start()
	if s.State() != StateArmed {
		t.Fatalf("expected armed after start, got %s", s.State())
	}
	if s.Countdown() <= 0 {
		t.Error("expected a positive countdown while armed")
	}

	s.Stop()
	if s.State() != StateIdle {
		t.Fatalf("expected idle after stop, got %s", s.State())
	}
	if s.Countdown() != 0 {
		t.Error("expected zero countdown when idle")
	}

	// Stop twice must not panic
	s.Stop()
}

func TestTickIgnoredWhenIdle(t *testing.T) {
	s, clock, fired := setupScheduler(t)
	s.state = StateIdle

	clock.Advance(time.Hour)
	s.tick()
	if *fired != 0 {
		t.Error("idle scheduler must not fire")
	}
}
