package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"voyage/internal/clock"
	"voyage/internal/config"
	"voyage/internal/domain"
	"voyage/internal/eventbus"
	"voyage/internal/scheduler"
	"voyage/internal/service"
)

// ──────────────────────────────────────────────
// 3. RECOVERY SWEEP AND TIMER DISPATCH
// ──────────────────────────────────────────────

func sweepConfig() config.SweepConfig {
	return config.SweepConfig{
		Interval:  time.Minute,
		Lookahead: time.Hour,
		TimerPoll: 5 * time.Second,
		LockTTL:   5 * time.Minute,
	}
}

func TestSweep_EvaluatesImminentTrips(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)
	runner := NewTestRunner(tripRepo, NewMockBookingRepository(), NewMockRideRepository())
	lock := NewMockJobLock()

	// Departing within the lookahead: picked up.
	tripRepo.AddTrip(reservedTrip("trip-soon", now.Add(45*time.Minute)))
	// Departing well past the horizon: left alone.
	tripRepo.AddTrip(reservedTrip("trip-later", now.Add(5*time.Hour)))
	// Terminal: never swept.
	done := reservedTrip("trip-done", now.Add(10*time.Minute))
	done.State = domain.TripStateCompleted
	tripRepo.AddTrip(done)

	sweep := service.NewSweep(sweepConfig(), clk, tripRepo, monitor, runner, lock)
	sweep.RunOnce(context.Background())

	transitions := runner.EventsOfKind(eventbus.KindTripTransition)
	if len(transitions) != 1 {
		t.Fatalf("expected 1 trip evaluated, got %d", len(transitions))
	}
	if transitions[0].TripID != "trip-soon" {
		t.Errorf("expected trip-soon evaluated, got %s", transitions[0].TripID)
	}
	payload := transitions[0].Payload.(eventbus.TripTransition)
	if payload.Trigger != eventbus.TriggerSweep {
		t.Errorf("expected trigger %s, got %s", eventbus.TriggerSweep, payload.Trigger)
	}

	// The imminent trip is now covered by a timer again.
	wantDeadline := now.Add(45 * time.Minute).Add(-30 * time.Minute)
	timers := sched.TimersFor("trip-soon")
	if len(timers) != 1 || !timers[0].Deadline.Equal(wantDeadline) {
		t.Errorf("expected timer at %s, got %v", wantDeadline, timers)
	}
}

func TestSweep_SkipsWhenLockHeldElsewhere(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)

	tripRepo := NewMockTripRepository()
	tripRepo.AddTrip(reservedTrip("trip-1", now.Add(30*time.Minute)))

	monitor := service.NewMonitor(monitorConfig(), clk, NewMockScheduler())
	runner := NewTestRunner(tripRepo, NewMockBookingRepository(), NewMockRideRepository())
	lock := NewMockJobLock()
	lock.Denied = true

	sweep := service.NewSweep(sweepConfig(), clk, tripRepo, monitor, runner, lock)
	sweep.RunOnce(context.Background())

	if len(runner.Events) != 0 {
		t.Errorf("expected no evaluations while lock is held, got %d events", len(runner.Events))
	}
	if lock.ReleaseCallCount != 0 {
		t.Errorf("expected no release of a lock never acquired, got %d", lock.ReleaseCallCount)
	}
}

func TestSweep_ReleasesLockAndSurvivesBadTrips(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)

	tripRepo := NewMockTripRepository()
	tripRepo.AddTrip(reservedTrip("trip-1", now.Add(30*time.Minute)))
	// A stale sweep entry for a trip that no longer loads must not
	// abort the pass.
	tripRepo.ExtraDepartingIDs = []string{"trip-ghost"}

	monitor := service.NewMonitor(monitorConfig(), clk, NewMockScheduler())
	runner := NewTestRunner(tripRepo, NewMockBookingRepository(), NewMockRideRepository())
	lock := NewMockJobLock()

	sweep := service.NewSweep(sweepConfig(), clk, tripRepo, monitor, runner, lock)
	sweep.RunOnce(context.Background())

	if got := len(runner.EventsOfKind(eventbus.KindTripTransition)); got != 1 {
		t.Errorf("expected the healthy trip evaluated, got %d events", got)
	}
	if lock.ReleaseCallCount != 1 {
		t.Errorf("expected lock released after the pass, got %d", lock.ReleaseCallCount)
	}

	// The next pass can acquire again.
	sweep.RunOnce(context.Background())
	if lock.AcquireCallCount != 2 {
		t.Errorf("expected 2 acquisitions, got %d", lock.AcquireCallCount)
	}
}

// fakeClaimer is an in-memory DueClaimer for dispatcher tests.
type fakeClaimer struct {
	mu     sync.Mutex
	timers []*domain.Timer
}

func (f *fakeClaimer) add(entityID string, deadline time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timers = append(f.timers, &domain.Timer{EntityID: entityID, Deadline: deadline})
}

func (f *fakeClaimer) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.Timer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due, remaining []*domain.Timer
	for _, tm := range f.timers {
		if !tm.Deadline.After(now) && len(due) < limit {
			due = append(due, tm)
		} else {
			remaining = append(remaining, tm)
		}
	}
	f.timers = remaining
	return due, nil
}

func TestDispatcher_FiresDueTimersOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)

	claimer := &fakeClaimer{}
	claimer.add("trip-1", now.Add(-time.Minute))
	claimer.add("trip-2", now.Add(-time.Second))
	claimer.add("trip-3", now.Add(time.Hour))

	var mu sync.Mutex
	fired := map[string]int{}
	dispatcher := scheduler.NewDispatcher(claimer, clk, time.Second,
		func(ctx context.Context, entityID string) error {
			mu.Lock()
			defer mu.Unlock()
			fired[entityID]++
			return nil
		})

	dispatcher.RunOnce(context.Background())
	// Claimed timers are consumed: a second pass must not refire them.
	dispatcher.RunOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if fired["trip-1"] != 1 || fired["trip-2"] != 1 {
		t.Errorf("expected each due timer fired once, got %v", fired)
	}
	if fired["trip-3"] != 0 {
		t.Errorf("expected future timer untouched, got %v", fired)
	}
}

func TestDispatcher_FailedFireDoesNotStopBatch(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)

	claimer := &fakeClaimer{}
	claimer.add("trip-bad", now.Add(-2*time.Minute))
	claimer.add("trip-good", now.Add(-time.Minute))

	var mu sync.Mutex
	var fired []string
	dispatcher := scheduler.NewDispatcher(claimer, clk, time.Second,
		func(ctx context.Context, entityID string) error {
			mu.Lock()
			defer mu.Unlock()
			fired = append(fired, entityID)
			if entityID == "trip-bad" {
				return context.DeadlineExceeded
			}
			return nil
		})

	dispatcher.RunOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 2 {
		t.Errorf("expected both timers attempted, got %v", fired)
	}
}
