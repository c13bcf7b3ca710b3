package service

import (
	"context"
	"log"
	"time"

	"voyage/internal/clock"
	"voyage/internal/config"
	"voyage/internal/eventbus"
	"voyage/internal/redis"
	"voyage/internal/repository"
)

const sweepJobName = "trip-monitor-sweep"

// Sweep is the self-healing retry path: a recurring pass that
// rediscovers trips whose timer was lost to a crash or redeploy and
// re-evaluates them. It never depends on any in-memory timer registry
// surviving a restart, which is why evaluation must be idempotent.
type Sweep struct {
	cfg     config.SweepConfig
	clock   clock.Clock
	trips   repository.TripRepository
	monitor *Monitor
	run     IsolatedRunner
	lock    redis.JobLockInterface
}

// NewSweep creates a new Sweep.
func NewSweep(
	cfg config.SweepConfig,
	clk clock.Clock,
	trips repository.TripRepository,
	monitor *Monitor,
	run IsolatedRunner,
	lock redis.JobLockInterface,
) *Sweep {
	return &Sweep{
		cfg:     cfg,
		clock:   clk,
		trips:   trips,
		monitor: monitor,
		run:     run,
		lock:    lock,
	}
}

// Run sweeps until the context is cancelled.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep pass. The pass is single-flight across the
// fleet via the externally-held job lock; each trip is evaluated in its
// own isolated unit of work so one trip's failure never affects the
// rest of the pass.
func (s *Sweep) RunOnce(ctx context.Context) {
	locked, err := s.lock.Acquire(ctx, sweepJobName, s.cfg.LockTTL)
	if err != nil {
		log.Printf("sweep: lock acquire failed: %v", err)
		return
	}
	if !locked {
		return
	}
	defer func() {
		if err := s.lock.Release(ctx, sweepJobName); err != nil {
			log.Printf("sweep: lock release failed: %v", err)
		}
	}()

	horizon := s.clock.Now().Add(s.cfg.Lookahead)
	ids, err := s.trips.ListDeparting(ctx, horizon)
	if err != nil {
		log.Printf("sweep: list departing trips failed: %v", err)
		return
	}

	for _, id := range ids {
		if err := s.monitor.EvaluateByID(ctx, s.run, id, eventbus.TriggerSweep); err != nil {
			log.Printf("sweep: evaluate trip=%s: %v", id, err)
		}
	}
}
