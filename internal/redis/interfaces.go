package redis

import (
	"context"
	"time"
)

// JobLockInterface defines the interface for single-flight job locking.
type JobLockInterface interface {
	Acquire(ctx context.Context, jobName string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jobName string) error
}

// Ensure concrete types implement interfaces.
var _ JobLockInterface = (*JobLock)(nil)
