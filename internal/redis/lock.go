package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when it still holds our
// token. A holder that outlived its TTL must not delete the lock the
// next holder acquired in the meantime.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// JobLock provides single-flight locking for background jobs, keyed by
// job name and held in Redis rather than in-process, so only one
// instance runs a given job at a time across the fleet. Each acquire
// stores a fresh ownership token; release is compare-and-delete on
// that token.
type JobLock struct {
	client *redis.Client

	mu     sync.Mutex
	tokens map[string]string
}

// NewJobLock creates a new JobLock.
func NewJobLock(client *redis.Client) *JobLock {
	return &JobLock{
		client: client,
		tokens: make(map[string]string),
	}
}

// Acquire attempts to take the lock for the named job. Returns true if
// the lock was acquired, false if another holder has it. The TTL bounds
// how long a crashed holder can block the job.
func (s *JobLock) Acquire(ctx context.Context, jobName string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:job:%s", jobName)
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		s.mu.Lock()
		s.tokens[jobName] = token
		s.mu.Unlock()
	}

	return ok, nil
}

// Release releases the lock for the named job, but only if this
// instance still owns it.
func (s *JobLock) Release(ctx context.Context, jobName string) error {
	key := fmt.Sprintf("lock:job:%s", jobName)

	s.mu.Lock()
	token, ok := s.tokens[jobName]
	delete(s.tokens, jobName)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	return releaseScript.Run(ctx, s.client, []string{key}, token).Err()
}
