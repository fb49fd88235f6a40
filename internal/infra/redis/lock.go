package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"agentic-workflow/internal/domain"
)

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
	// Extend resets the ttl of a lock still held under token.
	Extend(ctx context.Context, key, token string, ttl time.Duration) error
}

var _ Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	client  RedisClient
	retries int
	wait    time.Duration
}

func NewLocker(c RedisClient) *RedisLocker {
	return &RedisLocker{client: c, retries: 5, wait: 50 * time.Millisecond}
}

// JobRunKey guards one job against concurrent execution across processes.
func JobRunKey(jobID string) string { return "job-run:" + jobID }

// TryLock returns domain.ErrAlreadyExists when another holder keeps the key
// for every attempt.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.retries; i++ {
		ok, err := l.client.SetNX(ctx, key, token, ttl)
		if err != nil {
			lastErr = err
		} else if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.wait):
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("lock %s: %w", key, lastErr)
	}
	return "", fmt.Errorf("lock %s: %w", key, domain.ErrAlreadyExists)
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.client.Eval(ctx, luaUnlock, []string{key}, token)
	return err
}

var luaExtend = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

// Extend returns domain.ErrNotFound once the lock expired or changed hands.
func (l *RedisLocker) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	res, err := l.client.Eval(ctx, luaExtend, []string{key}, token, ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("extend %s: %w", key, err)
	}
	if n, _ := res.(int64); n == 0 {
		return fmt.Errorf("extend %s: %w", key, domain.ErrNotFound)
	}
	return nil
}
