package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisLock serialises runs across processes sharing one Redis. The key
// expires after ttl so a crashed holder cannot block runs forever.
type RedisLock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

func NewRedisLock(client redis.Cmdable, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl}
}

func (l *RedisLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return false, nil
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release frees the lock if this holder still owns it. ErrNotHeld means the
// key expired or was taken over in the meantime.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token == "" {
		return ErrNotHeld
	}
	token := l.token
	l.token = ""

	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("redis release %s: %w", l.key, err)
	}
	if deleted == 0 {
		return ErrNotHeld
	}
	return nil
}
