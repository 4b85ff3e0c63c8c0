package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired holder never removes a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process using the same Redis.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedis creates a locker storing keys under prefix
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// TryLock implements Locker with SET NX PX
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	token := newToken()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &redisLock{client: r.client, key: r.prefix + key, token: token}, nil
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
	once   sync.Once
	err    error
}

func (rl *redisLock) Release(ctx context.Context) error {
	rl.once.Do(func() {
		if err := releaseScript.Run(ctx, rl.client, []string{rl.key}, rl.token).Err(); err != nil && err != redis.Nil {
			rl.err = fmt.Errorf("failed to release lock %s: %w", rl.key, err)
		}
	})
	return rl.err
}
