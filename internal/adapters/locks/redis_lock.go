package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "segment-lock:"

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX PX lock. The TTL bounds how long a crashed holder can
// block others.
type RedisLock struct {
	Client *redis.Client
	TTL    time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLock{Client: client, TTL: ttl, tokens: make(map[string]string)}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis lock: parse url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis lock: ping: %w", err)
	}

	return client, nil
}

func (l *RedisLock) TryLock(ctx context.Context, key string) (bool, error) {
	if l.Client == nil {
		return false, errors.New("redis lock: client is nil")
	}

	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, redisKeyPrefix+key, token, l.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock: set %q: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

func (l *RedisLock) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()

	if !ok {
		return nil
	}

	n, err := releaseScript.Run(context.WithoutCancel(ctx), l.Client, []string{redisKeyPrefix + key}, token).Int()
	if err != nil {
		return fmt.Errorf("redis lock: release %q: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("redis lock: release %q: lock expired or taken over", key)
	}
	return nil
}
