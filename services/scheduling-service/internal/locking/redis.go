package locking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX PX lock. The TTL bounds how long a crashed holder can block
// the staff member; keep it well above the slowest commit.
type RedisLocker struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger *slog.Logger
}

type RedisOptions struct {
	TTL    time.Duration
	Retry  time.Duration
	Prefix string
}

func NewRedisLocker(rdb redis.Cmdable, logger *slog.Logger, opts RedisOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 25 * time.Millisecond
	}
	opts.Prefix = strings.TrimSpace(opts.Prefix)
	if opts.Prefix == "" {
		opts.Prefix = "lock"
	}
	return &RedisLocker{rdb: rdb, ttl: opts.TTL, retry: opts.Retry, prefix: opts.Prefix, logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.rdb == nil {
		return nil, errors.New("redis locker not configured")
	}
	full := l.prefix + ":" + key
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() { once.Do(func() { l.unlock(full, token) }) }, nil
		}

		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// unlock deletes the key only if we still own it; an expired lock taken over by another
// holder is left alone.
func (l *RedisLocker) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil && l.logger != nil {
		l.logger.Warn("redis lock release failed", "key", key, "err", err)
	}
}
