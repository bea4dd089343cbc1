package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Locker serializes work on a key across service instances.
type Locker interface {
	// Obtain blocks until the lock is held or the attempts run out. The
	// returned func releases it.
	Obtain(ctx context.Context, key string) (release func(), err error)
}

type redisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func NewRedisLocker(rdb *redis.Client, expiry time.Duration, tries int) Locker {
	return &redisLocker{
		rs:     redsync.New(goredis.NewPool(rdb)),
		expiry: expiry,
		tries:  tries,
	}
}

func (l *redisLocker) Obtain(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(
		key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("lock: failed to acquire %s: %w", key, err)
	}

	return func() {
		// Release on a fresh context so a cancelled request still unlocks.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := mutex.UnlockContext(ctx); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("lock: failed to release")
		}
	}, nil
}

type noopLocker struct{}

// NewNoop returns a Locker that never blocks. It is used when Redis is not
// configured.
func NewNoop() Locker {
	return noopLocker{}
}

func (noopLocker) Obtain(context.Context, string) (func(), error) {
	return func() {}, nil
}
