package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockRetry = 50 * time.Millisecond
)

// Locker serializes entitlement writes per user.
type Locker interface {
	Lock(ctx context.Context, userID uint) (unlock func(), err error)
}

func lockKey(userID uint) string {
	return fmt.Sprintf("billing:entitlement-lock:%d", userID)
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX PX lock shared by every app instance. When Redis
// errors it falls back to an in-process lock so payments keep flowing on a
// single instance.
type RedisLocker struct {
	client   redis.UniversalClient
	ttl      time.Duration
	retry    time.Duration
	fallback *LocalLocker
	logger   *zap.Logger
}

func NewRedisLocker(client redis.UniversalClient, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client:   client,
		ttl:      defaultLockTTL,
		retry:    defaultLockRetry,
		fallback: NewLocalLocker(),
		logger:   logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, userID uint) (func(), error) {
	key := lockKey(userID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("redis lock unavailable, using local lock", zap.Uint("user_id", userID), zap.Error(err))
			return l.fallback.Lock(ctx, userID)
		}
		if ok {
			return func() {
				// The request context may already be done; release regardless.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
					l.logger.Warn("redis lock release failed", zap.Uint("user_id", userID), zap.Error(err))
				}
			}, nil
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// LocalLocker is a keyed mutex for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uint]*localLock
}

type localLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[uint]*localLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, userID uint) (func(), error) {
	l.mu.Lock()
	ll, ok := l.locks[userID]
	if !ok {
		ll = &localLock{sem: make(chan struct{}, 1)}
		l.locks[userID] = ll
	}
	ll.refs++
	l.mu.Unlock()

	select {
	case ll.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-ll.sem
				l.release(userID, ll)
			})
		}, nil
	case <-ctx.Done():
		l.release(userID, ll)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(userID uint, ll *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ll.refs--
	if ll.refs == 0 {
		delete(l.locks, userID)
	}
}
