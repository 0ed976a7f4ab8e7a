package provisioning

import (
	"context"
	"errors"
	"sync"
	"time"

	"receptionist-platform/pkg/logger"
	"receptionist-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Locker serializes synchronizer mutations per tenant.
// Lock returns ErrProvisioningInProgress when another holder owns key.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RedisLocker is a cross-process Locker backed by SET NX PX.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker { return &RedisLocker{rdb: rdb} }

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lk, err := utils.AcquireLock(ctx, l.rdb, key, ttl)
	if err != nil {
		if errors.Is(err, utils.ErrLockHeld) {
			return nil, ErrProvisioningInProgress
		}
		return nil, err
	}

	// Keep the lease alive while the holder works; platform calls can outlast ttl.
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(context.WithoutCancel(ctx), lk, key, ttl, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The request ctx may already be cancelled; release on a short detached ctx.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			_ = lk.Release(rctx)
		})
	}, nil
}

// renew extends the lease every ttl/3 until stop closes or the lease is lost.
func (l *RedisLocker) renew(ctx context.Context, lk *utils.Lock, key string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(max(ttl/3, 10*time.Millisecond))
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ectx, cancel := context.WithTimeout(ctx, ttl/3+time.Second)
			ok, err := lk.Extend(ectx, ttl)
			cancel()
			if err != nil || !ok {
				logger.From(ctx).Warn("provisioning lock lease lost", "key", key, "err", err)
				return
			}
		}
	}
}

// MemoryLocker is a single-process Locker for tests and local runs without Redis.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time // key -> expiry
	now  func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]time.Time{}, now: time.Now}
}

func (l *MemoryLocker) Lock(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, ErrProvisioningInProgress
	}
	exp := now.Add(ttl)
	l.held[key] = exp

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// Only drop our own claim; an expired lock may have been re-taken.
			if cur, ok := l.held[key]; ok && cur.Equal(exp) {
				delete(l.held, key)
			}
		})
	}, nil
}

func lockKey(tenantID string) string { return "provisioning:tenant:" + tenantID }
