package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lildude/workouttracker/internal/cache"
)

// ErrLocked is returned when another run holds the account lock.
var ErrLocked = errors.New("pipeline: a run is already in progress for this account")

// ReleaseFunc gives up a held lock.
type ReleaseFunc func(ctx context.Context) error

// Locker grants exclusive access to an account.
type Locker interface {
	// Acquire returns ErrLocked when key is already held. The lock is
	// dropped after ttl if it is never released.
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// LocalLocker locks within a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]struct{}{}}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, _ time.Duration) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

// RedisLocker locks across every process sharing the cache. Each
// acquisition stores a random token so only its holder can release it.
type RedisLocker struct {
	c cache.Cache
}

func NewRedisLocker(c cache.Cache) *RedisLocker {
	return &RedisLocker{c: c}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	k := "lock:" + key
	token := uuid.NewString()

	ok, err := l.c.SetNX(ctx, k, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", k, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		if _, err := l.c.CompareAndDelete(ctx, k, token); err != nil {
			return fmt.Errorf("releasing lock %s: %w", k, err)
		}
		return nil
	}, nil
}
