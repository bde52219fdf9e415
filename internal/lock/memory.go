package lock

import (
	"context"
	"sync"
	"time"

	"coachbook/internal/domain"
)

// MemoryLocker serializes callers inside one process.
type MemoryLocker struct {
	slots sync.Map
	wait  time.Duration
}

// NewMemoryLocker returns a locker whose callers wait at most wait for a busy key.
func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{wait: wait}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	val, _ := l.slots.LoadOrStore(key, make(chan struct{}, 1))
	slot := val.(chan struct{})

	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, domain.ErrLockTimeout
	}
}

func (l *MemoryLocker) Ping(ctx context.Context) error {
	return nil
}
