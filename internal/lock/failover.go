package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"coachbook/internal/domain"

	"github.com/rs/zerolog"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// FailoverLocker prefers the shared primary and drops to a local fallback
// while the primary is unreachable. Storage constraints still hold across
// processes during a fallback window.
type FailoverLocker struct {
	primary      domain.ResourceLocker
	fallback     domain.ResourceLocker
	logger       *zerolog.Logger
	recoverAfter time.Duration
	isDown       atomic.Bool
	mu           sync.Mutex
	lastCheck    time.Time
}

func NewFailoverLocker(primary, fallback domain.ResourceLocker, logger *zerolog.Logger) *FailoverLocker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverLocker{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: time.Minute,
	}
}

func (l *FailoverLocker) Lock(ctx context.Context, key string) (func(), error) {
	if !l.isDown.Load() || l.shouldRetryPrimary() {
		release, err := l.primary.Lock(ctx, key)
		if err == nil {
			if l.isDown.Swap(false) {
				l.logger.Info().Msg("Primary lock backend recovered")
			}
			return release, nil
		}
		if isCallerError(ctx, err) {
			return nil, err
		}
		if !l.isDown.Swap(true) {
			l.logger.Error().Err(err).Msg("Primary lock backend failed, falling back to memory")
		}
		l.markChecked()
	}

	return l.fallback.Lock(ctx, key)
}

// Ping reports the primary's health; the fallback is always local.
func (l *FailoverLocker) Ping(ctx context.Context) error {
	if p, ok := l.primary.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (l *FailoverLocker) Degraded() bool {
	return l.isDown.Load()
}

func (l *FailoverLocker) shouldRetryPrimary() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Since(l.lastCheck) > l.recoverAfter
}

func (l *FailoverLocker) markChecked() {
	l.mu.Lock()
	l.lastCheck = time.Now()
	l.mu.Unlock()
}

// isCallerError separates "busy" and cancellation from backend failures.
func isCallerError(ctx context.Context, err error) bool {
	return errors.Is(err, domain.ErrLockTimeout) || ctx.Err() != nil
}
