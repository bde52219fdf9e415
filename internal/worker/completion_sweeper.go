package worker

import (
	"context"
	"fmt"
	"time"

	"coachbook/internal/clock"
	"coachbook/internal/config"
	"coachbook/internal/domain"
	"coachbook/internal/events"
	"coachbook/internal/metrics"
	"coachbook/internal/models"
	"coachbook/internal/scheduler"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// staleStatuses are never swept; they are only counted and reported.
var staleStatuses = []models.Status{models.StatusPending, models.StatusRescheduled}

// CompletionSweeper moves confirmed bookings whose date has passed to completed.
type CompletionSweeper struct {
	repo       domain.Repository
	clock      clock.Clock
	eventBus   domain.EventPublisher
	limiter    *rate.Limiter
	runAt      models.TimeOfDay
	runOnStart bool
	logger     *zerolog.Logger
}

var _ domain.Sweeper = (*CompletionSweeper)(nil)

func NewCompletionSweeper(
	repo domain.Repository,
	clk clock.Clock,
	eventBus domain.EventPublisher,
	cfg config.SweeperConfig,
	logger *zerolog.Logger,
) (*CompletionSweeper, error) {
	if cfg.RunAt == "" {
		cfg.RunAt = models.DefaultSweepTime
	}
	runAt, err := models.ParseTimeOfDay(cfg.RunAt)
	if err != nil || runAt >= models.MinutesPerDay {
		return nil, fmt.Errorf("invalid sweep time %q", cfg.RunAt)
	}
	if clk == nil {
		clk = clock.NewSystem(time.UTC)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	var limiter *rate.Limiter
	if cfg.MaxUpdatesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxUpdatesPerSecond), 1)
	}

	return &CompletionSweeper{
		repo:       repo,
		clock:      clk,
		eventBus:   eventBus,
		limiter:    limiter,
		runAt:      runAt,
		runOnStart: cfg.RunOnStart,
		logger:     logger,
	}, nil
}

// RunSweep completes every confirmed booking dated before today and returns how
// many were advanced. A failing booking is logged and skipped; only a failed
// selection or a cancelled ctx ends the run early.
func (w *CompletionSweeper) RunSweep(ctx context.Context) (int, error) {
	started := time.Now()
	defer func() { metrics.ObserveSweepDuration(time.Since(started)) }()

	today := w.clock.Today()
	bookings, err := w.repo.GetBookingsByStatusBefore(ctx, models.StatusConfirmed, today)
	if err != nil {
		return 0, fmt.Errorf("failed to select bookings to complete: %w", err)
	}

	advanced, failed := 0, 0
	for _, b := range bookings {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				metrics.AddSweepCompleted(advanced)
				return advanced, err
			}
		} else if err := ctx.Err(); err != nil {
			metrics.AddSweepCompleted(advanced)
			return advanced, err
		}

		if err := w.complete(ctx, b); err != nil {
			failed++
			metrics.IncSweepFailure()
			w.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("sweep: complete booking failed")
			continue
		}
		advanced++
	}
	metrics.AddSweepCompleted(advanced)

	w.reportStale(ctx, today)

	w.logger.Info().
		Str("today", models.FormatDate(today)).
		Int("selected", len(bookings)).
		Int("completed", advanced).
		Int("failed", failed).
		Dur("took", time.Since(started)).
		Msg("completion sweep finished")
	return advanced, nil
}

func (w *CompletionSweeper) complete(ctx context.Context, b *models.Booking) error {
	if err := scheduler.ValidateTransition(b.Status, models.StatusCompleted); err != nil {
		return err
	}
	now := w.clock.Now()
	if err := w.repo.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, models.StatusCompleted, now); err != nil {
		return err
	}

	if w.eventBus != nil {
		done := *b
		done.Status = models.StatusCompleted
		done.Version++
		done.UpdatedAt = now
		payload := events.NewBookingEventPayload(&done, b.Status, now)
		if err := w.eventBus.PublishJSON(events.EventBookingCompleted, payload); err != nil {
			w.logger.Error().Err(err).Str("booking_id", b.ID).Msg("publish event error")
		}
	}
	return nil
}

// reportStale surfaces unanswered bookings whose date has passed. They keep their status.
func (w *CompletionSweeper) reportStale(ctx context.Context, today time.Time) {
	stale, err := w.repo.CountBookingsByStatusBefore(ctx, staleStatuses, today)
	if err != nil {
		w.logger.Error().Err(err).Msg("sweep: count stale bookings")
		return
	}
	metrics.SetStaleBookings(stale)
	if stale > 0 {
		w.logger.Warn().Int("stale", stale).Msg("pending or rescheduled bookings left in the past")
	}
}

// Start runs the sweep once a day at the configured local time until ctx is done.
func (w *CompletionSweeper) Start(ctx context.Context) {
	w.logger.Info().Str("run_at", w.runAt.String()).Bool("run_on_start", w.runOnStart).Msg("completion sweeper started")
	defer w.logger.Info().Msg("completion sweeper stopped")

	if w.runOnStart {
		w.runLogged(ctx)
	}

	timer := time.NewTimer(timeUntil(w.clock.Now(), w.runAt))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.runLogged(ctx)
			timer.Reset(timeUntil(w.clock.Now(), w.runAt))
		}
	}
}

func (w *CompletionSweeper) runLogged(ctx context.Context) {
	if _, err := w.RunSweep(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error().Err(err).Msg("completion sweep failed")
	}
}

// timeUntil returns the wait from now until the next occurrence of at in now's location.
func timeUntil(now time.Time, at models.TimeOfDay) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
