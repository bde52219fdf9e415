package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SchedulingServiceName is the health service name probes ask for.
const SchedulingServiceName = "coachbook.scheduling"

// CheckFunc reports whether one dependency is usable.
type CheckFunc func(ctx context.Context) error

// HealthChecker polls dependencies and mirrors the result into a gRPC health server.
type HealthChecker struct {
	server   *health.Server
	checks   map[string]CheckFunc
	interval time.Duration
	timeout  time.Duration
	logger   *zerolog.Logger

	mu     sync.Mutex
	failed map[string]bool
}

func NewHealthChecker(interval time.Duration, logger *zerolog.Logger) *HealthChecker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &HealthChecker{
		server:   health.NewServer(),
		checks:   make(map[string]CheckFunc),
		interval: interval,
		timeout:  2 * time.Second,
		logger:   logger,
		failed:   make(map[string]bool),
	}
}

// AddCheck registers a dependency; call before Start.
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.checks[name] = check
}

// Server exposes the grpc_health_v1 implementation.
func (h *HealthChecker) Server() healthpb.HealthServer {
	return h.server
}

// CheckNow runs every check once and returns true when all pass.
func (h *HealthChecker) CheckNow(ctx context.Context) bool {
	healthy := true
	for name, check := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := check(cctx)
		cancel()
		h.record(name, err)
		if err != nil {
			healthy = false
		}
	}

	st := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", st)
	h.server.SetServingStatus(SchedulingServiceName, st)
	return healthy
}

func (h *HealthChecker) record(name string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	was := h.failed[name]
	switch {
	case err != nil && !was:
		h.logger.Error().Err(err).Str("check", name).Msg("health check failing")
	case err == nil && was:
		h.logger.Info().Str("check", name).Msg("health check recovered")
	}
	h.failed[name] = err != nil
}

// Start polls until ctx is done, then marks everything NOT_SERVING.
func (h *HealthChecker) Start(ctx context.Context) {
	h.CheckNow(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.CheckNow(ctx)
		}
	}
}
