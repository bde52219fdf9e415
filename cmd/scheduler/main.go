package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coachbook/internal/api"
	"coachbook/internal/clock"
	"coachbook/internal/config"
	"coachbook/internal/database"
	"coachbook/internal/domain"
	"coachbook/internal/events"
	"coachbook/internal/lock"
	"coachbook/internal/logging"
	"coachbook/internal/metrics"
	"coachbook/internal/models"
	"coachbook/internal/service"
	"coachbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default $CONFIG_PATH or configs/config.yaml)")
	sweepOnce := flag.Bool("sweep-once", false, "run one completion sweep and exit")
	flag.Parse()

	if err := run(*configPath, *sweepOnce); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

type lockBackend interface {
	domain.ResourceLocker
	Ping(ctx context.Context) error
}

func run(configPath string, sweepOnce bool) error {
	cfg, logger, closer, err := loadConfigAndLogger(configPath)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	loc, err := cfg.App.Location()
	if err != nil {
		return err
	}
	clk := clock.NewSystem(loc)

	db, err := database.NewDB(cfg.Database.Path, logging.Component(&logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	bus := events.NewEventBus()
	subscribeEventLog(bus, logging.Component(&logger, "events"))

	sweeper, err := worker.NewCompletionSweeper(db, clk, bus, cfg.Sweeper, logging.Component(&logger, "sweeper"))
	if err != nil {
		return err
	}

	if sweepOnce {
		n, err := sweeper.RunSweep(context.Background())
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		logger.Info().Int("completed", n).Msg("sweep-once finished")
		return nil
	}

	locker, redisClient := initLocker(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var directory domain.Directory
	if len(cfg.Scheduling.Resources) > 0 || len(cfg.Scheduling.Subjects) > 0 {
		directory = service.NewStaticDirectory(cfg.Scheduling.Resources, cfg.Scheduling.Subjects)
	}
	scheduling := service.NewSchedulingService(
		db, locker, clk, directory, bus, cfg.Scheduling.MaxBookingDays, logging.Component(&logger, "scheduling"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	if cfg.Sweeper.Enabled {
		go sweeper.Start(ctx)
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		checker := api.NewHealthChecker(15*time.Second, logging.Component(&logger, "health"))
		checker.AddCheck("database", db.PingContext)
		checker.AddCheck("lock", locker.Ping)
		checker.AddCheck("scheduling", func(ctx context.Context) error {
			_, err := scheduling.ListBookings(ctx, models.BookingFilter{Limit: 1})
			return err
		})
		go checker.Start(ctx)

		grpcServer, err = api.NewGRPCServer(&cfg.API, checker, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	logger.Info().
		Str("lock_backend", cfg.Lock.Backend).
		Int("max_booking_days", cfg.Scheduling.MaxBookingDays).
		Bool("sweeper", cfg.Sweeper.Enabled).
		Str("timezone", loc.String()).
		Msg("scheduler started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("scheduler stopped")
	return nil
}

func loadConfigAndLogger(configPath string) (*config.Config, zerolog.Logger, io.Closer, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "scheduler-main").Logger()

	return cfg, logger, closer, nil
}

func initLocker(cfg *config.Config, logger *zerolog.Logger) (lockBackend, *redis.Client) {
	memory := lock.NewMemoryLocker(cfg.Lock.WaitTimeout)
	if cfg.Lock.Backend == config.LockBackendMemory {
		return memory, nil
	}

	redisClient := lock.NewRedisClient(cfg.Redis)
	redisLocker := lock.NewRedisLocker(redisClient, cfg.Lock, logging.Component(logger, "lock"))

	if err := redisLocker.Ping(context.Background()); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("redis ping failed")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	if cfg.Lock.Backend == config.LockBackendRedis {
		return redisLocker, redisClient
	}
	return lock.NewFailoverLocker(redisLocker, memory, logging.Component(logger, "lock")), redisClient
}

func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	handler := func(event *events.Event) error {
		logger.Debug().Str("event_id", event.ID).Str("type", event.Type).RawJSON("payload", event.Payload).Msg("event")
		return nil
	}
	for _, t := range []string{
		events.EventBookingCreated,
		events.EventBookingConfirmed,
		events.EventBookingCancelled,
		events.EventBookingRescheduled,
		events.EventBookingRescheduleAccepted,
		events.EventBookingRescheduleRejected,
		events.EventBookingCompleted,
	} {
		bus.Subscribe(t, handler)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
