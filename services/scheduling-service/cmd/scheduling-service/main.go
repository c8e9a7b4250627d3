package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/libs/periodic"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/locking"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/policy"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/reminder"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type settings struct {
	service      string
	port         string
	grpcPort     string
	databaseURL  string
	seedFile     string
	migrate      bool
	redisAddr    string
	kafkaBrokers string

	granularity    time.Duration
	checkInGrace   time.Duration
	autoConfirm    bool
	reminderOffset []int
	sweepSchedule  string
	sweepWindow    time.Duration
	ratePerMinute  int
	lockTTL        time.Duration
}

func loadSettings() (settings, error) {
	var (
		s   settings
		err error
	)
	s.service = config.String("SERVICE_NAME", "scheduling-service")
	if s.port, err = config.Port("PORT", "8086"); err != nil {
		return s, err
	}
	if s.grpcPort, err = config.Port("GRPC_PORT", "9086"); err != nil {
		return s, err
	}
	s.databaseURL = config.String("DATABASE_URL", "")
	s.seedFile = config.String("SEED_FILE", "")
	s.migrate = config.Bool("MIGRATE_ON_START", true)
	s.redisAddr = config.String("REDIS_ADDR", "")
	s.kafkaBrokers = config.String("KAFKA_BROKERS", "")

	if s.granularity, err = config.Minutes("SLOT_GRANULARITY_MINUTES", 15, 240); err != nil {
		return s, err
	}
	if s.checkInGrace, err = config.Minutes("CHECKIN_GRACE_MINUTES", 15, 240); err != nil {
		return s, err
	}
	s.autoConfirm = config.Bool("AUTO_CONFIRM", false)
	s.reminderOffset = config.IntList("REMINDER_OFFSETS_MINUTES", "1440")
	s.sweepSchedule = config.String("REMINDER_SWEEP_SCHEDULE", "@every 1m")
	if s.sweepWindow, err = config.Minutes("REMINDER_SWEEP_WINDOW_MINUTES", 1440, 10080); err != nil {
		return s, err
	}
	if s.ratePerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 600, 100000); err != nil {
		return s, err
	}
	ttl, err := config.Int("LOCK_TTL_SECONDS", 10, 300)
	if err != nil {
		return s, err
	}
	s.lockTTL = time.Duration(ttl) * time.Second
	return s, nil
}

func main() {
	cfg, err := loadSettings()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		otelShutdown = func(context.Context) error { return nil }
	}

	m := metrics.New("scheduling")
	var checks []runtime.ReadyCheck

	var (
		store booking.Store
		sink  events.Sink
	)
	if cfg.databaseURL != "" {
		pool, err := db.Open(ctx, cfg.databaseURL, db.Options{})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if cfg.migrate {
			if err := storage.Migrate(pool, logger); err != nil {
				logger.Error("db migration failed", "err", err)
				os.Exit(1)
			}
		}
		store = storage.NewPostgres(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		outboxRepo := outbox.NewRepository(pool)
		sink = outbox.NewSink(outboxRepo)
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.kafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
		if brokers := kafkax.SplitBrokers(cfg.kafkaBrokers); len(brokers) > 0 {
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		mem := storage.NewMemory()
		if cfg.seedFile != "" {
			counts, err := mem.LoadSeedFile(cfg.seedFile)
			if err != nil {
				logger.Error("seed load failed", "path", cfg.seedFile, "err", err)
				os.Exit(1)
			}
			logger.Info("in-memory store seeded",
				"path", cfg.seedFile,
				"staff", counts.Staff,
				"services", counts.Services,
				"recurring", counts.Recurring,
				"overrides", counts.Overrides,
				"time_off", counts.TimeOff,
			)
		}
		store = mem
		sink = events.NewLogSink(logger)
	}

	var (
		locker      locking.Locker = locking.NewLocalLocker()
		rateLimiter httpx.Middleware
	)
	if cfg.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		defer func() { _ = rdb.Close() }()
		locker = locking.NewRedisLocker(rdb, logger, locking.RedisOptions{TTL: cfg.lockTTL, Prefix: "scheduling:lock"})
		rateLimiter = httpx.NewRedisRateLimiter(rdb, cfg.ratePerMinute, time.Minute, "scheduling:rl").Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		rateLimiter = httpx.NewRateLimiter(cfg.ratePerMinute, time.Minute).Middleware()
	}

	bookingPolicy := policy.NewStaticProvider(policy.Policy{
		AutoConfirm:     cfg.autoConfirm,
		ReminderOffsets: policy.OffsetsFromMinutes(cfg.reminderOffset),
	})
	coord := booking.NewCoordinator(booking.Deps{
		Store:   store,
		Locker:  locker,
		Policy:  bookingPolicy,
		Sink:    sink,
		Metrics: m,
		Logger:  logger,
	}, booking.Config{
		Granularity:  cfg.granularity,
		CheckInGrace: cfg.checkInGrace,
	})

	runner := periodic.NewRunner(logger)
	sweeper := reminder.NewSweeper(coord, logger, m, reminder.Config{Window: cfg.sweepWindow})
	if err := runner.Add(ctx, cfg.sweepSchedule, "reminder-sweep", sweeper.RunOnce); err != nil {
		logger.Error("invalid reminder sweep schedule", "schedule", cfg.sweepSchedule, "err", err)
		os.Exit(1)
	}
	go runner.Run(ctx)

	grpcServer, health := grpcx.NewServer(logger)
	go grpcx.WatchReadiness(ctx, health, 5*time.Second, func(ctx context.Context) bool {
		return len(runtime.RunChecks(ctx, checks)) == 0
	})
	lis, err := net.Listen("tcp", ":"+cfg.grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", m.Handler())
	handlers.NewSchedulingHandler(coord, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		rateLimiter,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(10*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "store", storeKind(cfg))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	failures := runtime.Shutdown(10*time.Second,
		runtime.ShutdownStep{Name: "http", Run: srv.Shutdown},
		runtime.ShutdownStep{Name: "grpc", Run: func(context.Context) error {
			grpcServer.GracefulStop()
			return nil
		}},
		runtime.ShutdownStep{Name: "otel", Run: otelShutdown},
	)
	for step, err := range failures {
		logger.Error("shutdown step failed", "step", step, "err", err)
	}
	logger.Info("scheduling service stopped")
}

func storeKind(cfg settings) string {
	if strings.TrimSpace(cfg.databaseURL) == "" {
		return "memory"
	}
	return "postgres"
}
