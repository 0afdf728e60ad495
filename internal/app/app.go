package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/calendar-engine/internal/broker/kafka"
	"github.com/kirinyoku/calendar-engine/internal/channel"
	"github.com/kirinyoku/calendar-engine/internal/config"
	"github.com/kirinyoku/calendar-engine/internal/lock"
	"github.com/kirinyoku/calendar-engine/internal/observability"
	"github.com/kirinyoku/calendar-engine/internal/postgres"
	redisx "github.com/kirinyoku/calendar-engine/internal/redis"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	"github.com/kirinyoku/calendar-engine/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/calendar-engine/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/calendar-engine/internal/repository/redis"
	"github.com/kirinyoku/calendar-engine/internal/service"
	"github.com/kirinyoku/calendar-engine/internal/service/calendar"
	"github.com/kirinyoku/calendar-engine/internal/service/outbox"
	"github.com/kirinyoku/calendar-engine/internal/service/query"
	"github.com/kirinyoku/calendar-engine/internal/service/reconciliation"
	httpgin "github.com/kirinyoku/calendar-engine/internal/transport/http/gin"
	"github.com/kirinyoku/calendar-engine/migrations"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	relay      *outbox.Relay
	runner     *reconciliation.Runner
	closers    []io.Closer
	pool       *pgxpool.Pool
}

type storage struct {
	store  repository.Store
	dir    repository.ChannelDirectory
	outbox repository.OutboxStore
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()
	a := &App{cfg: cfg, logger: logger}

	st, err := a.initStorage(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var rdb *goredis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redisx.New(ctx, redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, rdb)
	}

	locker, err := a.initLocker(rdb)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		cache   *redisrepo.Cache
		idem    *redisrepo.IdempotencyStore
		limiter *redisrepo.SlidingWindowLimiter
	)
	if rdb != nil {
		cache = redisrepo.New(rdb)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.HTTP.IdempotencyTTL)
		if cfg.HTTP.RateLimitPerMinute > 0 {
			limiter = redisrepo.NewSlidingWindowLimiter(rdb, "commands", cfg.HTTP.RateLimitPerMinute, time.Minute)
		}
	}

	var channels channel.Calendar
	if cfg.Channel.BaseURL != "" {
		client, err := channel.NewClient(cfg.Channel.BaseURL, cfg.Channel.APIKey, cfg.Channel.RPS)
		if err != nil {
			a.close()
			return nil, err
		}
		channels = client
	}

	services := service.NewServices(st.store, st.dir, locker, cache, channels, logger, service.Config{
		Calendar: calendar.Config{
			Topic:      cfg.Outbox.Topic,
			RetryAfter: cfg.Lock.RetryAfter,
			MaxNights:  cfg.Commands.MaxNights,
		},
		Query:    query.Config{},
		Reconciliation: reconciliation.Config{
			Interval:     cfg.Reconcile.Interval,
			HorizonDays:  cfg.Reconcile.HorizonDays,
			ThresholdPct: cfg.Reconcile.ThresholdPct,
			Topic:        cfg.Outbox.Topic,
		},
	})
	if channels != nil {
		a.runner = services.Reconciliation
	}

	pub, err := a.initPublisher(rdb)
	if err != nil {
		a.close()
		return nil, err
	}
	if pub != nil {
		a.relay = outbox.New(st.outbox, pub, logger, outbox.Config{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
			Lease:        cfg.Outbox.Lease,
			Backoff:      cfg.Outbox.Backoff,
			TopicPrefix:  cfg.Outbox.TopicPrefix,
		})
	}

	router := httpgin.NewRouter(services, httpgin.Deps{
		Idempotency: idem,
		Limiter:     limiter,
		Registry:    observability.InitRegistry(),
		CORSOrigins: cfg.HTTP.CORSOrigins,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) initStorage(ctx context.Context) (storage, error) {
	if a.cfg.Store.Backend == config.BackendMemory {
		a.logger.Warn("using in-memory store; state is lost on restart")
		s := memory.New()
		return storage{store: s, dir: s, outbox: s}, nil
	}

	pool, err := postgres.New(ctx, postgres.Config{DSN: a.cfg.Postgres.DSN(), MaxConns: a.cfg.Postgres.MaxConns})
	if err != nil {
		return storage{}, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.pool = pool

	if err := postgres.Migrate(ctx, pool, migrations.FS); err != nil {
		return storage{}, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	s := postgresrepo.NewStore(pool)
	return storage{store: s, dir: s, outbox: s.Outbox()}, nil
}

func (a *App) initLocker(rdb *goredis.Client) (lock.Locker, error) {
	timeout := a.cfg.Lock.Timeout

	var l lock.Locker
	switch a.cfg.Lock.Backend {
	case config.BackendPostgres:
		if a.pool == nil {
			return nil, errors.New("postgres lock requires the postgres store")
		}
		l = postgresrepo.NewAdvisoryLock(a.pool, timeout)
	case config.BackendRedis:
		if rdb == nil {
			return nil, errors.New("redis lock requires REDIS_ADDR")
		}
		l = redisrepo.NewPropertyLock(rdb, timeout)
	default:
		l = lock.NewLocal(timeout)
	}

	a.logger.Info("property lock configured", slog.String("backend", a.cfg.Lock.Backend), slog.Duration("timeout", timeout))
	return lock.NewInstrumented(l), nil
}

func (a *App) initPublisher(rdb *goredis.Client) (outbox.Publisher, error) {
	switch a.cfg.Outbox.Publisher {
	case config.BackendKafka:
		p, err := kafka.NewProducer(a.cfg.Outbox.KafkaBrokers, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize kafka producer: %w", err)
		}
		a.closers = append(a.closers, p)
		return p, nil
	case config.BackendRedis:
		if rdb == nil {
			return nil, errors.New("redis publisher requires REDIS_ADDR")
		}
		return redisx.NewTopicStream(rdb, a.cfg.Outbox.StreamMaxLen), nil
	}

	a.logger.Warn("outbox publisher disabled; events stay PENDING")
	return nil, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	if a.relay != nil {
		g.Go(func() error {
			a.logger.Info("outbox relay started", slog.String("publisher", a.cfg.Outbox.Publisher))
			return ignoreCanceled(a.relay.Run(gCtx))
		})
	}

	if a.runner != nil {
		g.Go(func() error {
			a.logger.Info("reconciliation scheduler started", slog.Duration("interval", a.cfg.Reconcile.Interval))
			return ignoreCanceled(a.runner.Schedule(gCtx))
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", slog.String("err", err.Error()))
		}
	}
	a.closers = nil
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
