package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv    string
	LogLevel  string
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Store     StoreConfig
	Lock      LockConfig
	Commands  CommandConfig
	Outbox    OutboxConfig
	Reconcile ReconcileConfig
	Channel   ChannelConfig
	HTTP      HTTPConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// RedisConfig with an empty Addr disables the cache, idempotency keys and
// rate limiting.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Name, p.SSLMode,
	)
}

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendLocal    = "local"
	BackendKafka    = "kafka"
	BackendNone     = "none"
)

type StoreConfig struct {
	Backend string // postgres | memory
}

type LockConfig struct {
	Backend    string // postgres | redis | local
	Timeout    time.Duration
	RetryAfter time.Duration
}

type CommandConfig struct {
	MaxNights int
}

type OutboxConfig struct {
	Publisher    string // kafka | redis | none
	KafkaBrokers []string
	TopicPrefix  string
	Topic        string
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Backoff      []time.Duration
	Lease        time.Duration
	StreamMaxLen int64
}

type ReconcileConfig struct {
	Interval     time.Duration
	HorizonDays  int
	ThresholdPct decimal.Decimal
}

// ChannelConfig with an empty BaseURL disables scheduled reconciliation.
type ChannelConfig struct {
	BaseURL string
	APIKey  string
	RPS     int
}

type HTTPConfig struct {
	RateLimitPerMinute int
	IdempotencyTTL     time.Duration
	CORSOrigins        []string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var err error
	cfg := &Config{
		AppEnv:   envString("APP_ENV", "dev"),
		LogLevel: envString("LOG_LEVEL", "info"),
	}

	cfg.Server.Host = envString("SERVER_HOST", "localhost")
	if cfg.Server.Port, err = envInt("SERVER_PORT", 8080); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Store.Backend = strings.ToLower(envString("STORE_BACKEND", BackendPostgres))
	switch cfg.Store.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("%s: invalid STORE_BACKEND %q", op, cfg.Store.Backend)
	}

	if cfg.Store.Backend == BackendPostgres {
		if cfg.Postgres, err = loadPostgres(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defaultLock := BackendPostgres
	if cfg.Store.Backend == BackendMemory {
		defaultLock = BackendLocal
	}
	cfg.Lock.Backend = strings.ToLower(envString("LOCK_BACKEND", defaultLock))
	switch cfg.Lock.Backend {
	case BackendPostgres:
		if cfg.Store.Backend != BackendPostgres {
			return nil, fmt.Errorf("%s: LOCK_BACKEND=postgres requires STORE_BACKEND=postgres", op)
		}
	case BackendRedis:
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("%s: LOCK_BACKEND=redis requires REDIS_ADDR", op)
		}
	case BackendLocal:
	default:
		return nil, fmt.Errorf("%s: invalid LOCK_BACKEND %q", op, cfg.Lock.Backend)
	}
	if cfg.Lock.Timeout, err = envDuration("LOCK_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Lock.RetryAfter, err = envDuration("LOCK_RETRY_AFTER", time.Second); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Commands.MaxNights, err = envInt("COMMAND_MAX_NIGHTS", 366); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Commands.MaxNights <= 0 {
		return nil, fmt.Errorf("%s: COMMAND_MAX_NIGHTS must be positive", op)
	}

	if cfg.Outbox, err = loadOutbox(cfg.Redis.Addr); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Reconcile.Interval, err = envDuration("RECONCILE_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Reconcile.HorizonDays, err = envInt("RECONCILE_HORIZON_DAYS", 365); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Reconcile.ThresholdPct, err = decimal.NewFromString(envString("RECONCILE_THRESHOLD_PCT", "5")); err != nil {
		return nil, fmt.Errorf("%s: invalid RECONCILE_THRESHOLD_PCT: %w", op, err)
	}

	cfg.Channel.BaseURL = os.Getenv("CHANNEL_API_BASE_URL")
	cfg.Channel.APIKey = os.Getenv("CHANNEL_API_KEY")
	if cfg.Channel.RPS, err = envInt("CHANNEL_API_RPS", 5); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.HTTP.RateLimitPerMinute, err = envInt("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.HTTP.IdempotencyTTL, err = envDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.HTTP.CORSOrigins = envList("CORS_ALLOWED_ORIGINS", []string{"*"})

	return cfg, nil
}

func loadPostgres() (PostgresConfig, error) {
	p := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     envString("POSTGRES_HOST", "localhost"),
		SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
	}

	if p.User == "" {
		return p, fmt.Errorf("missing POSTGRES_USER")
	}
	if p.Password == "" {
		return p, fmt.Errorf("missing POSTGRES_PASSWORD")
	}
	if p.Name == "" {
		return p, fmt.Errorf("missing POSTGRES_DB")
	}

	var err error
	if p.Port, err = envInt("POSTGRES_PORT", 5432); err != nil {
		return p, err
	}
	maxConns, err := envInt("POSTGRES_MAX_CONNS", 20)
	if err != nil {
		return p, err
	}
	p.MaxConns = int32(maxConns)

	return p, nil
}

func loadOutbox(redisAddr string) (OutboxConfig, error) {
	o := OutboxConfig{
		Publisher:    strings.ToLower(envString("OUTBOX_PUBLISHER", BackendKafka)),
		KafkaBrokers: envList("KAFKA_BROKERS", []string{"localhost:9092"}),
		TopicPrefix:  os.Getenv("KAFKA_TOPIC_PREFIX"),
		Topic:        envString("OUTBOX_TOPIC", "calendar.events.v1"),
	}

	switch o.Publisher {
	case BackendKafka:
		if len(o.KafkaBrokers) == 0 {
			return o, fmt.Errorf("OUTBOX_PUBLISHER=kafka requires KAFKA_BROKERS")
		}
	case BackendRedis:
		if redisAddr == "" {
			return o, fmt.Errorf("OUTBOX_PUBLISHER=redis requires REDIS_ADDR")
		}
	case BackendNone:
	default:
		return o, fmt.Errorf("invalid OUTBOX_PUBLISHER %q", o.Publisher)
	}

	var err error
	if o.PollInterval, err = envDuration("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return o, err
	}
	if o.BatchSize, err = envInt("OUTBOX_BATCH_SIZE", 100); err != nil {
		return o, err
	}
	if o.MaxAttempts, err = envInt("OUTBOX_MAX_ATTEMPTS", 10); err != nil {
		return o, err
	}
	if o.Lease, err = envDuration("OUTBOX_LEASE", 30*time.Second); err != nil {
		return o, err
	}
	maxLen, err := envInt("OUTBOX_STREAM_MAXLEN", 100000)
	if err != nil {
		return o, err
	}
	o.StreamMaxLen = int64(maxLen)

	for _, s := range envList("RETRY_BACKOFF", []string{"1s", "5s", "30s", "2m", "10m"}) {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return o, fmt.Errorf("invalid RETRY_BACKOFF entry %q", s)
		}
		o.Backoff = append(o.Backoff, d)
	}

	return o, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// envList splits a comma separated value, dropping empty entries.
func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
