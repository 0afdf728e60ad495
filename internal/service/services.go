package service

import (
	"log/slog"

	"github.com/kirinyoku/calendar-engine/internal/channel"
	"github.com/kirinyoku/calendar-engine/internal/lock"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	redisrepo "github.com/kirinyoku/calendar-engine/internal/repository/redis"
	"github.com/kirinyoku/calendar-engine/internal/service/admin"
	"github.com/kirinyoku/calendar-engine/internal/service/calendar"
	"github.com/kirinyoku/calendar-engine/internal/service/pricing"
	"github.com/kirinyoku/calendar-engine/internal/service/query"
	"github.com/kirinyoku/calendar-engine/internal/service/reconciliation"
	"github.com/kirinyoku/calendar-engine/internal/service/restriction"
)

type Services struct {
	Calendar       *calendar.Engine
	Pricing        *pricing.Resolver
	Query          *query.Service
	Admin          *admin.Service
	Reconciliation *reconciliation.Runner
}

type Config struct {
	Calendar       calendar.Config
	Query          query.Config
	Reconciliation reconciliation.Config
}

// NewServices wires the services over one store. cache may be nil.
func NewServices(
	store repository.Store,
	dir repository.ChannelDirectory,
	locker lock.Locker,
	cache *redisrepo.Cache,
	channels channel.Calendar,
	log *slog.Logger,
	cfg Config,
) *Services {
	var invalidator interface {
		calendar.Invalidator
		admin.Invalidator
	}
	if cache != nil {
		invalidator = cache
	}

	resolver := pricing.New(store)
	engine := calendar.New(store, locker, restriction.New(), resolver, invalidator, log, cfg.Calendar)

	return &Services{
		Calendar:       engine,
		Pricing:        resolver,
		Query:          query.New(store, resolver, cache, cfg.Query),
		Admin:          admin.New(store, invalidator, log),
		Reconciliation: reconciliation.New(store, dir, channels, engine, log, cfg.Reconciliation),
	}
}
