package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/observability"
	redisx "github.com/kirinyoku/calendar-engine/internal/redis"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	redisrepo "github.com/kirinyoku/calendar-engine/internal/repository/redis"
	"github.com/kirinyoku/calendar-engine/internal/service/pricing"
)

type Config struct {
	CalendarTTL     time.Duration
	PriceTTL        time.Duration
	MaxCalendarDays int
	DefaultCommands int
	MaxCommands     int
}

// Service serves lock-free reads. Results may be stale for up to the cache
// TTL; the engine drops a property's entries after every commit.
type Service struct {
	store    repository.Store
	resolver *pricing.Resolver
	cache    *redisrepo.Cache
	cfg      Config
}

// CalendarView is a property's calendar over a range with every night
// present.
type CalendarView struct {
	PropertyID int64                `json:"property_id"`
	Currency   string               `json:"currency"`
	Version    int64                `json:"version"`
	Range      domain.DateRange     `json:"range"`
	Days       []domain.CalendarDay `json:"days"`
}

// New builds the read service. cache may be nil, in which case every read
// goes to the store.
func New(store repository.Store, resolver *pricing.Resolver, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.CalendarTTL <= 0 {
		cfg.CalendarTTL = 15 * time.Second
	}

	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = 60 * time.Second
	}

	if cfg.MaxCalendarDays <= 0 {
		cfg.MaxCalendarDays = 731
	}

	if cfg.DefaultCommands <= 0 {
		cfg.DefaultCommands = 100
	}

	if cfg.MaxCommands <= 0 {
		cfg.MaxCommands = 1000
	}

	return &Service{
		store:    store,
		resolver: resolver,
		cache:    cache,
		cfg:      cfg,
	}
}

func cached[T any](
	ctx context.Context,
	s *Service,
	name, key string,
	orgID, propertyID int64,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if s.cache == nil {
		return loader(ctx)
	}

	missed := false
	v, err := redisrepo.GetOrSetJSON(ctx, s.cache, key, redisx.KeyPropertyIndex(orgID, propertyID), ttl,
		func(ctx context.Context) (T, error) {
			missed = true
			return loader(ctx)
		},
	)
	if err == nil {
		if missed {
			observability.ObserveCache(name, "miss")
		} else {
			observability.ObserveCache(name, "hit")
		}
	}

	return v, err
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPropertyNotFound
	}
	return err
}

// Calendar returns every night of r for a property.
//
// Returns:
//   - query.ErrPropertyNotFound if the property is not in the organization.
//   - query.ErrRangeTooLong if r spans more than the configured maximum.
func (s *Service) Calendar(ctx context.Context, orgID, propertyID int64, r domain.DateRange) (CalendarView, error) {
	const op = "service.query.Calendar"

	if err := r.Validate(); err != nil {
		return CalendarView{}, fmt.Errorf("%s: %w", op, domain.Invalid("range", err.Error()))
	}
	if r.Nights() > s.cfg.MaxCalendarDays {
		return CalendarView{}, fmt.Errorf("%s: %w", op, ErrRangeTooLong)
	}

	key := redisx.KeyCalendar(orgID, propertyID,
		r.CheckIn.Format(domain.DateLayout), r.CheckOut.Format(domain.DateLayout))

	view, err := cached(ctx, s, "calendar", key, orgID, propertyID, s.cfg.CalendarTTL,
		func(ctx context.Context) (CalendarView, error) {
			tenant := s.store.Tenant(orgID)

			prop, err := tenant.Property(ctx, propertyID)
			if err != nil {
				return CalendarView{}, notFound(err)
			}
			stored, err := tenant.CalendarDays(ctx, propertyID, r)
			if err != nil {
				return CalendarView{}, err
			}

			return CalendarView{
				PropertyID: prop.ID,
				Currency:   prop.Currency,
				Version:    prop.CalendarVer,
				Range:      r,
				Days:       domain.FillCalendar(prop, r, stored),
			}, nil
		},
	)
	if err != nil {
		return CalendarView{}, fmt.Errorf("%s: %w", op, err)
	}

	return view, nil
}

// Price resolves one night.
func (s *Service) Price(ctx context.Context, orgID int64, q pricing.Query) (pricing.NightPrice, error) {
	const op = "service.query.Price"

	q.Date = domain.Day(q.Date)
	key := redisx.KeyPrice(orgID, q.PropertyID, q.Date.Format(domain.DateLayout), q.Channel, q.Adults, q.Children, q.Nights)

	np, err := cached(ctx, s, "price", key, orgID, q.PropertyID, s.cfg.PriceTTL,
		func(ctx context.Context) (pricing.NightPrice, error) {
			np, err := s.resolver.ResolveNight(ctx, orgID, q)
			return np, notFound(err)
		},
	)
	if err != nil {
		return pricing.NightPrice{}, fmt.Errorf("%s: %w", op, err)
	}

	return np, nil
}

// Quote prices a whole stay.
func (s *Service) Quote(ctx context.Context, orgID int64, q pricing.StayQuery) (pricing.Quote, error) {
	const op = "service.query.Quote"

	q.Range = domain.DateRange{CheckIn: domain.Day(q.Range.CheckIn), CheckOut: domain.Day(q.Range.CheckOut)}
	if q.Range.Nights() > s.cfg.MaxCalendarDays {
		return pricing.Quote{}, fmt.Errorf("%s: %w", op, ErrRangeTooLong)
	}

	key := redisx.KeyQuote(orgID, q.PropertyID,
		q.Range.CheckIn.Format(domain.DateLayout), q.Range.CheckOut.Format(domain.DateLayout),
		q.Channel, q.Adults, q.Children)

	quote, err := cached(ctx, s, "quote", key, orgID, q.PropertyID, s.cfg.PriceTTL,
		func(ctx context.Context) (pricing.Quote, error) {
			quote, err := s.resolver.Quote(ctx, orgID, q)
			return quote, notFound(err)
		},
	)
	if err != nil {
		return pricing.Quote{}, fmt.Errorf("%s: %w", op, err)
	}

	return quote, nil
}

// Commands returns the latest command log entries of a property in creation
// order. The log is an audit trail and is never cached.
func (s *Service) Commands(ctx context.Context, orgID, propertyID int64, limit int) ([]domain.CalendarCommand, error) {
	const op = "service.query.Commands"

	if limit <= 0 {
		limit = s.cfg.DefaultCommands
	}
	if limit > s.cfg.MaxCommands {
		limit = s.cfg.MaxCommands
	}

	tenant := s.store.Tenant(orgID)
	if _, err := tenant.Property(ctx, propertyID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err))
	}

	cmds, err := tenant.Commands(ctx, propertyID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cmds, nil
}
