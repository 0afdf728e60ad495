package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	"github.com/kirinyoku/calendar-engine/internal/uow"
)

// Invalidator drops cached reads derived from a property.
type Invalidator interface {
	InvalidateProperty(ctx context.Context, orgID, propertyID int64) error
}

type Service struct {
	uow         *uow.UoW
	invalidator Invalidator
	log         *slog.Logger
}

func New(store repository.Store, invalidator Invalidator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		uow:         uow.NewUoW(store),
		invalidator: invalidator,
		log:         log,
	}
}

// write runs fn in a unit of work and, after commit, drops the cache of
// propertyID. Organization-wide rules pass nil and expire with the TTL.
func (s *Service) write(
	ctx context.Context,
	op string,
	orgID int64,
	propertyID *int64,
	fn func(ctx context.Context, tx repository.Tx) (int64, error),
) (int64, error) {
	var id int64

	err := s.uow.Do(ctx, orgID, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		var err error
		id, err = fn(ctx, tx)
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return fmt.Errorf("%s: %w", op, ErrPropertyNotFound)
			case errors.Is(err, repository.ErrConflict):
				return fmt.Errorf("%s: %w", op, ErrConnectionConflict)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		if propertyID != nil && s.invalidator != nil {
			pid := *propertyID
			after(func(ctx context.Context) {
				if err := s.invalidator.InvalidateProperty(ctx, orgID, pid); err != nil {
					s.log.Warn("cache invalidation failed",
						slog.String("op", op),
						slog.Int64("property_id", pid),
						slog.String("err", err.Error()),
					)
				}
			})
		}
		return nil
	})

	return id, err
}

// CreateProperty registers a property with its static nightly price.
func (s *Service) CreateProperty(ctx context.Context, orgID int64, p domain.Property) (int64, error) {
	const op = "service.admin.CreateProperty"

	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("name", "is required"))
	}
	if p.NightlyPrice.IsNegative() {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("nightly_price", "must not be negative"))
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency != "" && len(p.Currency) != 3 {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("currency", "must be an ISO 4217 code"))
	}

	return s.write(ctx, op, orgID, nil, func(ctx context.Context, tx repository.Tx) (int64, error) {
		return tx.CreateProperty(ctx, p)
	})
}

// CreateRatePlan adds a rate plan to a property.
//
// Returns:
//   - admin.ErrPropertyNotFound if the property is not in the organization.
func (s *Service) CreateRatePlan(ctx context.Context, orgID int64, p domain.RatePlan) (int64, error) {
	const op = "service.admin.CreateRatePlan"

	if p.Type.Tier() == 0 {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("type", "unknown rate plan type"))
	}
	if p.StartDate.IsZero() || p.EndDate.IsZero() || domain.Day(p.EndDate).Before(domain.Day(p.StartDate)) {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("end_date", "must not be before start_date"))
	}
	if p.NightlyPrice.IsNegative() {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("nightly_price", "must not be negative"))
	}
	p.StartDate, p.EndDate = domain.Day(p.StartDate), domain.Day(p.EndDate)

	return s.write(ctx, op, orgID, &p.PropertyID, func(ctx context.Context, tx repository.Tx) (int64, error) {
		return tx.CreateRatePlan(ctx, p)
	})
}

// SetRateOverride pins the price of one night, replacing a previous override.
func (s *Service) SetRateOverride(ctx context.Context, orgID int64, o domain.RateOverride) (int64, error) {
	const op = "service.admin.SetRateOverride"

	if o.Date.IsZero() {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("date", "is required"))
	}
	if o.Price.IsNegative() {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("price", "must not be negative"))
	}
	o.Date = domain.Day(o.Date)
	o.Price = o.Price.Round(2)

	return s.write(ctx, op, orgID, &o.PropertyID, func(ctx context.Context, tx repository.Tx) (int64, error) {
		return tx.UpsertRateOverride(ctx, o)
	})
}

func (s *Service) CreateRestriction(ctx context.Context, orgID int64, r domain.BookingRestriction) (int64, error) {
	const op = "service.admin.CreateRestriction"

	if r.StartDate.IsZero() || r.EndDate.IsZero() || domain.Day(r.EndDate).Before(domain.Day(r.StartDate)) {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("end_date", "must not be before start_date"))
	}
	if r.MinStay != nil && *r.MinStay < 1 {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("min_stay", "must be at least 1"))
	}
	if r.MaxStay != nil && r.MinStay != nil && *r.MaxStay < *r.MinStay {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("max_stay", "must not be below min_stay"))
	}
	if r.GapDays < 0 || r.AdvanceNoticeDays < 0 {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("gap_days", "must not be negative"))
	}
	r.StartDate, r.EndDate = domain.Day(r.StartDate), domain.Day(r.EndDate)

	return s.write(ctx, op, orgID, &r.PropertyID, func(ctx context.Context, tx repository.Tx) (int64, error) {
		return tx.CreateRestriction(ctx, r)
	})
}

func validAdjustment(t domain.AdjustmentType) bool {
	switch t {
	case domain.AdjustPercentage, domain.AdjustFixedAmount, domain.AdjustFixedPerNight:
		return true
	}
	return false
}

func (s *Service) CreateChannelModifier(ctx context.Context, orgID int64, m domain.ChannelRateModifier) (int64, error) {
	const op = "service.admin.CreateChannelModifier"

	m.Channel = strings.TrimSpace(m.Channel)
	if m.Channel == "" {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("channel", "is required"))
	}
	if !validAdjustment(m.Type) {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("type", "unknown adjustment type"))
	}

	return s.write(ctx, op, orgID, m.PropertyID, func(ctx context.Context, tx repository.Tx) (int64, error) {
		return tx.CreateChannelModifier(ctx, m)
	})
}

func (s *Service) CreateLengthOfStayDiscount(ctx context.Context, orgID int64, l domain.LengthOfStayDiscount) (int64, error) {
	const op = "service.admin.CreateLengthOfStayDiscount"

	if l.MinNights < 1 {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("min_nights", "must be at least 1"))
	}
	if l.MaxNights != nil && *l.MaxNights < l.MinNights {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("max_nights", "must not be below min_nights"))
	}
	if !validAdjustment(l.Type) {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("type", "unknown adjustment type"))
	}

	return s.write(ctx, op, orgID, l.PropertyID, func(ctx context.Context, tx repository.Tx) (int64, error) {
		return tx.CreateLengthOfStayDiscount(ctx, l)
	})
}

func (s *Service) CreateOccupancyPricing(ctx context.Context, orgID int64, o domain.OccupancyPricing) (int64, error) {
	const op = "service.admin.CreateOccupancyPricing"

	if o.BaseOccupancy < 1 || o.MaxOccupancy < o.BaseOccupancy {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("max_occupancy", "must not be below base_occupancy"))
	}
	if o.ExtraGuestFee.IsNegative() {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("extra_guest_fee", "must not be negative"))
	}

	return s.write(ctx, op, orgID, o.PropertyID, func(ctx context.Context, tx repository.Tx) (int64, error) {
		return tx.CreateOccupancyPricing(ctx, o)
	})
}

func (s *Service) CreateYieldRule(ctx context.Context, orgID int64, y domain.YieldRule) (int64, error) {
	const op = "service.admin.CreateYieldRule"

	if y.Trigger == nil {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("trigger", "is required"))
	}
	if !validAdjustment(y.Adjustment) {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("adjustment", "unknown adjustment type"))
	}
	if y.MinPrice != nil && y.MaxPrice != nil && y.MaxPrice.LessThan(*y.MinPrice) {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("max_price", "must not be below min_price"))
	}

	return s.write(ctx, op, orgID, y.PropertyID, func(ctx context.Context, tx repository.Tx) (int64, error) {
		return tx.CreateYieldRule(ctx, y)
	})
}

// ConnectChannel maps a property to its listing on a channel.
//
// Returns:
//   - admin.ErrConnectionConflict if the property already has a listing on
//     that channel.
func (s *Service) ConnectChannel(ctx context.Context, orgID int64, c domain.ChannelConnection) (int64, error) {
	const op = "service.admin.ConnectChannel"

	c.Channel = strings.ToLower(strings.TrimSpace(c.Channel))
	c.ExternalListingID = strings.TrimSpace(c.ExternalListingID)
	if c.Channel == "" || c.ExternalListingID == "" {
		return 0, fmt.Errorf("%s: %w", op, domain.Invalid("channel", "channel and external_listing_id are required"))
	}

	return s.write(ctx, op, orgID, nil, func(ctx context.Context, tx repository.Tx) (int64, error) {
		return tx.CreateChannelConnection(ctx, c)
	})
}
