package postgresrepo

import (
	"context"

	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// AdminRepo writes the configuration the engine reads: properties, pricing
// rules, restrictions and channel connections. Every row is stamped with the
// repo's organization.
type AdminRepo struct {
	base
}

func (r *AdminRepo) CreateProperty(ctx context.Context, p domain.Property) (int64, error) {
	const op = "postgresrepo.AdminRepo.CreateProperty"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO properties (organization_id, name, currency, nightly_price)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		r.org, p.Name, p.Currency, p.NightlyPrice,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) CreateRatePlan(ctx context.Context, p domain.RatePlan) (int64, error) {
	const op = "postgresrepo.AdminRepo.CreateRatePlan"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO rate_plans (organization_id, property_id, name, type, start_date, end_date,
		                         days_of_week, nightly_price, priority, is_active)
		 SELECT $1, id, $3, $4, $5, $6, $7, $8, $9, $10
		 FROM properties WHERE id = $2 AND organization_id = $1
		 RETURNING id`,
		r.org, p.PropertyID, p.Name, p.Type, domain.Day(p.StartDate), domain.Day(p.EndDate),
		weekdaysToDB(p.DaysOfWeek), p.NightlyPrice, p.Priority, p.IsActive,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// UpsertRateOverride sets the manual price of one night, replacing any
// previous override of that night.
func (r *AdminRepo) UpsertRateOverride(ctx context.Context, o domain.RateOverride) (int64, error) {
	const op = "postgresrepo.AdminRepo.UpsertRateOverride"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO rate_overrides (organization_id, property_id, date, price)
		 SELECT $1, id, $3, $4
		 FROM properties WHERE id = $2 AND organization_id = $1
		 ON CONFLICT (property_id, date) DO UPDATE
		 SET price = EXCLUDED.price
		 RETURNING id`,
		r.org, o.PropertyID, domain.Day(o.Date), o.Price,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) CreateRestriction(ctx context.Context, br domain.BookingRestriction) (int64, error) {
	const op = "postgresrepo.AdminRepo.CreateRestriction"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO booking_restrictions (organization_id, property_id, start_date, end_date, days_of_week,
		                                   arrival_days, min_stay, max_stay, closed_to_arrival,
		                                   closed_to_departure, gap_days, advance_notice_days, priority)
		 SELECT $1, id, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		 FROM properties WHERE id = $2 AND organization_id = $1
		 RETURNING id`,
		r.org, br.PropertyID, domain.Day(br.StartDate), domain.Day(br.EndDate),
		weekdaysToDB(br.DaysOfWeek), weekdaysToDB(br.ArrivalDays), br.MinStay, br.MaxStay,
		br.ClosedToArrival, br.ClosedToDeparture, br.GapDays, br.AdvanceNoticeDays, br.Priority,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) CreateChannelModifier(ctx context.Context, m domain.ChannelRateModifier) (int64, error) {
	const op = "postgresrepo.AdminRepo.CreateChannelModifier"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO channel_rate_modifiers (organization_id, property_id, channel, type, value,
		                                     priority, is_active, valid_from, valid_to)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		r.org, m.PropertyID, m.Channel, m.Type, m.Value, m.Priority, m.IsActive,
		dayPtr(m.ValidFrom), dayPtr(m.ValidTo),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) CreateLengthOfStayDiscount(ctx context.Context, l domain.LengthOfStayDiscount) (int64, error) {
	const op = "postgresrepo.AdminRepo.CreateLengthOfStayDiscount"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO length_of_stay_discounts (organization_id, property_id, min_nights, max_nights, type,
		                                       value, priority, is_active, valid_from, valid_to)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		r.org, l.PropertyID, l.MinNights, l.MaxNights, l.Type, l.Value, l.Priority, l.IsActive,
		dayPtr(l.ValidFrom), dayPtr(l.ValidTo),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) CreateOccupancyPricing(ctx context.Context, o domain.OccupancyPricing) (int64, error) {
	const op = "postgresrepo.AdminRepo.CreateOccupancyPricing"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO occupancy_pricing (organization_id, property_id, base_occupancy, max_occupancy,
		                                extra_guest_fee, extra_child_fee, child_discount_percent,
		                                is_active, valid_from, valid_to)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		r.org, o.PropertyID, o.BaseOccupancy, o.MaxOccupancy, o.ExtraGuestFee, o.ExtraChildFee,
		o.ChildDiscountPercent, o.IsActive, dayPtr(o.ValidFrom), dayPtr(o.ValidTo),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) CreateYieldRule(ctx context.Context, y domain.YieldRule) (int64, error) {
	const op = "postgresrepo.AdminRepo.CreateYieldRule"

	triggerType, raw, err := domain.EncodeYieldTrigger(y.Trigger)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO yield_rules (organization_id, property_id, name, trigger_type, trigger, adjustment,
		                          value, min_price, max_price, priority, is_active, valid_from, valid_to)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		r.org, y.PropertyID, y.Name, triggerType, raw, y.Adjustment, y.Value, y.MinPrice, y.MaxPrice,
		y.Priority, y.IsActive, dayPtr(y.ValidFrom), dayPtr(y.ValidTo),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) CreateChannelConnection(ctx context.Context, c domain.ChannelConnection) (int64, error) {
	const op = "postgresrepo.AdminRepo.CreateChannelConnection"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO channel_connections (organization_id, property_id, channel, external_listing_id,
		                                  auto_fix, active)
		 SELECT $1, id, $3, $4, $5, $6
		 FROM properties WHERE id = $2 AND organization_id = $1
		 RETURNING id`,
		r.org, c.PropertyID, c.Channel, c.ExternalListingID, c.AutoFix, c.Active,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}
