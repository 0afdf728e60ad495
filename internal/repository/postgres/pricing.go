package postgresrepo

import (
	"context"
	"time"

	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// PricingRepo reads the rules the price resolver composes. Modifier,
// discount, occupancy and yield rows with a NULL property_id apply to every
// property of the organization.
type PricingRepo struct {
	base
}

func (r *PricingRepo) RateOverride(ctx context.Context, propertyID int64, date time.Time) (domain.RateOverride, error) {
	const op = "postgresrepo.PricingRepo.RateOverride"

	var o domain.RateOverride
	err := r.handle().QueryRow(ctx,
		`SELECT id, organization_id, property_id, date, price
		 FROM rate_overrides
		 WHERE organization_id = $1 AND property_id = $2 AND date = $3`,
		r.org, propertyID, domain.Day(date),
	).Scan(&o.ID, &o.OrganizationID, &o.PropertyID, &o.Date, &o.Price)
	if err != nil {
		return domain.RateOverride{}, wrapDBErr(op, err)
	}
	o.Date = domain.Day(o.Date)

	return o, nil
}

// RatePlans returns the active plans whose span contains date.
func (r *PricingRepo) RatePlans(ctx context.Context, propertyID int64, date time.Time) ([]domain.RatePlan, error) {
	const op = "postgresrepo.PricingRepo.RatePlans"

	rows, err := r.handle().Query(ctx,
		`SELECT id, organization_id, property_id, name, type, start_date, end_date,
		        days_of_week, nightly_price, priority, is_active
		 FROM rate_plans
		 WHERE organization_id = $1 AND property_id = $2 AND is_active
		   AND start_date <= $3 AND end_date >= $3
		 ORDER BY id`,
		r.org, propertyID, domain.Day(date),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.RatePlan
	for rows.Next() {
		var (
			p   domain.RatePlan
			dow []int16
		)
		if err := rows.Scan(
			&p.ID, &p.OrganizationID, &p.PropertyID, &p.Name, &p.Type, &p.StartDate, &p.EndDate,
			&dow, &p.NightlyPrice, &p.Priority, &p.IsActive,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		p.StartDate = domain.Day(p.StartDate)
		p.EndDate = domain.Day(p.EndDate)
		p.DaysOfWeek = weekdaysFromDB(dow)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *PricingRepo) ChannelModifiers(
	ctx context.Context,
	propertyID int64,
	channel string,
) ([]domain.ChannelRateModifier, error) {
	const op = "postgresrepo.PricingRepo.ChannelModifiers"

	rows, err := r.handle().Query(ctx,
		`SELECT id, organization_id, property_id, channel, type, value, priority, is_active, valid_from, valid_to
		 FROM channel_rate_modifiers
		 WHERE organization_id = $1 AND (property_id = $2 OR property_id IS NULL)
		   AND channel = $3 AND is_active
		 ORDER BY id`,
		r.org, propertyID, channel,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.ChannelRateModifier
	for rows.Next() {
		var m domain.ChannelRateModifier
		if err := rows.Scan(
			&m.ID, &m.OrganizationID, &m.PropertyID, &m.Channel, &m.Type, &m.Value,
			&m.Priority, &m.IsActive, &m.ValidFrom, &m.ValidTo,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		m.ValidFrom, m.ValidTo = dayPtr(m.ValidFrom), dayPtr(m.ValidTo)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *PricingRepo) OccupancyPricing(ctx context.Context, propertyID int64) ([]domain.OccupancyPricing, error) {
	const op = "postgresrepo.PricingRepo.OccupancyPricing"

	rows, err := r.handle().Query(ctx,
		`SELECT id, organization_id, property_id, base_occupancy, max_occupancy, extra_guest_fee,
		        extra_child_fee, child_discount_percent, is_active, valid_from, valid_to
		 FROM occupancy_pricing
		 WHERE organization_id = $1 AND (property_id = $2 OR property_id IS NULL) AND is_active
		 ORDER BY property_id NULLS LAST, id`,
		r.org, propertyID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.OccupancyPricing
	for rows.Next() {
		var o domain.OccupancyPricing
		if err := rows.Scan(
			&o.ID, &o.OrganizationID, &o.PropertyID, &o.BaseOccupancy, &o.MaxOccupancy, &o.ExtraGuestFee,
			&o.ExtraChildFee, &o.ChildDiscountPercent, &o.IsActive, &o.ValidFrom, &o.ValidTo,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		o.ValidFrom, o.ValidTo = dayPtr(o.ValidFrom), dayPtr(o.ValidTo)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *PricingRepo) LengthOfStayDiscounts(
	ctx context.Context,
	propertyID int64,
) ([]domain.LengthOfStayDiscount, error) {
	const op = "postgresrepo.PricingRepo.LengthOfStayDiscounts"

	rows, err := r.handle().Query(ctx,
		`SELECT id, organization_id, property_id, min_nights, max_nights, type, value,
		        priority, is_active, valid_from, valid_to
		 FROM length_of_stay_discounts
		 WHERE organization_id = $1 AND (property_id = $2 OR property_id IS NULL) AND is_active
		 ORDER BY id`,
		r.org, propertyID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.LengthOfStayDiscount
	for rows.Next() {
		var l domain.LengthOfStayDiscount
		if err := rows.Scan(
			&l.ID, &l.OrganizationID, &l.PropertyID, &l.MinNights, &l.MaxNights, &l.Type, &l.Value,
			&l.Priority, &l.IsActive, &l.ValidFrom, &l.ValidTo,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		l.ValidFrom, l.ValidTo = dayPtr(l.ValidFrom), dayPtr(l.ValidTo)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *PricingRepo) YieldRules(ctx context.Context, propertyID int64) ([]domain.YieldRule, error) {
	const op = "postgresrepo.PricingRepo.YieldRules"

	rows, err := r.handle().Query(ctx,
		`SELECT id, organization_id, property_id, name, trigger_type, trigger, adjustment, value,
		        min_price, max_price, priority, is_active, valid_from, valid_to
		 FROM yield_rules
		 WHERE organization_id = $1 AND (property_id = $2 OR property_id IS NULL) AND is_active
		 ORDER BY priority DESC, id`,
		r.org, propertyID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.YieldRule
	for rows.Next() {
		var (
			y           domain.YieldRule
			triggerType domain.YieldRuleType
			raw         []byte
		)
		if err := rows.Scan(
			&y.ID, &y.OrganizationID, &y.PropertyID, &y.Name, &triggerType, &raw, &y.Adjustment, &y.Value,
			&y.MinPrice, &y.MaxPrice, &y.Priority, &y.IsActive, &y.ValidFrom, &y.ValidTo,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		if y.Trigger, err = domain.DecodeYieldTrigger(triggerType, raw); err != nil {
			return nil, wrapDBErr(op, err)
		}
		y.ValidFrom, y.ValidTo = dayPtr(y.ValidFrom), dayPtr(y.ValidTo)
		out = append(out, y)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
