package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
)

// Reader is the slice of a tenant transaction the resolver needs.
type Reader interface {
	repository.PricingReader
	repository.CalendarReader
}

var hundred = decimal.NewFromInt(100)

// Resolver computes nightly prices. A resolution reads rules and calendar
// state only, so for fixed inputs it always yields the same result.
type Resolver struct {
	store repository.Store
	now   func() time.Time
}

func New(store repository.Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// NewWithClock fixes "today", which lead-time yield triggers depend on.
func NewWithClock(store repository.Store, now func() time.Time) *Resolver {
	return &Resolver{store: store, now: now}
}

// ResolveNight resolves the price of one night for an organization.
func (r *Resolver) ResolveNight(ctx context.Context, orgID int64, q Query) (NightPrice, error) {
	return r.Resolve(ctx, r.store.Tenant(orgID), q)
}

// Quote prices every night of a stay and sums them.
func (r *Resolver) Quote(ctx context.Context, orgID int64, q StayQuery) (Quote, error) {
	return r.QuoteWith(ctx, r.store.Tenant(orgID), q)
}

func (r *Resolver) QuoteWith(ctx context.Context, rd Reader, q StayQuery) (Quote, error) {
	const op = "service.pricing.Quote"

	if err := q.Range.Validate(); err != nil {
		return Quote{}, fmt.Errorf("%s: %w", op, domain.Invalid("range", err.Error()))
	}

	out := Quote{PropertyID: q.PropertyID, Range: q.Range, Total: decimal.Zero}
	nights := q.Range.Nights()
	for _, d := range q.Range.Dates() {
		np, err := r.Resolve(ctx, rd, Query{
			PropertyID: q.PropertyID,
			Date:       d,
			Channel:    q.Channel,
			Adults:     q.Adults,
			Children:   q.Children,
			Nights:     nights,
		})
		if err != nil {
			return Quote{}, fmt.Errorf("%s: %w", op, err)
		}
		out.Currency = np.Currency
		out.Nights = append(out.Nights, np)
		out.Total = out.Total.Add(np.Amount)
	}

	return out, nil
}

// Resolve runs the six pricing steps in order: override or winning rate
// plan, channel modifier, occupancy surcharge, length-of-stay discount,
// yield rules. Each step rounds to cents once.
func (r *Resolver) Resolve(ctx context.Context, rd Reader, q Query) (NightPrice, error) {
	const op = "service.pricing.Resolve"

	if err := validate(&q); err != nil {
		return NightPrice{}, fmt.Errorf("%s: %w", op, err)
	}

	prop, err := rd.Property(ctx, q.PropertyID)
	if err != nil {
		return NightPrice{}, fmt.Errorf("%s: %w", op, err)
	}

	res := NightPrice{PropertyID: prop.ID, Date: q.Date, Currency: prop.Currency}

	price, adj, err := basePrice(ctx, rd, prop, q.Date)
	if err != nil {
		return NightPrice{}, fmt.Errorf("%s: %w", op, err)
	}
	res.Breakdown = append(res.Breakdown, adj)

	steps := []func(context.Context, Reader, Query, decimal.Decimal) (decimal.Decimal, *Adjustment, error){
		channelStep,
		occupancyStep,
		stayStep,
	}
	for _, step := range steps {
		next, adj, err := step(ctx, rd, q, price)
		if err != nil {
			return NightPrice{}, fmt.Errorf("%s: %w", op, err)
		}
		if adj != nil {
			adj.Delta = next.Sub(price)
			adj.Price = next
			res.Breakdown = append(res.Breakdown, *adj)
			price = next
		}
	}

	price, err = r.applyYield(ctx, rd, q, price, &res)
	if err != nil {
		return NightPrice{}, fmt.Errorf("%s: %w", op, err)
	}

	res.Amount = price
	return res, nil
}

func validate(q *Query) error {
	if q.PropertyID <= 0 {
		return domain.Invalid("property_id", "must be positive")
	}
	if q.Date.IsZero() {
		return domain.Invalid("date", "is required")
	}
	if q.Adults < 0 || q.Children < 0 {
		return domain.Invalid("guests", "must not be negative")
	}
	if q.Nights < 0 {
		return domain.Invalid("nights", "must not be negative")
	}
	if q.Nights == 0 {
		q.Nights = 1
	}
	q.Date = domain.Day(q.Date)
	return nil
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func basePrice(ctx context.Context, rd Reader, prop domain.Property, date time.Time) (decimal.Decimal, Adjustment, error) {
	o, err := rd.RateOverride(ctx, prop.ID, date)
	switch {
	case err == nil:
		p := round(o.Price)
		return p, Adjustment{Step: StepOverride, RuleID: o.ID, Delta: p, Price: p}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return decimal.Zero, Adjustment{}, err
	}

	plans, err := rd.RatePlans(ctx, prop.ID, date)
	if err != nil {
		return decimal.Zero, Adjustment{}, err
	}

	if plan, ok := winningPlan(plans, date); ok {
		p := round(plan.NightlyPrice)
		return p, Adjustment{Step: StepRatePlan, RuleID: plan.ID, Detail: string(plan.Type), Delta: p, Price: p}, nil
	}

	p := round(prop.NightlyPrice)
	return p, Adjustment{Step: StepProperty, Delta: p, Price: p}, nil
}

// winningPlan keeps the highest tier present on date, then the highest
// priority, then the lowest id.
func winningPlan(plans []domain.RatePlan, date time.Time) (domain.RatePlan, bool) {
	var (
		best  domain.RatePlan
		found bool
	)
	for _, p := range plans {
		if !p.AppliesTo(date) {
			continue
		}
		if !found || better(p, best) {
			best, found = p, true
		}
	}
	return best, found
}

func better(a, b domain.RatePlan) bool {
	if a.Type.Tier() != b.Type.Tier() {
		return a.Type.Tier() > b.Type.Tier()
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}

func channelStep(ctx context.Context, rd Reader, q Query, price decimal.Decimal) (decimal.Decimal, *Adjustment, error) {
	if q.Channel == "" {
		return price, nil, nil
	}

	mods, err := rd.ChannelModifiers(ctx, q.PropertyID, q.Channel)
	if err != nil {
		return price, nil, err
	}

	applicable := mods[:0:0]
	for _, m := range mods {
		if m.AppliesTo(q.Channel, q.Date) {
			applicable = append(applicable, m)
		}
	}
	if len(applicable) == 0 {
		return price, nil, nil
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		a, b := applicable[i], applicable[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if (a.PropertyID != nil) != (b.PropertyID != nil) {
			return a.PropertyID != nil
		}
		return a.ID < b.ID
	})
	m := applicable[0]

	var next decimal.Decimal
	switch m.Type {
	case domain.AdjustPercentage:
		next = price.Add(price.Mul(m.Value).Div(hundred))
	default:
		next = price.Add(m.Value)
	}

	return round(nonNegative(next)), &Adjustment{Step: StepChannel, RuleID: m.ID, Detail: m.Channel}, nil
}

func occupancyStep(ctx context.Context, rd Reader, q Query, price decimal.Decimal) (decimal.Decimal, *Adjustment, error) {
	rules, err := rd.OccupancyPricing(ctx, q.PropertyID)
	if err != nil {
		return price, nil, err
	}

	var rule *domain.OccupancyPricing
	for i := range rules {
		if rules[i].IsActive && rules[i].Covers(q.Date) {
			rule = &rules[i]
			break
		}
	}
	if rule == nil {
		return price, nil, nil
	}

	extraAdults, extraChildren := extraGuests(*rule, q.Adults, q.Children)
	if extraAdults == 0 && extraChildren == 0 {
		return price, nil, nil
	}

	childFee := rule.ExtraGuestFee.Sub(rule.ExtraGuestFee.Mul(rule.ChildDiscountPercent).Div(hundred))
	if rule.ExtraChildFee != nil {
		childFee = *rule.ExtraChildFee
	}

	surcharge := rule.ExtraGuestFee.Mul(decimal.NewFromInt(int64(extraAdults))).
		Add(childFee.Mul(decimal.NewFromInt(int64(extraChildren))))

	return round(price.Add(surcharge)), &Adjustment{
		Step:   StepOccupancy,
		RuleID: rule.ID,
		Detail: fmt.Sprintf("%d extra adults, %d extra children", extraAdults, extraChildren),
	}, nil
}

// extraGuests fills the base occupancy with adults first, then children, and
// charges at most maxOccupancy-baseOccupancy extra guests, adults first.
func extraGuests(rule domain.OccupancyPricing, adults, children int) (int, int) {
	free := rule.BaseOccupancy

	extraAdults := adults - free
	if extraAdults < 0 {
		free = -extraAdults
		extraAdults = 0
	} else {
		free = 0
	}

	extraChildren := children - free
	if extraChildren < 0 {
		extraChildren = 0
	}

	allowed := rule.MaxOccupancy - rule.BaseOccupancy
	if allowed < 0 {
		allowed = 0
	}
	if extraAdults > allowed {
		extraAdults = allowed
	}
	if extraChildren > allowed-extraAdults {
		extraChildren = allowed - extraAdults
	}

	return extraAdults, extraChildren
}

func stayStep(ctx context.Context, rd Reader, q Query, price decimal.Decimal) (decimal.Decimal, *Adjustment, error) {
	discounts, err := rd.LengthOfStayDiscounts(ctx, q.PropertyID)
	if err != nil {
		return price, nil, err
	}

	var best *domain.LengthOfStayDiscount
	for i := range discounts {
		d := &discounts[i]
		if !d.AppliesTo(q.Nights, q.Date) {
			continue
		}
		if best == nil || d.Priority > best.Priority ||
			(d.Priority == best.Priority && d.MinNights > best.MinNights) ||
			(d.Priority == best.Priority && d.MinNights == best.MinNights && d.ID < best.ID) {
			best = d
		}
	}
	if best == nil {
		return price, nil, nil
	}

	var next decimal.Decimal
	switch best.Type {
	case domain.AdjustPercentage:
		next = price.Sub(price.Mul(best.Value).Div(hundred))
	default:
		next = price.Sub(best.Value)
	}

	return round(nonNegative(next)), &Adjustment{
		Step:   StepStay,
		RuleID: best.ID,
		Detail: fmt.Sprintf("%d nights", q.Nights),
	}, nil
}
