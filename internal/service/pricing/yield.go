package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// applyYield applies every triggered yield rule in descending priority. Each
// rule adjusts the running price and then clamps it into its own bounds.
func (r *Resolver) applyYield(
	ctx context.Context,
	rd Reader,
	q Query,
	price decimal.Decimal,
	res *NightPrice,
) (decimal.Decimal, error) {
	rules, err := rd.YieldRules(ctx, q.PropertyID)
	if err != nil {
		return price, err
	}
	if len(rules) == 0 {
		return price, nil
	}

	cal := &calendarView{rd: rd, propertyID: q.PropertyID}
	today := domain.Day(r.now())

	for _, rule := range rules {
		if !rule.IsActive || !rule.Covers(q.Date) || rule.Trigger == nil {
			continue
		}

		fired, err := triggered(ctx, rule.Trigger, cal, today, q.Date)
		if err != nil {
			return price, err
		}
		if !fired {
			continue
		}

		var next decimal.Decimal
		switch rule.Adjustment {
		case domain.AdjustPercentage:
			next = price.Add(price.Mul(rule.Value).Div(hundred))
		default:
			next = price.Add(rule.Value)
		}
		next = nonNegative(next)
		if rule.MinPrice != nil && next.LessThan(*rule.MinPrice) {
			next = *rule.MinPrice
		}
		if rule.MaxPrice != nil && next.GreaterThan(*rule.MaxPrice) {
			next = *rule.MaxPrice
		}
		next = round(next)

		res.Breakdown = append(res.Breakdown, Adjustment{
			Step:   StepYield,
			RuleID: rule.ID,
			Detail: rule.Name,
			Delta:  next.Sub(price),
			Price:  next,
		})
		price = next
	}

	return price, nil
}

func triggered(
	ctx context.Context,
	t domain.YieldTrigger,
	cal *calendarView,
	today, date time.Time,
) (bool, error) {
	lead := domain.DaysBetween(today, date)

	switch v := t.(type) {
	case domain.DaysBeforeArrival:
		return lead >= v.MinDays && lead <= v.MaxDays, nil

	case domain.LastMinuteFill:
		if lead < 0 || lead > v.WithinDays {
			return false, nil
		}
		st, err := cal.status(ctx, date)
		return st == domain.DayAvailable, err

	case domain.OccupancyThreshold:
		window := v.WindowDays
		if window <= 0 {
			window = 1
		}
		booked, err := cal.countBooked(ctx, domain.DateRange{CheckIn: date, CheckOut: date.AddDate(0, 0, window)})
		if err != nil {
			return false, err
		}
		pct := decimal.NewFromInt(int64(booked)).Mul(hundred).Div(decimal.NewFromInt(int64(window)))
		return pct.GreaterThanOrEqual(v.MinPercent) && pct.LessThanOrEqual(v.MaxPercent), nil

	case domain.GapFill:
		return cal.inGap(ctx, date, v.MaxGapNights)
	}

	return false, nil
}

// calendarView answers trigger questions from stored calendar rows. Nights
// without a row are available.
type calendarView struct {
	rd         Reader
	propertyID int64
}

func (c *calendarView) load(ctx context.Context, r domain.DateRange) (map[time.Time]domain.DayStatus, error) {
	days, err := c.rd.CalendarDays(ctx, c.propertyID, r)
	if err != nil {
		return nil, err
	}
	out := make(map[time.Time]domain.DayStatus, len(days))
	for _, d := range days {
		out[domain.Day(d.Date)] = d.Status
	}
	return out, nil
}

func (c *calendarView) status(ctx context.Context, date time.Time) (domain.DayStatus, error) {
	m, err := c.load(ctx, domain.DateRange{CheckIn: date, CheckOut: date.AddDate(0, 0, 1)})
	if err != nil {
		return "", err
	}
	if st, ok := m[date]; ok {
		return st, nil
	}
	return domain.DayAvailable, nil
}

func (c *calendarView) countBooked(ctx context.Context, r domain.DateRange) (int, error) {
	m, err := c.load(ctx, r)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, st := range m {
		if st == domain.DayBooked {
			n++
		}
	}
	return n, nil
}

// inGap reports whether date is available and sits in a run of at most
// maxGap available nights bounded by unavailable nights on both sides.
func (c *calendarView) inGap(ctx context.Context, date time.Time, maxGap int) (bool, error) {
	if maxGap <= 0 {
		return false, nil
	}

	m, err := c.load(ctx, domain.DateRange{
		CheckIn:  date.AddDate(0, 0, -maxGap),
		CheckOut: date.AddDate(0, 0, maxGap+1),
	})
	if err != nil {
		return false, err
	}

	free := func(d time.Time) bool {
		st, ok := m[d]
		return !ok || st == domain.DayAvailable
	}
	if !free(date) {
		return false, nil
	}

	run := 1
	left := date.AddDate(0, 0, -1)
	for ; free(left); left = left.AddDate(0, 0, -1) {
		run++
		if run > maxGap {
			return false, nil
		}
	}
	right := date.AddDate(0, 0, 1)
	for ; free(right); right = right.AddDate(0, 0, 1) {
		run++
		if run > maxGap {
			return false, nil
		}
	}

	return true, nil
}
