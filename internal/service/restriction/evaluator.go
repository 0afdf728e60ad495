package restriction

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
)

// Reader is the slice of a tenant transaction the evaluator needs.
type Reader interface {
	repository.RestrictionReader
	repository.CalendarReader
}

type Request struct {
	PropertyID int64
	Range      domain.DateRange
	Adults     int
	Children   int
}

// Evaluator decides whether a stay may be booked.
//
// The rule governing a stay is the highest ranked restriction whose span
// contains the check-in date and whose day-of-week filter matches it. Closed
// to departure is read from the rule governing the check-out date instead.
// When no rule governs, the per-day min/max stay of the check-in night apply.
type Evaluator struct {
	now func() time.Time
}

func New() *Evaluator {
	return &Evaluator{now: time.Now}
}

// NewWithClock is New with a fixed notion of today, for advance-notice checks.
func NewWithClock(now func() time.Time) *Evaluator {
	return &Evaluator{now: now}
}

// Evaluate returns nil when the stay is accepted and a *Violation when it is
// not. Any other error is a read failure.
func (e *Evaluator) Evaluate(ctx context.Context, r Reader, req Request) error {
	const op = "service.restriction.Evaluate"

	if err := req.Range.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	checkIn, checkOut := req.Range.CheckIn, req.Range.CheckOut
	nights := req.Range.Nights()

	rule, err := governing(ctx, r, req.PropertyID, checkIn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var (
		minStay, maxStay *int
		gapDays          int
	)
	if rule != nil {
		lead := domain.DaysBetween(e.now(), checkIn)
		if rule.AdvanceNoticeDays > 0 && lead < rule.AdvanceNoticeDays {
			return violation(domain.AdvanceNoticeViolation,
				"booking requires %d days notice, got %d", rule.AdvanceNoticeDays, lead)
		}
		if rule.ClosedToArrival {
			return violation(domain.ClosedToArrival, "arrival closed on %s", checkIn.Format(domain.DateLayout))
		}
		if !rule.ArrivalDays.Matches(checkIn) {
			return violation(domain.DayOfWeekRestricted, "arrival not allowed on %s", checkIn.Weekday())
		}
		minStay, maxStay, gapDays = rule.MinStay, rule.MaxStay, rule.GapDays
	} else {
		days, err := r.CalendarDays(ctx, req.PropertyID, domain.DateRange{CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, 1)})
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if len(days) == 1 {
			minStay, maxStay = days[0].MinStay, days[0].MaxStay
		}
	}

	if minStay != nil && nights < *minStay {
		return violation(domain.MinStayViolation, "minimum stay is %d nights, got %d", *minStay, nights)
	}
	if maxStay != nil && *maxStay > 0 && nights > *maxStay {
		return violation(domain.MaxStayViolation, "maximum stay is %d nights, got %d", *maxStay, nights)
	}

	departure, err := governing(ctx, r, req.PropertyID, checkOut)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if departure != nil && departure.ClosedToDeparture {
		return violation(domain.ClosedToDeparture, "departure closed on %s", checkOut.Format(domain.DateLayout))
	}

	if err := checkGap(ctx, r, req.PropertyID, req.Range, gapDays); err != nil {
		return err
	}

	return nil
}

func governing(ctx context.Context, r Reader, propertyID int64, date time.Time) (*domain.BookingRestriction, error) {
	rules, err := r.Restrictions(ctx, propertyID, date)
	if err != nil {
		return nil, err
	}

	applicable := rules[:0:0]
	for _, rule := range rules {
		if rule.AppliesTo(date) {
			applicable = append(applicable, rule)
		}
	}
	if len(applicable) == 0 {
		return nil, nil
	}

	sort.SliceStable(applicable, func(i, j int) bool { return applicable[i].Outranks(applicable[j]) })
	return &applicable[0], nil
}

// checkGap rejects a stay that leaves fewer than gap free nights to a
// neighbouring booking, and a turnover on a check-in night that forbids it.
func checkGap(ctx context.Context, r Reader, propertyID int64, stay domain.DateRange, gap int) error {
	window := gap
	if window < 1 {
		window = 1
	}

	around := domain.DateRange{
		CheckIn:  stay.CheckIn.AddDate(0, 0, -window),
		CheckOut: stay.CheckOut.AddDate(0, 0, window),
	}
	days, err := r.CalendarDays(ctx, propertyID, around)
	if err != nil {
		return fmt.Errorf("service.restriction.checkGap: %w", err)
	}

	byDate := make(map[time.Time]domain.CalendarDay, len(days))
	for _, d := range days {
		byDate[domain.Day(d.Date)] = d
	}

	if gap > 0 {
		for i := 1; i <= gap; i++ {
			before := stay.CheckIn.AddDate(0, 0, -i)
			after := stay.CheckOut.AddDate(0, 0, i-1)
			for _, d := range []time.Time{before, after} {
				if day, ok := byDate[d]; ok && day.Status == domain.DayBooked {
					return violation(domain.GapDaysViolation,
						"%d buffer nights required, booking on %s", gap, d.Format(domain.DateLayout))
				}
			}
		}
	}

	if in, ok := byDate[stay.CheckIn]; ok && !in.Changeover {
		prev, ok := byDate[stay.CheckIn.AddDate(0, 0, -1)]
		if ok && prev.Status == domain.DayBooked {
			return violation(domain.GapDaysViolation,
				"no changeover allowed on %s", stay.CheckIn.Format(domain.DateLayout))
		}
	}

	return nil
}
